package llm

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{
			name:  "short string unchanged",
			input: "hello",
			max:   10,
			want:  "hello",
		},
		{
			name:  "exact length unchanged",
			input: "hello",
			max:   5,
			want:  "hello",
		},
		{
			name:  "ascii cut at boundary",
			input: "hello world",
			max:   5,
			want:  "hello",
		},
		{
			name:  "multibyte rune never split",
			input: "café",
			max:   4,
			want:  "caf",
		},
		{
			name:  "zero budget",
			input: "hello",
			max:   0,
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.input, tt.max)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
			assert.LessOrEqual(t, len(got), tt.max)
		})
	}
}

func TestTruncateLargeMultibyteInput(t *testing.T) {
	input := strings.Repeat("日本語", 100)

	for max := 0; max <= 12; max++ {
		got := truncate(input, max)
		assert.True(t, utf8.ValidString(got))
		assert.LessOrEqual(t, len(got), max)
	}
}
