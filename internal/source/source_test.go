package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindString(t *testing.T) {
	assert.Equal(t, "link", KindLink.String())
	assert.Equal(t, "document", KindDocument.String())
	assert.Equal(t, "social_profile", KindSocialProfile.String())
	assert.Equal(t, "pasted_text", KindPastedText.String())
	assert.Equal(t, "unknown", Kind(42).String())
}

func TestLabel(t *testing.T) {
	tests := []struct {
		name string
		desc Descriptor
		want string
	}{
		{
			name: "link labeled by URL",
			desc: NewLink("https://example.com/about"),
			want: "https://example.com/about",
		},
		{
			name: "document labeled by filename",
			desc: NewDocument([]byte("data"), "brochure.pdf"),
			want: "brochure.pdf",
		},
		{
			name: "social profile labeled by platform and handle",
			desc: NewSocialProfile("instagram", "freshbakes"),
			want: "instagram/freshbakes",
		},
		{
			name: "pasted text gets a generic label",
			desc: NewPastedText("we sell handmade candles"),
			want: "pasted text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.desc.Label())
		})
	}
}
