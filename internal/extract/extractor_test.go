package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitebot/backend/internal/errs"
)

func TestSupportedExtension(t *testing.T) {
	tests := []struct {
		filename string
		want     bool
	}{
		{"brochure.pdf", true},
		{"BROCHURE.PDF", true},
		{"menu.docx", true},
		{"menu.doc", true},
		{"notes.txt", false},
		{"image.png", false},
		{"archive.pdf.zip", false},
		{"noextension", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, SupportedExtension(tt.filename))
		})
	}
}

func TestExtractTextUnsupportedExtension(t *testing.T) {
	_, err := ExtractText([]byte("content"), "notes.txt")

	var verr *errs.ValidationError
	require.Error(t, err)
	assert.ErrorAs(t, err, &verr)
}

func TestExtractTextCorruptDocuments(t *testing.T) {
	garbage := []byte("this is not a real document payload")

	for _, filename := range []string{"broken.pdf", "broken.docx", "broken.doc"} {
		t.Run(filename, func(t *testing.T) {
			_, err := ExtractText(garbage, filename)

			var eerr *errs.ExtractionError
			require.Error(t, err)
			assert.ErrorAs(t, err, &eerr)
		})
	}
}
