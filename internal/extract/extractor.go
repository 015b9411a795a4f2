// Package extract decodes uploaded binary documents into plain text.
package extract

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	docx "github.com/fumiama/go-docx"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/sitebot/backend/internal/errs"
	"github.com/sitebot/backend/pkg/logger"
)

// SupportedExtension reports whether the filename carries an extension the
// extractor can decode.
func SupportedExtension(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf", ".doc", ".docx":
		return true
	default:
		return false
	}
}

// ExtractText decodes a document into page/section-concatenated plain text.
// The filename's extension selects the decoder family. Decoder failures and
// empty results come back as ExtractionError with the decoder's own message.
func ExtractText(data []byte, filename string) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return extractPDF(data)
	case ".doc", ".docx":
		return extractWord(data)
	default:
		return "", &errs.ValidationError{
			Reason: fmt.Sprintf("unsupported file type %q, expected .pdf, .doc or .docx", filepath.Ext(filename)),
		}
	}
}

// extractPDF walks pages in ascending order, joins the text items of each
// page with single spaces and pages with a blank line.
func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &errs.ExtractionError{Stage: "pdf", Err: err}
	}

	numPages := reader.NumPage()
	pages := make([]string, 0, numPages)

	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		var sb strings.Builder
		for _, item := range page.Content().Text {
			sb.WriteString(item.S)
			sb.WriteString(" ")
		}
		pages = append(pages, sb.String())
	}

	text := strings.TrimSpace(strings.Join(pages, "\n\n"))
	if text == "" {
		return "", &errs.ExtractionError{Stage: "pdf"}
	}

	logger.Debug("PDF text extracted",
		zap.Int("pages", numPages),
		zap.Int("length", len(text)),
	)

	return text, nil
}

// extractWord decodes .doc/.docx content structurally. Decoder warnings are
// log-only; the caller never sees an HTML intermediate.
func extractWord(data []byte) (string, error) {
	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &errs.ExtractionError{Stage: "word", Err: err}
	}

	var sb strings.Builder
	skipped := 0
	for _, item := range doc.Document.Body.Items {
		switch item.(type) {
		case *docx.Paragraph, *docx.Table:
			sb.WriteString(fmt.Sprintf("%v", item))
			sb.WriteString("\n")
		default:
			skipped++
		}
	}

	if skipped > 0 {
		logger.Warn("Word decoder skipped unsupported body items", zap.Int("count", skipped))
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", &errs.ExtractionError{Stage: "word"}
	}

	logger.Debug("Word text extracted", zap.Int("length", len(text)))

	return text, nil
}
