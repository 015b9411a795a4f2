// Package normalize turns raw markup into best-effort plain text. It never
// fails: malformed markup degrades through a readability pass and a regex
// pass instead of erroring, and empty input yields an empty string.
package normalize

import (
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// Pre-compiled to avoid recompiling per document.
var (
	scriptRe  = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRe   = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	tagRe     = regexp.MustCompile(`<[^>]*>`)
	horizRe   = regexp.MustCompile(`[^\S\n]+`)
	newlineRe = regexp.MustCompile(` ?\n[\n ]*`)
)

// minStructuralLength is the point below which the structural result is
// considered too weak and the fallback paths are consulted.
const minStructuralLength = 50

// Text extracts visible text from markup. The structural path parses the
// document, strips non-content elements and prefers the semantically main
// region. When parsing fails or yields under minStructuralLength characters,
// a readability pass and a regex pass are tried as well and the longest
// result wins. Script-heavy pages routinely defeat the structural path alone.
func Text(markup string) string {
	if strings.TrimSpace(markup) == "" {
		return ""
	}

	best := structuralText(markup)
	if len(best) >= minStructuralLength {
		return best
	}

	if alt := readabilityText(markup); len(alt) > len(best) {
		best = alt
	}
	if alt := regexText(markup); len(alt) > len(best) {
		best = alt
	}

	return best
}

// Collapse applies the normalizer's whitespace rules without any tag
// handling: runs of horizontal whitespace become single spaces, blank-line
// runs become single newlines. Used directly on already-plain text.
func Collapse(text string) string {
	text = horizRe.ReplaceAllString(text, " ")
	text = newlineRe.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}

func structuralText(markup string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return ""
	}

	doc.Find("script, style, noscript, iframe, embed, object").Remove()

	region := doc.Find("main, [role=main]").First()
	if region.Length() == 0 {
		region = doc.Find("article").First()
	}
	if region.Length() == 0 {
		region = doc.Find("body").First()
	}

	var text string
	if region.Length() > 0 {
		text = region.Text()
	} else {
		text = doc.Text()
	}

	return Collapse(text)
}

func readabilityText(markup string) string {
	pageURL, _ := url.Parse("about:blank")
	article, err := readability.FromReader(strings.NewReader(markup), pageURL)
	if err != nil {
		return ""
	}
	return Collapse(article.TextContent)
}

// regexText strips tags by pattern and decodes entities. Tolerates markup the
// parser chokes on.
func regexText(markup string) string {
	text := scriptRe.ReplaceAllString(markup, " ")
	text = styleRe.ReplaceAllString(text, " ")
	text = tagRe.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)
	return Collapse(text)
}
