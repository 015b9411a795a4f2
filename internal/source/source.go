// Package source defines the descriptor for a knowledge source submitted by
// a user: a web link, an uploaded document, a social profile, or pasted text.
package source

import "fmt"

type Kind int

const (
	KindLink Kind = iota
	KindDocument
	KindSocialProfile
	KindPastedText
)

func (k Kind) String() string {
	switch k {
	case KindLink:
		return "link"
	case KindDocument:
		return "document"
	case KindSocialProfile:
		return "social_profile"
	case KindPastedText:
		return "pasted_text"
	default:
		return "unknown"
	}
}

// Descriptor is a tagged union over the four source kinds. Construct one with
// the NewX helpers; only the fields of the active kind are meaningful. A
// Descriptor is immutable once created and owned by the ingestion pipeline
// for the duration of one request.
type Descriptor struct {
	Kind Kind

	// KindLink
	URL string

	// KindDocument
	Data     []byte
	Filename string

	// KindSocialProfile
	Platform string
	Handle   string

	// KindPastedText
	Text string
}

func NewLink(url string) Descriptor {
	return Descriptor{Kind: KindLink, URL: url}
}

func NewDocument(data []byte, filename string) Descriptor {
	return Descriptor{Kind: KindDocument, Data: data, Filename: filename}
}

func NewSocialProfile(platform, handle string) Descriptor {
	return Descriptor{Kind: KindSocialProfile, Platform: platform, Handle: handle}
}

func NewPastedText(text string) Descriptor {
	return Descriptor{Kind: KindPastedText, Text: text}
}

// Label returns a short human-readable identifier for logs and records.
func (d Descriptor) Label() string {
	switch d.Kind {
	case KindLink:
		return d.URL
	case KindDocument:
		return d.Filename
	case KindSocialProfile:
		return fmt.Sprintf("%s/%s", d.Platform, d.Handle)
	case KindPastedText:
		return "pasted text"
	default:
		return "unknown"
	}
}
