package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitebot/backend/internal/errs"
	"github.com/sitebot/backend/internal/fetch"
	"github.com/sitebot/backend/internal/source"
	"github.com/sitebot/backend/internal/storage/models"
)

type fakeFetcher struct {
	raw *fetch.RawContent
	err error
}

func (f *fakeFetcher) Fetch(_ context.Context, _ source.Descriptor) (*fetch.RawContent, error) {
	return f.raw, f.err
}

type fakeModel struct {
	extractResult string
	extractErr    error
	extractCalls  int

	condenseResult string
	condenseErr    error
	condenseCalls  int
	condenseInput  string
}

func (m *fakeModel) ExtractVisibleText(_ context.Context, _, _ string) (string, error) {
	m.extractCalls++
	return m.extractResult, m.extractErr
}

func (m *fakeModel) CondenseKnowledge(_ context.Context, text string, _ source.Kind) (string, error) {
	m.condenseCalls++
	m.condenseInput = text
	return m.condenseResult, m.condenseErr
}

type fakeArchiver struct {
	recs []*models.IngestionRecord
}

func (a *fakeArchiver) SaveIngestion(rec *models.IngestionRecord) error {
	a.recs = append(a.recs, rec)
	return nil
}

// strongMarkup wraps enough real text that structural extraction clears both
// the length floor and the extraction ratio.
func strongMarkup() *fetch.RawContent {
	text := strings.Repeat("We roast single-origin beans in small batches every week. ", 20)
	markup := "<html><body><main><p>" + text + "</p></main></body></html>"
	return &fetch.RawContent{Text: markup, IsMarkup: true, Strategy: "relay_1", MarkupLen: len(markup)}
}

// scriptHeavyMarkup has a huge script payload and almost no visible text, so
// the extraction ratio collapses.
func scriptHeavyMarkup() *fetch.RawContent {
	script := "<script>" + strings.Repeat("var x = 1;", 5000) + "</script>"
	markup := "<html><body>" + script + "<p>" + strings.Repeat("Tiny visible fragment of content here. ", 3) + "</p></body></html>"
	return &fetch.RawContent{Text: markup, IsMarkup: true, Strategy: "relay_1", MarkupLen: len(markup)}
}

func TestIngestStructuralPathSkipsModel(t *testing.T) {
	model := &fakeModel{}
	p := NewPipeline(&fakeFetcher{raw: strongMarkup()}, model, nil)

	result, err := p.Ingest(context.Background(), source.NewLink("https://example.com"))
	require.NoError(t, err)

	assert.NotEmpty(t, result.KnowledgeBase)
	assert.False(t, result.Degraded)
	assert.Equal(t, "relay_1", result.Strategy)
	assert.Equal(t, 0, model.extractCalls)
	assert.Equal(t, 0, model.condenseCalls, "small well-structured text should be condensed directly")
}

func TestIngestSemanticFallbackUsed(t *testing.T) {
	semantic := strings.Repeat("The page describes a yoga studio offering morning and evening classes. ", 10)
	model := &fakeModel{extractResult: semantic}
	p := NewPipeline(&fakeFetcher{raw: scriptHeavyMarkup()}, model, nil)

	result, err := p.Ingest(context.Background(), source.NewLink("https://example.com"))
	require.NoError(t, err)

	assert.Equal(t, 1, model.extractCalls)
	assert.False(t, result.Degraded)
	assert.Contains(t, result.KnowledgeBase, "yoga studio")
}

func TestIngestDegradesToStructuralText(t *testing.T) {
	// Semantic extraction under-delivers but the structural text clears the
	// usable floor, so ingestion proceeds degraded.
	model := &fakeModel{extractResult: "too short"}
	p := NewPipeline(&fakeFetcher{raw: scriptHeavyMarkup()}, model, nil)

	result, err := p.Ingest(context.Background(), source.NewLink("https://example.com"))
	require.NoError(t, err)

	assert.True(t, result.Degraded)
	assert.Contains(t, result.KnowledgeBase, "Tiny visible fragment")
}

func TestIngestSemanticErrorDegradesInsteadOfFailing(t *testing.T) {
	model := &fakeModel{extractErr: errors.New("model unavailable")}
	p := NewPipeline(&fakeFetcher{raw: scriptHeavyMarkup()}, model, nil)

	result, err := p.Ingest(context.Background(), source.NewLink("https://example.com"))
	require.NoError(t, err)
	assert.True(t, result.Degraded)
}

func TestIngestFailsWhenNothingUsable(t *testing.T) {
	// Nearly empty page and an empty semantic result: nothing clears a floor.
	markup := "<html><body><script>var x = 1;</script><p>hi</p></body></html>"
	raw := &fetch.RawContent{Text: markup, IsMarkup: true, Strategy: "relay_1", MarkupLen: len(markup)}
	model := &fakeModel{extractResult: ""}
	p := NewPipeline(&fakeFetcher{raw: raw}, model, nil)

	_, err := p.Ingest(context.Background(), source.NewLink("https://example.com"))

	var eerr *errs.ExtractionError
	require.Error(t, err)
	require.ErrorAs(t, err, &eerr)
	assert.Equal(t, "page", eerr.Stage)
}

func TestIngestFetchErrorPropagates(t *testing.T) {
	fetchErr := &errs.AggregateFetchError{Attempts: 3, Last: errors.New("HTTP 502")}
	p := NewPipeline(&fakeFetcher{err: fetchErr}, &fakeModel{}, nil)

	_, err := p.Ingest(context.Background(), source.NewLink("https://example.com"))

	var aerr *errs.AggregateFetchError
	require.Error(t, err)
	assert.ErrorAs(t, err, &aerr)
}

func TestCondenseDirectLimitBoundary(t *testing.T) {
	tests := []struct {
		name          string
		length        int
		desc          source.Descriptor
		wantModelCall bool
	}{
		{"link at the limit condenses directly", directCondenseLimit, source.NewLink("https://example.com"), false},
		{"link one over the limit uses the model", directCondenseLimit + 1, source.NewLink("https://example.com"), true},
		{"document at the limit condenses directly", directCondenseLimit, source.NewDocument(nil, "brochure.pdf"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := strings.Repeat("a", tt.length)
			raw := &fetch.RawContent{Text: text, Strategy: "document"}
			model := &fakeModel{condenseResult: "condensed summary of the document"}
			p := NewPipeline(&fakeFetcher{raw: raw}, model, nil)

			result, err := p.Ingest(context.Background(), tt.desc)
			require.NoError(t, err)

			if tt.wantModelCall {
				assert.Equal(t, 1, model.condenseCalls)
				assert.Equal(t, "condensed summary of the document", result.KnowledgeBase)
			} else {
				assert.Equal(t, 0, model.condenseCalls)
				assert.Equal(t, text, result.KnowledgeBase)
			}
		})
	}
}

func TestIngestOwnReplyAsPastedText(t *testing.T) {
	// A prior assistant reply fed back in as pasted text must flow through
	// cleanly, markdown and all.
	reply := `## Opening hours

We are open **Monday to Saturday**, 8am to 6pm.

- Fresh sourdough daily
- Pastries until noon`

	raw := &fetch.RawContent{Text: reply, Strategy: "pasted"}
	model := &fakeModel{condenseResult: "Bakery hours and product summary."}
	p := NewPipeline(&fakeFetcher{raw: raw}, model, nil)

	result, err := p.Ingest(context.Background(), source.NewPastedText(reply))
	require.NoError(t, err)
	assert.NotEmpty(t, result.KnowledgeBase)
}

func TestCondensePastedTextAlwaysUsesModel(t *testing.T) {
	text := "We are a small pottery workshop selling handmade tableware."
	raw := &fetch.RawContent{Text: text, Strategy: "pasted"}
	model := &fakeModel{condenseResult: "Pottery workshop, handmade tableware."}
	p := NewPipeline(&fakeFetcher{raw: raw}, model, nil)

	result, err := p.Ingest(context.Background(), source.NewPastedText(text))
	require.NoError(t, err)

	assert.Equal(t, 1, model.condenseCalls)
	assert.Equal(t, text, model.condenseInput)
	assert.Equal(t, "Pottery workshop, handmade tableware.", result.KnowledgeBase)
}

func TestCondenseModelFailureFailsIngestion(t *testing.T) {
	raw := &fetch.RawContent{Text: "some pasted description of a business", Strategy: "pasted"}
	model := &fakeModel{condenseErr: errors.New("rate limited")}
	p := NewPipeline(&fakeFetcher{raw: raw}, model, nil)

	_, err := p.Ingest(context.Background(), source.NewPastedText("some pasted description of a business"))

	var eerr *errs.ExtractionError
	require.Error(t, err)
	require.ErrorAs(t, err, &eerr)
	assert.Equal(t, "condense", eerr.Stage)
}

func TestCondenseEmptyResultFailsIngestion(t *testing.T) {
	raw := &fetch.RawContent{Text: "some pasted description of a business", Strategy: "pasted"}
	model := &fakeModel{condenseResult: "   "}
	p := NewPipeline(&fakeFetcher{raw: raw}, model, nil)

	_, err := p.Ingest(context.Background(), source.NewPastedText("some pasted description of a business"))

	var eerr *errs.ExtractionError
	require.Error(t, err)
	assert.ErrorAs(t, err, &eerr)
}

func TestIngestArchivesOutcome(t *testing.T) {
	archive := &fakeArchiver{}
	p := NewPipeline(&fakeFetcher{raw: strongMarkup()}, &fakeModel{}, archive)

	_, err := p.Ingest(context.Background(), source.NewLink("https://example.com/about"))
	require.NoError(t, err)

	require.Len(t, archive.recs, 1)
	rec := archive.recs[0]
	assert.Equal(t, "success", rec.Status)
	assert.Equal(t, "link", rec.SourceKind)
	assert.Equal(t, "https://example.com/about", rec.SourceLabel)
	assert.Equal(t, "relay_1", rec.Strategy)
	assert.Greater(t, rec.KnowledgeLength, 0)

	// A failed ingestion is archived too, with the error message.
	p = NewPipeline(&fakeFetcher{err: errors.New("boom")}, &fakeModel{}, archive)
	_, err = p.Ingest(context.Background(), source.NewLink("https://example.com/about"))
	require.Error(t, err)

	require.Len(t, archive.recs, 2)
	assert.Equal(t, "failure", archive.recs[1].Status)
	assert.Contains(t, archive.recs[1].Error, "boom")
}
