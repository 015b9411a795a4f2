// Package ingest orchestrates the knowledge-ingestion pipeline: fetch,
// extract, normalize, the semantic fallback, and condensation into a
// knowledge base.
package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitebot/backend/internal/errs"
	"github.com/sitebot/backend/internal/fetch"
	"github.com/sitebot/backend/internal/metrics"
	"github.com/sitebot/backend/internal/normalize"
	"github.com/sitebot/backend/internal/source"
	"github.com/sitebot/backend/internal/storage/models"
	"github.com/sitebot/backend/pkg/logger"
)

const (
	// Semantic fallback triggers: structural extraction captured under 5% of
	// the markup, or under 500 characters outright. Both are heuristics for
	// "this page is mostly client-rendered".
	minExtractionRatio = 0.05
	minNormalizedText  = 500

	// Degradation floors.
	minSemanticResult = 500
	minUsableText     = 50

	// Text at or below this from an already well-structured source skips the
	// condensation model call entirely.
	directCondenseLimit = 50000
)

// LanguageModel is the slice of the LLM client the pipeline needs.
type LanguageModel interface {
	ExtractVisibleText(ctx context.Context, markup, pageURL string) (string, error)
	CondenseKnowledge(ctx context.Context, text string, kind source.Kind) (string, error)
}

// ContentFetcher resolves a descriptor into raw content.
type ContentFetcher interface {
	Fetch(ctx context.Context, desc source.Descriptor) (*fetch.RawContent, error)
}

// Archiver persists ingestion records for diagnostics. Optional; the live
// knowledge base itself stays in memory.
type Archiver interface {
	SaveIngestion(rec *models.IngestionRecord) error
}

type Pipeline struct {
	fetcher ContentFetcher
	model   LanguageModel
	archive Archiver
}

// Result is a successful ingestion: a non-empty knowledge base plus
// provenance for diagnostics.
type Result struct {
	KnowledgeBase string
	Strategy      string
	Degraded      bool
}

func NewPipeline(fetcher ContentFetcher, model LanguageModel, archive Archiver) *Pipeline {
	return &Pipeline{
		fetcher: fetcher,
		model:   model,
		archive: archive,
	}
}

// Ingest turns a source descriptor into a knowledge base. Any failure leaves
// the caller free to retry with the same or another source; a nil error
// guarantees a non-empty knowledge base.
func (p *Pipeline) Ingest(ctx context.Context, desc source.Descriptor) (*Result, error) {
	start := time.Now()

	result, err := p.ingest(ctx, desc)

	status := "success"
	if err != nil {
		status = "failure"
	}
	metrics.IngestTotal.WithLabelValues(desc.Kind.String(), status).Inc()
	metrics.IngestDuration.Observe(time.Since(start).Seconds())

	if p.archive != nil {
		rec := &models.IngestionRecord{
			ID:          uuid.New().String(),
			SourceKind:  desc.Kind.String(),
			SourceLabel: desc.Label(),
			Status:      status,
			CreatedAt:   time.Now(),
		}
		if err != nil {
			rec.Error = err.Error()
		} else {
			rec.Strategy = result.Strategy
			rec.KnowledgeLength = len(result.KnowledgeBase)
			rec.Degraded = result.Degraded
		}
		if saveErr := p.archive.SaveIngestion(rec); saveErr != nil {
			logger.Warn("Failed to archive ingestion record", zap.Error(saveErr))
		}
	}

	return result, err
}

func (p *Pipeline) ingest(ctx context.Context, desc source.Descriptor) (*Result, error) {
	raw, err := p.fetcher.Fetch(ctx, desc)
	if err != nil {
		logger.Error("Fetch failed",
			zap.String("source_kind", desc.Kind.String()),
			zap.String("source", desc.Label()),
			zap.Error(err),
		)
		return nil, err
	}
	metrics.FetchStrategyTotal.WithLabelValues(raw.Strategy).Inc()

	text := raw.Text
	degraded := false

	if raw.IsMarkup {
		text, degraded, err = p.extractFromMarkup(ctx, raw, desc.URL)
		if err != nil {
			return nil, err
		}
	}

	kb, err := p.condense(ctx, text, desc.Kind)
	if err != nil {
		return nil, err
	}

	if kb == "" {
		return nil, &errs.ExtractionError{Stage: "condense"}
	}

	logger.Info("Ingestion complete",
		zap.String("source_kind", desc.Kind.String()),
		zap.String("strategy", raw.Strategy),
		zap.Int("knowledge_length", len(kb)),
		zap.Bool("degraded", degraded),
	)

	return &Result{KnowledgeBase: kb, Strategy: raw.Strategy, Degraded: degraded}, nil
}

// extractFromMarkup runs the normalizer and, when it under-delivers, the
// model-based extraction fallback. Returns the text to condense and whether
// the result is a degraded best-effort.
func (p *Pipeline) extractFromMarkup(ctx context.Context, raw *fetch.RawContent, pageURL string) (string, bool, error) {
	normalized := normalize.Text(raw.Text)

	ratio := 0.0
	if raw.MarkupLen > 0 {
		ratio = float64(len(normalized)) / float64(raw.MarkupLen)
	}

	if len(normalized) >= minNormalizedText && ratio >= minExtractionRatio {
		return normalized, false, nil
	}

	logger.Info("Structural extraction weak, trying semantic fallback",
		zap.Int("normalized_length", len(normalized)),
		zap.Float64("extraction_ratio", ratio),
	)
	metrics.SemanticFallbackTotal.Inc()

	semantic, err := p.model.ExtractVisibleText(ctx, raw.Text, pageURL)
	if err != nil {
		logger.Warn("Semantic extraction failed", zap.Error(err))
		semantic = ""
	}

	if len(semantic) >= minSemanticResult {
		return semantic, false, nil
	}

	if len(normalized) >= minUsableText {
		logger.Warn("Semantic extraction under-delivered, using structural text",
			zap.Int("semantic_length", len(semantic)),
			zap.Int("normalized_length", len(normalized)),
		)
		return normalized, true, nil
	}

	return "", false, &errs.ExtractionError{Stage: "page"}
}

// condense decides whether the extracted text is clean enough to use directly
// or needs the model. Documents and website links are expected to already be
// well-structured, so small inputs from them skip the model call. A model
// failure here fails the ingestion; there is no silent raw-text fallback.
func (p *Pipeline) condense(ctx context.Context, text string, kind source.Kind) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &errs.ExtractionError{Stage: "condense"}
	}

	wellStructured := kind == source.KindLink || kind == source.KindDocument
	if wellStructured && len(text) <= directCondenseLimit {
		logger.Debug("Condensing directly, skipping model",
			zap.String("source_kind", kind.String()),
			zap.Int("length", len(text)),
		)
		return normalize.Collapse(text), nil
	}

	kb, err := p.model.CondenseKnowledge(ctx, text, kind)
	if err != nil {
		return "", &errs.ExtractionError{Stage: "condense", Err: err}
	}

	return strings.TrimSpace(kb), nil
}
