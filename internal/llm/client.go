package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/sitebot/backend/internal/metrics"
	"github.com/sitebot/backend/internal/source"
	"github.com/sitebot/backend/pkg/circuitbreaker"
	"github.com/sitebot/backend/pkg/logger"
	"github.com/sitebot/backend/pkg/retry"
)

// Input caps. Models have bounded context; truncation keeps cost and latency
// bounded at the risk of losing tail content.
const (
	maxExtractionMarkup = 100000
	maxCondenseLink     = 150000
	maxCondenseOther    = 100000
	maxReplyKnowledge   = 20000
)

type Client struct {
	client      *openai.Client
	model       string
	timeout     time.Duration
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func NewClient(apiKey, model string, timeout time.Duration) *Client {
	client := openai.NewClient(apiKey)

	cb := circuitbreaker.New("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	if timeout == 0 {
		timeout = 60 * time.Second
	}

	logger.Info("LLM client initialized", zap.String("model", model))

	return &Client{
		client:      client,
		model:       model,
		timeout:     timeout,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: req.UserPrompt,
		},
	}

	var result *CompletionResponse

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       c.model,
					Messages:    messages,
					Temperature: req.Temperature,
					MaxTokens:   req.MaxTokens,
				},
			)

			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}

			logger.Debug("LLM completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			metrics.LLMTokensTotal.WithLabelValues("prompt").Add(float64(resp.Usage.PromptTokens))
			metrics.LLMTokensTotal.WithLabelValues("completion").Add(float64(resp.Usage.CompletionTokens))

			result = &CompletionResponse{
				Content: resp.Choices[0].Message.Content,
				Usage: Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				},
			}

			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return result, nil
}

// ExtractVisibleText asks the model to pull all meaningful visible text out
// of raw markup. Used when structural extraction came up short on a page
// that is mostly client-rendered. Failures propagate to the caller.
func (c *Client) ExtractVisibleText(ctx context.Context, markup, pageURL string) (string, error) {
	systemPrompt := `You are a web content extraction engine. You receive raw HTML from a web page.
Extract ALL meaningful visible text content: headings, paragraphs, product descriptions, service listings, contact details, FAQ entries.
Ignore navigation labels, cookie banners, scripts, styles and boilerplate.
Return only the extracted text, preserving the reading order of the page. Do not add commentary.`

	userPrompt := fmt.Sprintf("Page URL: %s\n\nRaw HTML:\n%s", pageURL, truncate(markup, maxExtractionMarkup))

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.3,
		MaxTokens:    8000,
	})

	if err != nil {
		return "", fmt.Errorf("failed to extract page text: %w", err)
	}

	logger.Info("Page text extracted via model",
		zap.String("url", pageURL),
		zap.Int("markup_bytes", len(markup)),
		zap.Int("extracted_length", len(resp.Content)),
	)

	return strings.TrimSpace(resp.Content), nil
}

// CondenseKnowledge structures extracted text into a chatbot-ready knowledge
// base document. Link-derived text gets a larger input budget because web
// pages are noisier per unit of signal.
func (c *Client) CondenseKnowledge(ctx context.Context, text string, kind source.Kind) (string, error) {
	systemPrompt := `You are a knowledge base compiler. You receive text extracted from a business's website, documents or profile.
Produce a condensed knowledge base document for a customer-facing chatbot.
Preserve concrete facts, names, figures, prices, dates and structure. Do not paraphrase away specifics.
Organize with short headings. Drop repeated boilerplate and navigation noise.`

	limit := maxCondenseOther
	if kind == source.KindLink {
		limit = maxCondenseLink
	}

	userPrompt := fmt.Sprintf("Source type: %s\n\nExtracted content:\n%s", kind, truncate(text, limit))

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.3,
		MaxTokens:    8000,
	})

	if err != nil {
		return "", fmt.Errorf("failed to condense knowledge: %w", err)
	}

	logger.Info("Knowledge condensed",
		zap.String("source_kind", kind.String()),
		zap.Int("input_length", len(text)),
		zap.Int("condensed_length", len(resp.Content)),
	)

	return strings.TrimSpace(resp.Content), nil
}

// GenerateReply answers one user message grounded only in the session's
// knowledge base. The base is always truncated to its head to bound prompt
// size regardless of how large the ingestion produced it.
func (c *Client) GenerateReply(ctx context.Context, knowledgeBase, userMessage string) (string, error) {
	systemPrompt := `You are a helpful assistant for a business, answering visitor questions.

Rules:
1. Answer ONLY from the supplied business context.
2. If the context does not contain the answer, say so plainly instead of inventing one.
3. Format answers in lightweight markdown: short headings, bullet lists, bold for emphasis.
4. Keep answers focused and conversational.`

	userPrompt := fmt.Sprintf("Business context:\n%s\n\nVisitor question: %s",
		truncate(knowledgeBase, maxReplyKnowledge), userMessage)

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.7,
		MaxTokens:    1500,
	})

	if err != nil {
		return "", fmt.Errorf("failed to generate reply: %w", err)
	}

	logger.Info("Reply generated",
		zap.Int("question_length", len(userMessage)),
		zap.Int("reply_length", len(resp.Content)),
	)

	return resp.Content, nil
}

// truncate cuts s to at most max bytes without splitting a UTF-8 rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	s = s[:max]
	for !utf8.ValidString(s) && len(s) > 0 {
		s = s[:len(s)-1]
	}
	return s
}
