package redis

import (
	"context"
	"crypto/md5"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sitebot/backend/internal/metrics"
	"github.com/sitebot/backend/pkg/logger"
)

// Client caches fetched page markup so re-ingesting a URL skips the relay
// chain. Satisfies fetch.MarkupCache.
type Client struct {
	client *redis.Client
	ttl    time.Duration
}

func NewClient(host string, port int, password string, db int, ttl time.Duration) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client, ttl: ttl}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) GetMarkup(ctx context.Context, pageURL string) (string, bool) {
	markup, err := c.client.Get(ctx, markupKey(pageURL)).Result()
	if err == redis.Nil {
		metrics.CacheMisses.WithLabelValues("markup").Inc()
		return "", false
	}
	if err != nil {
		logger.Warn("Markup cache read failed", zap.String("url", pageURL), zap.Error(err))
		return "", false
	}

	metrics.CacheHits.WithLabelValues("markup").Inc()
	logger.Debug("Markup cache hit", zap.String("url", pageURL))
	return markup, true
}

func (c *Client) SetMarkup(ctx context.Context, pageURL, markup string) {
	if err := c.client.Set(ctx, markupKey(pageURL), markup, c.ttl).Err(); err != nil {
		logger.Warn("Markup cache write failed", zap.String("url", pageURL), zap.Error(err))
	}
}

func markupKey(pageURL string) string {
	return fmt.Sprintf("markup:%x", md5.Sum([]byte(pageURL)))
}
