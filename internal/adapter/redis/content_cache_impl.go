package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/user/prodsearch-service/internal/domain"
	"github.com/user/prodsearch-service/pkg/utils"
)

const contentKeyPrefix = "content:"

// cachedContent is the wire form of an acquisition result. Text is stored
// explicitly because AcquiredContent does not serialize it by default.
type cachedContent struct {
	Content domain.AcquiredContent `json:"content"`
	Text    string                 `json:"text"`
}

// ContentCacheImpl caches successful acquisitions in Redis with a TTL, so
// repeat runs within the window skip re-fetching. All failures here are
// non-fatal: a broken cache degrades to a slower pipeline, nothing more.
type ContentCacheImpl struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewContentCache(client *redis.Client, ttl time.Duration, log *zap.Logger) *ContentCacheImpl {
	return &ContentCacheImpl{client: client, ttl: ttl, log: log}
}

func (c *ContentCacheImpl) key(url string) string {
	return fmt.Sprintf("%s%s", contentKeyPrefix, utils.HashURL(url))
}

func (c *ContentCacheImpl) Get(ctx context.Context, url string) (*domain.AcquiredContent, bool) {
	raw, err := c.client.Get(ctx, c.key(url)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("content cache read failed", zap.String("url", url), zap.Error(err))
		}
		return nil, false
	}

	var cached cachedContent
	if err := json.Unmarshal(raw, &cached); err != nil {
		c.log.Warn("content cache entry corrupt", zap.String("url", url), zap.Error(err))
		return nil, false
	}
	content := cached.Content
	content.Text = cached.Text
	return &content, true
}

func (c *ContentCacheImpl) Put(ctx context.Context, url string, content *domain.AcquiredContent) {
	if content == nil || !content.Success {
		return
	}
	raw, err := json.Marshal(cachedContent{Content: *content, Text: content.Text})
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(url), raw, c.ttl).Err(); err != nil {
		c.log.Warn("content cache write failed", zap.String("url", url), zap.Error(err))
	}
}
