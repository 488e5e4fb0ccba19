package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"log"
	"time"
)

// DefaultContentTTL bounds how long fetched chunks and their embeddings stay
// usable before being recomputed.
const DefaultContentTTL = 7 * 24 * time.Hour

const contentKeyPrefix = "content:"

// contentEntry is the persisted cache value. cached_at is stored as text and
// parsed on read so malformed historical writes degrade to a miss instead of
// a crash.
type contentEntry struct {
	Chunks     []string    `json:"chunks"`
	Embeddings [][]float32 `json:"embeddings"`
	CachedAt   string      `json:"cached_at"`
}

// ContentCache maps a URL to its chunk set and embeddings, keyed by URL hash
// and shared across users.
type ContentCache struct {
	kv     KV
	ttl    time.Duration
	logger *log.Logger
	now    func() time.Time
}

func NewContentCache(kv KV, ttl time.Duration, logger *log.Logger) *ContentCache {
	if ttl <= 0 {
		ttl = DefaultContentTTL
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[CACHE] ", log.LstdFlags)
	}
	return &ContentCache{kv: kv, ttl: ttl, logger: logger, now: time.Now}
}

// Get returns the cached chunks and embeddings for url. Any integrity
// problem (absent key, malformed JSON, unparseable or stale cached_at,
// chunk/embedding count mismatch) reads as a miss.
func (c *ContentCache) Get(ctx context.Context, url string) ([]string, [][]float32, bool) {
	raw, found, err := c.kv.Get(ctx, contentKey(url))
	if err != nil {
		c.logger.Printf("cache get %s: %v", url, err)
		return nil, nil, false
	}
	if !found {
		return nil, nil, false
	}

	var entry contentEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, nil, false
	}
	cachedAt, err := time.Parse(time.RFC3339, entry.CachedAt)
	if err != nil {
		return nil, nil, false
	}
	if c.now().Sub(cachedAt) >= c.ttl {
		return nil, nil, false
	}
	if len(entry.Chunks) == 0 || len(entry.Chunks) != len(entry.Embeddings) {
		return nil, nil, false
	}
	return entry.Chunks, entry.Embeddings, true
}

// Put upserts the chunk set for url with cached_at=now. A no-op when either
// list is empty. Last writer wins; entries are derived data, not source of
// truth.
func (c *ContentCache) Put(ctx context.Context, url string, chunks []string, embeddings [][]float32) error {
	if len(chunks) == 0 || len(embeddings) == 0 {
		return nil
	}
	entry := contentEntry{
		Chunks:     chunks,
		Embeddings: embeddings,
		CachedAt:   c.now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.kv.Set(ctx, contentKey(url), string(data), c.ttl)
}

func contentKey(url string) string {
	sum := sha1.Sum([]byte(url))
	return contentKeyPrefix + hex.EncodeToString(sum[:])
}
