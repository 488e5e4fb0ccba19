package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestContentCacheRoundTrip(t *testing.T) {
	c := NewContentCache(NewMemoryKV(), time.Hour, nil)
	ctx := context.Background()

	chunks := []string{"chunk one", "chunk two"}
	embeddings := [][]float32{{1, 2}, {3, 4}}
	if err := c.Put(ctx, "https://example.com/page", chunks, embeddings); err != nil {
		t.Fatalf("Put: %v", err)
	}

	gotChunks, gotEmbeddings, hit := c.Get(ctx, "https://example.com/page")
	if !hit {
		t.Fatal("expected cache hit")
	}
	if len(gotChunks) != 2 || gotChunks[0] != "chunk one" {
		t.Fatalf("unexpected chunks: %#v", gotChunks)
	}
	if len(gotEmbeddings) != 2 || gotEmbeddings[1][0] != 3 {
		t.Fatalf("unexpected embeddings: %#v", gotEmbeddings)
	}
}

func TestContentCacheRoundTripMultiByte(t *testing.T) {
	c := NewContentCache(NewMemoryKV(), time.Hour, nil)
	ctx := context.Background()

	chunks := []string{"仕事のストレスで眠れない", "友人に相談すると楽になる"}
	embeddings := [][]float32{{0.1, 0.2}, {0.3, 0.4}}
	if err := c.Put(ctx, "https://example.jp/soudan", chunks, embeddings); err != nil {
		t.Fatalf("Put: %v", err)
	}

	gotChunks, _, hit := c.Get(ctx, "https://example.jp/soudan")
	if !hit {
		t.Fatal("expected cache hit")
	}
	for i := range chunks {
		if gotChunks[i] != chunks[i] {
			t.Fatalf("chunk %d changed through the round trip: %q != %q", i, gotChunks[i], chunks[i])
		}
	}
}

func TestContentCacheMissOnAbsentKey(t *testing.T) {
	c := NewContentCache(NewMemoryKV(), time.Hour, nil)
	if _, _, hit := c.Get(context.Background(), "https://example.com/never-stored"); hit {
		t.Fatal("expected miss for absent key")
	}
}

func TestContentCacheExpiry(t *testing.T) {
	c := NewContentCache(NewMemoryKV(), time.Hour, nil)
	ctx := context.Background()

	base := time.Now()
	c.now = func() time.Time { return base }
	if err := c.Put(ctx, "u", []string{"c"}, [][]float32{{1}}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	c.now = func() time.Time { return base.Add(59 * time.Minute) }
	if _, _, hit := c.Get(ctx, "u"); !hit {
		t.Fatal("expected hit before expiry")
	}

	c.now = func() time.Time { return base.Add(61 * time.Minute) }
	if _, _, hit := c.Get(ctx, "u"); hit {
		t.Fatal("expected miss after expiry")
	}
}

func TestContentCacheCountMismatchReadsAsMiss(t *testing.T) {
	kv := NewMemoryKV()
	c := NewContentCache(kv, time.Hour, nil)
	ctx := context.Background()

	entry := contentEntry{
		Chunks:     []string{"a", "b", "c"},
		Embeddings: [][]float32{{1}},
		CachedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := kv.Set(ctx, contentKey("u"), string(raw), time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if _, _, hit := c.Get(ctx, "u"); hit {
		t.Fatal("count mismatch must read as miss")
	}
}

func TestContentCacheBadTimestampReadsAsMiss(t *testing.T) {
	kv := NewMemoryKV()
	c := NewContentCache(kv, time.Hour, nil)
	ctx := context.Background()

	raw := `{"chunks":["a"],"embeddings":[[1]],"cached_at":"not-a-timestamp"}`
	if err := kv.Set(ctx, contentKey("u"), raw, time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, _, hit := c.Get(ctx, "u"); hit {
		t.Fatal("bad timestamp must read as miss")
	}
}

func TestContentCacheMalformedJSONReadsAsMiss(t *testing.T) {
	kv := NewMemoryKV()
	c := NewContentCache(kv, time.Hour, nil)
	ctx := context.Background()

	if err := kv.Set(ctx, contentKey("u"), "{broken", time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, _, hit := c.Get(ctx, "u"); hit {
		t.Fatal("malformed entry must read as miss")
	}
}

func TestContentCachePutEmptyIsNoop(t *testing.T) {
	kv := NewMemoryKV()
	c := NewContentCache(kv, time.Hour, nil)
	ctx := context.Background()

	if err := c.Put(ctx, "u", nil, nil); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, found, err := kv.Get(ctx, contentKey("u")); err != nil || found {
		t.Fatalf("empty put must not write (found=%v err=%v)", found, err)
	}
}
