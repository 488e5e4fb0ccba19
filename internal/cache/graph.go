package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/guchiswipe/guchiswipe/models"
)

// DefaultGraphTTL bounds how long an insight graph stays fresh before a read
// triggers regeneration.
const DefaultGraphTTL = 24 * time.Hour

const graphKeyPrefix = "graph:"

// GraphCache holds one insight graph per user, regenerated when absent or
// stale. Refresh tasks overwrite unconditionally, so at-least-once delivery
// is safe.
type GraphCache struct {
	kv  KV
	ttl time.Duration
	now func() time.Time
}

func NewGraphCache(kv KV, ttl time.Duration) *GraphCache {
	if ttl <= 0 {
		ttl = DefaultGraphTTL
	}
	return &GraphCache{kv: kv, ttl: ttl, now: time.Now}
}

// Get returns the cached graph for userID and whether it is still fresh.
func (g *GraphCache) Get(ctx context.Context, userID string) (models.InsightGraph, bool) {
	raw, found, err := g.kv.Get(ctx, graphKeyPrefix+userID)
	if err != nil || !found {
		return models.InsightGraph{}, false
	}
	var graph models.InsightGraph
	if err := json.Unmarshal([]byte(raw), &graph); err != nil {
		return models.InsightGraph{}, false
	}
	if g.now().Sub(graph.UpdatedAt) >= g.ttl {
		return models.InsightGraph{}, false
	}
	return graph, true
}

// Put overwrites the user's graph entry with updated_at=now.
func (g *GraphCache) Put(ctx context.Context, userID string, graph models.InsightGraph) error {
	graph.UpdatedAt = g.now().UTC()
	data, err := json.Marshal(graph)
	if err != nil {
		return err
	}
	return g.kv.Set(ctx, graphKeyPrefix+userID, string(data), g.ttl)
}
