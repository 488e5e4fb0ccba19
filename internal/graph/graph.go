package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/guchiswipe/guchiswipe/internal/cache"
	"github.com/guchiswipe/guchiswipe/internal/helpers"
	"github.com/guchiswipe/guchiswipe/models"
	"github.com/guchiswipe/guchiswipe/provider"
)

// InsightLister provides the raw material for a user's graph.
type InsightLister interface {
	ListUserInsights(ctx context.Context, userID string, limit int) ([]string, error)
}

// Builder turns a user's accumulated insights into a small concept graph
// and keeps the per-user cache entry current.
type Builder struct {
	store    InsightLister
	provider provider.Provider
	cache    *cache.GraphCache
	logger   *log.Logger
}

func NewBuilder(store InsightLister, p provider.Provider, gc *cache.GraphCache, logger *log.Logger) *Builder {
	if logger == nil {
		logger = log.New(log.Writer(), "[GRAPH] ", log.LstdFlags)
	}
	return &Builder{store: store, provider: p, cache: gc, logger: logger}
}

// Get returns the user's graph, serving the cached copy when fresh and
// regenerating inline otherwise.
func (b *Builder) Get(ctx context.Context, userID string) (models.InsightGraph, error) {
	if graph, ok := b.cache.Get(ctx, userID); ok {
		return graph, nil
	}
	return b.Refresh(ctx, userID)
}

// Refresh rebuilds the graph from scratch and overwrites the cache entry.
// A user with no insights yet gets an empty graph, not an error.
func (b *Builder) Refresh(ctx context.Context, userID string) (models.InsightGraph, error) {
	insights, err := b.store.ListUserInsights(ctx, userID, 50)
	if err != nil {
		return models.InsightGraph{}, fmt.Errorf("list insights: %w", err)
	}
	if len(insights) == 0 {
		empty := models.InsightGraph{Nodes: []models.GraphNode{}, Edges: []models.GraphEdge{}}
		if err := b.cache.Put(ctx, userID, empty); err != nil {
			b.logger.Printf("cache empty graph for %s: %v", userID, err)
		}
		return empty, nil
	}

	graph, err := b.generate(ctx, insights)
	if err != nil {
		return models.InsightGraph{}, fmt.Errorf("generate graph: %w", err)
	}
	if err := b.cache.Put(ctx, userID, graph); err != nil {
		b.logger.Printf("cache graph for %s: %v", userID, err)
	}
	return graph, nil
}

func (b *Builder) generate(ctx context.Context, insights []string) (models.InsightGraph, error) {
	return retry.DoWithData(
		func() (models.InsightGraph, error) {
			raw, err := b.provider.Generate(ctx, graphPrompt(insights))
			if err != nil {
				return models.InsightGraph{}, err
			}
			cleaned, err := helpers.ExtractJSON(raw)
			if err != nil {
				return models.InsightGraph{}, fmt.Errorf("extract json: %w", err)
			}
			var graph models.InsightGraph
			if err := json.Unmarshal([]byte(cleaned), &graph); err != nil {
				return models.InsightGraph{}, fmt.Errorf("decode graph: %w", err)
			}
			return sanitize(graph)
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(300*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

// sanitize drops edges that reference unknown nodes so a sloppy generation
// never renders a dangling reference.
func sanitize(graph models.InsightGraph) (models.InsightGraph, error) {
	if len(graph.Nodes) == 0 {
		return models.InsightGraph{}, fmt.Errorf("graph has no nodes")
	}
	known := make(map[string]bool, len(graph.Nodes))
	for _, n := range graph.Nodes {
		if strings.TrimSpace(n.ID) == "" {
			return models.InsightGraph{}, fmt.Errorf("node with empty id")
		}
		known[n.ID] = true
	}
	kept := graph.Edges[:0]
	for _, e := range graph.Edges {
		if known[e.From] && known[e.To] {
			kept = append(kept, e)
		}
	}
	graph.Edges = kept
	if graph.Edges == nil {
		graph.Edges = []models.GraphEdge{}
	}
	return graph, nil
}

func graphPrompt(insights []string) string {
	var sb strings.Builder
	for i, ins := range insights {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, ins)
	}
	return fmt.Sprintf(`You map a person's counseling insights into a small concept graph.

Insights, newest first:
%s
Identify the recurring themes, feelings, and situations, and how they relate.
Keep it compact: at most 12 nodes and 16 edges. Group related nodes with a
shared "group" value (for example "work", "relationships", "self").

Respond with JSON only, no prose, in exactly this shape:
{"nodes": [{"id": "n1", "label": "...", "group": "..."}], "edges": [{"from": "n1", "to": "n2", "label": "..."}]}`, sb.String())
}
