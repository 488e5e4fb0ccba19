package docsearch

import (
	"context"
	"fmt"
	"strings"

	"github.com/guchiswipe/guchiswipe/config"
	"github.com/guchiswipe/guchiswipe/tools/docsearch/brave"
	"github.com/guchiswipe/guchiswipe/tools/docsearch/models"
	"github.com/guchiswipe/guchiswipe/tools/docsearch/serper"
)

// Logical indices served by the retriever. Each maps to its own site scope in
// config so one search provider can back both.
const (
	IndexSimilarCases = "similar_cases"
	IndexSuggestions  = "suggestions"
)

// Searcher is one concrete search backend.
type Searcher interface {
	Discover(ctx context.Context, q string, k int, sites []string) ([]models.Result, error)
}

// Client resolves a logical index to its site scope and queries the backend.
type Client struct {
	searcher Searcher
	pageSize int
	indices  map[string][]string
}

// NewClient builds a Client from config. Supported providers: brave, serper.
func NewClient(cfg config.SearchConfig) (*Client, error) {
	var s Searcher
	switch cfg.Provider {
	case "brave":
		s = brave.Search{APIKey: cfg.APIKey}
	case "", "serper":
		s = serper.Search{APIKey: cfg.APIKey}
	default:
		return nil, fmt.Errorf("unsupported search provider: %s", cfg.Provider)
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 5
	}
	return &Client{searcher: s, pageSize: pageSize, indices: cfg.Indices}, nil
}

// Search queries the given logical index and returns up to a page of results
// carrying a non-empty link.
func (c *Client) Search(ctx context.Context, index, query string) ([]models.Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	results, err := c.searcher.Discover(ctx, query, c.pageSize, c.indices[index])
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", index, err)
	}
	out := results[:0]
	for _, r := range results {
		if r.Link != "" {
			out = append(out, r)
		}
	}
	return out, nil
}
