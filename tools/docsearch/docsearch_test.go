package docsearch

import (
	"context"
	"errors"
	"testing"

	"github.com/guchiswipe/guchiswipe/config"
	"github.com/guchiswipe/guchiswipe/tools/docsearch/models"
)

type stubSearcher struct {
	results []models.Result
	err     error
	sites   []string
}

func (s *stubSearcher) Discover(_ context.Context, _ string, _ int, sites []string) ([]models.Result, error) {
	s.sites = sites
	return s.results, s.err
}

func TestSearchResolvesIndexSites(t *testing.T) {
	stub := &stubSearcher{results: []models.Result{{Link: "https://example.com/a"}}}
	c := &Client{searcher: stub, pageSize: 5, indices: map[string][]string{
		IndexSimilarCases: {"peer-stories.example"},
		IndexSuggestions:  {"advice.example"},
	}}

	if _, err := c.Search(context.Background(), IndexSimilarCases, "lonely at work"); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(stub.sites) != 1 || stub.sites[0] != "peer-stories.example" {
		t.Fatalf("unexpected site scope: %#v", stub.sites)
	}
}

func TestSearchFiltersEmptyLinks(t *testing.T) {
	stub := &stubSearcher{results: []models.Result{
		{Link: "https://example.com/a"},
		{Link: ""},
		{Link: "https://example.com/b"},
	}}
	c := &Client{searcher: stub, pageSize: 5}

	results, err := c.Search(context.Background(), IndexSuggestions, "query")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 linked results, got %#v", results)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	stub := &stubSearcher{}
	c := &Client{searcher: stub, pageSize: 5}
	results, err := c.Search(context.Background(), IndexSuggestions, "   ")
	if err != nil || results != nil {
		t.Fatalf("blank query must return nothing, got %#v err=%v", results, err)
	}
}

func TestSearchWrapsBackendError(t *testing.T) {
	stub := &stubSearcher{err: errors.New("quota exceeded")}
	c := &Client{searcher: stub, pageSize: 5}
	if _, err := c.Search(context.Background(), IndexSuggestions, "query"); err == nil {
		t.Fatal("expected backend error to propagate")
	}
}

func TestNewClientRejectsUnknownProvider(t *testing.T) {
	if _, err := NewClient(config.SearchConfig{Provider: "altavista"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
