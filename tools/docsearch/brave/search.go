package brave

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/guchiswipe/guchiswipe/tools/docsearch/models"
)

// Search queries the Brave web search API.
// https://api.search.brave.com/app/documentation/web-search
type Search struct {
	APIKey  string
	BaseURL string
}

func (s Search) Discover(ctx context.Context, q string, k int, sites []string) ([]models.Result, error) {
	base := s.BaseURL
	if base == "" {
		base = "https://api.search.brave.com/res/v1/web/search"
	}
	endpoint := fmt.Sprintf("%s?q=%s&count=%d", base, url.QueryEscape(scopedQuery(q, sites)), k)

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", s.APIKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brave status %d", resp.StatusCode)
	}

	var raw struct {
		Web struct {
			Results []struct {
				Title   string `json:"title"`
				URL     string `json:"url"`
				Snippet string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}

	var out []models.Result
	for i, r := range raw.Web.Results {
		if i >= k {
			break
		}
		out = append(out, models.Result{Link: r.URL, Title: r.Title, Snippet: r.Snippet})
	}
	return out, nil
}

// scopedQuery narrows q to the index's site scope.
func scopedQuery(q string, sites []string) string {
	if len(sites) == 0 {
		return q
	}
	filters := make([]string, 0, len(sites))
	for _, site := range sites {
		filters = append(filters, "site:"+site)
	}
	return q + " (" + strings.Join(filters, " OR ") + ")"
}
