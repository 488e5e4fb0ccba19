package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/guchiswipe/guchiswipe/tools/docsearch/models"
)

// Search queries the Serper Google-search API.
// https://serper.dev
type Search struct {
	APIKey  string
	BaseURL string
}

func (s Search) Discover(ctx context.Context, q string, k int, sites []string) ([]models.Result, error) {
	base := s.BaseURL
	if base == "" {
		base = "https://google.serper.dev/search"
	}

	body, err := json.Marshal(map[string]interface{}{
		"q":   scopedQuery(q, sites),
		"num": k,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", base, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", s.APIKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serper status %d", resp.StatusCode)
	}

	var raw struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}

	var out []models.Result
	for i, r := range raw.Organic {
		if i >= k {
			break
		}
		out = append(out, models.Result{Link: r.Link, Title: r.Title, Snippet: r.Snippet})
	}
	return out, nil
}

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
