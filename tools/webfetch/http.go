package webfetch

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

// httpExtractor fetches a page over plain HTTP and extracts visible text.
// Readability gets first shot at article extraction; pages it cannot parse
// fall back to stripping non-content markup with goquery.
type httpExtractor struct {
	timeout  time.Duration
	maxChars int
}

func (e *httpExtractor) Extract(ctx context.Context, rawurl string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", rawurl, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "GuchiSwipe/1.0 (+counseling content fetcher)")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", err
	}

	html, err := doc.Html()
	if err == nil {
		if article, rerr := readability.FromReader(strings.NewReader(html), mustParseURL(rawurl)); rerr == nil {
			if text := normalize(article.TextContent); text != "" {
				return truncate(text, e.maxChars), nil
			}
		}
	}

	doc.Find("script, style, noscript, nav, header, footer, aside, iframe").Remove()
	return truncate(normalize(doc.Find("body").Text()), e.maxChars), nil
}

// normalize joins visible text by single spaces.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts s to at most max runes without splitting characters.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) > max {
		return string(runes[:max])
	}
	return s
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}
