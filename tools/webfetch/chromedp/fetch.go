package chromedp

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-shiori/go-readability"
)

// Extractor renders a page in headless Chrome before extracting article
// text. Needed for counseling resources that only render client-side.
type Extractor struct {
	Timeout  time.Duration
	MaxChars int
}

func (e *Extractor) Extract(ctx context.Context, rawurl string) (string, error) {
	if strings.TrimSpace(rawurl) == "" {
		return "", errors.New("invalid url")
	}

	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	html, err := fetchHTML(ctx, rawurl)
	if err != nil {
		return "", err
	}

	article, err := readability.FromReader(strings.NewReader(html), mustParseURL(rawurl))
	if err != nil {
		return "", err
	}
	text := strings.Join(strings.Fields(article.TextContent), " ")
	if e.MaxChars > 0 && len(text) > e.MaxChars {
		text = text[:e.MaxChars]
	}
	return text, nil
}

func fetchHTML(ctx context.Context, rawurl string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent("GuchiSwipe/1.0 (+counseling content fetcher)"),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(rawurl),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}
