package webfetch

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/guchiswipe/guchiswipe/config"
	fetchromedp "github.com/guchiswipe/guchiswipe/tools/webfetch/chromedp"
)

const (
	DefaultTimeout  = 15 * time.Second
	MaxCharsDefault = 20000
)

// DefaultDenylist lists domains known to block scraping or carry too little
// visible text to be worth a fetch.
var DefaultDenylist = []string{
	"twitter.com",
	"x.com",
	"facebook.com",
	"instagram.com",
	"pinterest.com",
	"youtube.com",
	"tiktok.com",
}

// Extractor pulls visible text out of a URL. Implementations may error; the
// Fetcher converts every failure into an empty result.
type Extractor interface {
	Extract(ctx context.Context, rawurl string) (string, error)
}

// Fetcher retrieves raw text from a URL, rejecting denylisted domains before
// any network call. Fetch never fails: any error degrades to "".
type Fetcher struct {
	deny    map[string]struct{}
	extract Extractor
	logger  *log.Logger
}

// NewFetcher builds a Fetcher from config. Supported types: http, chromedp.
func NewFetcher(cfg config.FetchConfig, logger *log.Logger) (*Fetcher, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[FETCH] ", log.LstdFlags)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = MaxCharsDefault
	}

	var ex Extractor
	switch cfg.Type {
	case "", "http":
		ex = &httpExtractor{timeout: timeout, maxChars: maxChars}
	case "chromedp":
		ex = &fetchromedp.Extractor{Timeout: timeout, MaxChars: maxChars}
	default:
		return nil, fmt.Errorf("unsupported fetcher type: %s", cfg.Type)
	}

	denylist := cfg.Denylist
	if len(denylist) == 0 {
		denylist = DefaultDenylist
	}
	deny := make(map[string]struct{}, len(denylist))
	for _, d := range denylist {
		deny[strings.ToLower(d)] = struct{}{}
	}

	return &Fetcher{deny: deny, extract: ex, logger: logger}, nil
}

// Fetch returns the visible text of the page at rawurl, or "" when the
// domain is denylisted or anything goes wrong. Callers treat "" as
// "no content".
func (f *Fetcher) Fetch(ctx context.Context, rawurl string) string {
	if f.Denied(rawurl) {
		return ""
	}
	text, err := f.extract.Extract(ctx, rawurl)
	if err != nil {
		f.logger.Printf("fetch %s failed: %v", rawurl, err)
		return ""
	}
	return text
}

// Denied reports whether the URL's host matches the denylist, including
// subdomains.
func (f *Fetcher) Denied(rawurl string) bool {
	u, err := url.Parse(rawurl)
	if err != nil {
		return true
	}
	host := strings.ToLower(u.Hostname())
	for host != "" {
		if _, ok := f.deny[host]; ok {
			return true
		}
		i := strings.Index(host, ".")
		if i == -1 {
			break
		}
		host = host[i+1:]
	}
	return false
}
