package rag

import (
	"context"
	"log"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/guchiswipe/guchiswipe/config"
	"github.com/guchiswipe/guchiswipe/internal/cache"
	"github.com/guchiswipe/guchiswipe/provider"
	"github.com/guchiswipe/guchiswipe/tools/docsearch"
	searchmodels "github.com/guchiswipe/guchiswipe/tools/docsearch/models"
)

// Mode selects which logical indices the retriever consults and which tone
// the synthesis prompt takes.
type Mode string

const (
	ModeSimilarCases Mode = "similar_cases"
	ModeSuggestions  Mode = "suggestions"
	ModeBoth         Mode = "both"
)

// Outcome kinds. Every degraded branch is a distinct, user-visible result so
// the caller can always show something specific.
const (
	OutcomeAdvice     = "advice"
	OutcomeNoSources  = "no_sources"
	OutcomeNoAnalysis = "no_analysis"
	OutcomeNoMatch    = "no_match"
)

// Degraded user-facing messages, one per failure branch.
const (
	noSourcesMessage  = "I couldn't find any outside information related to your concern right now, but what you're feeling is still worth talking through."
	noAnalysisMessage = "I couldn't analyze your message just now. Please try again in a little while."
	noMatchMessage    = "I couldn't find anything close enough to your situation to share with confidence. Telling me a bit more might help."
)

// maxRawQueryChars caps the fallback search query when keyword extraction
// fails; longer queries get rejected by search backends.
const maxRawQueryChars = 512

// Outcome is the typed result of one advice run. Kind is never empty; Advice
// always carries displayable text.
type Outcome struct {
	Kind    string   `json:"kind"`
	Advice  string   `json:"advice"`
	Sources []string `json:"sources"`
}

// Searcher is the document retriever boundary.
type Searcher interface {
	Search(ctx context.Context, index, query string) ([]searchmodels.Result, error)
}

// Fetcher is the content fetcher boundary; it degrades to "" rather than
// erroring.
type Fetcher interface {
	Fetch(ctx context.Context, url string) string
}

// Engine wires keyword extraction, retrieval, caching, ranking and synthesis
// end to end.
type Engine struct {
	provider provider.Provider
	search   Searcher
	fetch    Fetcher
	cache    *cache.ContentCache
	logger   *log.Logger

	maxURLs      int
	topK         int
	chunkSize    int
	chunkOverlap int
	maxChunks    int
}

// NewEngine builds an Engine. All collaborators are injected; nothing global.
func NewEngine(p provider.Provider, search Searcher, fetch Fetcher, contentCache *cache.ContentCache, cfg config.RAGConfig, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(log.Writer(), "[RAG] ", log.LstdFlags)
	}
	e := &Engine{
		provider:     p,
		search:       search,
		fetch:        fetch,
		cache:        contentCache,
		logger:       logger,
		maxURLs:      cfg.MaxURLs,
		topK:         cfg.TopK,
		chunkSize:    cfg.ChunkSize,
		chunkOverlap: cfg.ChunkOverlap,
		maxChunks:    cfg.MaxChunksPerURL,
	}
	if e.maxURLs <= 0 {
		e.maxURLs = 5
	}
	if e.topK <= 0 {
		e.topK = DefaultTopK
	}
	return e
}

// Advise runs the full pipeline for one query. It never returns an error for
// "no data" paths; each one maps to a distinct degraded Outcome.
func (e *Engine) Advise(ctx context.Context, query string, mode Mode) Outcome {
	adviceRequests.WithLabelValues(string(mode)).Inc()

	searchQuery := e.extractKeywords(ctx, query)
	urls := e.discoverURLs(ctx, searchQuery, mode)

	chunks, embeddings, contributing := e.collectChunks(ctx, urls)
	if len(chunks) == 0 {
		adviceOutcomes.WithLabelValues(OutcomeNoSources).Inc()
		return Outcome{Kind: OutcomeNoSources, Advice: noSourcesMessage, Sources: urls}
	}

	queryVecs, err := e.provider.CreateEmbedding(ctx, []string{query})
	if err != nil || len(queryVecs) == 0 {
		e.logger.Printf("query embedding failed: %v", err)
		adviceOutcomes.WithLabelValues(OutcomeNoAnalysis).Inc()
		return Outcome{Kind: OutcomeNoAnalysis, Advice: noAnalysisMessage, Sources: nil}
	}

	top := TopChunks(queryVecs[0], chunks, embeddings, e.topK)
	if len(top) == 0 {
		adviceOutcomes.WithLabelValues(OutcomeNoMatch).Inc()
		return Outcome{Kind: OutcomeNoMatch, Advice: noMatchMessage, Sources: nil}
	}

	advice, err := e.synthesize(ctx, mode, query, top)
	if err != nil {
		e.logger.Printf("synthesis failed: %v", err)
		adviceOutcomes.WithLabelValues(OutcomeNoAnalysis).Inc()
		return Outcome{Kind: OutcomeNoAnalysis, Advice: noAnalysisMessage, Sources: nil}
	}

	adviceOutcomes.WithLabelValues(OutcomeAdvice).Inc()
	return Outcome{Kind: OutcomeAdvice, Advice: advice, Sources: contributing}
}

// extractKeywords asks the model for a short search phrase, retrying
// transient failures; after exhaustion it falls back to a truncated prefix
// of the raw query. The truncation is an accepted cost/quality tradeoff for
// very long reports.
func (e *Engine) extractKeywords(ctx context.Context, query string) string {
	keywords, err := retry.DoWithData(
		func() (string, error) { return e.provider.Generate(ctx, keywordPrompt(query)) },
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(300*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil || keywords == "" {
		e.logger.Printf("keyword extraction failed, using raw query prefix: %v", err)
		return truncateRunes(query, maxRawQueryChars)
	}
	return keywords
}

// discoverURLs queries the indices the mode selects, unions and dedups the
// links, and caps how many get processed. Search errors degrade to an empty
// result.
func (e *Engine) discoverURLs(ctx context.Context, query string, mode Mode) []string {
	var indices []string
	switch mode {
	case ModeSimilarCases:
		indices = []string{docsearch.IndexSimilarCases}
	case ModeSuggestions:
		indices = []string{docsearch.IndexSuggestions}
	default:
		indices = []string{docsearch.IndexSimilarCases, docsearch.IndexSuggestions}
	}

	seen := make(map[string]struct{})
	var urls []string
	for _, index := range indices {
		results, err := e.search.Search(ctx, index, query)
		if err != nil {
			e.logger.Printf("search %s failed: %v", index, err)
			continue
		}
		for _, r := range results {
			if _, ok := seen[r.Link]; ok {
				continue
			}
			seen[r.Link] = struct{}{}
			urls = append(urls, r.Link)
		}
	}
	if len(urls) > e.maxURLs {
		urls = urls[:e.maxURLs]
	}
	return urls
}

// collectChunks gathers chunk/embedding pairs for each URL, preferring the
// cache. On a miss it fetches, chunks and embeds, then writes the cache
// entry fire-and-forget so population never blocks synthesis.
func (e *Engine) collectChunks(ctx context.Context, urls []string) (chunks []string, embeddings [][]float32, contributing []string) {
	for _, url := range urls {
		cc, ce, hit := e.cache.Get(ctx, url)
		if hit {
			cacheHits.Inc()
			chunks = append(chunks, cc...)
			embeddings = append(embeddings, ce...)
			contributing = append(contributing, url)
			continue
		}
		cacheMisses.Inc()

		text := e.fetch.Fetch(ctx, url)
		if text == "" {
			continue
		}
		parts := SplitChunks(text, e.chunkSize, e.chunkOverlap, e.maxChunks)
		if len(parts) == 0 {
			continue
		}
		vecs, err := e.provider.CreateEmbedding(ctx, parts)
		if err != nil {
			e.logger.Printf("embed %s failed: %v", url, err)
			continue
		}

		go func(url string, parts []string, vecs [][]float32) {
			putCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := e.cache.Put(putCtx, url, parts, vecs); err != nil {
				e.logger.Printf("cache put %s failed: %v", url, err)
			}
		}(url, parts, vecs)

		chunks = append(chunks, parts...)
		embeddings = append(embeddings, vecs...)
		contributing = append(contributing, url)
	}
	return chunks, embeddings, contributing
}

func (e *Engine) synthesize(ctx context.Context, mode Mode, query string, top []string) (string, error) {
	return retry.DoWithData(
		func() (string, error) { return e.provider.Generate(ctx, synthesisPrompt(mode, query, top)) },
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(300*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

// truncateRunes cuts s to at most n runes without splitting characters.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
