package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ragline/ragline/internal/log"
)

// Ingestor is the slice of the query engine the researcher needs.
type Ingestor interface {
	AddDocument(ctx context.Context, text string, metadata map[string]string) (int, error)
}

// Researcher scrapes URLs and researches topics into the shared
// knowledge base. Topic research walks an ordered chain of sources and
// stops at the first one that yields anything; individual source
// failures are logged and swallowed so one dead upstream never fails
// the whole request.
type Researcher struct {
	scraper     *Scraper
	ddg         *DuckDuckGo
	wiki        *Wikipedia
	engine      Ingestor
	logger      log.Logger
	articleBase string
	now         func() time.Time
}

// NewResearcher wires the research pipeline. articleBase is where the
// last-resort article scrape points; empty means English Wikipedia.
func NewResearcher(scraper *Scraper, ddg *DuckDuckGo, wiki *Wikipedia, engine Ingestor, logger log.Logger, articleBase string) *Researcher {
	if articleBase == "" {
		articleBase = "https://en.wikipedia.org/wiki/"
	}
	return &Researcher{
		scraper:     scraper,
		ddg:         ddg,
		wiki:        wiki,
		engine:      engine,
		logger:      logger,
		articleBase: articleBase,
		now:         time.Now,
	}
}

// AddURL scrapes a URL and ingests its content. The returned string is
// user-facing and reports success or failure; only the happy path gets
// the checkmark.
func (r *Researcher) AddURL(ctx context.Context, rawURL string) string {
	page, err := r.scraper.Scrape(ctx, rawURL)
	if err != nil {
		r.logger.Warn("scrape failed", "url", rawURL, "error", err)
		return fmt.Sprintf("Failed to scrape %s: %v", rawURL, err)
	}

	n, err := r.ingest(ctx, page.Content, map[string]string{
		"source":     "web",
		"url":        rawURL,
		"title":      page.Title,
		"scraped_at": r.now().UTC().Format("2006-01-02 15:04:05"),
	})
	if err != nil {
		r.logger.Warn("ingest failed", "url", rawURL, "error", err)
		return fmt.Sprintf("Failed to add content from %s: %v", rawURL, err)
	}

	return fmt.Sprintf("✅ Added content from %s\nAdded %d chunks from document\nSource: %s", page.Title, n, rawURL)
}

// ResearchTopic gathers material about a topic and ingests it. Sources
// are tried in order until one yields: instant-answer abstract, related
// snippets, Wikipedia summary, then a direct article scrape.
func (r *Researcher) ResearchTopic(ctx context.Context, topic string, numSources int) string {
	if numSources <= 0 {
		numSources = 3
	}

	lines := r.fromInstantAnswers(ctx, topic, numSources)
	if len(lines) == 0 {
		lines = r.fromWikipedia(ctx, topic)
	}
	if len(lines) == 0 {
		lines = r.fromArticleScrape(ctx, topic)
	}

	if len(lines) == 0 {
		return fmt.Sprintf("No results found for '%s'", topic)
	}
	return fmt.Sprintf("✅ Researched '%s':\n%s", topic, strings.Join(lines, "\n"))
}

func (r *Researcher) fromInstantAnswers(ctx context.Context, topic string, numSources int) []string {
	abstract, related, err := r.ddg.Lookup(ctx, topic)
	if err != nil {
		r.logger.Warn("instant answer lookup failed", "topic", topic, "error", err)
		return nil
	}

	if abstract != "" {
		if _, err := r.ingest(ctx, abstract, topicMeta("duckduckgo", topic, "abstract")); err != nil {
			r.logger.Warn("abstract ingest failed", "topic", topic, "error", err)
		} else {
			return []string{fmt.Sprintf("Added abstract about %s", topic)}
		}
	}

	var lines []string
	for _, text := range related {
		if len(lines) >= numSources {
			break
		}
		if _, err := r.ingest(ctx, text, topicMeta("duckduckgo", topic, "related")); err != nil {
			r.logger.Warn("related topic ingest failed", "topic", topic, "error", err)
			continue
		}
		lines = append(lines, fmt.Sprintf("Added: %s...", truncateRunes(text, 50)))
	}
	return lines
}

func (r *Researcher) fromWikipedia(ctx context.Context, topic string) []string {
	summary, err := r.wiki.Summarize(ctx, topic)
	if err != nil {
		r.logger.Warn("wikipedia lookup failed", "topic", topic, "error", err)
		return nil
	}
	if summary == nil {
		return nil
	}

	if _, err := r.ingest(ctx, summary.Extract, topicMeta("wikipedia", topic, "summary")); err != nil {
		r.logger.Warn("wikipedia ingest failed", "topic", topic, "error", err)
		return nil
	}
	return []string{fmt.Sprintf("Added Wikipedia summary of %s", summary.Title)}
}

func (r *Researcher) fromArticleScrape(ctx context.Context, topic string) []string {
	articleURL := r.articleBase + strings.ReplaceAll(strings.TrimSpace(topic), " ", "_")
	page, err := r.scraper.Scrape(ctx, articleURL)
	if err != nil {
		r.logger.Warn("article scrape failed", "topic", topic, "url", articleURL, "error", err)
		return nil
	}

	meta := topicMeta("web", topic, "article")
	meta["url"] = articleURL
	if _, err := r.ingest(ctx, page.Content, meta); err != nil {
		r.logger.Warn("article ingest failed", "topic", topic, "error", err)
		return nil
	}
	return []string{fmt.Sprintf("Added article: %s", page.Title)}
}

// ingest forwards to the engine, generating a document ID when the
// source has no filename so chunk IDs from different research runs
// never collide.
func (r *Researcher) ingest(ctx context.Context, text string, metadata map[string]string) (int, error) {
	if metadata["filename"] == "" {
		metadata["filename"] = "research_" + uuid.NewString()
	}
	return r.engine.AddDocument(ctx, text, metadata)
}

func topicMeta(source, topic, kind string) map[string]string {
	return map[string]string{"source": source, "topic": topic, "type": kind}
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
