// Package research feeds the shared knowledge base from the web: direct
// URL scrapes and topic research through an ordered chain of fallible
// sources. Everything it ingests goes through the same chunking path as
// uploaded documents.
package research

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"
	"github.com/PuerkitoBio/goquery"

	"github.com/ragline/ragline/internal/log"
	"github.com/ragline/ragline/internal/security"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// Page is the extracted content of a scraped URL. Length is the size of
// the full extracted text before the content cap.
type Page struct {
	URL     string
	Title   string
	Content string
	Length  int
}

// ScraperConfig tunes fetching and extraction.
type ScraperConfig struct {
	Timeout     time.Duration // per-fetch deadline
	MaxChars    int           // content cap after extraction
	UserAgent   string        // request User-Agent
	Parallelism int           // concurrent fetches per domain; 0 = unlimited
	Delay       time.Duration // politeness delay between fetches to a domain
}

// Scraper fetches pages through the SSRF guard and extracts readable
// text.
type Scraper struct {
	validator *security.URLValidator
	cfg       ScraperConfig
	logger    log.Logger
}

// NewScraper creates a scraper. Zero config fields get defaults of 10s
// and 10,000 chars.
func NewScraper(validator *security.URLValidator, cfg ScraperConfig, logger log.Logger) *Scraper {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 10000
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	return &Scraper{validator: validator, cfg: cfg, logger: logger}
}

// Scrape fetches a URL and extracts its readable text. Readability
// extraction is tried first; pages it cannot digest fall back to DOM
// stripping. The title falls back to the host when the page has none.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) (*Page, error) {
	if err := s.validator.Validate(rawURL); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	body, err := s.fetch(rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", rawURL, err)
	}

	title, text := extract(body, parsed)
	if title == "" {
		title = parsed.Host
	}
	if text == "" {
		return nil, fmt.Errorf("no readable text at %s", rawURL)
	}

	page := &Page{URL: rawURL, Title: title, Content: text, Length: len(text)}
	if len(page.Content) > s.cfg.MaxChars {
		page.Content = page.Content[:s.cfg.MaxChars]
	}

	s.logger.Debug("scraped page", "url", rawURL, "title", title, "chars", page.Length)
	return page, nil
}

// fetch retrieves the raw page body with colly, dialing through the
// SSRF-validating client.
func (s *Scraper) fetch(rawURL string) ([]byte, error) {
	c := colly.NewCollector(
		colly.UserAgent(s.cfg.UserAgent),
		colly.MaxDepth(1),
		colly.AllowURLRevisit(),
	)
	c.SetClient(s.validator.Client(s.cfg.Timeout))
	c.SetRequestTimeout(s.cfg.Timeout)

	if s.cfg.Parallelism > 0 || s.cfg.Delay > 0 {
		if err := c.Limit(&colly.LimitRule{
			DomainGlob:  "*",
			Parallelism: s.cfg.Parallelism,
			Delay:       s.cfg.Delay,
		}); err != nil {
			return nil, fmt.Errorf("applying fetch limits: %w", err)
		}
	}

	var body []byte
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})

	if err := c.Visit(rawURL); err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("empty response body")
	}
	return body, nil
}

// extract pulls title and text out of an HTML document. Readability
// handles article-shaped pages; anything else gets the stripped DOM
// text.
func extract(body []byte, pageURL *url.URL) (title, text string) {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return strings.TrimSpace(article.Title), collapseWhitespace(article.TextContent)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", ""
	}
	title = strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, nav, footer, header").Remove()
	return title, collapseWhitespace(doc.Text())
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
