package research

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Wikipedia resolves a topic to its best-matching article and returns
// the article's summary extract.
type Wikipedia struct {
	client  *http.Client
	baseURL string
}

// NewWikipedia creates the Wikipedia client. baseURL is overridable for
// tests; empty means en.wikipedia.org.
func NewWikipedia(client *http.Client, baseURL string) *Wikipedia {
	if baseURL == "" {
		baseURL = "https://en.wikipedia.org"
	}
	return &Wikipedia{client: client, baseURL: baseURL}
}

// Summary is a Wikipedia article summary.
type Summary struct {
	Title   string
	Extract string
	URL     string
}

// Summarize searches for the topic and fetches the top hit's summary.
// A topic with no matching article yields a nil summary, not an error.
func (w *Wikipedia) Summarize(ctx context.Context, topic string) (*Summary, error) {
	title, err := w.search(ctx, topic)
	if err != nil {
		return nil, err
	}
	if title == "" {
		return nil, nil
	}
	return w.summary(ctx, title)
}

// search uses the opensearch API, which answers with a positional
// array: [query, [titles], [descriptions], [urls]].
func (w *Wikipedia) search(ctx context.Context, topic string) (string, error) {
	endpoint := fmt.Sprintf("%s/w/api.php?action=opensearch&search=%s&limit=1&format=json",
		w.baseURL, url.QueryEscape(topic))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("searching wikipedia: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("wikipedia search returned %d", resp.StatusCode)
	}

	var raw []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", fmt.Errorf("decoding search result: %w", err)
	}
	if len(raw) < 2 {
		return "", nil
	}

	var titles []string
	if err := json.Unmarshal(raw[1], &titles); err != nil {
		return "", fmt.Errorf("decoding search titles: %w", err)
	}
	if len(titles) == 0 {
		return "", nil
	}
	return titles[0], nil
}

func (w *Wikipedia) summary(ctx context.Context, title string) (*Summary, error) {
	endpoint := fmt.Sprintf("%s/api/rest_v1/page/summary/%s", w.baseURL, url.PathEscape(title))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching wikipedia summary: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wikipedia summary returned %d", resp.StatusCode)
	}

	var body struct {
		Title   string `json:"title"`
		Extract string `json:"extract"`
		ContentURLs struct {
			Desktop struct {
				Page string `json:"page"`
			} `json:"desktop"`
		} `json:"content_urls"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding wikipedia summary: %w", err)
	}
	if body.Extract == "" {
		return nil, nil
	}

	return &Summary{Title: body.Title, Extract: body.Extract, URL: body.ContentURLs.Desktop.Page}, nil
}
