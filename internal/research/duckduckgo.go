package research

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// DuckDuckGo queries the instant-answer API for topic abstracts and
// related-topic snippets.
type DuckDuckGo struct {
	client  *http.Client
	baseURL string
}

// NewDuckDuckGo creates the instant-answer client. baseURL is
// overridable for tests; empty means the public API.
func NewDuckDuckGo(client *http.Client, baseURL string) *DuckDuckGo {
	if baseURL == "" {
		baseURL = "https://api.duckduckgo.com"
	}
	return &DuckDuckGo{client: client, baseURL: baseURL}
}

type instantAnswer struct {
	Abstract      string         `json:"Abstract"`
	Heading       string         `json:"Heading"`
	RelatedTopics []relatedTopic `json:"RelatedTopics"`
}

// relatedTopic is either a plain snippet or a category of nested
// topics; categories carry no Text of their own.
type relatedTopic struct {
	Text   string         `json:"Text"`
	Topics []relatedTopic `json:"Topics"`
}

// Lookup fetches the instant answer for a topic. The abstract is
// textified because the API returns it as an HTML fragment.
func (d *DuckDuckGo) Lookup(ctx context.Context, topic string) (abstract string, related []string, err error) {
	endpoint := fmt.Sprintf("%s/?q=%s&format=json", d.baseURL, url.QueryEscape(topic))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", nil, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("querying instant answers: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("instant answer API returned %d", resp.StatusCode)
	}

	var answer instantAnswer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return "", nil, fmt.Errorf("decoding instant answer: %w", err)
	}

	abstract = textify(answer.Abstract)
	for _, rt := range flattenTopics(answer.RelatedTopics) {
		if text := textify(rt); text != "" {
			related = append(related, text)
		}
	}
	return abstract, related, nil
}

func flattenTopics(topics []relatedTopic) []string {
	var out []string
	for _, t := range topics {
		if t.Text != "" {
			out = append(out, t.Text)
		}
		out = append(out, flattenTopics(t.Topics)...)
	}
	return out
}

// textify strips markup from an HTML fragment, returning the
// concatenated text content. Plain text passes through unchanged.
func textify(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return strings.TrimSpace(fragment)
	}

	node, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return collapseWhitespace(sb.String())
}
