// ABOUTME: search_product tool backed by the Tavily search API
// ABOUTME: Formats numbered results with URLs and caches responses per query

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kimyungju/pricewise/internal/cache"
)

const (
	// DefaultTavilyURL is the Tavily search endpoint.
	DefaultTavilyURL = "https://api.tavily.com/search"

	defaultSearchResults = 3
	maxCacheSize         = 500
)

// ProductQuery is the argument schema of search_product.
type ProductQuery struct {
	Query      string `json:"query" jsonschema:"description=Product search query such as 'wireless headphones under $100'"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"description=Maximum number of results to return,minimum=1,maximum=10,default=3"`
}

// SearchResult is one Tavily hit.
type SearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// SearchResponse is the Tavily response body.
type SearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
}

// Searcher runs a web search.
type Searcher interface {
	Search(ctx context.Context, query string) (*SearchResponse, error)
}

// TavilyConfig configures the Tavily client.
type TavilyConfig struct {
	APIKey     string
	BaseURL    string
	MaxResults int
	Topic      string
	Timeout    time.Duration
}

// TavilyClient calls the Tavily search API.
type TavilyClient struct {
	config     TavilyConfig
	httpClient *http.Client
}

// NewTavilyClient creates a client. Zero config fields take Tavily defaults.
func NewTavilyClient(cfg TavilyConfig) *TavilyClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultTavilyURL
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if cfg.Topic == "" {
		cfg.Topic = "general"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &TavilyClient{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type tavilyRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
	Topic      string `json:"topic"`
}

type tavilyError struct {
	Detail struct {
		Error string `json:"error"`
	} `json:"detail"`
	Error string `json:"error"`
}

// Search runs query against Tavily.
func (c *TavilyClient) Search(ctx context.Context, query string) (*SearchResponse, error) {
	body, err := json.Marshal(tavilyRequest{Query: query, MaxResults: c.config.MaxResults, Topic: c.config.Topic})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var te tavilyError
		if json.Unmarshal(data, &te) == nil {
			if te.Detail.Error != "" {
				return nil, errors.New(te.Detail.Error)
			}
			if te.Error != "" {
				return nil, errors.New(te.Error)
			}
		}
		return nil, fmt.Errorf("tavily returned status %d", resp.StatusCode)
	}

	var out SearchResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &out, nil
}

// SearchProductTool implements search_product.
type SearchProductTool struct {
	searcher Searcher
	cache    *cache.Cache[*SearchResponse]
}

// NewSearchProductTool creates the tool. A zero ttl disables caching.
func NewSearchProductTool(searcher Searcher, ttl time.Duration) *SearchProductTool {
	t := &SearchProductTool{searcher: searcher}
	if ttl > 0 {
		t.cache = cache.New[*SearchResponse](ttl, maxCacheSize)
	}
	return t
}

func (t *SearchProductTool) Name() string { return "search_product" }

func (t *SearchProductTool) Description() string {
	return "Search for a product online and return formatted results with prices and links."
}

func (t *SearchProductTool) Schema() json.RawMessage { return SchemaFor[ProductQuery]() }

// Execute searches and formats the results. Search failures are reported
// as "Search error: ..." results.
func (t *SearchProductTool) Execute(ctx context.Context, call Call) (Outcome, error) {
	var q ProductQuery
	if err := call.Decode(&q); err != nil {
		return Outcome{}, err
	}
	if q.MaxResults <= 0 {
		q.MaxResults = defaultSearchResults
	}

	resp, err := t.search(ctx, q.Query)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		return Completed(fmt.Sprintf("Search error: %v", err)), nil
	}
	return Completed(FormatResults(resp.Results, q.MaxResults)), nil
}

func (t *SearchProductTool) search(ctx context.Context, query string) (*SearchResponse, error) {
	key := strings.ToLower(strings.TrimSpace(query))
	if t.cache != nil {
		if resp, ok := t.cache.Get(key); ok {
			return resp, nil
		}
	}

	resp, err := t.searcher.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	if t.cache != nil {
		t.cache.Put(key, resp)
	}
	return resp, nil
}

// Close releases the response cache.
func (t *SearchProductTool) Close() {
	if t.cache != nil {
		t.cache.Close()
	}
}

// FormatResults renders up to max results as "N. content\n   URL: url".
func FormatResults(results []SearchResult, max int) string {
	if len(results) == 0 {
		return "No products found for this query."
	}
	if max > 0 && len(results) > max {
		results = results[:max]
	}

	formatted := make([]string, 0, len(results))
	for i, r := range results {
		url := r.URL
		if url == "" {
			url = "N/A"
		}
		content := r.Content
		if content == "" {
			content = "No description"
		}
		formatted = append(formatted, fmt.Sprintf("%d. %s\n   URL: %s", i+1, content, url))
	}
	return strings.Join(formatted, "\n\n")
}
