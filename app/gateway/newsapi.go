package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/lysyi3m/debunkd/app/topics"
)

const DefaultNewsAPIEndpoint = "https://newsapi.org"

// NewsItem is one upstream news entry a headline can be traced back to.
type NewsItem struct {
	Title  string
	URL    string
	Source string
}

type NewsAPIClient struct {
	endpoint   string
	apiKey     string
	userAgent  string
	httpClient *http.Client
}

func NewNewsAPIClient(endpoint, apiKey, userAgent string, httpClient *http.Client) *NewsAPIClient {
	if endpoint == "" {
		endpoint = DefaultNewsAPIEndpoint
	}
	return &NewsAPIClient{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		userAgent:  userAgent,
		httpClient: httpClient,
	}
}

type newsAPIResponse struct {
	Status       string `json:"status"`
	Code         string `json:"code"`
	Message      string `json:"message"`
	TotalResults int    `json:"totalResults"`
	Articles     []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title string `json:"title"`
		URL   string `json:"url"`
	} `json:"articles"`
}

// TopHeadlines returns up to limit items for the topic's country, category
// and query.
func (c *NewsAPIClient) TopHeadlines(ctx context.Context, topic topics.Topic, limit int) ([]NewsItem, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("NewsAPI key is not configured")
	}

	params := url.Values{}
	if topic.Country != "" {
		params.Set("country", topic.Country)
	}
	if topic.Category != "" {
		params.Set("category", topic.Category)
	}
	if topic.Query != "" {
		params.Set("q", topic.Query)
	}
	params.Set("pageSize", strconv.Itoa(min(max(limit, 1), 100)))

	return c.get(ctx, "/v2/top-headlines", params, limit)
}

// Everything searches all indexed articles for query, most popular first.
func (c *NewsAPIClient) Everything(ctx context.Context, query string, limit int) ([]NewsItem, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("NewsAPI key is not configured")
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("language", "en")
	params.Set("sortBy", "popularity")
	params.Set("pageSize", strconv.Itoa(min(max(limit, 1), 100)))

	return c.get(ctx, "/v2/everything", params, limit)
}

func (c *NewsAPIClient) get(ctx context.Context, path string, params url.Values, limit int) ([]NewsItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch news: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var parsed newsAPIResponse
	decodeErr := json.Unmarshal(data, &parsed)

	if resp.StatusCode != http.StatusOK || parsed.Status == "error" {
		apiErr := &APIError{Service: "newsapi", StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		if decodeErr == nil && parsed.Code != "" {
			apiErr.Status = parsed.Code
			apiErr.Message = parsed.Message
		}
		return nil, apiErr
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: failed to decode NewsAPI response: %v", ErrMalformedResponse, decodeErr)
	}

	items := make([]NewsItem, 0, len(parsed.Articles))
	for _, article := range parsed.Articles {
		title := stripSourceSuffix(article.Title, article.Source.Name)
		if title == "" || title == "[Removed]" {
			continue
		}
		items = append(items, NewsItem{
			Title:  title,
			URL:    article.URL,
			Source: article.Source.Name,
		})
		if len(items) >= limit {
			break
		}
	}

	return items, nil
}

// stripSourceSuffix removes the " - Publisher" tail NewsAPI appends to titles.
func stripSourceSuffix(title, source string) string {
	title = strings.TrimSpace(title)
	if source != "" {
		title = strings.TrimSuffix(title, " - "+source)
	}
	return strings.TrimSpace(title)
}
