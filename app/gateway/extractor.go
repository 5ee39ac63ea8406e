package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"codeberg.org/readeck/go-readability/v2"
)

// SourceExtractor downloads a news page and returns its readable text, used
// to ground article prompts on the original story.
type SourceExtractor struct {
	httpClient *http.Client
	userAgent  string
	maxChars   int
}

func NewSourceExtractor(httpClient *http.Client, userAgent string, maxChars int) *SourceExtractor {
	return &SourceExtractor{
		httpClient: httpClient,
		userAgent:  userAgent,
		maxChars:   maxChars,
	}
}

func (e *SourceExtractor) Extract(ctx context.Context, pageURL string) (string, error) {
	parsedURL, err := url.Parse(pageURL)
	if err != nil || (parsedURL.Scheme != "http" && parsedURL.Scheme != "https") {
		return "", fmt.Errorf("invalid article URL: %s", pageURL)
	}

	data, err := e.fetchPage(ctx, pageURL)
	if err != nil {
		return "", err
	}

	article, err := readability.FromReader(strings.NewReader(string(data)), parsedURL)
	if err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}

	var text strings.Builder
	if err := article.RenderText(&text); err != nil {
		return "", fmt.Errorf("failed to render content: %w", err)
	}

	extracted := strings.Join(strings.Fields(text.String()), " ")
	if extracted == "" {
		return "", fmt.Errorf("no content extracted from %s", pageURL)
	}

	if e.maxChars > 0 {
		runes := []rune(extracted)
		if len(runes) > e.maxChars {
			extracted = string(runes[:e.maxChars])
		}
	}

	return extracted, nil
}

func (e *SourceExtractor) fetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "text/html") {
		return nil, fmt.Errorf("content type is not HTML: %s", contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}
