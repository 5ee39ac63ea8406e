package gateway

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/mmcdole/gofeed"
)

// FeedSource reads headlines from RSS/Atom feeds.
type FeedSource struct {
	httpClient   *http.Client
	gofeedParser *gofeed.Parser
	userAgent    string
}

func NewFeedSource(httpClient *http.Client, userAgent string) *FeedSource {
	return &FeedSource{
		httpClient:   httpClient,
		gofeedParser: gofeed.NewParser(),
		userAgent:    userAgent,
	}
}

// Items merges the feeds newest first and returns up to limit items. A feed
// that fails is skipped as long as at least one feed succeeds.
func (s *FeedSource) Items(ctx context.Context, feedURLs []string, limit int) ([]NewsItem, error) {
	type datedItem struct {
		NewsItem
		published time.Time
	}

	var collected []datedItem
	var lastErr error
	succeeded := 0

	for _, feedURL := range feedURLs {
		data, err := s.fetchFeed(ctx, feedURL)
		if err != nil {
			slog.Warn("Failed to fetch feed", "url", feedURL, "error", err)
			lastErr = err
			continue
		}

		feed, err := s.gofeedParser.Parse(bytes.NewReader(data))
		if err != nil {
			slog.Warn("Failed to parse feed", "url", feedURL, "error", err)
			lastErr = fmt.Errorf("failed to parse feed: %w", err)
			continue
		}
		succeeded++

		for _, item := range feed.Items {
			if item == nil || item.Title == "" {
				continue
			}
			entry := datedItem{
				NewsItem: NewsItem{
					Title:  item.Title,
					URL:    cmp.Or(item.Link, item.GUID),
					Source: feed.Title,
				},
			}
			if item.PublishedParsed != nil {
				entry.published = *item.PublishedParsed
			} else if item.UpdatedParsed != nil {
				entry.published = *item.UpdatedParsed
			}
			collected = append(collected, entry)
		}
	}

	if succeeded == 0 && lastErr != nil {
		return nil, lastErr
	}

	sort.SliceStable(collected, func(i, j int) bool {
		return collected[i].published.After(collected[j].published)
	})

	items := make([]NewsItem, 0, min(limit, len(collected)))
	for _, entry := range collected {
		if len(items) >= limit {
			break
		}
		items = append(items, entry.NewsItem)
	}

	return items, nil
}

func (s *FeedSource) fetchFeed(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &APIError{Service: "feed", StatusCode: resp.StatusCode, Message: url}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}
