package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lysyi3m/debunkd/app/content"
)

var _ Searcher = (*Service)(nil)

func (s *Service) ClassifyQuery(ctx context.Context, query string) (Classification, error) {
	answer, err := s.llm.GenerateJSON(ctx, classifyPrompt(query))
	if err != nil {
		return Classification{}, fmt.Errorf("failed to classify query: %w", err)
	}

	var parsed struct {
		Kind     string `json:"kind"`
		Keywords string `json:"keywords"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(answer)), &parsed); err != nil {
		return Classification{}, fmt.Errorf("%w: classification is not valid JSON: %v", ErrMalformedResponse, err)
	}

	switch QueryKind(strings.ToLower(strings.TrimSpace(parsed.Kind))) {
	case QueryNews:
		keywords := strings.Join(strings.Fields(parsed.Keywords), " ")
		if keywords == "" {
			keywords = query
		}
		return Classification{Kind: QueryNews, Keywords: keywords}, nil
	case QueryGeneral:
		return Classification{Kind: QueryGeneral}, nil
	case "unclear":
		return Classification{}, ErrUnclearQuery
	}

	return Classification{}, fmt.Errorf("%w: unknown query kind %q", ErrMalformedResponse, parsed.Kind)
}

func (s *Service) SearchNews(ctx context.Context, keywords string, count int) ([]NewsItem, error) {
	items, err := s.newsAPI.Everything(ctx, keywords, count)
	if err != nil {
		return nil, fmt.Errorf("failed to search news for %q: %w", keywords, err)
	}
	return items, nil
}

func (s *Service) FactCheck(ctx context.Context, query string, class Classification, sources []NewsItem) (content.FactCheck, error) {
	answer, err := s.llm.GenerateJSON(ctx, factCheckPrompt(query, class, sources))
	if err != nil {
		return content.FactCheck{}, fmt.Errorf("failed to fact-check %q: %w", query, err)
	}

	article, err := parseArticle(answer)
	if err != nil {
		return content.FactCheck{}, fmt.Errorf("failed to parse fact-check for %q: %w", query, err)
	}

	for _, source := range sources {
		if source.URL != "" && !hasSource(article.Body.Sources, source.URL) {
			article.Body.Sources = append(article.Body.Sources, content.Source{Name: source.Source, URL: source.URL})
		}
	}

	title := article.Title
	if title == "" {
		title = "Fact-Check: " + query
		if class.Kind == QueryNews {
			title = "News Report: " + query
		}
	}

	return content.FactCheck{
		Query:     query,
		Kind:      string(class.Kind),
		Title:     title,
		Summary:   article.Summary,
		Category:  article.Category,
		Body:      article.Body,
		CreatedAt: s.now().UTC(),
	}, nil
}
