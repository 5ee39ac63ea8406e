// Package gateway talks to the external news and LLM services that produce
// headlines and articles.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/lysyi3m/debunkd/app/content"
	"github.com/lysyi3m/debunkd/app/topics"
)

// ErrQuotaExhausted marks a rejection caused by an upstream rate or quota
// limit. Callers should back off instead of retrying.
var ErrQuotaExhausted = errors.New("upstream quota exhausted")

// ErrMalformedResponse marks an upstream answer that could not be used.
var ErrMalformedResponse = errors.New("malformed upstream response")

// Gateway is everything the worker needs from the outside world. Every call
// consumes one unit of the shared rate limit.
type Gateway interface {
	FetchHeadlines(ctx context.Context, topic topics.Topic, count int) ([]string, error)
	GenerateArticle(ctx context.Context, headline string, topic topics.Topic) (content.Article, error)
}

// ErrUnclearQuery marks a search query the model could not interpret.
var ErrUnclearQuery = errors.New("query could not be interpreted, try explaining more clearly")

// ErrNoResults marks a news search that found nothing to fact-check.
var ErrNoResults = errors.New("no news articles found for the query")

type QueryKind string

const (
	QueryNews    QueryKind = "news"
	QueryGeneral QueryKind = "general"
)

// Classification tells the worker how to answer a search query. Keywords is
// the NewsAPI search term for news queries.
type Classification struct {
	Kind     QueryKind
	Keywords string
}

// Searcher answers reader search queries. Like Gateway, every call consumes
// one unit of the shared rate limit.
type Searcher interface {
	ClassifyQuery(ctx context.Context, query string) (Classification, error)
	SearchNews(ctx context.Context, keywords string, count int) ([]NewsItem, error)
	FactCheck(ctx context.Context, query string, class Classification, sources []NewsItem) (content.FactCheck, error)
}

// APIError is a non-2xx answer from an upstream API.
type APIError struct {
	Service    string
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%s API error %d (%s): %s", e.Service, e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("%s API error %d: %s", e.Service, e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrQuotaExhausted && e.quota()
}

func (e *APIError) quota() bool {
	switch e.Status {
	case "RESOURCE_EXHAUSTED", "rateLimited", "apiKeyExhausted", "maximumResultsReached":
		return true
	}
	return e.StatusCode == 429
}

// IsQuotaError reports whether err should trigger the global backoff.
func IsQuotaError(err error) bool {
	return errors.Is(err, ErrQuotaExhausted)
}
