package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/lysyi3m/debunkd/app/content"
	"github.com/lysyi3m/debunkd/app/topics"
)

// fakeUpstream serves Gemini, NewsAPI, RSS and article pages from one
// httptest server.
type fakeUpstream struct {
	server *httptest.Server

	mu            sync.Mutex
	geminiAnswer  string
	geminiStatus  int
	geminiBody    string
	newsStatus    int
	newsBody      string
	feedBody      string
	pageBody      string
	prompts       []string
	newsAPIKeys   []string
	newsRequests  []*http.Request
	geminiAPIKeys []string
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	f := &fakeUpstream{
		geminiStatus: http.StatusOK,
		newsStatus:   http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/models/test-model:generateContent", f.handleGemini)
	mux.HandleFunc("/v2/top-headlines", f.handleNews)
	mux.HandleFunc("/v2/everything", f.handleNews)
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, f.feedBody)
	})
	mux.HandleFunc("/story", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, f.pageBody)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeUpstream) handleGemini(w http.ResponseWriter, r *http.Request) {
	var req geminiRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.geminiAPIKeys = append(f.geminiAPIKeys, r.Header.Get("x-goog-api-key"))
	if len(req.Contents) > 0 && len(req.Contents[0].Parts) > 0 {
		f.prompts = append(f.prompts, req.Contents[0].Parts[0].Text)
	}

	w.Header().Set("Content-Type", "application/json")
	if f.geminiStatus != http.StatusOK {
		w.WriteHeader(f.geminiStatus)
		fmt.Fprint(w, f.geminiBody)
		return
	}

	resp := map[string]any{
		"candidates": []map[string]any{
			{
				"content":      map[string]any{"parts": []map[string]string{{"text": f.geminiAnswer}}},
				"finishReason": "STOP",
			},
		},
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *fakeUpstream) handleNews(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.newsAPIKeys = append(f.newsAPIKeys, r.Header.Get("X-Api-Key"))
	f.newsRequests = append(f.newsRequests, r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.newsStatus)
	fmt.Fprint(w, strings.ReplaceAll(f.newsBody, "{{BASE}}", f.server.URL))
}

func (f *fakeUpstream) service() *Service {
	return NewService(Config{
		GeminiEndpoint:  f.server.URL,
		GeminiModel:     "test-model",
		GeminiAPIKey:    "gemini-key",
		NewsAPIEndpoint: f.server.URL,
		NewsAPIKey:      "news-key",
		UserAgent:       "Debunkd/test",
		SourceTextLimit: 4000,
	}, f.server.Client())
}

const newsBody = `{
  "status": "ok",
  "totalResults": 4,
  "articles": [
    {"source": {"name": "Daily Planet"}, "title": "City council approves new budget - Daily Planet", "url": "{{BASE}}/story"},
    {"source": {"name": "Wire"}, "title": "[Removed]", "url": "https://removed.example.com"},
    {"source": {"name": "Wire"}, "title": "Storm  hits   the coast - Wire", "url": "https://example.com/storm"},
    {"source": {"name": "Daily Planet"}, "title": "City council approves new budget - Daily Planet", "url": "{{BASE}}/story"}
  ]
}`

func TestFetchHeadlinesFromNewsAPI(t *testing.T) {
	upstream := newFakeUpstream(t)
	upstream.newsBody = newsBody

	headlines, err := upstream.service().FetchHeadlines(context.Background(), topics.Topic{Name: "news", Kind: topics.KindNews, Country: "us"}, 10)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	expected := []string{"City council approves new budget", "Storm hits the coast"}
	if strings.Join(headlines, "|") != strings.Join(expected, "|") {
		t.Errorf("Expected %v, got %v", expected, headlines)
	}

	if len(upstream.newsAPIKeys) != 1 || upstream.newsAPIKeys[0] != "news-key" {
		t.Errorf("Expected NewsAPI key header, got %v", upstream.newsAPIKeys)
	}
}

func TestFetchHeadlinesNewsAPIQuota(t *testing.T) {
	upstream := newFakeUpstream(t)
	upstream.newsStatus = http.StatusTooManyRequests
	upstream.newsBody = `{"status":"error","code":"rateLimited","message":"You have made too many requests recently."}`

	_, err := upstream.service().FetchHeadlines(context.Background(), topics.Topic{Name: "news", Kind: topics.KindNews, Country: "us"}, 10)
	if err == nil {
		t.Fatal("Expected error")
	}
	if !IsQuotaError(err) {
		t.Errorf("Expected quota error, got: %v", err)
	}
}

func TestFetchHeadlinesNewsAPIError(t *testing.T) {
	upstream := newFakeUpstream(t)
	upstream.newsStatus = http.StatusUnauthorized
	upstream.newsBody = `{"status":"error","code":"apiKeyInvalid","message":"Your API key is invalid."}`

	_, err := upstream.service().FetchHeadlines(context.Background(), topics.Topic{Name: "news", Kind: topics.KindNews, Country: "us"}, 10)
	if err == nil {
		t.Fatal("Expected error")
	}
	if IsQuotaError(err) {
		t.Errorf("Invalid key must not be treated as quota error: %v", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != "apiKeyInvalid" {
		t.Errorf("Expected APIError with status apiKeyInvalid, got %v", err)
	}
}

func TestFetchHeadlinesGeneratedByModel(t *testing.T) {
	upstream := newFakeUpstream(t)
	upstream.geminiAnswer = "```json\n{\"headlines\": [\"1. Humans only use 10% of their brains\", \"Goldfish have a 3 second memory\", \"Goldfish have a 3 second memory\", \"- Cracking knuckles causes arthritis\"]}\n```"

	topic := topics.Topic{Name: "misconceptions", Kind: topics.KindMisconception}
	headlines, err := upstream.service().FetchHeadlines(context.Background(), topic, 2)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	expected := []string{"Humans only use 10% of their brains", "Goldfish have a 3 second memory"}
	if strings.Join(headlines, "|") != strings.Join(expected, "|") {
		t.Errorf("Expected %v, got %v", expected, headlines)
	}

	if len(upstream.prompts) != 1 || !strings.Contains(upstream.prompts[0], "misconceptions") {
		t.Errorf("Expected a misconception headline prompt, got %v", upstream.prompts)
	}
	if upstream.geminiAPIKeys[0] != "gemini-key" {
		t.Errorf("Expected Gemini API key header, got '%s'", upstream.geminiAPIKeys[0])
	}
}

func TestFetchHeadlinesFromFeedsWithFilters(t *testing.T) {
	upstream := newFakeUpstream(t)
	upstream.feedBody = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Science Desk</title>
    <link>https://example.com</link>
    <item>
      <title>Older telescope finding</title>
      <link>https://example.com/old</link>
      <pubDate>Mon, 01 Jan 2024 10:00:00 +0000</pubDate>
    </item>
    <item>
      <title>Sponsored: buy our telescope</title>
      <link>https://example.com/ad</link>
      <pubDate>Tue, 02 Jan 2024 10:00:00 +0000</pubDate>
    </item>
    <item>
      <title>New exoplanet discovered</title>
      <link>https://example.com/new</link>
      <pubDate>Wed, 03 Jan 2024 10:00:00 +0000</pubDate>
    </item>
  </channel>
</rss>`

	topic := topics.Topic{
		Name:    "science",
		Kind:    topics.KindNews,
		Feeds:   []string{upstream.server.URL + "/feed.xml"},
		Filters: []topics.Filter{{Excludes: []string{"sponsored"}}},
	}

	headlines, err := upstream.service().FetchHeadlines(context.Background(), topic, 10)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	expected := []string{"New exoplanet discovered", "Older telescope finding"}
	if strings.Join(headlines, "|") != strings.Join(expected, "|") {
		t.Errorf("Expected newest-first filtered headlines %v, got %v", expected, headlines)
	}
}

func TestGenerateArticleFromNewsHeadline(t *testing.T) {
	upstream := newFakeUpstream(t)
	upstream.newsBody = newsBody
	upstream.pageBody = `<html><head><title>Budget</title></head><body>
<article>
<h1>City council approves new budget</h1>
<p>The city council voted seven to two on Tuesday evening to approve a budget that raises spending on public transit and road maintenance by twelve percent over the previous year.</p>
<p>Council members who opposed the plan said the projected revenue from the new parking fees was overly optimistic and warned that the city could face a shortfall before the end of the fiscal year.</p>
<p>The mayor is expected to sign the budget later this week, after which the transit authority will publish a detailed schedule of the planned service improvements for residents.</p>
</article>
</body></html>`
	upstream.geminiAnswer = `{
  "title": "Council passes budget with transit boost",
  "summary": "The council approved a budget raising transit spending.",
  "category": "politics",
  "detail": "Long article text.",
  "key_findings": ["Spending rises twelve percent", " "],
  "multiple_perspectives": ["Transit riders welcome the increase", ""],
  "verification_process": " Checked against the published council minutes. ",
  "viewpoints": [{"label": "Supporters", "text": "Transit needs money."}, {"label": "Empty", "text": ""}],
  "sources": [{"name": "City records", "url": ""}]
}`

	service := upstream.service()
	topic := topics.Topic{Name: "news", Kind: topics.KindNews, Country: "us"}

	headlines, err := service.FetchHeadlines(context.Background(), topic, 10)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	article, err := service.GenerateArticle(context.Background(), headlines[0], topic)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if article.ID == "" {
		t.Error("Expected article id to be assigned")
	}
	if article.Section != "news" || article.Headline != headlines[0] {
		t.Errorf("Unexpected section/headline: %s / %s", article.Section, article.Headline)
	}
	if article.Category != content.CategoryPolitics {
		t.Errorf("Expected category Politics, got %s", article.Category)
	}
	if article.OriginURL != upstream.server.URL+"/story" {
		t.Errorf("Expected origin URL of the news item, got '%s'", article.OriginURL)
	}
	if len(article.Body.KeyFindings) != 1 {
		t.Errorf("Expected blank key findings to be dropped, got %v", article.Body.KeyFindings)
	}
	if len(article.Body.MultiplePerspectives) != 1 || article.Body.MultiplePerspectives[0] != "Transit riders welcome the increase" {
		t.Errorf("Expected one perspective, got %v", article.Body.MultiplePerspectives)
	}
	if article.Body.VerificationProcess != "Checked against the published council minutes." {
		t.Errorf("Expected trimmed verification process, got '%s'", article.Body.VerificationProcess)
	}
	if len(article.Body.Viewpoints) != 1 {
		t.Errorf("Expected empty viewpoints to be dropped, got %v", article.Body.Viewpoints)
	}
	if len(article.Body.Sources) != 2 || article.Body.Sources[1].URL != article.OriginURL {
		t.Errorf("Expected origin to be appended to sources, got %v", article.Body.Sources)
	}
	if !strings.Contains(article.ImageURL, "Politics") {
		t.Errorf("Expected placeholder image for category, got '%s'", article.ImageURL)
	}

	prompt := upstream.prompts[len(upstream.prompts)-1]
	if !strings.Contains(prompt, upstream.server.URL+"/story") {
		t.Error("Expected article prompt to reference the original report")
	}
	if !strings.Contains(prompt, "parking fees") {
		t.Error("Expected article prompt to include extracted source text")
	}
}

func TestOriginsEvictOldestFirst(t *testing.T) {
	upstream := newFakeUpstream(t)
	upstream.newsBody = `{
  "status": "ok",
  "totalResults": 3,
  "articles": [
    {"source": {"name": "Wire"}, "title": "First story", "url": "{{BASE}}/story?id=1"},
    {"source": {"name": "Wire"}, "title": "Second story", "url": "{{BASE}}/story?id=2"},
    {"source": {"name": "Wire"}, "title": "Third story", "url": "{{BASE}}/story?id=3"}
  ]
}`
	upstream.geminiAnswer = `{"title": "Third", "summary": "Summary.", "category": "General", "detail": "Detail."}`

	service := upstream.service()
	service.maxOrigins = 2
	topic := topics.Topic{Name: "news", Kind: topics.KindNews, Country: "us"}

	headlines, err := service.FetchHeadlines(context.Background(), topic, 10)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(headlines) != 3 {
		t.Fatalf("Expected 3 headlines, got %v", headlines)
	}

	if service.origin("First story") != nil {
		t.Error("Expected the oldest origin to be evicted")
	}
	for _, headline := range []string{"Second story", "Third story"} {
		if service.origin(headline) == nil {
			t.Errorf("Expected origin of %q to be kept", headline)
		}
	}

	article, err := service.GenerateArticle(context.Background(), "Third story", topic)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if article.OriginURL != upstream.server.URL+"/story?id=3" {
		t.Errorf("Expected origin URL to survive eviction of older entries, got '%s'", article.OriginURL)
	}

	// a forgotten headline fetched again must not be evicted by its stale entry
	if _, err := service.FetchHeadlines(context.Background(), topic, 10); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if service.origin("Third story") == nil {
		t.Error("Expected the newest origin to be kept after a refetch")
	}
	if len(service.origins) > 2 {
		t.Errorf("Expected at most 2 origins, got %d", len(service.origins))
	}
}

func TestGenerateArticleMalformedAnswer(t *testing.T) {
	upstream := newFakeUpstream(t)
	upstream.geminiAnswer = "Sorry, I cannot help with that."

	_, err := upstream.service().GenerateArticle(context.Background(), "Some myth", topics.Topic{Name: "misconceptions", Kind: topics.KindMisconception})
	if err == nil {
		t.Fatal("Expected error")
	}
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("Expected malformed response error, got: %v", err)
	}
	if IsQuotaError(err) {
		t.Error("Malformed answer must not be a quota error")
	}
}

func TestGenerateArticleQuotaExhausted(t *testing.T) {
	upstream := newFakeUpstream(t)
	upstream.geminiStatus = http.StatusTooManyRequests
	upstream.geminiBody = `{"error": {"code": 429, "message": "Resource has been exhausted", "status": "RESOURCE_EXHAUSTED"}}`

	_, err := upstream.service().GenerateArticle(context.Background(), "Some myth", topics.Topic{Name: "misconceptions", Kind: topics.KindMisconception})
	if err == nil {
		t.Fatal("Expected error")
	}
	if !IsQuotaError(err) {
		t.Errorf("Expected quota error, got: %v", err)
	}
}

func TestCleanHeadline(t *testing.T) {
	tests := map[string]string{
		"  1. Vaccines cause autism  ": "Vaccines cause autism",
		"[Moon landing was faked]":     "Moon landing was faked",
		"\"Quoted headline\"":          "Quoted headline",
		"- dash item":                  "dash item",
		"Cafe\u0301 prices soar":       "Caf\u00e9 prices soar",
		"multiple\n\tspaces  here":     "multiple spaces here",
		"   ":                          "",
	}

	for input, expected := range tests {
		if got := CleanHeadline(input); got != expected {
			t.Errorf("CleanHeadline(%q): expected %q, got %q", input, expected, got)
		}
	}
}
