package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/lysyi3m/debunkd/app/content"
	"github.com/lysyi3m/debunkd/app/topics"
)

const (
	maxHeadlineRunes = 300
	maxOrigins       = 2000
)

type Config struct {
	GeminiEndpoint  string
	GeminiModel     string
	GeminiAPIKey    string
	NewsAPIEndpoint string
	NewsAPIKey      string
	UserAgent       string
	SourceTextLimit int // characters of extracted source text sent with a prompt
}

// Service implements Gateway on top of Gemini, NewsAPI and RSS feeds.
type Service struct {
	llm       *GeminiClient
	newsAPI   *NewsAPIClient
	feeds     *FeedSource
	extractor *SourceExtractor

	// headline -> news item it was taken from, oldest evicted first
	origins     map[string]origin
	originOrder []originKey
	maxOrigins  int
	seq         uint64
	mu          sync.Mutex

	now func() time.Time
}

var _ Gateway = (*Service)(nil)

func NewService(cfg Config, httpClient *http.Client) *Service {
	return &Service{
		llm:        NewGeminiClient(cfg.GeminiEndpoint, cfg.GeminiModel, cfg.GeminiAPIKey, httpClient),
		newsAPI:    NewNewsAPIClient(cfg.NewsAPIEndpoint, cfg.NewsAPIKey, cfg.UserAgent, httpClient),
		feeds:      NewFeedSource(httpClient, cfg.UserAgent),
		extractor:  NewSourceExtractor(httpClient, cfg.UserAgent, cfg.SourceTextLimit),
		origins:    make(map[string]origin),
		maxOrigins: maxOrigins,
		now:        time.Now,
	}
}

func (s *Service) FetchHeadlines(ctx context.Context, topic topics.Topic, count int) ([]string, error) {
	if count <= 0 {
		return nil, nil
	}

	var headlines []string
	var err error

	switch topic.Kind {
	case topics.KindNews:
		headlines, err = s.newsHeadlines(ctx, topic, count)
	default:
		headlines, err = s.generatedHeadlines(ctx, topic, count)
	}
	if err != nil {
		return nil, err
	}

	allowed := headlines[:0]
	for _, headline := range headlines {
		if topic.Allows(headline) {
			allowed = append(allowed, headline)
		}
	}

	slog.Debug("Headlines fetched", "topic", topic.Name, "requested", count, "received", len(headlines), "allowed", len(allowed))

	return allowed, nil
}

func (s *Service) newsHeadlines(ctx context.Context, topic topics.Topic, count int) ([]string, error) {
	var items []NewsItem
	var err error

	if len(topic.Feeds) > 0 {
		items, err = s.feeds.Items(ctx, topic.Feeds, count)
	} else {
		items, err = s.newsAPI.TopHeadlines(ctx, topic, count)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch news for topic %s: %w", topic.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	headlines := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		headline := CleanHeadline(item.Title)
		if headline == "" || seen[headline] {
			continue
		}
		seen[headline] = true
		s.remember(headline, item)
		headlines = append(headlines, headline)
	}

	return headlines, nil
}

type origin struct {
	item NewsItem
	seq  uint64
}

type originKey struct {
	headline string
	seq      uint64
}

// remember records where a headline came from. Past maxOrigins the oldest
// entries are dropped; entries already forgotten are skipped.
func (s *Service) remember(headline string, item NewsItem) {
	s.seq++
	s.origins[headline] = origin{item: item, seq: s.seq}
	s.originOrder = append(s.originOrder, originKey{headline: headline, seq: s.seq})

	for len(s.origins) > s.maxOrigins && len(s.originOrder) > 0 {
		oldest := s.originOrder[0]
		s.originOrder = s.originOrder[1:]
		if current, ok := s.origins[oldest.headline]; ok && current.seq == oldest.seq {
			delete(s.origins, oldest.headline)
		}
	}

	if len(s.originOrder) > 2*s.maxOrigins {
		live := make([]originKey, 0, len(s.origins))
		for _, key := range s.originOrder {
			if current, ok := s.origins[key.headline]; ok && current.seq == key.seq {
				live = append(live, key)
			}
		}
		s.originOrder = live
	}
}

func (s *Service) generatedHeadlines(ctx context.Context, topic topics.Topic, count int) ([]string, error) {
	answer, err := s.llm.GenerateJSON(ctx, headlinesPrompt(topic, count))
	if err != nil {
		return nil, fmt.Errorf("failed to generate headlines for topic %s: %w", topic.Name, err)
	}

	var parsed struct {
		Headlines []string `json:"headlines"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(answer)), &parsed); err != nil {
		return nil, fmt.Errorf("%w: headline list is not valid JSON: %v", ErrMalformedResponse, err)
	}

	headlines := make([]string, 0, len(parsed.Headlines))
	seen := make(map[string]bool, len(parsed.Headlines))
	for _, raw := range parsed.Headlines {
		headline := CleanHeadline(raw)
		if headline == "" || seen[headline] {
			continue
		}
		seen[headline] = true
		headlines = append(headlines, headline)
		if len(headlines) >= count {
			break
		}
	}

	return headlines, nil
}

type articleAnswer struct {
	Title                string              `json:"title"`
	Summary              string              `json:"summary"`
	Category             string              `json:"category"`
	Detail               string              `json:"detail"`
	KeyFindings          []string            `json:"key_findings"`
	MultiplePerspectives []string            `json:"multiple_perspectives"`
	VerificationProcess  string              `json:"verification_process"`
	Viewpoints           []content.Viewpoint `json:"viewpoints"`
	Sources              []content.Source    `json:"sources"`
}

func (s *Service) GenerateArticle(ctx context.Context, headline string, topic topics.Topic) (content.Article, error) {
	origin := s.origin(headline)

	var sourceText string
	if origin != nil && origin.URL != "" {
		text, err := s.extractor.Extract(ctx, origin.URL)
		if err != nil {
			slog.Debug("Source extraction failed, generating without source text", "url", origin.URL, "error", err)
		} else {
			sourceText = text
		}
	}

	answer, err := s.llm.GenerateJSON(ctx, articlePrompt(headline, topic, origin, sourceText))
	if err != nil {
		return content.Article{}, fmt.Errorf("failed to generate article for %q: %w", headline, err)
	}

	article, err := parseArticle(answer)
	if err != nil {
		return content.Article{}, fmt.Errorf("failed to parse article for %q: %w", headline, err)
	}

	article.ID = uuid.NewString()
	article.Section = topic.Name
	article.Headline = headline
	article.CreatedAt = s.now().UTC()
	if article.Title == "" {
		article.Title = headline
	}
	if origin != nil {
		article.OriginURL = origin.URL
		if origin.URL != "" && !hasSource(article.Body.Sources, origin.URL) {
			article.Body.Sources = append(article.Body.Sources, content.Source{Name: origin.Source, URL: origin.URL})
		}
	}
	article.ImageURL = placeholderImage(topic.Kind, article.Category)

	s.forget(headline)

	return article, nil
}

func (s *Service) origin(headline string) *NewsItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.origins[headline]
	if !ok {
		return nil
	}
	return &entry.item
}

func (s *Service) forget(headline string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.origins, headline)
}

func parseArticle(answer string) (content.Article, error) {
	var parsed articleAnswer
	if err := json.Unmarshal([]byte(stripCodeFence(answer)), &parsed); err != nil {
		return content.Article{}, fmt.Errorf("%w: article is not valid JSON: %v", ErrMalformedResponse, err)
	}

	if strings.TrimSpace(parsed.Detail) == "" && strings.TrimSpace(parsed.Summary) == "" {
		return content.Article{}, fmt.Errorf("%w: article has neither detail nor summary", ErrMalformedResponse)
	}

	article := content.Article{
		Title:    strings.TrimSpace(parsed.Title),
		Summary:  strings.TrimSpace(parsed.Summary),
		Category: content.ParseCategory(parsed.Category),
		Body: content.Body{
			Detail:               strings.TrimSpace(parsed.Detail),
			KeyFindings:          nonEmpty(parsed.KeyFindings),
			MultiplePerspectives: nonEmpty(parsed.MultiplePerspectives),
			VerificationProcess:  strings.TrimSpace(parsed.VerificationProcess),
		},
	}

	for _, viewpoint := range parsed.Viewpoints {
		if strings.TrimSpace(viewpoint.Text) == "" {
			continue
		}
		article.Body.Viewpoints = append(article.Body.Viewpoints, content.Viewpoint{
			Label: strings.TrimSpace(viewpoint.Label),
			Text:  strings.TrimSpace(viewpoint.Text),
		})
	}

	for _, source := range parsed.Sources {
		name := strings.TrimSpace(source.Name)
		if name == "" {
			continue
		}
		article.Body.Sources = append(article.Body.Sources, content.Source{
			Name: name,
			URL:  strings.TrimSpace(source.URL),
		})
	}

	return article, nil
}

var (
	headlineNumbering = regexp.MustCompile(`^(\d+[.)]|[-*•])\s+`)
	codeFence         = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
)

// CleanHeadline normalizes a headline to NFC, collapses whitespace and strips
// list markers, brackets and quotes models like to add.
func CleanHeadline(raw string) string {
	headline := norm.NFC.String(raw)
	headline = strings.Join(strings.Fields(headline), " ")
	headline = headlineNumbering.ReplaceAllString(headline, "")
	headline = strings.Trim(headline, "[]\"'“”")
	headline = strings.TrimSpace(headline)

	runes := []rune(headline)
	if len(runes) > maxHeadlineRunes {
		headline = strings.TrimSpace(string(runes[:maxHeadlineRunes]))
	}
	return headline
}

func stripCodeFence(answer string) string {
	answer = strings.TrimSpace(answer)
	if m := codeFence.FindStringSubmatch(answer); m != nil {
		return m[1]
	}
	return answer
}

func nonEmpty(values []string) []string {
	var result []string
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			result = append(result, value)
		}
	}
	return result
}

func hasSource(sources []content.Source, sourceURL string) bool {
	for _, source := range sources {
		if source.URL == sourceURL {
			return true
		}
	}
	return false
}

func placeholderImage(kind topics.Kind, category content.Category) string {
	color := "2D4356"
	switch kind {
	case topics.KindMisconception:
		color = "FF8F28"
	case topics.KindIssue:
		color = "3E7C59"
	}
	return fmt.Sprintf("https://placehold.co/300x200/%s/FFFFFF?text=%s", color, url.QueryEscape(string(category)))
}
