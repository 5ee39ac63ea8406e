package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

// ErrHelp is returned by Load when usage was printed.
var ErrHelp = errors.New("help requested")

type rawCfg struct {
	// Application configuration
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl      string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://news.example.com)"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key protecting the refresh endpoint (optional)"`
	TopicsFile   string `long:"topics-file" env:"TOPICS_FILE" default:"./topics.yml" description:"YAML file describing the sections; built-in sections are used when missing"`
	ArchivePath  string `long:"archive-path" env:"ARCHIVE_PATH" description:"SQLite file archiving generated articles (disabled when empty)"`

	// Upstream services
	GeminiAPIKey    string        `long:"gemini-api-key" env:"GEMINI_API_KEY" description:"Gemini API key"`
	GeminiModel     string        `long:"gemini-model" env:"GEMINI_MODEL" default:"gemini-2.0-flash" description:"Gemini model name"`
	GeminiEndpoint  string        `long:"gemini-endpoint" env:"GEMINI_ENDPOINT" default:"https://generativelanguage.googleapis.com/v1beta" description:"Gemini API base URL"`
	NewsAPIKey      string        `long:"newsapi-key" env:"NEWSAPI_API_KEY" description:"NewsAPI key"`
	NewsAPIEndpoint string        `long:"newsapi-endpoint" env:"NEWSAPI_ENDPOINT" default:"https://newsapi.org" description:"NewsAPI base URL"`
	RequestTimeout  time.Duration `long:"request-timeout" env:"REQUEST_TIMEOUT" default:"90s" description:"Timeout for a single upstream request"`
	SourceTextLimit int           `long:"source-text-limit" env:"SOURCE_TEXT_LIMIT" default:"6000" description:"Characters of extracted source text sent with a prompt"`

	// Generation tuning
	RateLimitMaxCalls     int           `long:"rate-limit-max-calls" env:"RATE_LIMIT_MAX_CALLS" default:"15" description:"Upstream calls allowed per rate limit interval"`
	RateLimitInterval     time.Duration `long:"rate-limit-interval" env:"RATE_LIMIT_INTERVAL" default:"60s" description:"Rate limit window"`
	MaxHeadlinesPerBatch  int           `long:"max-headlines-per-batch" env:"MAX_HEADLINES_PER_BATCH" default:"15" description:"Headlines requested per fetch"`
	MaxArticlesPerSection int           `long:"max-articles-per-section" env:"MAX_ARTICLES_PER_SECTION" default:"15" description:"Section capacity"`
	StepCooldown          time.Duration `long:"step-cooldown" env:"STEP_COOLDOWN" default:"60s" description:"Pause between creation and refresh steps"`
	IdleSleep             time.Duration `long:"idle-sleep" env:"IDLE_SLEEP" default:"30s" description:"Sleep between idle checks"`
	ErrorBackoff          time.Duration `long:"error-backoff" env:"ERROR_BACKOFF" default:"300s" description:"Backoff after an upstream quota error"`
	FailureSleep          time.Duration `long:"failure-sleep" env:"FAILURE_SLEEP" default:"60s" description:"Sleep after a transient upstream error"`
	InitialExpandCount    int           `long:"initial-expand-count" env:"INITIAL_EXPAND_COUNT" default:"3" description:"Headlines expanded per section during bootstrap"`
	InitialArticleTarget  int           `long:"initial-article-target" env:"INITIAL_ARTICLE_TARGET" default:"3" description:"Articles every section needs before bootstrap completes"`
	CreationBatches       []int         `long:"creation-batch" env:"CREATION_BATCHES" env-delim:"," default:"5" default:"2" description:"Expansion batch sizes of the creation steps"`
	RefreshBatch          int           `long:"refresh-batch" env:"REFRESH_BATCH" default:"2" description:"Headlines expanded per section on refresh"`
	RefreshInterval       time.Duration `long:"refresh-interval" env:"REFRESH_INTERVAL" default:"30m" description:"Automatic refresh interval"`
	StarvationTopUp       int           `long:"starvation-topup" env:"STARVATION_TOPUP" default:"5" description:"Headlines fetched when a queue runs dry"`

	// Reader search
	SearchQueueSize int `long:"search-queue-size" env:"SEARCH_QUEUE_SIZE" default:"20" description:"Searches allowed to wait for the worker"`
	SearchRetention int `long:"search-retention" env:"SEARCH_RETENTION" default:"200" description:"Answered searches kept for polling"`
	SearchSources   int `long:"search-sources" env:"SEARCH_SOURCES" default:"5" description:"News reports a search answer is based on"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Debunkd/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load parses command-line args (without the program name) and the
// environment.
func Load(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, ErrHelp
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		Port:                  raw.Port,
		BaseUrl:               raw.BaseUrl,
		APIAccessKey:          raw.APIAccessKey,
		TopicsFile:            raw.TopicsFile,
		ArchivePath:           raw.ArchivePath,
		GeminiAPIKey:          raw.GeminiAPIKey,
		GeminiModel:           raw.GeminiModel,
		GeminiEndpoint:        raw.GeminiEndpoint,
		NewsAPIKey:            raw.NewsAPIKey,
		NewsAPIEndpoint:       raw.NewsAPIEndpoint,
		RequestTimeout:        raw.RequestTimeout,
		SourceTextLimit:       raw.SourceTextLimit,
		RateLimitMaxCalls:     raw.RateLimitMaxCalls,
		RateLimitInterval:     raw.RateLimitInterval,
		MaxHeadlinesPerBatch:  raw.MaxHeadlinesPerBatch,
		MaxArticlesPerSection: raw.MaxArticlesPerSection,
		StepCooldown:          raw.StepCooldown,
		IdleSleep:             raw.IdleSleep,
		ErrorBackoff:          raw.ErrorBackoff,
		FailureSleep:          raw.FailureSleep,
		InitialExpandCount:    raw.InitialExpandCount,
		InitialArticleTarget:  raw.InitialArticleTarget,
		CreationBatches:       raw.CreationBatches,
		RefreshBatch:          raw.RefreshBatch,
		RefreshInterval:       raw.RefreshInterval,
		StarvationTopUp:       raw.StarvationTopUp,
		SearchQueueSize:       raw.SearchQueueSize,
		SearchRetention:       raw.SearchRetention,
		SearchSources:         raw.SearchSources,
		UserAgent:             raw.UserAgent,
		Timezone:              raw.Timezone,
		Debug:                 raw.Debug,
		Version:               GetVersion(),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		slog.Warn("Invalid timezone, using system default", "timezone", cfg.Timezone, "error", err)
	}

	return cfg, nil
}

func (c *Cfg) validate() error {
	positive := map[string]int{
		"rate-limit-max-calls":     c.RateLimitMaxCalls,
		"max-headlines-per-batch":  c.MaxHeadlinesPerBatch,
		"max-articles-per-section": c.MaxArticlesPerSection,
		"initial-expand-count":     c.InitialExpandCount,
		"initial-article-target":   c.InitialArticleTarget,
		"refresh-batch":            c.RefreshBatch,
		"starvation-topup":         c.StarvationTopUp,
		"search-queue-size":        c.SearchQueueSize,
		"search-retention":         c.SearchRetention,
		"search-sources":           c.SearchSources,
	}
	for name, value := range positive {
		if value <= 0 {
			return fmt.Errorf("invalid configuration: %s must be positive, got %d", name, value)
		}
	}

	if c.RateLimitInterval <= 0 {
		return fmt.Errorf("invalid configuration: rate-limit-interval must be positive")
	}
	if c.InitialArticleTarget > c.MaxArticlesPerSection {
		return fmt.Errorf("invalid configuration: initial-article-target %d exceeds max-articles-per-section %d",
			c.InitialArticleTarget, c.MaxArticlesPerSection)
	}
	for _, batch := range c.CreationBatches {
		if batch <= 0 {
			return fmt.Errorf("invalid configuration: creation batch sizes must be positive, got %d", batch)
		}
	}

	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return err
		}
		time.Local = loc
	}
	return nil
}
