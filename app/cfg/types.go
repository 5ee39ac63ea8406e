package cfg

import "time"

type Cfg struct {
	// Application configuration
	Port         string
	BaseUrl      string
	APIAccessKey string
	TopicsFile   string
	ArchivePath  string

	// Upstream services
	GeminiAPIKey    string
	GeminiModel     string
	GeminiEndpoint  string
	NewsAPIKey      string
	NewsAPIEndpoint string
	RequestTimeout  time.Duration
	SourceTextLimit int

	// Generation tuning
	RateLimitMaxCalls     int
	RateLimitInterval     time.Duration
	MaxHeadlinesPerBatch  int
	MaxArticlesPerSection int
	StepCooldown          time.Duration
	IdleSleep             time.Duration
	ErrorBackoff          time.Duration
	FailureSleep          time.Duration
	InitialExpandCount    int
	InitialArticleTarget  int
	CreationBatches       []int
	RefreshBatch          int
	RefreshInterval       time.Duration
	StarvationTopUp       int

	// Reader search
	SearchQueueSize int
	SearchRetention int
	SearchSources   int

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
