package api

import (
	"context"

	"github.com/lysyi3m/debunkd/app/content"
	"github.com/lysyi3m/debunkd/app/database"
	"github.com/lysyi3m/debunkd/app/ratelimit"
	"github.com/lysyi3m/debunkd/app/search"
	"github.com/lysyi3m/debunkd/app/topics"
	"github.com/lysyi3m/debunkd/app/worker"
)

type WorkerStateInterface interface {
	Snapshot() worker.Snapshot
	RequestRefresh()
	InitialComplete() bool
	Notify()
}

type RateWindowInterface interface {
	Len() int
	MaxCalls() int
}

type ArchiveInterface interface {
	GetRecentArticles(ctx context.Context, section string, limit int) ([]content.Article, error)
	GetArticleCount(ctx context.Context) (int, error)
}

type SearchQueueInterface interface {
	Submit(query string) (search.Job, error)
	Get(id string) (search.Job, error)
	Pending() int
}

var (
	_ WorkerStateInterface = (*worker.State)(nil)
	_ RateWindowInterface  = (*ratelimit.Limiter)(nil)
	_ ArchiveInterface     = (*database.ArticleRepository)(nil)
	_ SearchQueueInterface = (*search.Queue)(nil)
)

type Handler struct {
	sections  *content.Sections
	store     *content.Store
	topics    *topics.Set
	state     WorkerStateInterface
	limiter   RateWindowInterface
	archive   ArchiveInterface // nil when archiving is disabled
	searches  SearchQueueInterface
	generator *Generator
	version   string
}

type searchRequest struct {
	Query string `json:"query" binding:"required"`
}

type sectionInfo struct {
	Name           string      `json:"name"`
	Title          string      `json:"title"`
	Kind           topics.Kind `json:"kind"`
	Headlines      int         `json:"headlines"`
	Articles       int         `json:"articles"`
	MaxArticles    int         `json:"max_articles"`
	LastUpdateTime *string     `json:"last_update_time"`
}
