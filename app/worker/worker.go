package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/debunkd/app/content"
	"github.com/lysyi3m/debunkd/app/gateway"
	"github.com/lysyi3m/debunkd/app/search"
	"github.com/lysyi3m/debunkd/app/topics"
)

type Limiter interface {
	Enforce(ctx context.Context) error
}

// Archive receives every article added to the section cache.
type Archive interface {
	SaveArticle(ctx context.Context, article content.Article) error
}

type Config struct {
	MaxHeadlinesPerBatch int
	InitialExpandCount   int
	InitialArticleTarget int
	CreationBatches      []int
	RefreshBatch         int
	StarvationTopUp      int
	SearchSources        int // news reports a search answer is based on

	StepCooldown    time.Duration
	IdleSleep       time.Duration
	ErrorBackoff    time.Duration
	FailureSleep    time.Duration
	RefreshInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxHeadlinesPerBatch: 15,
		InitialExpandCount:   3,
		InitialArticleTarget: 3,
		CreationBatches:      []int{5, 2},
		RefreshBatch:         2,
		StarvationTopUp:      5,
		SearchSources:        5,
		StepCooldown:         60 * time.Second,
		IdleSleep:            30 * time.Second,
		ErrorBackoff:         300 * time.Second,
		FailureSleep:         60 * time.Second,
		RefreshInterval:      30 * time.Minute,
	}
}

// Worker drives the INITIAL -> CREATION -> REFRESH <-> IDLE state machine
// that fills the section cache.
type Worker struct {
	cfg      Config
	state    *State
	sections *content.Sections
	topics   map[string]topics.Topic
	order    []string
	gateway  gateway.Gateway
	limiter  Limiter
	archive  Archive

	searches *search.Queue
	searcher gateway.Searcher

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration, wake <-chan struct{}) error

	// unit being performed, so a panic can still move the cursor past it
	inflight *cursor
	// search job being answered
	searching string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorker(cfg Config, topicSet *topics.Set, sections *content.Sections, gw gateway.Gateway, limiter Limiter, archive Archive) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	byName := make(map[string]topics.Topic, topicSet.Len())
	for _, topic := range topicSet.All() {
		byName[topic.Name] = topic
	}

	return &Worker{
		cfg:      cfg,
		state:    NewState(),
		sections: sections,
		topics:   byName,
		order:    topicSet.Names(),
		gateway:  gw,
		limiter:  limiter,
		archive:  archive,
		now:      time.Now,
		sleep:    sleepContext,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// EnableSearch lets the worker answer queued searches ahead of generation
// work.
func (w *Worker) EnableSearch(queue *search.Queue, searcher gateway.Searcher) {
	w.searches = queue
	w.searcher = searcher
}

func (w *Worker) State() *State {
	return w.state
}

func (w *Worker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.Run(w.ctx)
	}()
}

func (w *Worker) Stop() {
	w.cancel()
	w.wg.Wait()
}

// Run loops until ctx is cancelled. A panic inside an iteration is logged and
// treated as a transient failure.
func (w *Worker) Run(ctx context.Context) {
	slog.Info("Generation worker started", "sections", len(w.order))

	for {
		if err := w.safeStep(ctx); err != nil {
			if ctx.Err() != nil {
				slog.Info("Generation worker stopped", "phase", w.state.Snapshot().Phase.String())
				return
			}
			slog.Error("Worker iteration failed", "error", err)
			if err := w.sleep(ctx, w.cfg.FailureSleep, nil); err != nil {
				slog.Info("Generation worker stopped", "phase", w.state.Snapshot().Phase.String())
				return
			}
		}
	}
}

type cursor struct {
	unit  int
	units int
}

func (w *Worker) safeStep(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
			if c := w.inflight; c != nil {
				w.inflight = nil
				w.advance(c.unit, c.units, true, w.now())
			}
			if id := w.searching; id != "" {
				w.searching = ""
				w.searches.Fail(id, "search failed")
			}
		}
	}()
	return w.Step(ctx)
}

// Step runs a single iteration: at most one unit of upstream work, one phase
// transition, or one sleep. It only returns an error when ctx is done.
func (w *Worker) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	snap := w.state.Snapshot()
	now := w.now()

	if now.Before(snap.BackoffUntil) {
		remaining := snap.BackoffUntil.Sub(now)
		slog.Debug("Backing off after quota error", "remaining", remaining.String())
		return w.sleep(ctx, remaining, nil)
	}

	if w.searches != nil {
		if job, ok := w.searches.Next(); ok {
			return w.answer(ctx, job)
		}
	}

	if snap.Phase == PhaseIdle {
		return w.idle(ctx, snap, now)
	}

	if snap.Phase == PhaseCreation && w.sections.AllFull() {
		w.transition(PhaseRefresh, "all sections full")
		return nil
	}

	stages := w.plan(snap.Phase)

	for {
		if snap.Step >= len(stages) {
			return w.finishPhase(ctx, snap, now)
		}

		if snap.Unit == 0 && !snap.LastStepTime.IsZero() && snap.Phase != PhaseInitial {
			ready := snap.LastStepTime.Add(w.cfg.StepCooldown)
			if now.Before(ready) {
				slog.Debug("Waiting for step cooldown", "phase", snap.Phase.String(), "step", snap.Step, "remaining", ready.Sub(now).String())
				return w.sleep(ctx, ready.Sub(now), w.state.Wake())
			}
		}

		units := w.units(stages[snap.Step])
		if snap.Unit >= len(units) {
			w.state.completeStep(now)
			snap = w.state.Snapshot()
			continue
		}

		u := units[snap.Unit]
		if !w.needed(snap.Phase, u) {
			w.advance(snap.Unit, len(units), false, now)
			snap = w.state.Snapshot()
			continue
		}

		w.inflight = &cursor{unit: snap.Unit, units: len(units)}
		failure := w.perform(ctx, snap.Phase, u)
		w.inflight = nil
		if err := ctx.Err(); err != nil {
			return err
		}

		done := w.now()
		w.advance(snap.Unit, len(units), true, done)

		return w.handleFailure(ctx, u.String(), failure, done)
	}
}

func (w *Worker) advance(unitIndex, unitCount int, worked bool, now time.Time) {
	w.state.advanceUnit(worked)
	if unitIndex+1 >= unitCount {
		w.state.completeStep(now)
	}
}

func (w *Worker) idle(ctx context.Context, snap Snapshot, now time.Time) error {
	if snap.RefreshRequested {
		w.transition(PhaseRefresh, "refresh requested")
		return nil
	}

	if snap.LastRefreshAt.IsZero() || now.Sub(snap.LastRefreshAt) >= w.cfg.RefreshInterval {
		w.transition(PhaseRefresh, "refresh interval elapsed")
		return nil
	}

	// Sections below capacity are topped up one refresh batch per cooldown.
	if !w.sections.AllFull() && now.Sub(snap.LastRefreshAt) >= w.cfg.StepCooldown {
		w.transition(PhaseRefresh, "sections below capacity")
		return nil
	}

	return w.sleep(ctx, w.cfg.IdleSleep, w.state.Wake())
}

func (w *Worker) finishPhase(ctx context.Context, snap Snapshot, now time.Time) error {
	switch snap.Phase {
	case PhaseInitial:
		if w.sections.AllReached(w.cfg.InitialArticleTarget) {
			w.transition(PhaseCreation, "initial articles ready")
			return nil
		}
		slog.Warn("Initial phase incomplete, retrying", "cycle", snap.Cycle+1, "target", w.cfg.InitialArticleTarget)
		w.transition(PhaseInitial, "initial target not reached")
		return w.sleep(ctx, w.cfg.FailureSleep, nil)

	case PhaseCreation:
		w.transition(PhaseRefresh, "creation plan finished")

	case PhaseRefresh:
		w.state.markRefreshed(now)
		w.transition(PhaseIdle, "refresh finished")
	}

	return nil
}

func (w *Worker) transition(to Phase, reason string) {
	from, err := w.state.transition(to)
	if err != nil {
		slog.Error("Phase transition rejected", "from", from.String(), "to", to.String(), "error", err)
		return
	}
	slog.Info("Phase transition", "from", from.String(), "to", to.String(), "reason", reason)
}

// perform runs one unit without holding any lock. Work items are consumed
// whether or not the upstream call succeeds.
func (w *Worker) perform(ctx context.Context, phase Phase, u unit) error {
	topic, ok := w.topics[u.section]
	if !ok {
		return fmt.Errorf("no topic for section %s", u.section)
	}

	start := w.now()

	switch u.action {
	case actionFetch:
		added, err := w.fetch(ctx, topic, u.count)
		if err != nil {
			return err
		}
		slog.Info("Headlines queued", "phase", phase.String(), "section", u.section, "added", added, "queued", w.sections.HeadlineCount(u.section))

	case actionExpand:
		if err := w.expand(ctx, phase, topic); err != nil {
			return err
		}
	}

	slog.Debug("Unit completed", "unit", u.String(), "duration", w.now().Sub(start).String())
	return nil
}

func (w *Worker) fetch(ctx context.Context, topic topics.Topic, count int) (int, error) {
	if err := w.limiter.Enforce(ctx); err != nil {
		return 0, err
	}

	headlines, err := w.gateway.FetchHeadlines(ctx, topic, count)
	if err != nil {
		return 0, err
	}

	return w.sections.EnqueueHeadlines(topic.Name, headlines), nil
}

func (w *Worker) expand(ctx context.Context, phase Phase, topic topics.Topic) error {
	headline, ok := w.sections.DequeueHeadline(topic.Name)
	if !ok {
		slog.Debug("Headline queue empty, topping up", "section", topic.Name, "count", w.cfg.StarvationTopUp)

		added, err := w.fetch(ctx, topic, w.cfg.StarvationTopUp)
		if err != nil {
			return err
		}

		headline, ok = w.sections.DequeueHeadline(topic.Name)
		if !ok {
			slog.Warn("No headlines available for section", "section", topic.Name, "added", added)
			return nil
		}
	}

	if err := w.limiter.Enforce(ctx); err != nil {
		return err
	}

	article, err := w.gateway.GenerateArticle(ctx, headline, topic)
	if err != nil {
		return fmt.Errorf("headline %q: %w", headline, err)
	}

	result := w.sections.AppendArticle(topic.Name, article)
	slog.Info("Article generated", "phase", phase.String(), "section", topic.Name, "id", article.ID, "result", result.String(), "articles", w.sections.ArticleCount(topic.Name))

	if result == content.Appended && w.archive != nil {
		if err := w.archive.SaveArticle(ctx, article); err != nil {
			slog.Error("Failed to archive article", "id", article.ID, "error", err)
		}
	}

	return nil
}

// answer runs one queued search. It counts as a single unit of work even
// though it makes up to three rate limited calls.
func (w *Worker) answer(ctx context.Context, job search.Job) error {
	slog.Info("Answering search", "id", job.ID, "query", job.Query)

	w.searching = job.ID
	result, failure := w.search(ctx, job.Query)
	w.searching = ""

	if err := ctx.Err(); err != nil {
		w.searches.Fail(job.ID, "search cancelled")
		return err
	}

	if failure == nil {
		w.searches.Complete(job.ID, result)
		slog.Info("Search answered", "id", job.ID, "kind", result.Kind, "sources", len(result.Body.Sources))
		return nil
	}

	switch {
	case errors.Is(failure, gateway.ErrUnclearQuery), errors.Is(failure, gateway.ErrNoResults):
		w.searches.Fail(job.ID, failureReason(failure))
		slog.Info("Search not answerable", "id", job.ID, "error", failure)
		return nil
	case gateway.IsQuotaError(failure):
		w.searches.Fail(job.ID, "upstream quota exhausted, try again later")
	default:
		w.searches.Fail(job.ID, "search failed, try again later")
	}

	return w.handleFailure(ctx, "search("+job.ID+")", failure, w.now())
}

func (w *Worker) search(ctx context.Context, query string) (content.FactCheck, error) {
	if err := w.limiter.Enforce(ctx); err != nil {
		return content.FactCheck{}, err
	}

	class, err := w.searcher.ClassifyQuery(ctx, query)
	if err != nil {
		return content.FactCheck{}, err
	}

	var sources []gateway.NewsItem
	if class.Kind == gateway.QueryNews {
		if err := w.limiter.Enforce(ctx); err != nil {
			return content.FactCheck{}, err
		}

		sources, err = w.searcher.SearchNews(ctx, class.Keywords, w.cfg.SearchSources)
		if err != nil {
			return content.FactCheck{}, err
		}
		if len(sources) == 0 {
			return content.FactCheck{}, fmt.Errorf("%w: %q", gateway.ErrNoResults, class.Keywords)
		}
	}

	if err := w.limiter.Enforce(ctx); err != nil {
		return content.FactCheck{}, err
	}

	return w.searcher.FactCheck(ctx, query, class, sources)
}

func failureReason(err error) string {
	if errors.Is(err, gateway.ErrUnclearQuery) {
		return gateway.ErrUnclearQuery.Error()
	}
	return gateway.ErrNoResults.Error()
}

func (w *Worker) handleFailure(ctx context.Context, what string, failure error, now time.Time) error {
	if failure == nil {
		return nil
	}

	if gateway.IsQuotaError(failure) {
		until := now.Add(w.cfg.ErrorBackoff)
		w.state.setBackoff(until)
		slog.Warn("Upstream quota exhausted, backing off", "unit", what, "until", until.Format(time.RFC3339), "error", failure)
		return nil
	}

	slog.Error("Unit failed", "unit", what, "error", failure)
	return w.sleep(ctx, w.cfg.FailureSleep, nil)
}

func sleepContext(ctx context.Context, d time.Duration, wake <-chan struct{}) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	case <-wake:
		return nil
	}
}
