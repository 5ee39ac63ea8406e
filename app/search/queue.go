// Package search holds reader search requests until the generation worker
// answers them. HTTP handlers only enqueue and poll; upstream calls happen
// on the worker.
package search

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/lysyi3m/debunkd/app/content"
)

const MaxQueryRunes = 300

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

var (
	ErrEmptyQuery   = errors.New("query is empty")
	ErrQueryTooLong = fmt.Errorf("query is longer than %d characters", MaxQueryRunes)
	ErrQueueFull    = errors.New("too many searches waiting")
	ErrNotFound     = errors.New("search not found")
)

type Job struct {
	ID        string             `json:"id"`
	Query     string             `json:"query"`
	Status    Status             `json:"status"`
	Result    *content.FactCheck `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Queue is a FIFO of pending jobs plus a bounded history of finished ones.
type Queue struct {
	jobs        map[string]*Job
	pending     []string
	finished    []string // oldest first
	maxPending  int
	maxFinished int
	mu          sync.Mutex

	now func() time.Time
}

func NewQueue(maxPending, maxFinished int) *Queue {
	return &Queue{
		jobs:        make(map[string]*Job),
		maxPending:  max(maxPending, 1),
		maxFinished: max(maxFinished, 1),
		now:         time.Now,
	}
}

// NormalizeQuery collapses whitespace and normalizes the query to NFC.
func NormalizeQuery(raw string) (string, error) {
	query := strings.Join(strings.Fields(norm.NFC.String(raw)), " ")
	if query == "" {
		return "", ErrEmptyQuery
	}
	if len([]rune(query)) > MaxQueryRunes {
		return "", ErrQueryTooLong
	}
	return query, nil
}

func (q *Queue) Submit(raw string) (Job, error) {
	query, err := NormalizeQuery(raw)
	if err != nil {
		return Job{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) >= q.maxPending {
		return Job{}, ErrQueueFull
	}

	now := q.now().UTC()
	job := &Job{
		ID:        uuid.NewString(),
		Query:     query,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	q.jobs[job.ID] = job
	q.pending = append(q.pending, job.ID)

	return *job, nil
}

func (q *Queue) Get(id string) (Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return *job, nil
}

// Next takes the oldest pending job and marks it running.
func (q *Queue) Next() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return Job{}, false
	}

	id := q.pending[0]
	q.pending = q.pending[1:]

	job := q.jobs[id]
	job.Status = StatusRunning
	job.UpdatedAt = q.now().UTC()

	return *job, true
}

func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) Complete(id string, result content.FactCheck) {
	q.finish(id, func(job *Job) {
		job.Status = StatusDone
		job.Result = &result
	})
}

func (q *Queue) Fail(id, reason string) {
	q.finish(id, func(job *Job) {
		job.Status = StatusFailed
		job.Error = reason
	})
}

func (q *Queue) finish(id string, apply func(job *Job)) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok || job.Status != StatusRunning {
		return
	}

	apply(job)
	job.UpdatedAt = q.now().UTC()
	q.finished = append(q.finished, id)

	for len(q.finished) > q.maxFinished {
		delete(q.jobs, q.finished[0])
		q.finished = q.finished[1:]
	}
}
