package worker

import (
	"fmt"
	"sync"
	"time"
)

type Phase int

const (
	PhaseInitial Phase = iota
	PhaseCreation
	PhaseRefresh
	PhaseIdle
)

func (p Phase) String() string {
	switch p {
	case PhaseInitial:
		return "initial"
	case PhaseCreation:
		return "creation"
	case PhaseRefresh:
		return "refresh"
	case PhaseIdle:
		return "idle"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Snapshot is a consistent copy of the worker state.
type Snapshot struct {
	Phase            Phase
	Step             int // stage index inside the phase plan
	Unit             int // unit index inside the stage
	Cycle            int // number of INITIAL retries
	LastStepTime     time.Time
	RefreshRequested bool
	BackoffUntil     time.Time
	InitialComplete  bool
	LastRefreshAt    time.Time
	Transitions      int
}

// State is the lock-guarded worker state shared with the HTTP readers.
// Its lock is never held together with the section cache lock.
type State struct {
	s          Snapshot
	stepWorked bool
	wake       chan struct{}
	mu         sync.Mutex
}

func NewState() *State {
	return &State{
		s:    Snapshot{Phase: PhaseInitial},
		wake: make(chan struct{}, 1),
	}
}

func (st *State) Snapshot() Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s
}

// RequestRefresh raises the refresh flag and wakes an idle worker.
func (st *State) RequestRefresh() {
	st.mu.Lock()
	st.s.RefreshRequested = true
	st.mu.Unlock()

	st.Notify()
}

// Notify wakes a sleeping worker without changing its state.
func (st *State) Notify() {
	select {
	case st.wake <- struct{}{}:
	default:
	}
}

// InitialComplete is true once the INITIAL phase has been left.
func (st *State) InitialComplete() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.InitialComplete
}

func (st *State) Wake() <-chan struct{} {
	return st.wake
}

var transitions = map[Phase][]Phase{
	PhaseInitial:  {PhaseInitial, PhaseCreation},
	PhaseCreation: {PhaseRefresh},
	PhaseRefresh:  {PhaseIdle},
	PhaseIdle:     {PhaseRefresh},
}

func allowed(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// transition is the only place Step and Unit go back to zero.
func (st *State) transition(to Phase) (Phase, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	from := st.s.Phase
	if !allowed(from, to) {
		return from, fmt.Errorf("invalid phase transition %s -> %s", from, to)
	}
	if to == PhaseInitial && st.s.InitialComplete {
		return from, fmt.Errorf("initial phase cannot be re-entered")
	}

	if from == PhaseInitial && to != PhaseInitial {
		st.s.InitialComplete = true
	}
	if from == PhaseInitial && to == PhaseInitial {
		st.s.Cycle++
	}
	if to == PhaseRefresh {
		st.s.RefreshRequested = false
	}

	st.s.Phase = to
	st.s.Step = 0
	st.s.Unit = 0
	st.s.LastStepTime = time.Time{}
	st.s.Transitions++
	st.stepWorked = false

	return from, nil
}

func (st *State) advanceUnit(worked bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.s.Unit++
	if worked {
		st.stepWorked = true
	}
}

// completeStep moves to the next stage. Only stages that performed work
// start a cooldown.
func (st *State) completeStep(now time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.s.Step++
	st.s.Unit = 0
	if st.stepWorked {
		st.s.LastStepTime = now
	}
	st.stepWorked = false
}

func (st *State) setBackoff(until time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if until.After(st.s.BackoffUntil) {
		st.s.BackoffUntil = until
	}
}

func (st *State) markRefreshed(now time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.LastRefreshAt = now
}
