package engine

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// SearchState is the live handle of one request. The router owns it and is the only
// writer of the cancel flag; the search only polls it.
type SearchState struct {
	RequestID string
	StartTime time.Time

	canceled atomic.Bool
	done     chan struct{}
	once     sync.Once
}

func NewSearchState(requestID string) *SearchState {
	return &SearchState{
		RequestID: requestID,
		StartTime: time.Now(),
		done:      make(chan struct{}),
	}
}

func (s *SearchState) Cancel() { s.canceled.Store(true) }

func (s *SearchState) Canceled() bool { return s.canceled.Load() }

func (s *SearchState) Elapsed() time.Duration { return time.Since(s.StartTime) }

// Finish marks the search goroutine as gone. Safe to call more than once.
func (s *SearchState) Finish() { s.once.Do(func() { close(s.done) }) }

// Done is closed once the goroutine that ran the search has returned.
func (s *SearchState) Done() <-chan struct{} { return s.done }

type stopReason int

const (
	notStopped stopReason = iota
	stopCanceled
	stopDeadline
)

func (r stopReason) String() string {
	switch r {
	case stopCanceled:
		return "canceled"
	case stopDeadline:
		return "timed_out"
	}
	return "running"
}

// slicer chunks the search into bounded slices. Every node calls tick; the clock is
// read every checkEvery nodes and once a slice is used up the search yields, then polls
// the cancel flag.
type slicer struct {
	state      *SearchState
	slice      time.Duration
	checkEvery uint64
	deadline   time.Time
	yield      func()

	sliceStart time.Time
	nodes      uint64
	slices     uint64
	stop       stopReason
}

func newSlicer(state *SearchState, opts Options, deadline time.Time) *slicer {
	yield := opts.Yield
	if yield == nil {
		yield = runtime.Gosched
	}
	return &slicer{
		state:      state,
		slice:      opts.Slice,
		checkEvery: opts.ClockCheckNodes,
		deadline:   deadline,
		yield:      yield,
		sliceStart: time.Now(),
	}
}

// tick returns true once the search has to unwind.
func (s *slicer) tick() bool {
	if s.stop != notStopped {
		return true
	}
	s.nodes++
	if s.nodes%s.checkEvery != 0 {
		return false
	}

	now := time.Now()
	if now.Sub(s.sliceStart) >= s.slice {
		s.yield()
		s.slices++
		s.sliceStart = time.Now()
		if s.state.Canceled() {
			s.stop = stopCanceled
			return true
		}
		now = s.sliceStart
	}
	if now.After(s.deadline) {
		s.stop = stopDeadline
		return true
	}
	return false
}

func (s *slicer) stopped() bool { return s.stop != notStopped }

// boundary polls cancellation at the top of an iteration.
func (s *slicer) boundary() bool {
	if s.state.Canceled() {
		s.stop = stopCanceled
	}
	return s.stopped()
}
