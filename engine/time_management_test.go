package engine

import (
	"testing"
	"time"
)

func TestTimeHandlerMarginIsCappedByLimit(t *testing.T) {
	opts := DefaultOptions()
	th := newTimeHandler(50*time.Millisecond, opts)
	if th.margin != 12500*time.Microsecond {
		t.Fatalf("expected a quarter of the limit as margin, got %v", th.margin)
	}
	th = newTimeHandler(10*time.Second, opts)
	if th.margin != opts.ReservedMargin {
		t.Fatalf("expected the reserved margin, got %v", th.margin)
	}
}

func TestTimeHandlerShouldStop(t *testing.T) {
	th := newTimeHandler(time.Second, DefaultOptions())
	if th.ShouldStop(990 * time.Millisecond) {
		t.Fatalf("the first iteration always starts")
	}

	th.IterationDone(10 * time.Millisecond)
	if th.EstimateNext() != 80*time.Millisecond {
		t.Fatalf("expected an 80ms estimate, got %v", th.EstimateNext())
	}
	if th.ShouldStop(100 * time.Millisecond) {
		t.Fatalf("900ms left should fit an 80ms estimate")
	}
	if !th.ShouldStop(850 * time.Millisecond) {
		t.Fatalf("150ms left is inside the 200ms margin")
	}

	th.IterationDone(100 * time.Millisecond)
	if th.ShouldStop(100 * time.Millisecond) {
		t.Fatalf("an 800ms estimate fits in 900ms")
	}
	if !th.ShouldStop(300 * time.Millisecond) {
		t.Fatalf("an 800ms estimate must not start with 700ms left")
	}
	if th.Remaining(2*time.Second) != 0 {
		t.Fatalf("remaining time is never negative")
	}
}

func TestSlicerStopsAtDeadline(t *testing.T) {
	opts := DefaultOptions()
	opts.ClockCheckNodes = 1
	s := newSlicer(NewSearchState("deadline"), opts, time.Now().Add(-time.Millisecond))
	if !s.tick() || s.stop != stopDeadline {
		t.Fatalf("expected the deadline to stop the slicer, got %v", s.stop)
	}
	if !s.tick() {
		t.Fatalf("a stopped slicer stays stopped")
	}
	if s.nodes != 1 {
		t.Fatalf("ticks after the stop must not count nodes, got %d", s.nodes)
	}
}

func TestSlicerChecksClockEveryNNodes(t *testing.T) {
	state := NewSearchState("interval")
	state.Cancel()
	opts := DefaultOptions()
	opts.ClockCheckNodes = 4
	opts.Slice = time.Nanosecond
	yields := 0
	opts.Yield = func() { yields++ }

	s := newSlicer(state, opts, time.Now().Add(time.Hour))
	for i := 0; i < 3; i++ {
		if s.tick() {
			t.Fatalf("stopped before the clock was read at node %d", i+1)
		}
	}
	if !s.tick() || s.stop != stopCanceled || yields != 1 {
		t.Fatalf("expected cancel after the first yield, got %v with %d yields", s.stop, yields)
	}
}

func TestSearchStateFinish(t *testing.T) {
	state := NewSearchState("finish")
	state.Finish()
	state.Finish()
	select {
	case <-state.Done():
	default:
		t.Fatalf("Done should be closed after Finish")
	}
}

func TestStateStackRepetition(t *testing.T) {
	b := mustLoad(t, "4k3/8/8/8/8/8/8/4K3 w - - 0 1")
	var stack stateStack
	stack.reset(&b)
	for _, uci := range []string{"e1d1", "e8d8", "d1e1", "d8e8"} {
		applyUCI(t, &b, uci)
		stack.push(&b)
		if uci != "d8e8" && stack.isDraw() {
			t.Fatalf("draw reported too early at %s", uci)
		}
	}
	if !stack.isDraw() {
		t.Fatalf("expected the repeated position to be a draw")
	}
}

func TestStateStackFiftyMoveRule(t *testing.T) {
	b := mustLoad(t, "4k3/8/8/8/8/8/8/4K3 w - - 100 80")
	var stack stateStack
	stack.reset(&b)
	if !stack.isDraw() {
		t.Fatalf("expected a fifty-move draw")
	}
}
