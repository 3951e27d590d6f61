package engine

import (
	"time"
)

// TimeHandler decides at every iteration boundary whether another depth fits in the budget.
type TimeHandler struct {
	limit             time.Duration
	margin            time.Duration
	branchingEstimate int64
	lastIteration     time.Duration
	iterations        int
}

func newTimeHandler(limit time.Duration, opts Options) TimeHandler {
	margin := opts.ReservedMargin
	if quarter := limit / 4; margin > quarter {
		margin = quarter
	}
	return TimeHandler{
		limit:             limit,
		margin:            margin,
		branchingEstimate: int64(opts.BranchingEstimate),
	}
}

// Remaining is the unspent part of the budget, never negative.
func (th *TimeHandler) Remaining(elapsed time.Duration) time.Duration {
	return Max(th.limit-elapsed, 0)
}

// IterationDone records how long the last completed depth took.
func (th *TimeHandler) IterationDone(took time.Duration) {
	th.lastIteration = took
	th.iterations++
}

// EstimateNext predicts the next iteration from the last one. It is a rough
// exponential guess and does not adapt across searches.
func (th *TimeHandler) EstimateNext() time.Duration {
	return th.lastIteration * time.Duration(th.branchingEstimate)
}

// ShouldStop reports whether the next iteration must not start. The first iteration
// always starts.
func (th *TimeHandler) ShouldStop(elapsed time.Duration) bool {
	if th.iterations == 0 {
		return false
	}
	remaining := th.Remaining(elapsed)
	if remaining < th.margin {
		return true
	}
	return th.EstimateNext() > remaining
}

// Deadline is the hard limit checked at yield points.
func (th *TimeHandler) Deadline(start time.Time) time.Time {
	return start.Add(th.limit)
}
