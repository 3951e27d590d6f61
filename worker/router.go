package worker

import (
	"errors"
	"fmt"
	"sync"

	"chess-worker/engine"

	"github.com/dylhunn/dragontoothmg"
	"github.com/rs/zerolog"
	"lukechampine.com/frand"
)

// SearchError is the terminal error of a request.
type SearchError struct {
	RequestID string
	Message   string
	Err       error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("request %q: %s", e.RequestID, e.Message)
}

func (e *SearchError) Unwrap() error { return e.Err }

func newSearchError(requestID string, err error) *SearchError {
	return &SearchError{RequestID: requestID, Message: err.Error(), Err: err}
}

// Outcome carries exactly one of Result or Err.
type Outcome struct {
	Result *engine.SearchResult
	Err    *SearchError
}

// Router accepts one logical search at a time. A new request cancels the one in flight,
// and a canceled or superseded request never produces an outcome.
type Router struct {
	controller *engine.Controller
	logger     zerolog.Logger
	pick       func(n int) int

	mu     sync.Mutex
	active *engine.SearchState
}

func NewRouter(controller *engine.Controller, logger zerolog.Logger) *Router {
	return &Router{
		controller: controller,
		logger:     logger,
		pick:       frand.Intn,
	}
}

// Submit starts req and returns a channel that yields at most one outcome and is then
// closed. Input errors are reported at once and leave the active request untouched.
// progress, if set, is called from the search goroutine after every completed depth.
func (r *Router) Submit(req engine.SearchRequest, progress func(engine.Iteration)) <-chan Outcome {
	out := make(chan Outcome, 1)

	board, err := r.prepare(req)
	if err != nil {
		r.logger.Debug().Err(err).Str("request_id", req.RequestID).Msg("request-rejected")
		out <- Outcome{Err: newSearchError(req.RequestID, err)}
		close(out)
		return out
	}

	state := engine.NewSearchState(req.RequestID)
	r.mu.Lock()
	prev := r.active
	r.active = state
	r.mu.Unlock()
	if prev != nil {
		prev.Cancel()
		r.logger.Debug().
			Str("request_id", req.RequestID).
			Str("superseded", prev.RequestID).
			Msg("request-superseded")
	}

	go func() {
		defer close(out)
		defer state.Finish()

		// At most one search per worker touches the CPU.
		if prev != nil {
			<-prev.Done()
		}

		result, err := r.run(board, req, state, progress)
		if !r.release(state) {
			r.logger.Debug().Str("request_id", req.RequestID).Msg("result-discarded")
			return
		}
		if err != nil {
			out <- Outcome{Err: newSearchError(req.RequestID, err)}
			return
		}
		out <- Outcome{Result: &result}
	}()
	return out
}

// Cancel flags the active request if its id matches. Stale ids are ignored.
func (r *Router) Cancel(requestID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil || r.active.RequestID != requestID {
		return false
	}
	r.active.Cancel()
	return true
}

// Active returns the id of the request in flight, if any.
func (r *Router) Active() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return "", false
	}
	return r.active.RequestID, true
}

func (r *Router) prepare(req engine.SearchRequest) (dragontoothmg.Board, error) {
	if err := req.Validate(); err != nil {
		return dragontoothmg.Board{}, err
	}
	return engine.LoadPosition(req.FEN)
}

// release retires state and reports whether its outcome may still be emitted.
func (r *Router) release(state *engine.SearchState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != state {
		return false
	}
	r.active = nil
	return !state.Canceled()
}

// run works on its own copy of the board. Panics that escape the controller are turned
// into a fallback move.
func (r *Router) run(board dragontoothmg.Board, req engine.SearchRequest, state *engine.SearchState, progress func(engine.Iteration)) (result engine.SearchResult, err error) {
	logger := r.logger.With().Str("request_id", req.RequestID).Logger()
	root := board

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().Interface("panic", rec).Msg("search-panicked")
			result, err = r.fallback(root, nil, req, state, nil)
		}
	}()

	legal := board.GenerateLegalMoves()
	if terminal := engine.TerminalState(&board, legal); terminal != engine.TerminalNone {
		return engine.SearchResult{
			RequestID: req.RequestID,
			Elapsed:   state.Elapsed(),
			Complete:  true,
			Source:    engine.SourceTerminal,
			Terminal:  terminal,
		}, nil
	}

	screening := engine.Screen(&board, legal)
	if screening.Degraded {
		logger.Warn().Msg("tactical-screen-degraded")
	}
	safety := tacticalSafety(screening.Safety)

	if screening.HasImmediate {
		result = engine.SearchResult{
			RequestID:      req.RequestID,
			DepthReached:   1,
			Elapsed:        state.Elapsed(),
			Complete:       true,
			Source:         engine.SourceTactical,
			TacticalSafety: safety,
		}
		setMove(&result, screening.Immediate)
		if screening.MateIn1 {
			one := 1
			result.MateIn = &one
		}
		logger.Debug().Str("move", result.UCI).Bool("mate", screening.MateIn1).Msg("tactical-immediate")
		return result, nil
	}

	report := r.controller.Search(board, screening.Moves, req, state, progress)
	if report.Best == nil {
		if report.Err != nil {
			logger.Warn().Err(report.Err).Msg("no-complete-iteration")
		}
		return r.fallback(root, screening.Moves, req, state, safety)
	}

	best := report.Best
	result = engine.SearchResult{
		RequestID:      req.RequestID,
		DepthReached:   best.Depth,
		Elapsed:        state.Elapsed(),
		Nodes:          report.Nodes,
		Slices:         report.Slices,
		Complete:       best.Depth >= req.MaxDepth,
		Source:         engine.SourceSearch,
		PV:             engine.UCILine(best.PV),
		TacticalSafety: safety,
	}
	setMove(&result, best.Move)
	if mateIn, ok := best.MateIn(); ok {
		result.MateIn = &mateIn
	} else {
		cp := int(best.Score)
		result.EvaluationCp = &cp
	}
	logger.Debug().
		Str("move", result.UCI).
		Int("depth", result.DepthReached).
		Str("stop", report.Stop).
		Dur("elapsed", result.Elapsed).
		Msg("search-finished")
	return result, nil
}

var errNoLegalMove = errors.New("no legal move to fall back on")

// fallback picks uniformly among candidates, or among all legal moves when none are
// given.
func (r *Router) fallback(board dragontoothmg.Board, candidates []dragontoothmg.Move, req engine.SearchRequest, state *engine.SearchState, safety *engine.TacticalSafety) (result engine.SearchResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", errNoLegalMove, rec)
		}
	}()
	if len(candidates) == 0 {
		candidates = board.GenerateLegalMoves()
	}
	if len(candidates) == 0 {
		return result, errNoLegalMove
	}
	result = engine.SearchResult{
		RequestID:      req.RequestID,
		Elapsed:        state.Elapsed(),
		Source:         engine.SourceFallback,
		TacticalSafety: safety,
	}
	setMove(&result, candidates[r.pick(len(candidates))])
	r.logger.Info().Str("request_id", req.RequestID).Str("move", result.UCI).Msg("fallback-random-move")
	return result, nil
}

func setMove(result *engine.SearchResult, m dragontoothmg.Move) {
	wire := engine.ToMove(m)
	result.Move = &wire
	result.UCI = m.String()
}

func tacticalSafety(s engine.TacticalSafety) *engine.TacticalSafety {
	if s.RejectedMoveCount == 0 && len(s.Warnings) == 0 {
		return nil
	}
	if s.Reasons == nil {
		s.Reasons = []string{}
	}
	return &s
}
