package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/dylhunn/dragontoothmg"
	"github.com/rs/zerolog"
)

var errNoRootMoves = errors.New("no root moves to search")

// Stop reasons reported by the controller.
const (
	StopExhausted = "exhausted"
	StopCanceled  = "canceled"
	StopTimedOut  = "timed_out"
	StopRecovered = "recovered"
)

// Iteration is one completed depth of iterative deepening.
type Iteration struct {
	Depth      int
	Score      int32
	Move       dragontoothmg.Move
	PV         []dragontoothmg.Move
	Nodes      uint64
	Slices     uint64
	Elapsed    time.Duration
	Researched bool
}

// MateIn converts a mate score into moves to mate, negative when we are being mated.
func (it Iteration) MateIn() (int, bool) {
	switch {
	case it.Score > mateBound:
		return int(MateScore-it.Score+1) / 2, true
	case it.Score < -mateBound:
		return -int(MateScore+it.Score+1) / 2, true
	}
	return 0, false
}

// Report is what the controller hands back to the router.
type Report struct {
	// Best is the last complete iteration, nil when none finished.
	Best    *Iteration
	Stop    string
	Nodes   uint64
	Slices  uint64
	Elapsed time.Duration
	Stats   CutStatistics
	// Err is a recovered panic from the iteration that was abandoned.
	Err error
}

type PVLine struct {
	Moves []dragontoothmg.Move
}

// Clear the principal variation line.
func (pvLine *PVLine) Clear() {
	pvLine.Moves = pvLine.Moves[:0]
}

// Update the principal variation line with a new best move,
// and a new line of best play after the best move.
func (pvLine *PVLine) Update(move dragontoothmg.Move, newPVLine PVLine) {
	pvLine.Moves = append(pvLine.Moves[:0], move)
	pvLine.Moves = append(pvLine.Moves, newPVLine.Moves...)
}

func (pvLine *PVLine) Clone() []dragontoothmg.Move {
	return append([]dragontoothmg.Move(nil), pvLine.Moves...)
}

// Controller runs iterative deepening for one request at a time.
type Controller struct {
	opts Options
}

func NewController(opts Options) *Controller {
	return &Controller{opts: opts.withDefaults()}
}

func (c *Controller) Options() Options { return c.opts }

type searcher struct {
	opts    Options
	req     SearchRequest
	eval    Evaluator
	clock   *slicer
	killers KillerStruct
	history stateStack
	stats   CutStatistics
	qDepth  int
	logger  zerolog.Logger
}

// Search runs iterative deepening from minDepth to maxDepth:
//
//	idle -> depth_iteration -> (deepen | exhausted | canceled | timed_out)
//
// The root is passed by value and every attempt works on its own copy, so an abandoned
// iteration never leaves a half-applied position behind. Only complete iterations are
// kept; an interrupted one is dropped.
func (c *Controller) Search(root dragontoothmg.Board, rootMoves []dragontoothmg.Move, req SearchRequest, state *SearchState, progress func(Iteration)) (report Report) {
	th := newTimeHandler(req.TimeLimit, c.opts)
	s := &searcher{
		opts:    c.opts,
		req:     req,
		eval:    c.opts.Evaluator,
		clock:   newSlicer(state, c.opts, th.Deadline(state.StartTime)),
		killers: newKillers(c.opts.MaxPly),
		logger:  c.opts.Logger.With().Str("request_id", req.RequestID).Logger(),
	}
	if req.UseQuiescence {
		s.qDepth = req.QuiescenceDepth
		if s.qDepth == 0 {
			s.qDepth = c.opts.DefaultQuiescenceDepth
		}
	}

	defer func() {
		report.Nodes = s.clock.nodes
		report.Slices = s.clock.slices
		report.Elapsed = state.Elapsed()
		s.stats.Nodes = s.clock.nodes
		report.Stats = s.stats
		dumpCutStats(s.logger, &s.stats)
	}()

	report.Stop = StopExhausted
	for depth := req.minDepth(); depth <= req.MaxDepth; depth++ {
		if s.clock.boundary() {
			report.Stop = StopCanceled
			break
		}
		if th.ShouldStop(state.Elapsed()) {
			s.logger.Debug().
				Int("depth", depth).
				Dur("remaining", th.Remaining(state.Elapsed())).
				Dur("estimate", th.EstimateNext()).
				Msg("next-iteration-does-not-fit")
			report.Stop = StopTimedOut
			break
		}

		start := time.Now()
		it, err := s.iterate(root, rootMoves, depth, report.Best)
		if err != nil {
			s.stats.RecoveredIterations++
			s.logger.Warn().Err(err).Int("depth", depth).Msg("iteration-abandoned")
			report.Err = err
			report.Stop = StopRecovered
			break
		}
		if s.clock.stopped() {
			if s.clock.stop == stopCanceled {
				report.Stop = StopCanceled
			} else {
				report.Stop = StopTimedOut
			}
			break
		}

		it.Elapsed = time.Since(start)
		it.Nodes = s.clock.nodes
		it.Slices = s.clock.slices
		th.IterationDone(it.Elapsed)
		report.Best = &it

		s.logger.Debug().
			Int("depth", depth).
			Int32("score", it.Score).
			Str("move", it.Move.String()).
			Strs("pv", UCILine(it.PV)).
			Uint64("nodes", it.Nodes).
			Dur("took", it.Elapsed).
			Msg("iteration-complete")
		if progress != nil {
			progress(it)
		}
	}
	return report
}

// iterate searches one depth. A panic anywhere below is turned into an error so the
// controller can fall back to the previous depth.
func (s *searcher) iterate(root dragontoothmg.Board, rootMoves []dragontoothmg.Move, depth int, prev *Iteration) (it Iteration, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("search panic at depth %d: %v", depth, r)
		}
	}()
	if len(rootMoves) == 0 {
		return it, errNoRootMoves
	}

	alpha, beta := -Infinity, Infinity
	aspirating := s.req.UseAspiration && s.req.AspirationWindowCp > 0 && prev != nil
	if aspirating {
		window := int32(s.req.AspirationWindowCp)
		alpha = Max(prev.Score-window, -Infinity)
		beta = Min(prev.Score+window, Infinity)
	}

	score, pv := s.rootSearch(root, rootMoves, depth, alpha, beta)
	if s.clock.stopped() {
		return it, nil
	}

	// A failed aspiration attempt is never accepted: search the same depth again with
	// the full window.
	if aspirating && (score <= alpha || score >= beta) {
		s.stats.AspirationResearch++
		s.logger.Debug().
			Int("depth", depth).
			Int32("score", score).
			Int32("alpha", alpha).
			Int32("beta", beta).
			Msg("aspiration-failed")
		it.Researched = true
		score, pv = s.rootSearch(root, rootMoves, depth, -Infinity, Infinity)
		if s.clock.stopped() {
			return it, nil
		}
	}

	it.Depth = depth
	it.Score = score
	it.Move = pv[0]
	it.PV = pv
	return it, nil
}

func (s *searcher) rootSearch(root dragontoothmg.Board, rootMoves []dragontoothmg.Move, depth int, alpha, beta int32) (int32, []dragontoothmg.Move) {
	b := root
	s.history.reset(&b)

	list := s.applyBeam(s.scoreMovesList(&b, rootMoves), s.req.BeamWidth, 0)
	bestScore := -Infinity
	var pvLine, childPVLine PVLine

	for index := range list.moves {
		orderNextMove(index, &list)
		move := list.moves[index].move

		unapplyFunc := s.applyMoveWithState(&b, move)
		score := -s.alphabeta(&b, -beta, -alpha, depth-1, 1, &childPVLine)
		unapplyFunc()

		if s.clock.stopped() {
			return 0, nil
		}
		if score > bestScore || len(pvLine.Moves) == 0 {
			bestScore = score
			pvLine.Update(move, childPVLine)
		}
		childPVLine.Clear()
		if score > alpha {
			alpha = score
		}
		if alpha >= beta {
			break
		}
	}
	return bestScore, pvLine.Clone()
}

func (s *searcher) alphabeta(b *dragontoothmg.Board, alpha int32, beta int32, depth int, ply int, pvLine *PVLine) int32 {
	if s.clock.tick() {
		return 0
	}

	if s.history.isDraw() {
		s.stats.RepetitionDraws++
		return DrawScore
	}

	if depth <= 0 {
		if s.qDepth > 0 {
			return s.quiescence(b, alpha, beta, s.qDepth, ply, pvLine)
		}
		return s.leaf(b, ply)
	}

	moves := b.GenerateLegalMoves()
	if len(moves) == 0 {
		if b.OurKingInCheck() {
			return -MateScore + int32(ply)
		}
		return DrawScore
	}
	if ply >= s.opts.MaxPly {
		return s.evaluate(b)
	}

	list := s.applyBeam(s.scoreMovesList(b, moves), s.req.BeamWidth, ply)
	bestScore := -Infinity
	var childPVLine PVLine

	for index := range list.moves {
		orderNextMove(index, &list)
		entry := list.moves[index]

		unapplyFunc := s.applyMoveWithState(b, entry.move)
		score := -s.alphabeta(b, -beta, -alpha, depth-1, ply+1, &childPVLine)
		unapplyFunc()

		if s.clock.stopped() {
			return 0
		}
		if score > bestScore {
			bestScore = score
		}
		if score > alpha {
			alpha = score
			pvLine.Update(entry.move, childPVLine)
		}
		childPVLine.Clear()

		if alpha >= beta {
			s.stats.BetaCutoffs++
			if !entry.forcing {
				s.killers.InsertKiller(entry.move, ply)
			}
			break
		}
	}
	return bestScore
}

// quiescence extends forcing moves up to depth extra plies. It ignores the beam.
func (s *searcher) quiescence(b *dragontoothmg.Board, alpha int32, beta int32, depth int, ply int, pvLine *PVLine) int32 {
	if s.clock.tick() {
		return 0
	}
	s.stats.QuiescenceNodes++

	inCheck := b.OurKingInCheck()
	moves := b.GenerateLegalMoves()
	if len(moves) == 0 {
		if inCheck {
			return -MateScore + int32(ply)
		}
		return DrawScore
	}

	standpat := s.evaluate(b)
	if depth <= 0 || ply >= s.opts.MaxPly {
		return standpat
	}

	// Stand-pat pruning (not when in check)
	bestScore := -Infinity
	if !inCheck {
		if standpat >= beta {
			s.stats.QStandPatCutoffs++
			return standpat
		}
		if standpat > alpha {
			alpha = standpat
		}
		bestScore = standpat
	}

	list := s.scoreForcingMoves(b, moves, inCheck)
	var childPVLine PVLine

	for index := range list.moves {
		orderNextMove(index, &list)
		move := list.moves[index].move

		unapplyFunc := s.applyMoveWithState(b, move)
		score := -s.quiescence(b, -beta, -alpha, depth-1, ply+1, &childPVLine)
		unapplyFunc()

		if s.clock.stopped() {
			return 0
		}
		if score > bestScore {
			bestScore = score
		}
		if score >= beta {
			s.stats.QBetaCutoffs++
			return score
		}
		if score > alpha {
			alpha = score
			pvLine.Update(move, childPVLine)
		}
		childPVLine.Clear()
	}
	return bestScore
}

// leaf scores a horizon node without quiescence. Mate is still recognised.
func (s *searcher) leaf(b *dragontoothmg.Board, ply int) int32 {
	if b.OurKingInCheck() && len(b.GenerateLegalMoves()) == 0 {
		return -MateScore + int32(ply)
	}
	return s.evaluate(b)
}

// evaluate keeps evaluator output out of the mate range.
func (s *searcher) evaluate(b *dragontoothmg.Board) int32 {
	return Clamp(s.eval.Evaluate(b), -mateBound+1, mateBound-1)
}

func (s *searcher) applyMoveWithState(b *dragontoothmg.Board, move dragontoothmg.Move) func() {
	unapply := b.Apply(move)
	s.history.push(b)
	return func() {
		unapply()
		s.history.pop()
	}
}
