package engine

import (
	"testing"
	"time"

	"github.com/dylhunn/dragontoothmg"
)

type searchRun struct {
	report     Report
	iterations []Iteration
}

func runSearch(t *testing.T, fen string, req SearchRequest, opts Options) searchRun {
	t.Helper()
	b := mustLoad(t, fen)
	if req.RequestID == "" {
		req.RequestID = "test"
	}
	req.FEN = fen
	if err := req.Validate(); err != nil {
		t.Fatalf("invalid request: %v", err)
	}
	var run searchRun
	state := NewSearchState(req.RequestID)
	run.report = NewController(opts).Search(b, b.GenerateLegalMoves(), req, state, func(it Iteration) {
		run.iterations = append(run.iterations, it)
	})
	if want := mustLoad(t, fen); b.ToFen() != want.ToFen() {
		t.Fatalf("search modified the caller's board")
	}
	return run
}

func isLegal(t *testing.T, fen string, m dragontoothmg.Move) bool {
	t.Helper()
	b := mustLoad(t, fen)
	for _, legal := range b.GenerateLegalMoves() {
		if legal == m {
			return true
		}
	}
	return false
}

func TestSearchStartingPosition(t *testing.T) {
	run := runSearch(t, dragontoothmg.Startpos, SearchRequest{
		MinDepth:      2,
		MaxDepth:      4,
		TimeLimit:     time.Second,
		UseQuiescence: true,
	}, DefaultOptions())

	best := run.report.Best
	if best == nil {
		t.Fatalf("expected a completed iteration, stop=%s err=%v", run.report.Stop, run.report.Err)
	}
	if best.Depth < 2 || best.Depth > 4 {
		t.Fatalf("depth %d outside [2, 4]", best.Depth)
	}
	if !isLegal(t, dragontoothmg.Startpos, best.Move) {
		t.Fatalf("illegal best move %s", best.Move.String())
	}
	if run.iterations[0].Depth != 2 {
		t.Fatalf("first iteration should be minDepth, got %d", run.iterations[0].Depth)
	}
	for i := 1; i < len(run.iterations); i++ {
		if run.iterations[i].Depth != run.iterations[i-1].Depth+1 {
			t.Fatalf("iterations not monotonic: %d after %d", run.iterations[i].Depth, run.iterations[i-1].Depth)
		}
	}
	if last := run.iterations[len(run.iterations)-1]; last.Depth != best.Depth {
		t.Fatalf("last progress depth %d differs from best depth %d", last.Depth, best.Depth)
	}
}

func TestSearchRespectsTimeLimit(t *testing.T) {
	start := time.Now()
	run := runSearch(t, dragontoothmg.Startpos, SearchRequest{
		MaxDepth:      10,
		TimeLimit:     50 * time.Millisecond,
		UseQuiescence: true,
	}, DefaultOptions())
	took := time.Since(start)

	if run.report.Best == nil {
		t.Fatalf("expected at least depth 1 within 50ms")
	}
	if run.report.Best.Depth >= 10 {
		t.Fatalf("did not expect depth 10 in 50ms")
	}
	if run.report.Stop != StopTimedOut {
		t.Fatalf("expected %s, got %s", StopTimedOut, run.report.Stop)
	}
	if took > 500*time.Millisecond {
		t.Fatalf("search overran its budget: %v", took)
	}
}

func TestQuiescenceAvoidsDefendedPawn(t *testing.T) {
	const fen = "4k3/8/4p3/3p4/8/8/8/3QK3 w - - 0 1"

	plain := runSearch(t, fen, SearchRequest{MaxDepth: 1, TimeLimit: 5 * time.Second}, DefaultOptions())
	if plain.report.Best == nil || plain.report.Best.Move.String() != "d1d5" {
		t.Fatalf("expected the depth-1 search to grab d5, got %+v", plain.report.Best)
	}

	quiet := runSearch(t, fen, SearchRequest{
		MaxDepth:        1,
		TimeLimit:       5 * time.Second,
		UseQuiescence:   true,
		QuiescenceDepth: 4,
	}, DefaultOptions())
	if quiet.report.Best == nil {
		t.Fatalf("expected a result with quiescence")
	}
	if got := quiet.report.Best.Move.String(); got == "d1d5" {
		t.Fatalf("quiescence should see the recapture on d5")
	}
	if quiet.report.Stats.QuiescenceNodes == 0 {
		t.Fatalf("expected quiescence nodes to be counted")
	}
}

func TestAspirationMatchesFullWindow(t *testing.T) {
	const fen = "r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 2 3"
	base := SearchRequest{
		MaxDepth:        3,
		TimeLimit:       time.Minute,
		UseQuiescence:   true,
		QuiescenceDepth: 2,
		BeamWidth:       8,
	}
	full := runSearch(t, fen, base, DefaultOptions())

	narrow := base
	narrow.UseAspiration = true
	narrow.AspirationWindowCp = 1
	asp := runSearch(t, fen, narrow, DefaultOptions())

	if len(full.iterations) != 3 || len(asp.iterations) != 3 {
		t.Fatalf("expected 3 iterations each, got %d and %d", len(full.iterations), len(asp.iterations))
	}
	for i := range full.iterations {
		if full.iterations[i].Score != asp.iterations[i].Score {
			t.Fatalf("depth %d: aspiration score %d, full window %d",
				i+1, asp.iterations[i].Score, full.iterations[i].Score)
		}
	}
	if asp.iterations[0].Researched {
		t.Fatalf("the first iteration never aspirates")
	}
	if !asp.iterations[1].Researched && !asp.iterations[2].Researched {
		t.Fatalf("a 1cp window should fail and re-search at least once")
	}
	if asp.report.Stats.AspirationResearch == 0 || full.report.Stats.AspirationResearch != 0 {
		t.Fatalf("unexpected re-search counts: aspiration %d, full window %d",
			asp.report.Stats.AspirationResearch, full.report.Stats.AspirationResearch)
	}
}

func TestSearchCanceledBeforeStart(t *testing.T) {
	b := mustLoad(t, dragontoothmg.Startpos)
	state := NewSearchState("canceled")
	state.Cancel()
	report := NewController(DefaultOptions()).Search(b, b.GenerateLegalMoves(), SearchRequest{
		RequestID: "canceled",
		FEN:       dragontoothmg.Startpos,
		MaxDepth:  4,
		TimeLimit: time.Second,
	}, state, nil)
	if report.Best != nil || report.Stop != StopCanceled {
		t.Fatalf("expected a canceled report without result, got %+v", report)
	}
}

func TestCancelTakesEffectAtYield(t *testing.T) {
	b := mustLoad(t, dragontoothmg.Startpos)
	state := NewSearchState("yield")
	yields := 0
	opts := DefaultOptions()
	opts.Slice = time.Nanosecond
	opts.ClockCheckNodes = 1
	opts.Yield = func() {
		yields++
		state.Cancel()
	}

	report := NewController(opts).Search(b, b.GenerateLegalMoves(), SearchRequest{
		RequestID: "yield",
		FEN:       dragontoothmg.Startpos,
		MaxDepth:  6,
		TimeLimit: time.Minute,
	}, state, nil)
	if report.Stop != StopCanceled || report.Best != nil {
		t.Fatalf("expected cancel at the first yield, got stop=%s best=%+v", report.Stop, report.Best)
	}
	if yields != 1 || report.Slices != 1 {
		t.Fatalf("expected exactly one yield, got %d (slices %d)", yields, report.Slices)
	}
}

func TestSearchYieldsBetweenSlices(t *testing.T) {
	yields := 0
	opts := DefaultOptions()
	opts.Slice = time.Nanosecond
	opts.ClockCheckNodes = 1
	opts.Yield = func() { yields++ }

	run := runSearch(t, dragontoothmg.Startpos, SearchRequest{MaxDepth: 2, TimeLimit: time.Minute}, opts)
	if run.report.Best == nil || run.report.Best.Depth != 2 {
		t.Fatalf("expected depth 2, got %+v", run.report.Best)
	}
	if yields == 0 || uint64(yields) != run.report.Slices {
		t.Fatalf("expected slices (%d) to match yields (%d)", run.report.Slices, yields)
	}
	if run.report.Nodes < run.report.Slices {
		t.Fatalf("fewer nodes (%d) than slices (%d)", run.report.Nodes, run.report.Slices)
	}
}

func TestEvaluatorPanicKeepsLastCompleteIteration(t *testing.T) {
	root := mustLoad(t, dragontoothmg.Startpos)
	opts := DefaultOptions()
	// Depth 1 never evaluates a position with white to move other than the root.
	opts.Evaluator = EvaluatorFunc(func(b *dragontoothmg.Board) int32 {
		if b.Wtomove && b.Hash() != root.Hash() {
			panic("evaluator failure")
		}
		return Evaluation(b)
	})

	run := runSearch(t, dragontoothmg.Startpos, SearchRequest{MaxDepth: 3, TimeLimit: time.Minute}, opts)
	if run.report.Err == nil || run.report.Stop != StopRecovered {
		t.Fatalf("expected a recovered panic, got stop=%s err=%v", run.report.Stop, run.report.Err)
	}
	if run.report.Best == nil || run.report.Best.Depth != 1 {
		t.Fatalf("expected depth 1 to survive, got %+v", run.report.Best)
	}
}

func TestEvaluatorPanicWithoutIteration(t *testing.T) {
	opts := DefaultOptions()
	opts.Evaluator = EvaluatorFunc(func(*dragontoothmg.Board) int32 { panic("evaluator failure") })

	run := runSearch(t, dragontoothmg.Startpos, SearchRequest{MaxDepth: 3, TimeLimit: time.Minute}, opts)
	if run.report.Best != nil || run.report.Err == nil {
		t.Fatalf("expected no result and an error, got %+v", run.report)
	}
}

func TestSearchReportsBeingMated(t *testing.T) {
	run := runSearch(t, "7k/p7/6K1/8/8/8/8/1R6 b - - 0 1", SearchRequest{MaxDepth: 2, TimeLimit: time.Minute}, DefaultOptions())
	best := run.report.Best
	if best == nil {
		t.Fatalf("expected a result")
	}
	mateIn, ok := best.MateIn()
	if !ok || mateIn != -1 {
		t.Fatalf("expected to be mated in 1, got score %d (mateIn %d, %v)", best.Score, mateIn, ok)
	}
}

func TestSearchFindsMateInTwo(t *testing.T) {
	// Back rank: Rd8+ Rxd8 Rxd8#.
	const fen = "r5k1/5ppp/8/8/8/8/3R1PPP/3R2K1 w - - 0 1"
	run := runSearch(t, fen, SearchRequest{MaxDepth: 3, TimeLimit: time.Minute}, DefaultOptions())
	best := run.report.Best
	if best == nil {
		t.Fatalf("expected a result")
	}
	if mateIn, ok := best.MateIn(); !ok || mateIn != 2 {
		t.Fatalf("expected mate in 2, got score %d", best.Score)
	}
	if len(best.PV) != 3 {
		t.Fatalf("expected a three ply principal variation, got %v", UCILine(best.PV))
	}
}

func TestBeamPrunesMoves(t *testing.T) {
	run := runSearch(t, dragontoothmg.Startpos, SearchRequest{MaxDepth: 2, TimeLimit: time.Minute, BeamWidth: 3}, DefaultOptions())
	if run.report.Best == nil {
		t.Fatalf("expected a result")
	}
	if run.report.Stats.BeamPruned == 0 {
		t.Fatalf("expected the beam to prune moves")
	}
	full := runSearch(t, dragontoothmg.Startpos, SearchRequest{MaxDepth: 2, TimeLimit: time.Minute}, DefaultOptions())
	if run.report.Nodes >= full.report.Nodes {
		t.Fatalf("beam search visited %d nodes, full width %d", run.report.Nodes, full.report.Nodes)
	}
}

func TestIterationMateIn(t *testing.T) {
	cases := []struct {
		score  int32
		mateIn int
		ok     bool
	}{
		{MateScore - 1, 1, true},
		{MateScore - 3, 2, true},
		{-MateScore + 2, -1, true},
		{-MateScore + 4, -2, true},
		{150, 0, false},
	}
	for _, tc := range cases {
		got, ok := Iteration{Score: tc.score}.MateIn()
		if got != tc.mateIn || ok != tc.ok {
			t.Fatalf("MateIn(%d) = %d, %v; want %d, %v", tc.score, got, ok, tc.mateIn, tc.ok)
		}
	}
}
