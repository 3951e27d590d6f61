package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// =============================================================================
// SCORE CONSTANTS
// =============================================================================
const (
	Infinity  int32 = 32500
	MateScore int32 = 30000
	DrawScore int32 = 0

	// Scores beyond this bound encode a forced mate.
	mateBound = MateScore - 1000
)

var (
	ErrInvalidFEN      = errors.New("invalid fen")
	ErrMissingField    = errors.New("missing required field")
	ErrInvalidDepth    = errors.New("invalid depth")
	ErrIllegalPosition = errors.New("illegal position")
	ErrOutOfRange      = errors.New("value out of range")
)

// Source tells the caller where a result came from.
type Source string

const (
	SourceTactical Source = "tactical_immediate"
	SourceSearch   Source = "search"
	SourceFallback Source = "fallback_random"
	SourceTerminal Source = "terminal"
)

// Terminal is set on results for positions without a legal move.
type Terminal string

const (
	TerminalNone      Terminal = ""
	TerminalCheckmate Terminal = "checkmate"
	TerminalStalemate Terminal = "stalemate"
)

// SearchRequest is everything a single search needs. It is treated as a value and never
// mutated after submission.
type SearchRequest struct {
	RequestID          string
	FEN                string
	MinDepth           int
	MaxDepth           int
	TimeLimit          time.Duration
	UseQuiescence      bool
	QuiescenceDepth    int
	BeamWidth          int // 0 = full width
	UseAspiration      bool
	AspirationWindowCp int
	Debug              bool
}

// Validate checks the request shape. It does not parse the position.
func (r SearchRequest) Validate() error {
	switch {
	case r.RequestID == "":
		return fmt.Errorf("%w: requestId", ErrMissingField)
	case r.FEN == "":
		return fmt.Errorf("%w: fen", ErrMissingField)
	case r.MaxDepth <= 0:
		return fmt.Errorf("%w: maxDepth must be positive, got %d", ErrInvalidDepth, r.MaxDepth)
	case r.MinDepth < 0 || r.MinDepth > r.MaxDepth:
		return fmt.Errorf("%w: minDepth %d outside [0, %d]", ErrInvalidDepth, r.MinDepth, r.MaxDepth)
	case r.QuiescenceDepth < 0 || r.BeamWidth < 0 || r.AspirationWindowCp < 0:
		return fmt.Errorf("%w: negative search bound", ErrInvalidDepth)
	case r.TimeLimit < 0:
		return fmt.Errorf("%w: timeLimit %v is negative", ErrOutOfRange, r.TimeLimit)
	}
	return nil
}

func (r SearchRequest) minDepth() int {
	if r.MinDepth < 1 {
		return 1
	}
	return r.MinDepth
}

// Move is the wire form of a move: squares in algebraic notation and an optional
// lowercase promotion piece.
type Move struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

func (m Move) String() string {
	return m.From + m.To + m.Promotion
}

type TacticalSafety struct {
	RejectedMoveCount int      `json:"rejectedMoveCount"`
	Reasons           []string `json:"reasons"`
	Warnings          []string `json:"warnings,omitempty"`
}

// SearchResult is produced exactly once for every request that is not superseded.
type SearchResult struct {
	RequestID      string
	Move           *Move
	UCI            string
	DepthReached   int
	Elapsed        time.Duration
	Nodes          uint64
	Slices         uint64
	Complete       bool
	Source         Source
	EvaluationCp   *int
	MateIn         *int
	PV             []string
	TacticalSafety *TacticalSafety
	Terminal       Terminal
}

// Options holds the engine constants that are not part of a request.
type Options struct {
	// ReservedMargin is kept free at the end of the budget, capped at a quarter of the limit.
	ReservedMargin time.Duration
	// BranchingEstimate scales the last iteration time to predict the next one.
	BranchingEstimate int
	// Slice bounds how long the search runs between two yields.
	Slice time.Duration
	// ClockCheckNodes is how often, in nodes, the slicer reads the clock.
	ClockCheckNodes uint64
	MaxPly          int
	// DefaultQuiescenceDepth is used when a request enables quiescence with depth 0.
	DefaultQuiescenceDepth int

	Evaluator Evaluator
	// Yield suspends the search between slices. Defaults to runtime.Gosched.
	Yield  func()
	Logger zerolog.Logger
}

func DefaultOptions() Options {
	return Options{
		ReservedMargin:         200 * time.Millisecond,
		BranchingEstimate:      8,
		Slice:                  16 * time.Millisecond,
		ClockCheckNodes:        64,
		MaxPly:                 64,
		DefaultQuiescenceDepth: 6,
		Evaluator:              DefaultEvaluator(),
		Logger:                 zerolog.Nop(),
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.ReservedMargin < 0 {
		o.ReservedMargin = 0
	}
	if o.BranchingEstimate <= 0 {
		o.BranchingEstimate = def.BranchingEstimate
	}
	if o.Slice <= 0 {
		o.Slice = def.Slice
	}
	if o.ClockCheckNodes == 0 {
		o.ClockCheckNodes = def.ClockCheckNodes
	}
	if o.MaxPly <= 0 {
		o.MaxPly = def.MaxPly
	}
	if o.DefaultQuiescenceDepth <= 0 {
		o.DefaultQuiescenceDepth = def.DefaultQuiescenceDepth
	}
	if o.Evaluator == nil {
		o.Evaluator = def.Evaluator
	}
	return o
}
