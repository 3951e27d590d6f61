package engine

import (
	"fmt"

	"github.com/dylhunn/dragontoothmg"
	"golang.org/x/exp/slices"
)

// Screening is the outcome of the one-ply tactical scan.
type Screening struct {
	// Immediate is set when the scan already decided the move.
	Immediate    dragontoothmg.Move
	HasImmediate bool
	// MateIn1 is true when Immediate delivers checkmate.
	MateIn1 bool
	// Moves is what the search should consider when there is no immediate move.
	Moves  []dragontoothmg.Move
	Safety TacticalSafety
	// Degraded is set when the scan panicked and fell back to the full move set.
	Degraded bool
}

// Screen runs the tactical pre-filter on a copy of b:
//  1. the first move that mates at once is returned immediately;
//  2. moves that allow the opponent a mate in one are rejected;
//  3. a single safe move is returned immediately, several are passed on, and if no move
//     is safe the full list is passed on unfiltered.
//
// Moves whose piece is left hanging are annotated but never rejected.
func Screen(root *dragontoothmg.Board, legal []dragontoothmg.Move) (sc Screening) {
	defer func() {
		if r := recover(); r != nil {
			sc = Screening{Moves: slices.Clone(legal), Degraded: true}
		}
	}()

	b := *root
	for _, m := range legal {
		undo := b.Apply(m)
		mate := isCheckmate(&b)
		undo()
		if mate {
			return Screening{Immediate: m, HasImmediate: true, MateIn1: true, Moves: []dragontoothmg.Move{m}}
		}
	}

	safe := make([]dragontoothmg.Move, 0, len(legal))
	for _, m := range legal {
		mover, victim := moveInfo(&b, m)
		undo := b.Apply(m)
		if reply, ok := mateReply(&b); ok {
			sc.Safety.Reasons = append(sc.Safety.Reasons,
				fmt.Sprintf("%s allows mate in 1 by %s", m.String(), reply.String()))
		} else {
			safe = append(safe, m)
			if warning, hanging := hangingWarning(&b, m, mover, victim); hanging {
				sc.Safety.Warnings = append(sc.Safety.Warnings, warning)
			}
		}
		undo()
	}
	sc.Safety.RejectedMoveCount = len(legal) - len(safe)

	switch {
	case len(safe) == 1:
		sc.Immediate = safe[0]
		sc.HasImmediate = true
		sc.Moves = safe
	case len(safe) > 1:
		sc.Moves = safe
	default:
		sc.Moves = slices.Clone(legal)
	}
	return sc
}

func isCheckmate(b *dragontoothmg.Board) bool {
	return b.OurKingInCheck() && len(b.GenerateLegalMoves()) == 0
}

// mateReply finds an opponent move that checkmates the side that just moved.
func mateReply(b *dragontoothmg.Board) (dragontoothmg.Move, bool) {
	for _, reply := range b.GenerateLegalMoves() {
		undo := b.Apply(reply)
		mate := isCheckmate(b)
		undo()
		if mate {
			return reply, true
		}
	}
	return 0, false
}
