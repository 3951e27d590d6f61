package engine

import (
	"github.com/dylhunn/dragontoothmg"
)

const fiftyMoveLimit = 100

// State captures the information we need to reason about repetitions and draws.
type State struct {
	Hash   uint64
	Rule50 int
}

// stateStack is the path from the root to the current node. The root is the only
// history a request carries, so any repetition inside the tree counts as a draw.
type stateStack struct {
	states []State
}

func (s *stateStack) reset(board *dragontoothmg.Board) {
	s.states = s.states[:0]
	s.push(board)
}

func (s *stateStack) push(board *dragontoothmg.Board) {
	s.states = append(s.states, State{
		Hash:   board.Hash(),
		Rule50: int(board.Halfmoveclock),
	})
}

func (s *stateStack) pop() {
	if len(s.states) == 0 {
		return
	}
	s.states = s.states[:len(s.states)-1]
}

func (s *stateStack) isDraw() bool {
	if len(s.states) == 0 {
		return false
	}
	curr := s.states[len(s.states)-1]
	if curr.Rule50 >= fiftyMoveLimit {
		return true
	}
	return s.repeated(curr)
}

// repeated scans back over positions with the same side to move since the last
// irreversible move.
func (s *stateStack) repeated(curr State) bool {
	start := Max(len(s.states)-1-curr.Rule50, 0)
	for i := len(s.states) - 3; i >= start; i -= 2 {
		if s.states[i].Hash == curr.Hash {
			return true
		}
	}
	return false
}
