package engine

import (
	"fmt"

	"github.com/dylhunn/dragontoothmg"
)

var SeePieceValue = [7]int{
	dragontoothmg.King:   5000,
	dragontoothmg.Pawn:   100,
	dragontoothmg.Knight: 300,
	dragontoothmg.Bishop: 300,
	dragontoothmg.Rook:   500,
	dragontoothmg.Queen:  900}

var pieceNames = [7]string{
	dragontoothmg.Pawn:   "pawn",
	dragontoothmg.Knight: "knight",
	dragontoothmg.Bishop: "bishop",
	dragontoothmg.Rook:   "rook",
	dragontoothmg.Queen:  "queen",
	dragontoothmg.King:   "king",
}

// hangingWarning looks at the position after our move m (opponent to move) and reports
// whether the piece that just moved can be won: taken by a cheaper piece, or taken with
// no recapture. captured is what m itself took.
func hangingWarning(b *dragontoothmg.Board, m dragontoothmg.Move, moved, captured dragontoothmg.Piece) (string, bool) {
	if moved == dragontoothmg.King {
		return "", false
	}
	if m.Promote() != dragontoothmg.Nothing {
		moved = m.Promote()
	}
	target := m.To()
	for _, reply := range b.GenerateLegalMoves() {
		if reply.To() != target {
			continue
		}
		attacker, _ := moveInfo(b, reply)
		loss := SeePieceValue[moved] - SeePieceValue[captured]
		if loss <= 0 {
			return "", false
		}
		if SeePieceValue[attacker] < SeePieceValue[moved] {
			return fmt.Sprintf("%s: %s on %s can be taken by a %s",
				m.String(), pieceNames[moved], SquareName(target), pieceNames[attacker]), true
		}
		if !defended(b, reply, target) {
			return fmt.Sprintf("%s: %s on %s is undefended",
				m.String(), pieceNames[moved], SquareName(target)), true
		}
	}
	return "", false
}

// defended applies the capture and checks for a legal recapture on the same square.
func defended(b *dragontoothmg.Board, capture dragontoothmg.Move, sq uint8) bool {
	undo := b.Apply(capture)
	defer undo()
	for _, m := range b.GenerateLegalMoves() {
		if m.To() == sq {
			return true
		}
	}
	return false
}
