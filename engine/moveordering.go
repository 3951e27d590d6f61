package engine

import (
	"sort"

	"github.com/dylhunn/dragontoothmg"
)

type move struct {
	move     dragontoothmg.Move
	score    int32
	victim   dragontoothmg.Piece
	forcing  bool
	givesChk bool
}

type moveList struct {
	moves []move
}

// Most Valuable Victim - Least Valuable Aggressor; used to score & sort captures
var mvvLva [7][7]int32 = [7][7]int32{
	{0, 0, 0, 0, 0, 0, 0},
	{0, 14, 13, 12, 11, 10, 0}, // victim Pawn
	{0, 24, 23, 22, 21, 20, 0}, // victim Knight
	{0, 34, 33, 32, 31, 30, 0}, // victim Bishop
	{0, 44, 43, 42, 41, 40, 0}, // victim Rook
	{0, 54, 53, 52, 51, 50, 0}, // victim Queen
	{0, 0, 0, 0, 0, 0, 0},      // victim King
}

// Move ordering offsets.
//   - Promotions first, then captures by MVV-LVA, then checks.
//   - Quiet moves are ranked by how much they improve the static evaluation, clamped so
//     they never reach the check band.
//   - Killers only re-order moves that already survived the beam cut.
const (
	promotionOffset int32 = 40000
	captureOffset   int32 = 30000
	checkOffset     int32 = 20000
	killerOffset    int32 = 10000
	quietBound      int32 = 5000
)

// orderNextMove swaps the best remaining move into currIndex.
func orderNextMove(currIndex int, moves *moveList) {
	bestIndex := currIndex
	bestScore := moves.moves[bestIndex].score

	for index := bestIndex + 1; index < len(moves.moves); index++ {
		if moves.moves[index].score > bestScore {
			bestIndex = index
			bestScore = moves.moves[index].score
		}
	}

	moves.moves[currIndex], moves.moves[bestIndex] = moves.moves[bestIndex], moves.moves[currIndex]
}

// scoreMovesList ranks every move of the position. The ranking depends only on the
// position, so the same node always keeps the same beam.
func (s *searcher) scoreMovesList(b *dragontoothmg.Board, moves []dragontoothmg.Move) (movesList moveList) {
	before := s.evaluate(b)
	movesList.moves = make([]move, len(moves))
	for i, m := range moves {
		mover, victim := moveInfo(b, m)
		promote := m.Promote()

		undo := b.Apply(m)
		givesCheck := b.OurKingInCheck()
		var quiet int32
		if promote == dragontoothmg.Nothing && victim == dragontoothmg.Nothing && !givesCheck {
			quiet = Clamp(-s.evaluate(b)-before, -quietBound, quietBound)
		}
		undo()

		var score int32
		switch {
		case promote != dragontoothmg.Nothing:
			score = promotionOffset + pieceValueMG[promote] + mvvLva[victim][dragontoothmg.Pawn]
		case victim != dragontoothmg.Nothing:
			score = captureOffset + mvvLva[victim][mover]
		case givesCheck:
			score = checkOffset
		default:
			score = quiet
		}
		movesList.moves[i] = move{
			move:     m,
			score:    score,
			victim:   victim,
			forcing:  promote != dragontoothmg.Nothing || victim != dragontoothmg.Nothing || givesCheck,
			givesChk: givesCheck,
		}
	}
	return movesList
}

// applyBeam keeps the best width moves (0 keeps all) and then lifts killers inside
// what is left.
func (s *searcher) applyBeam(list moveList, width int, ply int) moveList {
	if width > 0 && len(list.moves) > width {
		sort.SliceStable(list.moves, func(i, j int) bool {
			return list.moves[i].score > list.moves[j].score
		})
		s.stats.BeamPruned += uint64(len(list.moves) - width)
		list.moves = list.moves[:width]
	}
	for i := range list.moves {
		if list.moves[i].forcing {
			continue
		}
		if rank := s.killers.rank(list.moves[i].move, ply); rank > 0 {
			list.moves[i].score = killerOffset + rank
		}
	}
	return list
}

// scoreForcingMoves keeps the moves quiescence looks at: captures, promotions and
// checks, or every evasion when in check.
func (s *searcher) scoreForcingMoves(b *dragontoothmg.Board, moves []dragontoothmg.Move, inCheck bool) moveList {
	list := s.scoreMovesList(b, moves)
	if inCheck {
		return list
	}
	kept := list.moves[:0]
	for _, m := range list.moves {
		if m.forcing {
			kept = append(kept, m)
		}
	}
	list.moves = kept
	return list
}
