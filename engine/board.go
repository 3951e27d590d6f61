package engine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dylhunn/dragontoothmg"
	"github.com/samber/lo"
)

var promotionLetters = [7]string{
	dragontoothmg.Knight: "n",
	dragontoothmg.Bishop: "b",
	dragontoothmg.Rook:   "r",
	dragontoothmg.Queen:  "q",
}

// NormalizeFEN checks the shape of a FEN string and fills in missing move counters.
// The move generator trusts its input, so everything it would index blindly is checked here.
func NormalizeFEN(fen string) (string, error) {
	fields := strings.Fields(fen)
	switch len(fields) {
	case 4:
		fields = append(fields, "0", "1")
	case 6:
	default:
		return "", fmt.Errorf("%w: expected 6 fields, got %d", ErrInvalidFEN, len(fields))
	}

	ranks := strings.Split(fields[0], "/")
	if len(ranks) != 8 {
		return "", fmt.Errorf("%w: expected 8 ranks, got %d", ErrInvalidFEN, len(ranks))
	}
	kings := map[rune]int{}
	for i, rank := range ranks {
		width := 0
		for _, c := range rank {
			switch {
			case c >= '1' && c <= '8':
				width += int(c - '0')
			case strings.ContainsRune("pnbrqkPNBRQK", c):
				width++
				if c == 'k' || c == 'K' {
					kings[c]++
				}
				if (c == 'p' || c == 'P') && (i == 0 || i == 7) {
					return "", fmt.Errorf("%w: pawn on back rank", ErrIllegalPosition)
				}
			default:
				return "", fmt.Errorf("%w: bad piece %q", ErrInvalidFEN, c)
			}
		}
		if width != 8 {
			return "", fmt.Errorf("%w: rank %d has width %d", ErrInvalidFEN, 8-i, width)
		}
	}
	if kings['K'] != 1 || kings['k'] != 1 {
		return "", fmt.Errorf("%w: need exactly one king per side", ErrIllegalPosition)
	}

	if fields[1] != "w" && fields[1] != "b" {
		return "", fmt.Errorf("%w: side to move %q", ErrInvalidFEN, fields[1])
	}
	if fields[2] != "-" {
		if len(fields[2]) > 4 {
			return "", fmt.Errorf("%w: castling %q", ErrInvalidFEN, fields[2])
		}
		for _, c := range fields[2] {
			if !strings.ContainsRune("KQkq", c) {
				return "", fmt.Errorf("%w: castling %q", ErrInvalidFEN, fields[2])
			}
		}
	}
	if ep := fields[3]; ep != "-" {
		if len(ep) != 2 || ep[0] < 'a' || ep[0] > 'h' || (ep[1] != '3' && ep[1] != '6') {
			return "", fmt.Errorf("%w: en passant %q", ErrInvalidFEN, ep)
		}
	}
	half, err := strconv.Atoi(fields[4])
	if err != nil || half < 0 || half > 255 {
		return "", fmt.Errorf("%w: halfmove clock %q", ErrInvalidFEN, fields[4])
	}
	full, err := strconv.Atoi(fields[5])
	if err != nil || full < 1 || full > 65535 {
		return "", fmt.Errorf("%w: fullmove number %q", ErrInvalidFEN, fields[5])
	}
	return strings.Join(fields, " "), nil
}

// LoadPosition parses and validates a FEN. The returned board is owned by the caller.
func LoadPosition(fen string) (board dragontoothmg.Board, err error) {
	normalized, err := NormalizeFEN(fen)
	if err != nil {
		return board, err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidFEN, r)
		}
	}()
	board = dragontoothmg.ParseFen(normalized)

	// The side that just moved may not be left in check.
	flipped := board
	flipped.Wtomove = !flipped.Wtomove
	if flipped.OurKingInCheck() {
		return board, fmt.Errorf("%w: side not to move is in check", ErrIllegalPosition)
	}
	return board, nil
}

// TerminalState reports checkmate or stalemate for a position without legal moves.
func TerminalState(b *dragontoothmg.Board, legal []dragontoothmg.Move) Terminal {
	if len(legal) > 0 {
		return TerminalNone
	}
	if b.OurKingInCheck() {
		return TerminalCheckmate
	}
	return TerminalStalemate
}

func SquareName(sq uint8) string {
	return string([]byte{'a' + sq%8, '1' + sq/8})
}

// ToMove converts a generator move into its wire form.
func ToMove(m dragontoothmg.Move) Move {
	return Move{
		From:      SquareName(m.From()),
		To:        SquareName(m.To()),
		Promotion: promotionLetters[m.Promote()],
	}
}

// UCILine renders moves in long algebraic notation.
func UCILine(moves []dragontoothmg.Move) []string {
	return lo.Map(moves, func(m dragontoothmg.Move, _ int) string { return m.String() })
}

// pieceAt returns the piece type on sq for the given side, or Nothing.
func pieceAt(sq uint8, bbs *dragontoothmg.Bitboards) dragontoothmg.Piece {
	mask := uint64(1) << sq
	switch {
	case bbs.All&mask == 0:
		return dragontoothmg.Nothing
	case bbs.Pawns&mask != 0:
		return dragontoothmg.Pawn
	case bbs.Knights&mask != 0:
		return dragontoothmg.Knight
	case bbs.Bishops&mask != 0:
		return dragontoothmg.Bishop
	case bbs.Rooks&mask != 0:
		return dragontoothmg.Rook
	case bbs.Queens&mask != 0:
		return dragontoothmg.Queen
	case bbs.Kings&mask != 0:
		return dragontoothmg.King
	}
	return dragontoothmg.Nothing
}

func sides(b *dragontoothmg.Board) (us, them *dragontoothmg.Bitboards) {
	if b.Wtomove {
		return &b.White, &b.Black
	}
	return &b.Black, &b.White
}

// moveInfo classifies a move before it is applied.
// En passant shows up as a diagonal pawn move onto an empty square.
func moveInfo(b *dragontoothmg.Board, m dragontoothmg.Move) (mover, victim dragontoothmg.Piece) {
	us, them := sides(b)
	mover = pieceAt(m.From(), us)
	victim = pieceAt(m.To(), them)
	if victim == dragontoothmg.Nothing && mover == dragontoothmg.Pawn && m.From()%8 != m.To()%8 {
		victim = dragontoothmg.Pawn
	}
	return mover, victim
}

// Perft counts leaf nodes of the legal move tree to the given depth.
func Perft(b *dragontoothmg.Board, depth int) uint64 {
	if depth <= 0 {
		return 1
	}
	moves := b.GenerateLegalMoves()
	if depth == 1 {
		return uint64(len(moves))
	}
	var nodes uint64
	for _, m := range moves {
		undo := b.Apply(m)
		nodes += Perft(b, depth-1)
		undo()
	}
	return nodes
}

type DivideEntry struct {
	Move  string
	Nodes uint64
}

// Divide reports the perft count below every root move, sorted by move text.
func Divide(b *dragontoothmg.Board, depth int) []DivideEntry {
	entries := lo.Map(b.GenerateLegalMoves(), func(m dragontoothmg.Move, _ int) DivideEntry {
		undo := b.Apply(m)
		defer undo()
		return DivideEntry{Move: m.String(), Nodes: Perft(b, depth-1)}
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].Move < entries[j].Move })
	return entries
}
