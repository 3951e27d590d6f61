package engine

import (
	"github.com/dylhunn/dragontoothmg"
)

// KillerStruct remembers two quiet moves per ply that caused a beta cutoff.
type KillerStruct struct {
	KillerMoves [][2]dragontoothmg.Move
}

func newKillers(maxPly int) KillerStruct {
	return KillerStruct{KillerMoves: make([][2]dragontoothmg.Move, maxPly+1)}
}

func (k *KillerStruct) InsertKiller(move dragontoothmg.Move, ply int) {
	if ply >= len(k.KillerMoves) {
		return
	}
	if move != k.KillerMoves[ply][0] {
		k.KillerMoves[ply][1] = k.KillerMoves[ply][0]
		k.KillerMoves[ply][0] = move
	}
}

// rank returns 2 for the newest killer, 1 for the older one and 0 otherwise.
func (k *KillerStruct) rank(move dragontoothmg.Move, ply int) int32 {
	if ply >= len(k.KillerMoves) || move == 0 {
		return 0
	}
	switch move {
	case k.KillerMoves[ply][0]:
		return 2
	case k.KillerMoves[ply][1]:
		return 1
	}
	return 0
}
