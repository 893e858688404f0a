package tablebase

import (
	"sort"

	"github.com/endgamekit/tablebase/types"
)

// RankMoves orders candidate moves by descending desirability for the
// side whose perspective the moves carry. Winning moves come first,
// fastest conversion leading; among losing moves the one dragging the
// game out longest leads (best defensive resistance). DTM is the
// preferred distance metric, DTZ the fallback.
func RankMoves(moves []types.Move) []types.Move {
	ranked := make([]types.Move, len(moves))
	copy(ranked, moves)

	sort.SliceStable(ranked, func(i, j int) bool {
		return moveBefore(ranked[i], ranked[j])
	})

	return ranked
}

func moveBefore(a, b types.Move) bool {
	if a.WDL != b.WDL {
		return a.WDL > b.WDL
	}

	da, db, comparable := pairedDistances(a, b)
	if !comparable {
		// A known distance outranks an unknown one.
		_, aok := a.Distance()
		_, bok := b.Distance()
		return aok && !bok
	}

	switch {
	case a.WDL > 0:
		// Winning: shortest path to conversion first.
		return da < db
	case a.WDL < 0:
		// Losing: maximize the opponent's distance to conversion.
		return da > db
	default:
		return false
	}
}

// pairedDistances compares like with like: DTM against DTM when both
// sides have it, otherwise DTZ against DTZ.
func pairedDistances(a, b types.Move) (da, db int, ok bool) {
	if a.DTM != nil && b.DTM != nil {
		da, _ = a.Distance()
		db, _ = b.Distance()
		return da, db, true
	}

	da, aok := zeroingDistance(a)
	db, bok := zeroingDistance(b)
	if aok && bok {
		return da, db, true
	}
	return 0, 0, false
}

// zeroingDistance reads the DTZ metric through Distance's normalization.
func zeroingDistance(m types.Move) (int, bool) {
	m.DTM = nil
	return m.Distance()
}
