package tablebase

import (
	"github.com/endgamekit/tablebase/types"
)

// The oracle reports every value from the side to move at the queried
// position; per-move entries are reported from the side to move of the
// *resulting* position, i.e. the opponent of the mover. These helpers
// re-express values for whichever side is asking.

// Normalize converts a wdl/category pair from referenceSide's perspective
// into requestingSide's. Pure and total over the WDL domain; draw is a
// fixed point under negation.
func Normalize(wdl types.WDL, category types.Category, requestingSide, referenceSide types.Color) (types.WDL, types.Category) {
	if requestingSide == referenceSide {
		return wdl, category
	}
	return wdl.Negate(), category.Mirror()
}

// evaluationFromOracle keeps the oracle's own (side to move) perspective.
func evaluationFromOracle(result *types.OracleResult) types.Evaluation {
	return types.Evaluation{
		Category: result.Category,
		WDL:      result.WDL,
		DTZ:      result.DTZ,
		DTM:      result.DTM,
		Precise:  result.PreciseDTZ,
	}
}

func normalizeEvaluation(ev types.Evaluation, requestingSide, referenceSide types.Color) types.Evaluation {
	wdl, category := Normalize(ev.WDL, ev.Category, requestingSide, referenceSide)
	ev.WDL = wdl
	ev.Category = category
	return ev
}

// movesFromOracle flips each raw move entry from the resulting position's
// side to move to the mover's perspective.
func movesFromOracle(result *types.OracleResult) []types.Move {
	moves := make([]types.Move, 0, len(result.Moves))
	for _, raw := range result.Moves {
		moves = append(moves, types.Move{
			UCI:      raw.UCI,
			SAN:      raw.SAN,
			Category: raw.Category.Mirror(),
			WDL:      raw.WDL.Negate(),
			DTZ:      raw.DTZ,
			DTM:      raw.DTM,
			Zeroing:  raw.Zeroing,
		})
	}
	return moves
}

func normalizeMoves(moves []types.Move, requestingSide, moverSide types.Color) []types.Move {
	if requestingSide == moverSide {
		out := make([]types.Move, len(moves))
		copy(out, moves)
		return out
	}

	out := make([]types.Move, 0, len(moves))
	for _, m := range moves {
		wdl, category := Normalize(m.WDL, m.Category, requestingSide, moverSide)
		m.WDL = wdl
		m.Category = category
		out = append(out, m)
	}
	return out
}
