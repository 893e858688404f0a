// Package position derives canonical cache keys from FEN strings.
package position

import (
	"strings"

	"github.com/notnil/chess"

	"github.com/endgamekit/tablebase/types"
)

// KeyFunc maps a FEN to a canonical position key. Injected into the
// service so tests can substitute a trivial mapping.
type KeyFunc func(fen string) (string, error)

// CanonicalKey normalizes a FEN into a stable key for semantically
// identical positions: the move counters are dropped and the en-passant
// square is cleared unless an en-passant capture is actually legal, so
// positions that differ only in irrelevant bookkeeping share one key.
func CanonicalKey(fen string) (string, error) {
	pos, err := parse(fen)
	if err != nil {
		return "", err
	}

	fields := strings.Fields(pos.String())
	if len(fields) < 4 {
		return "", types.Errorf(types.ErrPositionInvalid, "unexpected FEN shape %q", pos.String())
	}

	if fields[3] != "-" && !enPassantPlayable(pos) {
		fields[3] = "-"
	}

	return strings.Join(fields[:4], " "), nil
}

// SideToMove reports whose turn it is in the given FEN or canonical key.
func SideToMove(fen string) (types.Color, error) {
	fields := strings.Fields(fen)
	if len(fields) < 2 {
		return types.White, types.Errorf(types.ErrPositionInvalid, "missing side-to-move field in %q", fen)
	}
	return types.ParseColor(fields[1])
}

func parse(fen string) (*chess.Position, error) {
	full := fen
	// A canonical 4-field key is still parseable once the counters are
	// restored.
	if len(strings.Fields(fen)) == 4 {
		full = fen + " 0 1"
	}

	fenOpt, err := chess.FEN(full)
	if err != nil {
		return nil, types.Errorf(types.ErrPositionInvalid, "%v", err)
	}

	game := chess.NewGame(fenOpt)
	return game.Position(), nil
}

func enPassantPlayable(pos *chess.Position) bool {
	for _, move := range pos.ValidMoves() {
		if move.HasTag(chess.EnPassant) {
			return true
		}
	}
	return false
}
