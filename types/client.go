package types

import (
	"context"
)

// OracleClient performs one logical tablebase lookup, hiding retry
// mechanics. Implementations must not touch the cache.
type OracleClient interface {
	// Probe fetches the position evaluation without the move list.
	Probe(ctx context.Context, key string) (*OracleResult, error)
	// ProbeMoves fetches the evaluation plus up to moveLimit candidate
	// moves for the position.
	ProbeMoves(ctx context.Context, key string, moveLimit int) (*OracleResult, error)
	Close()
}

// OracleResult is the validated oracle payload. All values are reported
// from the side to move at the queried position; per-move entries are
// reported from the side to move of the resulting position.
type OracleResult struct {
	Category   Category
	WDL        WDL
	DTZ        *int
	DTM        *int
	PreciseDTZ bool
	Checkmate  bool
	Stalemate  bool
	Moves      []OracleMove
}

type OracleMove struct {
	UCI      string
	SAN      string
	Category Category
	WDL      WDL
	DTZ      *int
	DTM      *int
	Zeroing  bool
}
