package tablebase

import (
	"testing"

	"github.com/endgamekit/tablebase/types"
)

func TestNormalizeSamePerspectiveIsIdentity(t *testing.T) {
	wdl, category := Normalize(types.WDLWin, types.CategoryWin, types.White, types.White)
	if wdl != types.WDLWin || category != types.CategoryWin {
		t.Fatalf("same-side normalize changed value: %d %s", wdl, category)
	}
}

func TestNormalizeOppositePerspectiveFlips(t *testing.T) {
	cases := []struct {
		wdl          types.WDL
		category     types.Category
		wantWDL      types.WDL
		wantCategory types.Category
	}{
		{types.WDLWin, types.CategoryWin, types.WDLLoss, types.CategoryLoss},
		{types.WDLCursedWin, types.CategoryCursedWin, types.WDLBlessedLoss, types.CategoryBlessedLoss},
		{types.WDLDraw, types.CategoryDraw, types.WDLDraw, types.CategoryDraw},
		{types.WDLLoss, types.CategoryLoss, types.WDLWin, types.CategoryWin},
	}

	for _, tc := range cases {
		wdl, category := Normalize(tc.wdl, tc.category, types.Black, types.White)
		if wdl != tc.wantWDL || category != tc.wantCategory {
			t.Errorf("Normalize(%d, %s) = %d, %s; want %d, %s",
				tc.wdl, tc.category, wdl, category, tc.wantWDL, tc.wantCategory)
		}
	}
}

func TestMovesFromOracleFlipsToMoverPerspective(t *testing.T) {
	dtm := 17
	result := &types.OracleResult{
		Moves: []types.OracleMove{
			// Oracle reports "loss" from the opponent's seat after the
			// move; for the mover that same move is a win.
			{UCI: "d1d7", SAN: "Qd7", Category: types.CategoryLoss, WDL: types.WDLLoss, DTM: &dtm},
			{UCI: "d1d2", SAN: "Qd2", Category: types.CategoryDraw, WDL: types.WDLDraw},
		},
	}

	moves := movesFromOracle(result)
	if len(moves) != 2 {
		t.Fatalf("got %d moves, want 2", len(moves))
	}
	if moves[0].Category != types.CategoryWin || moves[0].WDL != types.WDLWin {
		t.Errorf("winning move flipped to %s/%d", moves[0].Category, moves[0].WDL)
	}
	if moves[0].DTM == nil || *moves[0].DTM != 17 {
		t.Error("distance metrics must survive the perspective flip unchanged")
	}
	if moves[1].Category != types.CategoryDraw || moves[1].WDL != types.WDLDraw {
		t.Errorf("drawing move flipped to %s/%d", moves[1].Category, moves[1].WDL)
	}
}

func TestNormalizeMovesDoesNotAliasInput(t *testing.T) {
	moves := []types.Move{{UCI: "e1e2", Category: types.CategoryWin, WDL: types.WDLWin}}

	same := normalizeMoves(moves, types.White, types.White)
	same[0].Category = types.CategoryDraw
	if moves[0].Category != types.CategoryWin {
		t.Fatal("same-side normalize returned a slice aliasing the input")
	}

	flipped := normalizeMoves(moves, types.Black, types.White)
	if flipped[0].Category != types.CategoryLoss || flipped[0].WDL != types.WDLLoss {
		t.Fatalf("opposite-side normalize = %s/%d", flipped[0].Category, flipped[0].WDL)
	}
	if moves[0].Category != types.CategoryWin {
		t.Fatal("opposite-side normalize mutated the input")
	}
}
