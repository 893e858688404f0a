package position

import (
	"testing"

	"github.com/endgamekit/tablebase/types"
)

func TestCanonicalKeyDropsCounters(t *testing.T) {
	a, err := CanonicalKey("4k3/8/8/8/8/8/8/3QK3 w - - 0 1")
	if err != nil {
		t.Fatalf("CanonicalKey: %v", err)
	}
	b, err := CanonicalKey("4k3/8/8/8/8/8/8/3QK3 w - - 37 84")
	if err != nil {
		t.Fatalf("CanonicalKey: %v", err)
	}

	if a != b {
		t.Fatalf("counter-only variants keyed differently: %q vs %q", a, b)
	}
	if a != "4k3/8/8/8/8/8/8/3QK3 w - -" {
		t.Fatalf("key = %q", a)
	}
}

func TestCanonicalKeyAcceptsFourFieldInput(t *testing.T) {
	key, err := CanonicalKey("4k3/8/8/8/8/8/8/3QK3 w - -")
	if err != nil {
		t.Fatalf("CanonicalKey: %v", err)
	}
	if key != "4k3/8/8/8/8/8/8/3QK3 w - -" {
		t.Fatalf("key = %q", key)
	}
}

func TestCanonicalKeyDistinguishesSideToMove(t *testing.T) {
	white, err := CanonicalKey("4k3/8/8/8/8/8/8/3QK3 w - - 0 1")
	if err != nil {
		t.Fatalf("CanonicalKey: %v", err)
	}
	black, err := CanonicalKey("4k3/8/8/8/8/8/8/3QK3 b - - 0 1")
	if err != nil {
		t.Fatalf("CanonicalKey: %v", err)
	}
	if white == black {
		t.Fatal("side to move collapsed into one key")
	}
}

func TestCanonicalKeyClearsUnplayableEnPassant(t *testing.T) {
	// After 1.e4 the e3 square is recorded, but no black pawn can
	// capture there.
	key, err := CanonicalKey("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1")
	if err != nil {
		t.Fatalf("CanonicalKey: %v", err)
	}
	want := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq -"
	if key != want {
		t.Fatalf("key = %q, want %q", key, want)
	}
}

func TestCanonicalKeyKeepsPlayableEnPassant(t *testing.T) {
	// Black's d4 pawn can legally capture on e3, so the square matters.
	key, err := CanonicalKey("rnbqkbnr/ppp1pppp/8/8/3pP3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 2")
	if err != nil {
		t.Fatalf("CanonicalKey: %v", err)
	}
	want := "rnbqkbnr/ppp1pppp/8/8/3pP3/8/PPPP1PPP/RNBQKBNR b KQkq e3"
	if key != want {
		t.Fatalf("key = %q, want %q", key, want)
	}
}

func TestCanonicalKeyRejectsGarbage(t *testing.T) {
	cases := []string{
		"",
		"not a fen",
		"4k3/8/8/8/8/8/8 w - - 0 1",
		"4k3/8/8/8/8/8/8/3QK3 x - - 0 1",
	}

	for _, fen := range cases {
		if _, err := CanonicalKey(fen); !types.IsError(err, types.ErrPositionInvalid) {
			t.Errorf("CanonicalKey(%q) err = %v, want ErrPositionInvalid", fen, err)
		}
	}
}

func TestSideToMove(t *testing.T) {
	side, err := SideToMove("4k3/8/8/8/8/8/8/3QK3 w - -")
	if err != nil || side != types.White {
		t.Fatalf("SideToMove = %v, %v; want White", side, err)
	}

	side, err = SideToMove("4k3/8/8/8/8/8/8/3QK3 b - -")
	if err != nil || side != types.Black {
		t.Fatalf("SideToMove = %v, %v; want Black", side, err)
	}

	if _, err := SideToMove("nonsense"); err == nil {
		t.Fatal("SideToMove accepted a FEN without a side field")
	}
}
