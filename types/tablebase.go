package types

// Color identifies the side an evaluation is expressed for.
type Color uint8

const (
	White Color = iota
	Black
)

func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

func (c Color) String() string {
	if c == White {
		return "white"
	}
	return "black"
}

// ParseColor accepts the one-letter FEN form and the full name.
func ParseColor(s string) (Color, error) {
	switch s {
	case "w", "white":
		return White, nil
	case "b", "black":
		return Black, nil
	}
	return White, Errorf(ErrPositionInvalid, "unknown color %q", s)
}

// WDL is a win/draw/loss value in {-2..2}. +2 win, +1 cursed win (drawn
// under the fifty-move rule), 0 draw, -1 blessed loss, -2 loss.
type WDL int8

const (
	WDLLoss        WDL = -2
	WDLBlessedLoss WDL = -1
	WDLDraw        WDL = 0
	WDLCursedWin   WDL = 1
	WDLWin         WDL = 2
)

func (w WDL) Valid() bool {
	return w >= WDLLoss && w <= WDLWin
}

// Negate flips the value to the opposite side's perspective. Draw is a
// fixed point.
func (w WDL) Negate() WDL {
	return -w
}

// Category is the outcome classification reported by the oracle.
type Category string

const (
	CategoryWin         Category = "win"
	CategoryCursedWin   Category = "cursed-win"
	CategoryDraw        Category = "draw"
	CategoryBlessedLoss Category = "blessed-loss"
	CategoryLoss        Category = "loss"
	CategoryUnknown     Category = "unknown"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryWin, CategoryCursedWin, CategoryDraw, CategoryBlessedLoss, CategoryLoss, CategoryUnknown:
		return true
	}
	return false
}

// WDL returns the fixed category→wdl mapping. Unknown maps to draw-valued
// zero; callers check the category before trusting the number.
func (c Category) WDL() WDL {
	switch c {
	case CategoryWin:
		return WDLWin
	case CategoryCursedWin:
		return WDLCursedWin
	case CategoryBlessedLoss:
		return WDLBlessedLoss
	case CategoryLoss:
		return WDLLoss
	}
	return WDLDraw
}

// Mirror maps a category to the opposite side's perspective:
// win↔loss, cursed-win↔blessed-loss, draw and unknown are fixed points.
func (c Category) Mirror() Category {
	switch c {
	case CategoryWin:
		return CategoryLoss
	case CategoryLoss:
		return CategoryWin
	case CategoryCursedWin:
		return CategoryBlessedLoss
	case CategoryBlessedLoss:
		return CategoryCursedWin
	}
	return c
}

// CategoryForWDL is the inverse fixed mapping.
func CategoryForWDL(w WDL) Category {
	switch w {
	case WDLWin:
		return CategoryWin
	case WDLCursedWin:
		return CategoryCursedWin
	case WDLBlessedLoss:
		return CategoryBlessedLoss
	case WDLLoss:
		return CategoryLoss
	}
	return CategoryDraw
}

// Evaluation is a perspective-adjusted position evaluation.
// Invariant: Category == CategoryForWDL(WDL) whenever Category != unknown.
type Evaluation struct {
	Category Category `json:"category"`
	WDL      WDL      `json:"wdl"`
	DTZ      *int     `json:"dtz,omitempty"`
	DTM      *int     `json:"dtm,omitempty"`
	Precise  bool     `json:"precise"`
}

// Move is a candidate move with the evaluation of the resulting position
// from the mover's perspective.
type Move struct {
	UCI      string   `json:"uci"`
	SAN      string   `json:"san,omitempty"`
	Category Category `json:"category"`
	WDL      WDL      `json:"wdl"`
	DTZ      *int     `json:"dtz,omitempty"`
	DTM      *int     `json:"dtm,omitempty"`
	Zeroing  bool     `json:"zeroing"`
}

// Distance reports the preferred conversion metric: DTM when present,
// DTZ otherwise. ok is false when neither is known.
func (m Move) Distance() (d int, ok bool) {
	if m.DTM != nil {
		return abs(*m.DTM), true
	}
	if m.DTZ != nil {
		return abs(*m.DTZ), true
	}
	return 0, false
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
