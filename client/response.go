package client

import (
	"github.com/go-playground/validator/v10"

	"github.com/endgamekit/tablebase/types"
	"github.com/endgamekit/tablebase/utils"
)

// Wire shapes for the oracle JSON body. Everything is validated here so
// no loosely-typed data crosses into the rest of the system.

type positionResponse struct {
	Category             string         `json:"category" validate:"required,oneof=win cursed-win draw blessed-loss loss unknown maybe-win maybe-loss"`
	WDL                  *int           `json:"wdl" validate:"omitempty,min=-2,max=2"`
	DTZ                  *int           `json:"dtz"`
	PreciseDTZ           *int           `json:"precise_dtz"`
	DTM                  *int           `json:"dtm"`
	Checkmate            bool           `json:"checkmate"`
	Stalemate            bool           `json:"stalemate"`
	InsufficientMaterial bool           `json:"insufficient_material"`
	Moves                []moveResponse `json:"moves" validate:"dive"`
}

type moveResponse struct {
	UCI      string `json:"uci" validate:"required"`
	SAN      string `json:"san"`
	Category string `json:"category" validate:"required,oneof=win cursed-win draw blessed-loss loss unknown maybe-win maybe-loss"`
	WDL      *int   `json:"wdl" validate:"omitempty,min=-2,max=2"`
	DTZ      *int   `json:"dtz"`
	PreciseDTZ *int `json:"precise_dtz"`
	DTM      *int   `json:"dtm"`
	Zeroing  bool   `json:"zeroing"`
}

var responseValidator = validator.New(validator.WithRequiredStructEnabled())

// parseOracleResponse decodes and structurally validates an oracle body.
// Any mismatch surfaces as ErrResponseMalformed, distinct from network
// failures: retrying will not fix a schema mismatch.
func parseOracleResponse(body []byte) (*types.OracleResult, error) {
	var payload positionResponse
	if err := utils.Unmarshal(body, &payload); err != nil {
		return nil, types.Errorf(types.ErrResponseMalformed, "decode: %v", err)
	}

	if err := responseValidator.Struct(&payload); err != nil {
		return nil, types.Errorf(types.ErrResponseMalformed, "structure: %v", err)
	}

	category, wdl, err := resolveOutcome(payload.Category, payload.WDL)
	if err != nil {
		return nil, err
	}

	result := &types.OracleResult{
		Category:   category,
		WDL:        wdl,
		DTZ:        pickDTZ(payload.DTZ, payload.PreciseDTZ),
		DTM:        payload.DTM,
		PreciseDTZ: payload.PreciseDTZ != nil,
		Checkmate:  payload.Checkmate,
		Stalemate:  payload.Stalemate,
	}

	if len(payload.Moves) > 0 {
		result.Moves = make([]types.OracleMove, 0, len(payload.Moves))
		for _, m := range payload.Moves {
			moveCategory, moveWDL, err := resolveOutcome(m.Category, m.WDL)
			if err != nil {
				return nil, err
			}
			result.Moves = append(result.Moves, types.OracleMove{
				UCI:      m.UCI,
				SAN:      m.SAN,
				Category: moveCategory,
				WDL:      moveWDL,
				DTZ:      pickDTZ(m.DTZ, m.PreciseDTZ),
				DTM:      m.DTM,
				Zeroing:  m.Zeroing,
			})
		}
	}

	return result, nil
}

// resolveOutcome reconciles the category enum with the optional wdl
// number. The oracle's maybe-win/maybe-loss refinements (sent when the
// halfmove clock leaves the fifty-move outcome uncertain) collapse to
// unknown. When both fields are present they must agree.
func resolveOutcome(rawCategory string, rawWDL *int) (types.Category, types.WDL, error) {
	if rawCategory == "maybe-win" || rawCategory == "maybe-loss" {
		return types.CategoryUnknown, types.WDLDraw, nil
	}

	category := types.Category(rawCategory)
	if !category.Valid() {
		return "", 0, types.Errorf(types.ErrResponseMalformed, "category %q", rawCategory)
	}

	if rawWDL == nil {
		return category, category.WDL(), nil
	}

	wdl := types.WDL(*rawWDL)
	if !wdl.Valid() {
		return "", 0, types.Errorf(types.ErrResponseMalformed, "wdl %d out of range", *rawWDL)
	}
	if category != types.CategoryUnknown && types.CategoryForWDL(wdl) != category {
		return "", 0, types.Errorf(types.ErrResponseMalformed, "category %q disagrees with wdl %d", rawCategory, *rawWDL)
	}

	return category, wdl, nil
}

func pickDTZ(dtz, preciseDTZ *int) *int {
	if preciseDTZ != nil {
		return preciseDTZ
	}
	return dtz
}
