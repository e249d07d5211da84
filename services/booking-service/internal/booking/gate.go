package booking

import (
	"context"
	"fmt"

	"github.com/physiobook/physiobook/services/booking-service/internal/model"
)

// Gate admits a patient holding a valid, unused access code. It never
// consumes the code; that happens in the workflow after the slot is claimed.
type Gate struct {
	codes CodeStore
}

func NewGate(codes CodeStore) *Gate {
	return &Gate{codes: codes}
}

func (g *Gate) Validate(ctx context.Context, code string) (model.AccessCode, error) {
	if !ValidCode(code) {
		return model.AccessCode{}, ErrInvalidCode
	}
	ac, ok, err := g.codes.FindUnused(ctx, code)
	if err != nil {
		return model.AccessCode{}, fmt.Errorf("%w: lookup access code: %w", ErrNetwork, err)
	}
	if !ok {
		return model.AccessCode{}, ErrInvalidCode
	}
	return ac, nil
}
