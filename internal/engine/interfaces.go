package engine

import (
	"context"

	"atlas/internal/guard"
	"atlas/types"
)

type executor interface {
	Execute(ctx context.Context, code *guard.Approved, data types.Series, tmpDir string) (types.SignalSeries, error)
}
