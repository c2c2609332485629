package commission

import (
	"context"

	"github.com/steppingstone/commission-engine/canonical"
	"github.com/steppingstone/commission-engine/normalize"
)

// ConfigStore is the read/write seam for commission configuration:
// tier lists, objectives, crossings, and the normalization mappings.
// Reads return canonical.ErrNotFound (wrapped) when nothing is
// configured, so callers can distinguish "absent" from "zero".
type ConfigStore interface {
	// TierList returns the tier configuration for a rep and line.
	TierList(ctx context.Context, rep canonical.RepID, line canonical.ProductLine) (TierList, error)
	// SaveTierList validates and replaces a tier configuration.
	SaveTierList(ctx context.Context, list TierList) error

	// Objective returns the target for a rep, line, and period.
	Objective(ctx context.Context, rep canonical.RepID, line canonical.ProductLine, period canonical.Month) (Objective, error)
	// SaveObjective creates or replaces an objective.
	SaveObjective(ctx context.Context, obj Objective) error

	// Crossings returns the recorded crossings for a rep, line, year.
	Crossings(ctx context.Context, rep canonical.RepID, line canonical.ProductLine, year int) ([]Crossing, error)
	// SaveCrossing records a crossing if none exists for its key.
	// It reports whether a new record was written. Saving an already
	// recorded crossing is a no-op, never an error.
	SaveCrossing(ctx context.Context, c Crossing) (bool, error)

	// Services returns the service-to-product mapping snapshot.
	Services(ctx context.Context) (normalize.ServiceMap, error)
	// SaveService creates or replaces one service mapping.
	SaveService(ctx context.Context, m normalize.ServiceMapping) error

	// Reps returns the rep directory snapshot.
	Reps(ctx context.Context) (normalize.RepDirectory, error)
	// SaveRepMapping appends one rep mapping.
	SaveRepMapping(ctx context.Context, m normalize.RepMapping) error
}
