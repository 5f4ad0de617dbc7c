package store

import (
	"context"
	"fmt"
)

// FittingIDCounter names the counter shared by every fitting run.
const FittingIDCounter = "fc_fitting_id"

// NextSequence atomically increments the named counter and returns the new
// value. A missing counter starts at 1.
func (s *Store) NextSequence(ctx context.Context, name string) (int64, error) {
	ctx = ensureContext(ctx)
	var next int64
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			`INSERT INTO counters (id, c) VALUES (?, 1)
			 ON CONFLICT(id) DO UPDATE SET c = c + 1
			 RETURNING c`, name,
		).Scan(&next)
	})
	if err != nil {
		return 0, fmt.Errorf("increment counter %s: %w", name, err)
	}
	return next, nil
}
