// This file contains test helpers only available during testing.
package postgres

import (
	"context"
	"fmt"
)

// TruncateForTest removes all rows from the snapshot and lease tables.
// Defined in the postgres package (not the _test package) so it has access
// to the unexported db field.
func (s *SnapshotStore) TruncateForTest(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "TRUNCATE TABLE snapshots"); err != nil {
		return fmt.Errorf("postgres: failed to truncate snapshots: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "TRUNCATE TABLE stream_lease"); err != nil {
		return fmt.Errorf("postgres: failed to truncate stream_lease: %w", err)
	}
	return nil
}
