package postgres

import (
	"context"
	_ "embed"
)

//go:embed schema.sql
var schema string

// Migrate creates the report tables when they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}
