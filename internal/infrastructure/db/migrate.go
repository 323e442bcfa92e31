package db

import (
	"context"
	"database/sql"
	_ "embed"

	"github.com/rs/zerolog/log"
)

//go:embed schema.sql
var schemaSQL string

// Migrate applies the idempotent schema. It is safe to run on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return classify(err, "migrate schema")
	}
	log.Info().Msg("postgres schema up to date")
	return nil
}
