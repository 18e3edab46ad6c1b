package migration

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

// Schema holds every table of the service.
const Schema = "reconciliation"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// gooseLogger routes goose output into zerolog.
type gooseLogger struct {
	logger zerolog.Logger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info().Msg(fmt.Sprintf(format, v...))
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Fatal().Msg(fmt.Sprintf(format, v...))
}

// RunMigrations applies pending migrations to the database at dbURL.
func RunMigrations(ctx context.Context, dbURL string, logger zerolog.Logger) error {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return errors.Wrap(err, "open database")
	}
	defer db.Close()
	return Up(ctx, db, logger)
}

// Up applies pending migrations on an open connection.
func Up(ctx context.Context, db *sql.DB, logger zerolog.Logger) error {
	logger = logger.With().Str("component", "migration").Logger()

	if _, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+Schema); err != nil {
		return errors.Wrapf(err, "create schema %s", Schema)
	}

	goose.SetBaseFS(embeddedMigrations)
	goose.SetTableName(Schema + ".goose_db_version")
	goose.SetLogger(gooseLogger{logger: logger})
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "set goose dialect")
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	logger.Info().Msg("migrations completed successfully")
	return nil
}
