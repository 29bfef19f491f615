package migrate

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/josepro66/CONFIGURATOR-sub000/internal/logger"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const dir = "migrations"

// Files lists the embedded migration scripts in apply order.
func Files() ([]string, error) {
	return fs.Glob(embedMigrations, dir+"/*.sql")
}

// Up applies pending schema migrations for the Postgres order store.
func Up(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return err
	}
	v, err := goose.GetDBVersionContext(ctx, db)
	if err == nil {
		logger.Info("schema migrated", "version", v)
	}
	return nil
}
