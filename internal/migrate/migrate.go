package migrate

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/srikanta2006/smart-parking/internal/db"
)

//go:embed *.sql
var files embed.FS

const migrationsTable = "smartpark_schema_migrations"

// Up applies every embedded *.sql file that has not been recorded yet, in
// lexical order. Each file and its bookkeeping row commit together.
func Up(ctx context.Context, d *db.DB) error {
	names, err := fs.Glob(files, "*.sql")
	if err != nil {
		return fmt.Errorf("list embedded migrations: %w", err)
	}
	sort.Strings(names)

	if err := d.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+migrationsTable+` (
	version TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return fmt.Errorf("ensure %s: %w", migrationsTable, err)
	}

	for _, name := range names {
		var applied bool
		if err := d.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM `+migrationsTable+` WHERE version=$1)`, name).Scan(&applied); err != nil {
			return fmt.Errorf("check %s: %w", name, err)
		}
		if applied {
			continue
		}

		body, err := files.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}

		err = d.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
			if err := tx.Exec(ctx, string(body)); err != nil {
				return err
			}
			return tx.Exec(ctx, `INSERT INTO `+migrationsTable+`(version) VALUES ($1)`, name)
		})
		if err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}

	return nil
}
