package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// RunMigrations executes every *.up.sql file in dir in lexical order.
// Statements are idempotent (IF NOT EXISTS) so reruns are safe.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, dir string, log zerolog.Logger) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("glob migration files: %w", err)
	}

	sort.Strings(files)

	for _, file := range files {
		log.Info().Str("file", file).Msg("running migration")
		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read migration file %s: %w", file, err)
		}

		if _, err := pool.Exec(ctx, string(content)); err != nil {
			if strings.Contains(err.Error(), "already exists") {
				log.Warn().Str("file", file).Err(err).Msg("migration already applied")
				continue
			}
			return fmt.Errorf("execute migration %s: %w", file, err)
		}
	}

	return nil
}
