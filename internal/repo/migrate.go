package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

func (r *PostgresRepository) MigrateUp(migrationsDir string) error {
	files, err := migrationFiles(migrationsDir, "*.up.sql")
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}

	for _, file := range files {
		if err := r.execFile(file); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations applied successfully from %s", migrationsDir)
	return nil
}

// MigrateDown applies rollbacks newest first.
func (r *PostgresRepository) MigrateDown(migrationsDir string) error {
	files, err := migrationFiles(migrationsDir, "*.down.sql")
	if err != nil {
		return fmt.Errorf("failed to read rollback files: %w", err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))

	for _, file := range files {
		if err := r.execFile(file); err != nil {
			return fmt.Errorf("failed to rollback migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations rolled back successfully from %s", migrationsDir)
	return nil
}

func (r *PostgresRepository) execFile(file string) error {
	sqlBytes, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 4*r.timeout)
	defer cancel()
	_, err = r.db.Master.ExecContext(ctx, string(sqlBytes))
	return err
}

func migrationFiles(dir, pattern string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
