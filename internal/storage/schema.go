package storage

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/job-boss/shared/database"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// JobsTable is the table every job lives in
const JobsTable = "jobs"

// EnsureSchema creates the jobs table when it does not exist yet.
// It reports whether a migration ran.
func EnsureSchema(ctx context.Context, client *database.Client, logger *slog.Logger) (bool, error) {
	exists, err := client.TableExists(ctx, JobsTable)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	logger.Info("Jobs table missing, running migration",
		slog.String("driver", client.Driver()),
	)

	ddl, err := migrationsFS.ReadFile("migrations/" + client.Driver() + ".sql")
	if err != nil {
		return false, fmt.Errorf("no migration for driver %s: %w", client.Driver(), err)
	}

	if _, err := client.GetDB().ExecContext(ctx, string(ddl)); err != nil {
		return false, fmt.Errorf("failed to create jobs table: %w", err)
	}

	logger.Info("Jobs table created")
	return true, nil
}
