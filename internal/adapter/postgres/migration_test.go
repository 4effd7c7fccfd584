package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/Strob0t/CloudLaunch/internal/adapter/postgres"
)

// TestMigrationUpDown applies all migrations, rolls them all back, then
// re-applies them, so every Down section is exercised.
func TestMigrationUpDown(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}
	if os.Getenv("CLOUDLAUNCH_TEST_ROLLBACK") == "" {
		t.Skip("drops every table; set CLOUDLAUNCH_TEST_ROLLBACK=1 to run")
	}

	ctx := context.Background()
	const totalMigrations = 1

	if err := postgres.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("RunMigrations (up): %v", err)
	}
	if v, err := postgres.MigrationVersion(ctx, dsn); err != nil || v != totalMigrations {
		t.Fatalf("version after up = %d, %v; want %d", v, err, totalMigrations)
	}

	if err := postgres.RollbackMigrations(ctx, dsn, totalMigrations); err != nil {
		t.Fatalf("RollbackMigrations: %v", err)
	}
	if v, err := postgres.MigrationVersion(ctx, dsn); err != nil || v != 0 {
		t.Fatalf("version after rollback = %d, %v; want 0", v, err)
	}

	if err := postgres.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("RunMigrations (re-up): %v", err)
	}
	if v, err := postgres.MigrationVersion(ctx, dsn); err != nil || v != totalMigrations {
		t.Fatalf("version after re-up = %d, %v; want %d", v, err, totalMigrations)
	}
}
