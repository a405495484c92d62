package app

import (
	"context"
	"os"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestInitRuntimeDependencies_Memory(t *testing.T) {
	cfg := DefaultConfig()

	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "memory-init"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = deps.closeFn() }()

	if deps.txManager == nil || deps.products == nil || deps.orders == nil || deps.users == nil {
		t.Fatalf("memory dependencies must be initialized: %+v", deps)
	}
	if deps.reviews == nil || deps.timeline == nil || deps.outboxRepo == nil || deps.idempotencyRepo == nil {
		t.Fatalf("memory dependencies must be initialized: %+v", deps)
	}
	if err := deps.storageProbe(context.Background()); err != nil {
		t.Fatalf("memory storage probe must pass, got %v", err)
	}
}

func TestInitRuntimeDependencies_PostgresWithoutDSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres

	_, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "postgres-init"))
	if err == nil || !strings.Contains(err.Error(), "dsn is required") {
		t.Fatalf("expected dsn error, got %v", err)
	}
}

func TestInitRuntimeDependencies_UnsupportedDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = "sqlite"

	_, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "invalid-init"))
	if err == nil || !strings.Contains(err.Error(), "unsupported storage driver") {
		t.Fatalf("expected unsupported driver error, got %v", err)
	}
}

func TestInitRuntimeDependencies_PostgresSuccess(t *testing.T) {
	dsn := postgresTestDSNCandidate()
	if dsn == "" {
		t.Skip("postgres dsn is not available")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn
	cfg.PostgresAutoMigrate = true

	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "postgres-init"))
	if err != nil {
		t.Skipf("postgres is not available for app integration test: %v", err)
	}
	defer func() { _ = deps.closeFn() }()

	if deps.products == nil || deps.outboxRepo == nil || deps.timeline == nil || deps.idempotencyRepo == nil {
		t.Fatalf("postgres dependencies must be initialized: %+v", deps)
	}
	if err := deps.storageProbe(context.Background()); err != nil {
		t.Fatalf("expected healthy postgres probe, got %v", err)
	}
}

func postgresTestDSNCandidate() string {
	if dsn := strings.TrimSpace(os.Getenv("BAKERY_POSTGRES_TEST_DSN")); dsn != "" {
		return dsn
	}
	return strings.TrimSpace(os.Getenv("DATABASE_URL"))
}
