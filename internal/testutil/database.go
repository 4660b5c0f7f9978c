package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dimitrije/teamboard/internal/database"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Tables in truncation order. Keep in sync with the migrations.
var tables = []string{"refresh_tokens", "tasks", "team_members", "teams", "profiles"}

// TestDB is a migrated Postgres shared by every test in the package binary.
type TestDB struct {
	DB *database.DB
}

var (
	sharedOnce sync.Once
	shared     *TestDB
	sharedErr  error
)

// SetupTestDB returns the package's Postgres container with empty tables,
// starting it on first use. The container outlives the test and is reaped
// by testcontainers when the binary exits. Skipped with -short.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	sharedOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		shared, sharedErr = startPostgres(ctx)
	})
	if sharedErr != nil {
		t.Fatalf("test database unavailable: %v", sharedErr)
	}

	shared.Reset(t)
	return shared
}

func startPostgres(ctx context.Context) (*TestDB, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "board",
				"POSTGRES_PASSWORD": "board",
				"POSTGRES_DB":       "teamboard_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("start postgres: %w", err)
	}

	endpoint, err := container.PortEndpoint(ctx, "5432/tcp", "")
	if err != nil {
		return nil, fmt.Errorf("postgres endpoint: %w", err)
	}

	db, err := database.New(ctx, fmt.Sprintf("postgres://board:board@%s/teamboard_test?sslmode=disable", endpoint))
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &TestDB{DB: db}, nil
}

// Reset empties every table.
func (tdb *TestDB) Reset(t *testing.T) {
	t.Helper()
	stmt := "TRUNCATE TABLE " + strings.Join(tables, ", ") + " CASCADE"
	if _, err := tdb.DB.Pool.Exec(context.Background(), stmt); err != nil {
		t.Fatalf("reset test database: %v", err)
	}
}
