package database

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/omriShneor/calsync/internal/testutil"
)

var (
	testDB          *DB
	testDatabaseURL string
)

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()

	// Start PostgreSQL container once for all tests
	pg, err := testutil.StartPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Skipping database integration tests: %v\n", err)
		os.Exit(m.Run())
	}
	testDatabaseURL = pg.URL

	testDB, err = New(ctx, testDatabaseURL, zap.NewNop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to test database: %v\n", err)
		_ = pg.Terminate(ctx)
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close()
	if err := pg.Terminate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to terminate postgres container: %v\n", err)
	}
	os.Exit(code)
}

// setupTestDB returns the shared DB and truncates all tables after the test
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	if testing.Short() || testDB == nil {
		t.Skip("Skipping integration test: postgres not available")
	}

	t.Cleanup(func() {
		_, err := testDB.ExecContext(context.Background(), "TRUNCATE users, google_tokens, refresh_tokens, events RESTART IDENTITY CASCADE")
		if err != nil {
			t.Logf("Failed to truncate tables: %v", err)
		}
	})

	return testDB
}

var testUserCounter atomic.Int64

// createTestUser inserts a unique user for the test
func createTestUser(t *testing.T, db *DB) *User {
	t.Helper()
	n := testUserCounter.Add(1)

	user, err := db.UpsertGoogleUser(context.Background(),
		fmt.Sprintf("test-google-sub-%d", n),
		fmt.Sprintf("testuser%d@example.com", n),
		fmt.Sprintf("Test User %d", n),
		"",
	)
	require.NoError(t, err, "failed to create test user")
	return user
}
