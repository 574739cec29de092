package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// Migration represents a database migration
type Migration struct {
	Version int64
	Name    string
	Up      func(ctx context.Context, tx *sql.Tx) error
	Down    func(ctx context.Context, tx *sql.Tx) error
}

// registry holds all registered migrations
var registry []Migration

// Register adds a migration to the registry
func Register(m Migration) {
	registry = append(registry, m)
}

// Registered returns the registered migrations ordered by version
func Registered() []Migration {
	out := make([]Migration, len(registry))
	copy(out, registry)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Version < out[j].Version
	})
	return out
}

// NewProvider builds a goose provider over the registered Go migrations.
// The version table is goose's default (goose_db_version).
func NewProvider(db *sql.DB) (*goose.Provider, error) {
	var gooseMigrations []*goose.Migration
	for _, m := range Registered() {
		up := &goose.GoFunc{RunTx: m.Up}
		var down *goose.GoFunc
		if m.Down != nil {
			down = &goose.GoFunc{RunTx: m.Down}
		}
		gooseMigrations = append(gooseMigrations, goose.NewGoMigration(m.Version, up, down))
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, db, nil,
		goose.WithDisableGlobalRegistry(true),
		goose.WithGoMigrations(gooseMigrations...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}
	return provider, nil
}

// RunMigrations executes all pending migrations in order
func RunMigrations(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	provider, err := NewProvider(db)
	if err != nil {
		return err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	names := make(map[int64]string, len(registry))
	for _, m := range registry {
		names[m.Version] = m.Name
	}
	for _, r := range results {
		logger.Info("applied migration",
			zap.Int64("version", r.Source.Version),
			zap.String("name", names[r.Source.Version]),
			zap.Duration("duration", r.Duration),
		)
	}

	return nil
}

// Version returns the current schema version
func Version(ctx context.Context, db *sql.DB) (int64, error) {
	provider, err := NewProvider(db)
	if err != nil {
		return 0, err
	}
	return provider.GetDBVersion(ctx)
}

// execAll runs each statement in the migration transaction
func execAll(ctx context.Context, tx *sql.Tx, statements []string) error {
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
