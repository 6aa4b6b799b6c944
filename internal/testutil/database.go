// Package testutil provides shared test helpers for packages that need a
// real storage backend.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/statement-flow/internal/institution"
	"github.com/Veraticus/statement-flow/internal/model"
	"github.com/Veraticus/statement-flow/internal/service"
	"github.com/Veraticus/statement-flow/internal/storage"
)

// TestDB represents a test database with associated test utilities.
type TestDB struct {
	Storage service.Storage
	t       *testing.T
}

// TestDBOptions provides configuration options for test database setup.
type TestDBOptions struct {
	CustomSetup    func(context.Context, service.Storage) error
	Patterns       []model.RegexPattern
	SeedBuiltins   bool
	SkipMigrations bool
}

// SetupTestDB creates a migrated in-memory database.
// It automatically handles migrations and cleanup.
//
// Example:
//
//	db := testutil.SetupTestDB(t)
//	doc := db.SaveDocument("owner-1", "jan.csv", content)
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{})
}

// SetupTestDBWithOptions creates a test database with custom options.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	ctx := context.Background()

	if !opts.SkipMigrations {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	if opts.SeedBuiltins {
		if _, err := store.SeedBuiltinPatterns(ctx, institution.Default().BuiltinPatterns()); err != nil {
			t.Fatalf("failed to seed built-in patterns: %v", err)
		}
	}

	for i := range opts.Patterns {
		if err := store.CreatePattern(ctx, &opts.Patterns[i]); err != nil {
			t.Fatalf("failed to seed pattern %q: %v", opts.Patterns[i].Name, err)
		}
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{Storage: store, t: t}
}

// SaveDocument stores a new document, sniffing its file type from name.
func (db *TestDB) SaveDocument(ownerID, name, content string) model.Document {
	db.t.Helper()
	doc := model.NewDocument(ownerID, name, []byte(content), "")
	if err := db.Storage.SaveDocument(context.Background(), &doc); err != nil {
		db.t.Fatalf("failed to save document %q: %v", name, err)
	}
	return doc
}

// MustStatus returns a document's status or fails the test.
func (db *TestDB) MustStatus(id string) model.DocumentStatus {
	db.t.Helper()
	status, err := db.Storage.GetDocumentStatus(context.Background(), id)
	if err != nil {
		db.t.Fatalf("failed to get status of %s: %v", id, err)
	}
	return status
}

// MustAttempts returns a document's attempts or fails the test.
func (db *TestDB) MustAttempts(id string) []model.ParsingAttempt {
	db.t.Helper()
	attempts, err := db.Storage.ListAttempts(context.Background(), id)
	if err != nil {
		db.t.Fatalf("failed to list attempts of %s: %v", id, err)
	}
	return attempts
}
