package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/youssefsiam38/agentctx/internal/testutil"
)

func setupPostgres(t *testing.T) *testutil.TestDB {
	t.Helper()
	testutil.RequireIntegration(t)

	db := testutil.NewTestDB(t)
	ctx := context.Background()
	if err := NewPostgresStore(db.Pool).Migrate(ctx); err != nil {
		db.Close()
		t.Fatalf("Migrate failed: %v", err)
	}
	if err := db.CleanTables(ctx); err != nil {
		db.Close()
		t.Fatalf("Failed to clean tables: %v", err)
	}
	return db
}

func TestIntegration_PostgresStore(t *testing.T) {
	db := setupPostgres(t)
	defer db.Close()

	runStoreContract(t, NewPostgresStore(db.Pool), uuid.NewString())
}

func TestIntegration_PostgresStore_WithTx(t *testing.T) {
	db := setupPostgres(t)
	defer db.Close()

	ctx := context.Background()
	store := NewPostgresStore(db.Pool)
	sessionID := uuid.NewString()

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	txCtx := WithTx(ctx, tx)

	if err := store.SaveSnapshot(txCtx, newTestSnapshot(sessionID)); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if _, err := store.LoadSnapshot(txCtx, sessionID); err != nil {
		t.Fatalf("LoadSnapshot inside tx failed: %v", err)
	}

	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if _, err := store.LoadSnapshot(ctx, sessionID); err == nil {
		t.Error("snapshot visible after rollback")
	}
}

func TestIntegration_SQLStore(t *testing.T) {
	db := setupPostgres(t)
	defer db.Close()

	store, err := OpenSQLStore(context.Background(), db.URL)
	if err != nil {
		t.Fatalf("OpenSQLStore failed: %v", err)
	}
	defer store.Close()

	runStoreContract(t, store, uuid.NewString())
}
