package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"blueprintcore/internal/infra/persistence/postgres/testutil"
	"blueprintcore/pkg/domain"
)

func openStub(t *testing.T) (*sql.DB, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)
	return db, conn
}

func TestNewStoreEnsuresTableAndPersists(t *testing.T) {
	_, conn := openStub(t)
	ctx := context.Background()
	store, err := NewStore(ctx, "", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	var sawDDL bool
	for _, stmt := range conn.Execs {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE") {
			sawDDL = true
		}
	}
	if !sawDDL {
		t.Fatalf("expected state table DDL, got %v", conn.Execs)
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateResource(domain.Resource{Base: domain.Base{DisplayName: "Gold"}})
		return err
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if conn.Commits != 1 {
		t.Fatalf("expected one snapshot commit, got %d", conn.Commits)
	}
	if got := len(conn.Tables["state"]); got != 5 {
		t.Fatalf("expected 5 buckets, got %d", got)
	}
}

func TestNewStoreHydratesFromSnapshot(t *testing.T) {
	_, conn := openStub(t)
	conn.Tables["state"] = []map[string]any{
		{"bucket": "resources", "payload": []byte(`[{"key":"gold","display_name":"Gold","version":3}]`)},
		{"bucket": "settings", "payload": []byte(`{"game_title":"Stored","offline_progress_enabled":true}`)},
		{"bucket": "retired", "payload": []byte(`{}`)},
	}
	store, err := NewStore(context.Background(), "postgres://stub", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	gold, ok := store.GetResource("gold")
	if !ok || gold.Version != 3 {
		t.Fatalf("expected hydrated resource, got %+v", gold)
	}
	if store.Settings().GameTitle != "Stored" {
		t.Fatalf("expected hydrated settings, got %+v", store.Settings())
	}
}

func TestNewStoreErrors(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, errors.New("dial") })
	if _, err := NewStore(context.Background(), "", nil); err == nil {
		t.Fatalf("expected open error")
	}
	restore()

	_, conn := openStub(t)
	conn.FailPing = true
	if _, err := NewStore(context.Background(), "", nil); err == nil || !strings.Contains(err.Error(), "ping") {
		t.Fatalf("expected ping error, got %v", err)
	}
	conn.FailPing = false
	conn.Tables["state"] = []map[string]any{{"bucket": "tiers", "payload": []byte(`{bad`)}}
	if _, err := NewStore(context.Background(), "", nil); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestPersistFailureRevertsInMemoryCommit(t *testing.T) {
	_, conn := openStub(t)
	store, err := NewStore(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	conn.FailCommit = true
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateResource(domain.Resource{Base: domain.Base{DisplayName: "Gold"}})
		return err
	})
	if err == nil || !strings.Contains(err.Error(), "commit") {
		t.Fatalf("expected commit error, got %v", err)
	}
	if _, ok := store.GetResource("gold"); ok {
		t.Fatalf("gold should be reverted after a failed snapshot")
	}
	if got := len(store.ListResources()); got != 0 {
		t.Fatalf("expected no resources, got %d", got)
	}

	conn.FailCommit = false
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateResource(domain.Resource{Base: domain.Base{DisplayName: "Gold"}})
		return err
	}); err != nil {
		t.Fatalf("retry after revert: %v", err)
	}
	if _, ok := store.GetResource("gold"); !ok {
		t.Fatalf("gold missing after successful retry")
	}
}
