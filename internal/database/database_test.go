package database

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/gitddb/gitddb/internal/config"
	"github.com/gitddb/gitddb/internal/ddberrors"
	"github.com/gitddb/gitddb/internal/history"
	"github.com/gitddb/gitddb/internal/logging"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	dir := t.TempDir()
	d, err := Open(context.Background(), &config.Options{DbName: "test", LocalDir: dir}, logging.Nop(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close(context.Background()) })
	return d
}

func TestOpenAssignsADatabaseIdentity(t *testing.T) {
	d := openTestDB(t)
	info := d.Info()
	if info.DbID == "" {
		t.Errorf("Info().DbID should be populated on open")
	}
	if info.DbName != "test" {
		t.Errorf("Info().DbName = %q, want %q", info.DbName, "test")
	}
}

func TestOpenTwiceOnSameDirFailsToAcquireLock(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(context.Background(), &config.Options{DbName: "test", LocalDir: dir}, logging.Nop(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close(context.Background())

	_, err = Open(context.Background(), &config.Options{DbName: "test", LocalDir: dir}, logging.Nop(), nil)
	if kind, ok := ddberrors.KindOf(err); !ok || kind != ddberrors.KindDatabaseClosing {
		t.Errorf("second Open error = %v, want KindDatabaseClosing", err)
	}
}

func TestPutGetDeleteRoundTrip(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	putRes, err := d.Put(ctx, "doc1", map[string]any{"a": float64(1)}, "")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if putRes.ID != "doc1" || putRes.CommitOid == "" {
		t.Errorf("PutResult = %+v, want populated ID and CommitOid", putRes)
	}

	got, err := d.Get(ctx, "doc1", "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Doc.Value["a"] != json.Number("1") {
		t.Errorf("Get value = %#v, want {a:1}", got.Doc.Value)
	}

	if _, err := d.Delete(ctx, "doc1", ""); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := d.Get(ctx, "doc1", ""); !errors.Is(err, ddberrors.New(ddberrors.KindCannotGetEntry, "")) {
		t.Errorf("Get after Delete should fail with KindCannotGetEntry, got %v", err)
	}
}

func TestGetMissingDocumentReturnsCannotGetEntry(t *testing.T) {
	d := openTestDB(t)
	_, err := d.Get(context.Background(), "missing", "")
	if kind, ok := ddberrors.KindOf(err); !ok || kind != ddberrors.KindCannotGetEntry {
		t.Errorf("Get(missing) error = %v, want KindCannotGetEntry", err)
	}
}

func TestPutRejectsInvalidID(t *testing.T) {
	d := openTestDB(t)
	_, err := d.Put(context.Background(), "../escape", map[string]any{"a": float64(1)}, "")
	if kind, ok := ddberrors.KindOf(err); !ok || kind != ddberrors.KindInvalidIdCharacter {
		t.Errorf("Put(../escape) error = %v, want KindInvalidIdCharacter", err)
	}
}

func TestPutRejectsNilValue(t *testing.T) {
	d := openTestDB(t)
	_, err := d.Put(context.Background(), "doc1", nil, "")
	if kind, ok := ddberrors.KindOf(err); !ok || kind != ddberrors.KindInvalidJsonObject {
		t.Errorf("Put(nil) error = %v, want KindInvalidJsonObject", err)
	}
}

func TestHistoryReturnsPutsNewestFirst(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	if _, err := d.Put(ctx, "doc1", map[string]any{"v": float64(1)}, ""); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := d.Put(ctx, "doc1", map[string]any{"v": float64(2)}, ""); err != nil {
		t.Fatalf("Put: %v", err)
	}

	entries, err := d.History(ctx, "doc1", "", history.Filter{})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if v, ok := entries[0].Value.(map[string]any); !ok || v["v"] != json.Number("2") {
		t.Errorf("entries[0].Value = %#v, want the most recent put", entries[0].Value)
	}
}

func TestSyncWithoutConfigurationFails(t *testing.T) {
	d := openTestDB(t)
	_, err := d.Sync(context.Background())
	if kind, ok := ddberrors.KindOf(err); !ok || kind != ddberrors.KindUndefinedSync {
		t.Errorf("Sync on a local-only database error = %v, want KindUndefinedSync", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(context.Background(), &config.Options{DbName: "test", LocalDir: dir}, logging.Nop(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := d.Close(context.Background()); err != nil {
		t.Errorf("second Close should be a no-op, got: %v", err)
	}
}

func TestValidateIDRules(t *testing.T) {
	tests := []struct {
		id      string
		wantErr ddberrors.Kind
	}{
		{"", ddberrors.KindUndefinedDocumentId},
		{"a/b", ddberrors.KindInvalidIdCharacter},
		{"a..b", ddberrors.KindInvalidIdCharacter},
		{".hidden", ddberrors.KindInvalidIdCharacter},
		{"valid-id", ""},
	}
	for _, tt := range tests {
		err := ValidateID(tt.id)
		if tt.wantErr == "" {
			if err != nil {
				t.Errorf("ValidateID(%q) = %v, want nil", tt.id, err)
			}
			continue
		}
		if kind, ok := ddberrors.KindOf(err); !ok || kind != tt.wantErr {
			t.Errorf("ValidateID(%q) = %v, want Kind %v", tt.id, err, tt.wantErr)
		}
	}
}
