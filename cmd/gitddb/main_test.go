package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/gitddb/gitddb/internal/config"
	"github.com/gitddb/gitddb/internal/database"
	"github.com/gitddb/gitddb/internal/logging"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func openDirectly(t *testing.T, dir string) *database.Database {
	t.Helper()
	d, err := database.Open(context.Background(), &config.Options{DbName: "gitddb", LocalDir: dir}, logging.Nop(), nil)
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close(context.Background()) })
	return d
}

func TestPutGetDeleteViaCLI(t *testing.T) {
	dir := t.TempDir()

	if err := execute(t, "put", "--dir", dir, "doc1", `{"a":1}`); err != nil {
		t.Fatalf("put: %v", err)
	}

	d := openDirectly(t, dir)
	doc, err := d.Get(context.Background(), "doc1", "")
	if err != nil {
		t.Fatalf("Get after CLI put: %v", err)
	}
	if doc.Doc.Value["a"] != json.Number("1") {
		t.Errorf("Doc.Value = %#v, want {a:1}", doc.Doc.Value)
	}
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := execute(t, "get", "--dir", dir, "doc1"); err != nil {
		t.Fatalf("get: %v", err)
	}

	if err := execute(t, "delete", "--dir", dir, "doc1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	d2 := openDirectly(t, dir)
	if _, err := d2.Get(context.Background(), "doc1", ""); err == nil {
		t.Errorf("Get after CLI delete should fail")
	}
}

func TestPutWithSetFlagPatchesBeforeStoring(t *testing.T) {
	dir := t.TempDir()
	if err := execute(t, "put", "--dir", dir, "doc2", "--set", "name=ada"); err != nil {
		t.Fatalf("put --set: %v", err)
	}

	d := openDirectly(t, dir)
	doc, err := d.Get(context.Background(), "doc2", "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Doc.Value["name"] != "ada" {
		t.Errorf("Doc.Value = %#v, want name=ada", doc.Doc.Value)
	}
}

func TestGetWithFieldExtractsOnePath(t *testing.T) {
	dir := t.TempDir()
	if err := execute(t, "put", "--dir", dir, "doc3", `{"nested":{"x":5}}`); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := execute(t, "get", "--dir", dir, "doc3", "--field", "nested.x"); err != nil {
		t.Fatalf("get --field: %v", err)
	}
}

func TestHistoryAfterTwoPuts(t *testing.T) {
	dir := t.TempDir()
	if err := execute(t, "put", "--dir", dir, "doc4", `{"v":1}`); err != nil {
		t.Fatalf("put 1: %v", err)
	}
	if err := execute(t, "put", "--dir", dir, "doc4", `{"v":2}`); err != nil {
		t.Fatalf("put 2: %v", err)
	}
	if err := execute(t, "history", "--dir", dir, "doc4"); err != nil {
		t.Fatalf("history: %v", err)
	}
}

func TestSyncWithoutRemoteFails(t *testing.T) {
	dir := t.TempDir()
	if err := execute(t, "sync", "--dir", dir); err == nil {
		t.Errorf("sync without --remote should fail (database opened without sync configuration)")
	}
}

func TestPutRejectsNonObjectBody(t *testing.T) {
	dir := t.TempDir()
	if err := execute(t, "put", "--dir", dir, "doc5", `[1,2,3]`); err == nil {
		t.Errorf("put with a JSON array body should be rejected")
	}
}
