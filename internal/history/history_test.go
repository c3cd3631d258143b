package history

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/gitddb/gitddb/internal/gitstore"
)

const ref = "refs/heads/main"

func newFixtureRepo(t *testing.T) (string, *gitstore.Store, context.Context) {
	t.Helper()
	dir := t.TempDir()
	ctx := context.Background()
	s := gitstore.Open(dir, gitstore.Identity{Name: "tester", Email: "tester@example.com"})
	if err := s.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return dir, s, ctx
}

func commit(t *testing.T, s *gitstore.Store, ctx context.Context, path, data, message, parent string) string {
	t.Helper()
	oid, err := s.WriteObject(ctx, []byte(data))
	if err != nil {
		t.Fatalf("WriteObject: %v", err)
	}
	treeOid, err := s.WriteTree(ctx, ref, map[string]string{path: oid}, nil)
	if err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	var parents []string
	if parent != "" {
		parents = []string{parent}
	}
	commitOid, err := s.Commit(ctx, treeOid, parents, message)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := s.UpdateRef(ctx, ref, commitOid, parent); err != nil {
		t.Fatalf("UpdateRef: %v", err)
	}
	return commitOid
}

func TestLogReturnsNewestFirst(t *testing.T) {
	dir, s, ctx := newFixtureRepo(t)
	first := commit(t, s, ctx, "a.json", `{"v":1}`, "create", "")
	commit(t, s, ctx, "a.json", `{"v":2}`, "update", first)

	entries, err := Log(ctx, dir, ref, "a.json", Filter{})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Commit.Message != "update" || entries[1].Commit.Message != "create" {
		t.Errorf("entries not newest-first: %+v", entries)
	}
	if v, ok := entries[0].Value.(map[string]any); !ok || v["v"] != json.Number("2") {
		t.Errorf("entries[0].Value = %#v, want {v:2}", entries[0].Value)
	}
}

func TestLogSkipsSyncMergeMessages(t *testing.T) {
	dir, s, ctx := newFixtureRepo(t)
	first := commit(t, s, ctx, "a.json", `{"v":1}`, "create", "")
	commit(t, s, ctx, "a.json", `{"v":2}`, "merge", first)

	entries, err := Log(ctx, dir, ref, "a.json", Filter{})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1 (merge commit should be skipped)", len(entries))
	}
	if entries[0].Commit.Message != "create" {
		t.Errorf("entries[0].Commit.Message = %q, want %q", entries[0].Commit.Message, "create")
	}
}

func TestLogFiltersByAuthor(t *testing.T) {
	dir, s, ctx := newFixtureRepo(t)
	commit(t, s, ctx, "a.json", `{"v":1}`, "create", "")

	entries, err := Log(ctx, dir, ref, "a.json", Filter{Author: "nobody"})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("len(entries) = %d, want 0 for a non-matching author filter", len(entries))
	}

	entries, err = Log(ctx, dir, ref, "a.json", Filter{Author: "tester"})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("len(entries) = %d, want 1 for a matching author filter", len(entries))
	}
}

func TestIsSyncMergeMessage(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"merge", true},
		{"resolve: update-merge a.json", true},
		{"combine database head with theirs", true},
		{"create", false},
		{"merge conflict notes", false},
	}
	for _, tt := range tests {
		if got := IsSyncMergeMessage(tt.msg); got != tt.want {
			t.Errorf("IsSyncMergeMessage(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}
