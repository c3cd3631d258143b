package syncengine

import (
	"context"
	"os/exec"
	"testing"

	"github.com/gitddb/gitddb/internal/config"
	"github.com/gitddb/gitddb/internal/docmodel"
	"github.com/gitddb/gitddb/internal/gitstore"
	"github.com/gitddb/gitddb/internal/logging"
)

const testRef = "refs/heads/main"

func newLocalRepo(t *testing.T) (*gitstore.Store, string) {
	t.Helper()
	dir := t.TempDir()
	s := gitstore.Open(dir, gitstore.Identity{Name: "local", Email: "local@example.com"})
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s, dir
}

// newRemoteRepo is a non-bare repository used only as a push target: git
// refuses pushes to the branch checked out in a non-bare repo's working
// tree by default, so denyCurrentBranch is relaxed the same way a local
// "remote" fixture for integration tests always has to.
func newRemoteRepo(t *testing.T) (*gitstore.Store, string) {
	t.Helper()
	s, dir := newLocalRepo(t)
	cmd := exec.Command("git", "config", "receive.denyCurrentBranch", "updateInstead")
	cmd.Dir = dir
	if err := cmd.Run(); err != nil {
		t.Fatalf("git config receive.denyCurrentBranch: %v", err)
	}
	return s, dir
}

func linkRemote(t *testing.T, local *gitstore.Store, remoteDir string) {
	t.Helper()
	if err := local.EnsureRemote(context.Background(), DefaultRemoteName, remoteDir); err != nil {
		t.Fatalf("EnsureRemote: %v", err)
	}
}

func putDoc(t *testing.T, s *gitstore.Store, path, json, message, parent string) string {
	t.Helper()
	ctx := context.Background()
	oid, err := s.WriteObject(ctx, []byte(json))
	if err != nil {
		t.Fatalf("WriteObject: %v", err)
	}
	treeOid, err := s.WriteTree(ctx, testRef, map[string]string{path: oid}, nil)
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
	if err := s.UpdateRef(ctx, testRef, commitOid, parent); err != nil {
		t.Fatalf("UpdateRef: %v", err)
	}
	return commitOid
}

func seedInfo(t *testing.T, s *gitstore.Store, dbID, parent string) string {
	t.Helper()
	return putDoc(t, s, DatabaseInfoPath, `{"db_id":"`+dbID+`","db_name":"d","version":1}`, "init info", parent)
}

func newEngine(store *gitstore.Store, opts config.SyncOptions) *Engine {
	if opts.Branch == "" {
		opts.Branch = DefaultBranch
	}
	if opts.ConflictResolutionStrategy == "" {
		opts.ConflictResolutionStrategy = docmodel.StrategyOursProp
	}
	return New(store, opts, nil, logging.Nop(), nil)
}

func TestRunNopWhenUpToDate(t *testing.T) {
	local, localDir := newLocalRepo(t)
	_, remoteDir := newRemoteRepo(t)
	linkRemote(t, local, remoteDir)

	seedInfo(t, local, "db1", "")
	e := newEngine(local, config.SyncOptions{})
	result, err := e.Run(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Kind != docmodel.SyncPush {
		t.Fatalf("first run should push the initial commit, got %v", result.Kind)
	}

	result, err = e.Run(context.Background(), "t2")
	if err != nil {
		t.Fatalf("Run (second, up to date): %v", err)
	}
	if result.Kind != docmodel.SyncNop {
		t.Errorf("result.Kind = %v, want SyncNop once local and remote match", result.Kind)
	}
	_ = localDir
}

func TestRunFastForwardsFromAheadRemote(t *testing.T) {
	local, _ := newLocalRepo(t)
	remote, remoteDir := newRemoteRepo(t)
	linkRemote(t, local, remoteDir)

	base := seedInfo(t, remote, "db1", "")
	putDoc(t, remote, "a.json", `{"v":1}`, "add a", base)

	e := newEngine(local, config.SyncOptions{})
	result, err := e.Run(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Kind != docmodel.SyncFastForwardMerge {
		t.Errorf("result.Kind = %v, want SyncFastForwardMerge", result.Kind)
	}

	localOid, err := local.ResolveRef(context.Background(), testRef)
	if err != nil {
		t.Fatalf("ResolveRef: %v", err)
	}
	remoteOid, err := remote.ResolveRef(context.Background(), testRef)
	if err != nil {
		t.Fatalf("ResolveRef: %v", err)
	}
	if localOid != remoteOid {
		t.Errorf("local HEAD = %s, want it to match the remote's %s after fast-forward", localOid, remoteOid)
	}
}

func TestRunMergesDivergedNonConflictingPaths(t *testing.T) {
	local, _ := newLocalRepo(t)
	remote, remoteDir := newRemoteRepo(t)
	linkRemote(t, local, remoteDir)

	base := seedInfo(t, remote, "db1", "")

	ctx := context.Background()
	if err := local.Fetch(ctx, DefaultRemoteName, DefaultBranch); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if err := local.UpdateRef(ctx, testRef, base, ""); err != nil {
		t.Fatalf("UpdateRef (adopt shared base): %v", err)
	}

	putDoc(t, local, "a.json", `{"v":1}`, "local add a", base)
	putDoc(t, remote, "b.json", `{"v":2}`, "remote add b", base)

	e := newEngine(local, config.SyncOptions{})
	result, err := e.Run(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Kind != docmodel.SyncMergeAndPush {
		t.Fatalf("result.Kind = %v, want SyncMergeAndPush", result.Kind)
	}
	if len(result.Conflicts) != 0 {
		t.Errorf("expected no conflicts merging disjoint paths, got %+v", result.Conflicts)
	}

	if _, found, err := local.ResolveBlob(context.Background(), testRef, "a.json"); err != nil || !found {
		t.Errorf("merged tree should keep local a.json, found=%v err=%v", found, err)
	}
	if _, found, err := local.ResolveBlob(context.Background(), testRef, "b.json"); err != nil || !found {
		t.Errorf("merged tree should pick up remote b.json, found=%v err=%v", found, err)
	}
}

func TestRunDirectionPullSkipsPush(t *testing.T) {
	local, _ := newLocalRepo(t)
	_, remoteDir := newRemoteRepo(t)
	linkRemote(t, local, remoteDir)

	seedInfo(t, local, "db1", "")
	e := newEngine(local, config.SyncOptions{Direction: config.SyncDirectionPull})
	_, err := e.Run(context.Background(), "t1")
	if err == nil {
		t.Fatalf("a pull-only session with local-ahead-of-remote should be blocked from pushing")
	}
}

func TestRunDirectionPushSkipsFastForward(t *testing.T) {
	local, _ := newLocalRepo(t)
	remote, remoteDir := newRemoteRepo(t)
	linkRemote(t, local, remoteDir)

	base := seedInfo(t, remote, "db1", "")
	ctx := context.Background()
	if err := local.Fetch(ctx, DefaultRemoteName, DefaultBranch); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if err := local.UpdateRef(ctx, testRef, base, ""); err != nil {
		t.Fatalf("UpdateRef (adopt shared base): %v", err)
	}
	putDoc(t, remote, "a.json", `{"v":1}`, "remote add a", base)

	e := newEngine(local, config.SyncOptions{Direction: config.SyncDirectionPush})
	result, err := e.Run(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Kind != docmodel.SyncNop {
		t.Errorf("result.Kind = %v, want SyncNop (push-only must not fast-forward from an ahead remote)", result.Kind)
	}
}

func TestCombineUnrelatedHistoriesDuplicatesColliding(t *testing.T) {
	local, _ := newLocalRepo(t)
	remote, remoteDir := newRemoteRepo(t)
	linkRemote(t, local, remoteDir)

	localBase := seedInfo(t, local, "db-local", "")
	putDoc(t, local, "a.json", `{"v":"local"}`, "local add a", localBase)

	seedInfo(t, remote, "db-remote", "")
	putDoc(t, remote, "a.json", `{"v":"remote"}`, "remote add a", "")

	e := newEngine(local, config.SyncOptions{CombineDbStrategy: config.CombineHeadWithTheirs})
	result, err := e.Run(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Kind != docmodel.SyncCombineDatabase {
		t.Fatalf("result.Kind = %v, want SyncCombineDatabase", result.Kind)
	}
	if len(result.Duplicates) != 1 {
		t.Fatalf("len(Duplicates) = %d, want 1 for the colliding a.json", len(result.Duplicates))
	}
}

func TestCombineThrowErrorStrategyFailsOnUnrelatedHistories(t *testing.T) {
	local, _ := newLocalRepo(t)
	remote, remoteDir := newRemoteRepo(t)
	linkRemote(t, local, remoteDir)

	seedInfo(t, local, "db-local", "")
	seedInfo(t, remote, "db-remote", "")

	e := newEngine(local, config.SyncOptions{CombineDbStrategy: config.CombineThrowError})
	_, err := e.Run(context.Background(), "t1")
	if err == nil {
		t.Fatalf("expected an error when CombineThrowError meets unrelated histories")
	}
}

func TestRunEmitsLifecycleEvents(t *testing.T) {
	local, _ := newLocalRepo(t)
	_, remoteDir := newRemoteRepo(t)
	linkRemote(t, local, remoteDir)
	seedInfo(t, local, "db1", "")

	var kinds []EventKind
	e := New(local, config.SyncOptions{ConflictResolutionStrategy: docmodel.StrategyOursProp}, nil, logging.Nop(),
		func(ev Event) { kinds = append(kinds, ev.Kind) })
	if _, err := e.Run(context.Background(), "t1"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(kinds) < 2 || kinds[0] != EventStart || kinds[len(kinds)-1] != EventComplete {
		t.Errorf("kinds = %v, want to start with EventStart and end with EventComplete", kinds)
	}
}
