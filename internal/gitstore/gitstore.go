// Package gitstore shells out to the git binary to perform the plumbing
// operations a document database needs: hashing and writing blobs, reading
// and writing trees, committing, and talking to a remote. It is the only
// package in this module that knows git is the storage engine; everything
// above it (internal/database, internal/syncengine) works in terms of
// FatDocs and commit descriptors.
//
// Grounded on the teacher's internal/git/worktree.go and
// internal/syncbranch/syncbranch.go: every call is exec.Command("git", ...)
// with cmd.Dir set to the repository root, errors wrapped with the
// command's combined output attached, and context-based cancellation
// threaded through via exec.CommandContext.
package gitstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/gitddb/gitddb/internal/ddberrors"
)

// Store is a handle on one local git repository used as a document store.
type Store struct {
	repoRoot string
	identity Identity
}

// Identity is the author/committer pair gitstore uses for commits it makes
// on the caller's behalf (task queue writes, sync merges).
type Identity struct {
	Name  string
	Email string
}

// Open wraps an existing local git repository. It does not clone or
// initialize anything — callers that need a fresh repository call Init.
func Open(repoRoot string, identity Identity) *Store {
	return &Store{repoRoot: repoRoot, identity: identity}
}

// ResolveIdentity reads the committer identity gitddb should use for its
// own commits (document mutations, merge commits) from the repository's
// git config, falling back to a fixed bot identity when unset — the same
// "ambient git config, else a sane default" resolution `git commit` itself
// performs, so a freshly `git init`-ed directory with no user.name/user.email
// set still produces commits instead of failing open.
func ResolveIdentity(ctx context.Context, repoRoot string) Identity {
	probe := &Store{repoRoot: repoRoot}
	name, errName := probe.run(ctx, "config", "user.name")
	email, errEmail := probe.run(ctx, "config", "user.email")
	id := Identity{Name: "gitddb", Email: "gitddb@localhost"}
	if errName == nil && strings.TrimSpace(name) != "" {
		id.Name = strings.TrimSpace(name)
	}
	if errEmail == nil && strings.TrimSpace(email) != "" {
		id.Email = strings.TrimSpace(email)
	}
	return id
}

// Init runs `git init` in repoRoot if it is not already a repository.
func (s *Store) Init(ctx context.Context) error {
	if s.IsRepository(ctx) {
		return nil
	}
	_, err := s.run(ctx, "init")
	return err
}

// IsRepository reports whether repoRoot is inside a git working tree.
func (s *Store) IsRepository(ctx context.Context) bool {
	_, err := s.run(ctx, "rev-parse", "--git-dir")
	return err == nil
}

// HashObject computes the blob object identifier for data without writing
// it to the object database (dry hash: the oid WriteObject would return for
// the same bytes).
func (s *Store) HashObject(ctx context.Context, data []byte) (string, error) {
	out, err := s.runStdin(ctx, data, "hash-object", "--stdin")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// WriteObject hashes data and writes it into the object database, returning
// its blob oid.
func (s *Store) WriteObject(ctx context.Context, data []byte) (string, error) {
	out, err := s.runStdin(ctx, data, "hash-object", "-w", "--stdin")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// ReadObject returns the raw bytes of a blob by oid.
func (s *Store) ReadObject(ctx context.Context, oid string) ([]byte, error) {
	out, err := s.runRaw(ctx, "cat-file", "-p", oid)
	if err != nil {
		return nil, fmt.Errorf("gitstore: read object %s: %w", oid, err)
	}
	return out, nil
}

// TreeEntry is one row of `git ls-tree`.
type TreeEntry struct {
	Mode string
	Type string // "blob" or "tree"
	OID  string
	Path string
}

// ReadTree lists every blob reachable under ref (HEAD, a branch, or a
// commit), recursing into subtrees, so the database layer can compare its
// in-memory path index against the committed state.
func (s *Store) ReadTree(ctx context.Context, ref string) ([]TreeEntry, error) {
	out, err := s.run(ctx, "ls-tree", "-r", ref)
	if err != nil {
		if isMissingRef(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("gitstore: read tree %s: %w", ref, err)
	}
	return parseLsTree(out), nil
}

func parseLsTree(out string) []TreeEntry {
	var entries []TreeEntry
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		// "<mode> <type> <oid>\t<path>"
		tab := strings.IndexByte(line, '\t')
		if tab < 0 {
			continue
		}
		fields := strings.Fields(line[:tab])
		if len(fields) != 3 {
			continue
		}
		entries = append(entries, TreeEntry{Mode: fields[0], Type: fields[1], OID: fields[2], Path: line[tab+1:]})
	}
	return entries
}

// WriteTree stages the given path->oid assignments (new files and updates)
// and deletions on top of baseRef's tree and writes a new tree object,
// returning its oid. It never touches the working directory or the index
// file used by interactive `git status` (it builds a throwaway index file).
func (s *Store) WriteTree(ctx context.Context, baseRef string, writes map[string]string, deletes []string) (string, error) {
	indexFile, cleanup, err := s.scratchIndex(ctx, baseRef)
	if err != nil {
		return "", err
	}
	defer cleanup()

	env := []string{"GIT_INDEX_FILE=" + indexFile}
	for path, oid := range writes {
		if _, err := s.runEnv(ctx, env, "update-index", "--add", "--cacheinfo", "100644,"+oid+","+path); err != nil {
			return "", fmt.Errorf("gitstore: stage %s: %w", path, err)
		}
	}
	for _, path := range deletes {
		if _, err := s.runEnv(ctx, env, "update-index", "--remove", "--", path); err != nil {
			return "", fmt.Errorf("gitstore: unstage %s: %w", path, err)
		}
	}
	out, err := s.runEnv(ctx, env, "write-tree")
	if err != nil {
		return "", fmt.Errorf("gitstore: write-tree: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Commit creates a commit object from treeOid with the given parents and
// message, using the store's configured identity, and returns the new
// commit's oid. It does not move any ref.
func (s *Store) Commit(ctx context.Context, treeOid string, parents []string, message string) (string, error) {
	args := []string{"commit-tree", treeOid, "-m", message}
	for _, p := range parents {
		args = append(args, "-p", p)
	}
	env := []string{
		"GIT_AUTHOR_NAME=" + s.identity.Name,
		"GIT_AUTHOR_EMAIL=" + s.identity.Email,
		"GIT_COMMITTER_NAME=" + s.identity.Name,
		"GIT_COMMITTER_EMAIL=" + s.identity.Email,
	}
	out, err := s.runEnv(ctx, env, args...)
	if err != nil {
		return "", fmt.Errorf("gitstore: commit-tree: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// UpdateRef moves ref to point at oid, requiring it to currently point at
// oldOid (compare-and-swap semantics, the same guarantee Store.Push relies
// on for the remote side). An empty oldOid skips the check and moves the
// ref unconditionally.
func (s *Store) UpdateRef(ctx context.Context, ref, oid, oldOid string) error {
	args := []string{"update-ref", ref, oid}
	if oldOid != "" {
		args = append(args, oldOid)
	}
	if _, err := s.run(ctx, args...); err != nil {
		return fmt.Errorf("gitstore: update-ref %s: %w", ref, err)
	}
	return nil
}

// ResolveRef returns the commit oid a ref currently points at, or "" if the
// ref does not exist yet (a brand new local-only database).
func (s *Store) ResolveRef(ctx context.Context, ref string) (string, error) {
	out, err := s.run(ctx, "rev-parse", "--verify", "--quiet", ref)
	if err != nil {
		if isMissingRef(err) {
			return "", nil
		}
		return "", fmt.Errorf("gitstore: resolve %s: %w", ref, err)
	}
	return strings.TrimSpace(out), nil
}

// MergeBase returns the best common ancestor of a and b, or "" if they
// share no history (the combine-unrelated-histories path, §4.8).
func (s *Store) MergeBase(ctx context.Context, a, b string) (string, error) {
	out, err := s.run(ctx, "merge-base", a, b)
	if err != nil {
		if isMissingRef(err) {
			return "", nil
		}
		return "", fmt.Errorf("gitstore: merge-base: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// IsAncestor reports whether a is an ancestor of (or equal to) b.
func (s *Store) IsAncestor(ctx context.Context, a, b string) (bool, error) {
	_, err := s.run(ctx, "merge-base", "--is-ancestor", a, b)
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if asExitError(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, fmt.Errorf("gitstore: is-ancestor: %w", err)
}

// Fetch runs `git fetch remote branch`; the remote's configured fetch
// refspec updates refs/remotes/<remote>/<branch>. A remote that has no such
// branch yet (an empty remote) is not an error: nothing is fetched.
func (s *Store) Fetch(ctx context.Context, remote, branch string) error {
	if _, err := s.run(ctx, "ls-remote", "--exit-code", remote, "refs/heads/"+branch); err != nil {
		var exitErr *exec.ExitError
		if asExitError(err, &exitErr) && exitErr.ExitCode() == 2 {
			return nil
		}
		return ddberrors.Wrap(ddberrors.KindCannotConnect, fmt.Sprintf("fetch %s %s", remote, branch), err)
	}
	_, err := s.run(ctx, "fetch", remote, branch)
	if err != nil {
		return ddberrors.Wrap(ddberrors.KindCannotConnect, fmt.Sprintf("fetch %s %s", remote, branch), err)
	}
	return nil
}

// Push pushes local ref to remote/branch, refusing (non-fast-forward) if
// the remote tip has moved since the caller last fetched.
func (s *Store) Push(ctx context.Context, remote, localRef, branch string) error {
	_, err := s.run(ctx, "push", remote, localRef+":refs/heads/"+branch)
	if err != nil {
		return ddberrors.Wrap(ddberrors.KindCannotConnect, fmt.Sprintf("push %s %s", remote, branch), err)
	}
	return nil
}

// EnsureRemote adds remote name pointing at url, or repoints it if it
// already exists under a different URL — idempotent, so internal/database
// can call it unconditionally on every open.
func (s *Store) EnsureRemote(ctx context.Context, name, url string) error {
	existing, err := s.run(ctx, "remote", "get-url", name)
	if err != nil {
		if _, err := s.run(ctx, "remote", "add", name, url); err != nil {
			return fmt.Errorf("gitstore: remote add %s: %w", name, err)
		}
		return nil
	}
	if strings.TrimSpace(existing) != url {
		if _, err := s.run(ctx, "remote", "set-url", name, url); err != nil {
			return fmt.Errorf("gitstore: remote set-url %s: %w", name, err)
		}
	}
	return nil
}

// ResolveBlob returns the blob oid stored at path within ref's tree, or
// found=false when ref has no commit yet or path is not present there.
func (s *Store) ResolveBlob(ctx context.Context, ref, path string) (oid string, found bool, err error) {
	entries, err := s.ReadTree(ctx, ref)
	if err != nil {
		return "", false, err
	}
	for _, e := range entries {
		if e.Type == "blob" && e.Path == path {
			return e.OID, true, nil
		}
	}
	return "", false, nil
}

// scratchIndex builds a temporary index file seeded from baseRef's tree,
// so WriteTree never perturbs the caller's real .git/index.
func (s *Store) scratchIndex(ctx context.Context, baseRef string) (string, func(), error) {
	out, err := s.run(ctx, "rev-parse", "--git-dir")
	if err != nil {
		return "", nil, fmt.Errorf("gitstore: git-dir: %w", err)
	}
	gitDir := strings.TrimSpace(out)
	indexFile := gitDir + "/gitddb-scratch-index"
	env := []string{"GIT_INDEX_FILE=" + indexFile}

	if baseRef != "" {
		if oid, err := s.ResolveRef(ctx, baseRef); err == nil && oid != "" {
			if _, err := s.runEnv(ctx, env, "read-tree", oid); err != nil {
				return "", nil, fmt.Errorf("gitstore: seed scratch index: %w", err)
			}
		}
	}
	cleanup := func() { _ = os.Remove(indexFile) }
	return indexFile, cleanup, nil
}

var branchNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._/-]*[a-zA-Z0-9]$`)

// ValidateBranchName applies git-check-ref-format's practical subset,
// adapted from the teacher's syncbranch.ValidateBranchName.
func ValidateBranchName(name string) error {
	if name == "" {
		return fmt.Errorf("branch name must not be empty")
	}
	if len(name) > 255 {
		return fmt.Errorf("branch name too long (max 255 characters)")
	}
	if !branchNamePattern.MatchString(name) {
		return fmt.Errorf("invalid branch name %q: must start and end with alphanumeric, may contain .-_/ in the middle", name)
	}
	if name == "HEAD" || strings.Contains(name, "..") {
		return fmt.Errorf("invalid branch name %q", name)
	}
	return nil
}

func isMissingRef(err error) bool {
	var exitErr *exec.ExitError
	return asExitError(err, &exitErr)
}

func asExitError(err error, target **exec.ExitError) bool {
	return errors.As(err, target)
}

func (s *Store) run(ctx context.Context, args ...string) (string, error) {
	return s.runEnv(ctx, nil, args...)
}

func (s *Store) runEnv(ctx context.Context, extraEnv []string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = s.repoRoot
	if len(extraEnv) > 0 {
		cmd.Env = append(cmd.Environ(), extraEnv...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return stdout.String(), fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), ee, strings.TrimSpace(stderr.String()))
		}
		return stdout.String(), fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return stdout.String(), nil
}

func (s *Store) runRaw(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = s.repoRoot
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), ee, strings.TrimSpace(string(ee.Stderr)))
		}
		return nil, fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return out, nil
}

func (s *Store) runStdin(ctx context.Context, data []byte, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = s.repoRoot
	cmd.Stdin = bytes.NewReader(data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// CommitCount returns the number of commits reachable from ref.
func (s *Store) CommitCount(ctx context.Context, ref string) (int, error) {
	out, err := s.run(ctx, "rev-list", "--count", ref)
	if err != nil {
		return 0, fmt.Errorf("gitstore: rev-list --count: %w", err)
	}
	n, convErr := strconv.Atoi(strings.TrimSpace(out))
	if convErr != nil {
		return 0, fmt.Errorf("gitstore: parse rev-list count: %w", convErr)
	}
	return n, nil
}
