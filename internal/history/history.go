// Package history implements the document-history query API named as an
// external collaborator in §6/§4.7: a thin primary-parent traversal over
// commits touching one path, skipping merge commits the sync engine
// itself produced, plus the author/committer filter predicate exercised
// by Scenario E. It shells out to git directly, the same idiom
// internal/gitstore uses, rather than linking a git library — no example
// repo in the pack vendors one.
package history

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/gitddb/gitddb/internal/canon"
	"github.com/gitddb/gitddb/internal/docmodel"
)

const (
	fieldSep  = "\x1f"
	recordSep = "\x1e"
)

// Entry is one historical revision of a document at a path.
type Entry struct {
	Commit docmodel.CommitInfo
	Value  any
}

// Filter narrows a Log traversal to commits whose author or committer name
// matches. An empty field matches anything.
type Filter struct {
	Author    string
	Committer string
}

func (f Filter) matches(c docmodel.CommitInfo) bool {
	if f.Author != "" && c.Author.Name != f.Author {
		return false
	}
	if f.Committer != "" && c.Committer.Name != f.Committer {
		return false
	}
	return true
}

// IsSyncMergeMessage reports whether a commit message matches one of the
// normative forms the sync engine produces (§6): a plain merge, a
// conflict-resolution merge, or a combine-unrelated-histories merge.
// History traversal skips these so it reflects the peer's own edits.
func IsSyncMergeMessage(msg string) bool {
	msg = strings.TrimRight(msg, "\n")
	return msg == "merge" ||
		strings.HasPrefix(msg, "resolve:") ||
		msg == "combine database head with theirs"
}

// Log returns every revision of path reachable from ref via the
// first-parent chain, newest first, skipping sync-engine merge commits and
// any commit that does not match filter.
func Log(ctx context.Context, repoRoot, ref, path string, filter Filter) ([]Entry, error) {
	format := strings.Join([]string{"%H", "%an", "%ae", "%cn", "%ce", "%ct", "%s"}, fieldSep) + recordSep
	cmd := exec.CommandContext(ctx, "git", "log", "--first-parent", "--format="+format, ref, "--", path)
	cmd.Dir = repoRoot
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("history: git log %s: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}

	var entries []Entry
	for _, rec := range strings.Split(stdout.String(), recordSep) {
		rec = strings.TrimSpace(rec)
		if rec == "" {
			continue
		}
		fields := strings.Split(rec, fieldSep)
		if len(fields) != 7 {
			continue
		}
		ts, err := strconv.ParseInt(fields[5], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("history: parse commit timestamp: %w", err)
		}
		commit := docmodel.CommitInfo{
			OID:       fields[0],
			Author:    docmodel.Identity{Name: fields[1], Email: fields[2]},
			Committer: docmodel.Identity{Name: fields[3], Email: fields[4]},
			Timestamp: ts,
			Message:   fields[6],
		}
		if IsSyncMergeMessage(commit.Message) {
			continue
		}
		if !filter.matches(commit) {
			continue
		}

		data, err := showBlob(ctx, repoRoot, commit.OID, path)
		if err != nil {
			continue // path did not exist at this revision (e.g. it was deleted then recreated)
		}
		value, err := canon.Parse(data)
		if err != nil {
			continue // not JSON (e.g. a .md or .yml document): this revision is left out of the result
		}
		entries = append(entries, Entry{Commit: commit, Value: value})
	}
	return entries, nil
}

func showBlob(ctx context.Context, repoRoot, commitOid, path string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", "show", commitOid+":"+path)
	cmd.Dir = repoRoot
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("history: show %s:%s: %w", commitOid, path, err)
	}
	return out, nil
}
