// Package syncengine implements the sync state machine (§4.7): one run
// fetches the remote tip, compares it against local HEAD, and depending on
// the four possible fates either does nothing, fast-forwards, pushes, or
// three-way merges (falling back to the combine path of §4.8 when the two
// histories share no common ancestor). It is grounded on the
// reconcile/runFullSync shape of OpenMined-syftbox's sync engine — a
// single-flight run guarded against concurrent invocation, a bounded retry
// loop around the network-facing steps, and a reconcile step that
// classifies every touched path before anything is written — adapted from
// syftbox's ETag/Version file reconciliation to this module's blob-oid
// three-way merge classifier (internal/merge).
package syncengine

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gitddb/gitddb/internal/config"
	"github.com/gitddb/gitddb/internal/ddberrors"
	"github.com/gitddb/gitddb/internal/docmodel"
	"github.com/gitddb/gitddb/internal/gitstore"
	"github.com/gitddb/gitddb/internal/merge"
)

// State is the sync engine's position in the §4.7 state machine.
type State string

const (
	StateIdle        State = "idle"
	StateFetching    State = "fetching"
	StateClassifying State = "classifying"
	StateResolving   State = "resolving"
	StateWriting     State = "writing"
	StatePushing     State = "pushing"
)

// DefaultRemoteName is the git remote the engine fetches from and pushes
// to. internal/database is responsible for configuring it (git remote add)
// from SyncOptions.RemoteURL at open time; the engine only ever refers to
// it by name, the same separation gitstore keeps between plumbing and
// transport configuration.
const DefaultRemoteName = "origin"

// DefaultBranch is used when SyncOptions.Branch is unset.
const DefaultBranch = "main"

// Engine runs one sync binding: one local repository, one remote, one
// branch. A database with live sync enabled owns exactly one Engine, driven
// by internal/live.Scheduler through the task queue.
type Engine struct {
	store          *gitstore.Store
	remoteName     string
	branch         string
	opts           config.SyncOptions
	custom         merge.UserStrategyFunc
	log            zerolog.Logger
	emitter        Emitter

	mu    sync.Mutex
	state State
}

// New builds an Engine bound to store. custom may be nil unless
// opts.ConflictResolutionStrategy is docmodel.StrategyCustom.
func New(store *gitstore.Store, opts config.SyncOptions, custom merge.UserStrategyFunc, log zerolog.Logger, emitter Emitter) *Engine {
	branch := opts.Branch
	if branch == "" {
		branch = DefaultBranch
	}
	return &Engine{
		store:      store,
		remoteName: DefaultRemoteName,
		branch:     branch,
		opts:       opts,
		custom:     custom,
		log:        log,
		emitter:    emitter,
		state:      StateIdle,
	}
}

// State reports the engine's current position, for status reporting.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Run executes one full sync protocol run (§4.7). It is meant to be called
// as a taskqueue.Func body; taskID is threaded through purely for event
// correlation.
func (e *Engine) Run(ctx context.Context, taskID string) (docmodel.SyncResult, error) {
	e.emit(taskID, EventStart, nil)

	result, err := e.runWithRetry(ctx)
	e.setState(StateIdle)

	if err != nil {
		if ctx.Err() != nil {
			e.emit(taskID, EventCanceled, nil)
		} else {
			e.emit(taskID, EventError, func(ev *Event) { ev.Err = err })
		}
		return docmodel.SyncResult{}, err
	}

	if result.HasChanges() {
		e.emit(taskID, EventChange, func(ev *Event) { ev.Result = &result })
	}
	if len(result.LocalChanges) > 0 {
		e.emit(taskID, EventLocalChange, func(ev *Event) { ev.LocalChanges = result.LocalChanges })
	}
	if len(result.RemoteChanges) > 0 {
		e.emit(taskID, EventRemoteChange, func(ev *Event) { ev.RemoteChanges = result.RemoteChanges })
	}
	if len(result.Duplicates) > 0 {
		e.emit(taskID, EventCombine, func(ev *Event) { ev.Duplicates = result.Duplicates })
	}
	e.emit(taskID, EventComplete, func(ev *Event) { ev.Result = &result })
	return result, nil
}

// runWithRetry wraps one protocol attempt in the §4.7 retry budget: a
// retriable failure (fetch down, push rejected because the remote moved)
// waits retryInterval and starts over from step 1; anything else returns
// immediately.
func (e *Engine) runWithRetry(ctx context.Context) (docmodel.SyncResult, error) {
	attempts := e.opts.Retry
	if attempts <= 0 {
		attempts = config.DefaultRetry
	}

	var lastErr error
	for attempt := 0; attempt <= attempts; attempt++ {
		if attempt > 0 {
			e.log.Debug().Int("attempt", attempt).Msg("sync retry")
			if err := sleepCtx(ctx, e.opts.RetryInterval); err != nil {
				return docmodel.SyncResult{}, err
			}
		}
		result, retriable, err := e.attempt(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retriable || ctx.Err() != nil {
			return docmodel.SyncResult{}, err
		}
	}
	return docmodel.SyncResult{}, lastErr
}

// attempt runs steps 1-7 once. The bool return reports whether a failure is
// worth retrying from step 1.
func (e *Engine) attempt(ctx context.Context) (docmodel.SyncResult, bool, error) {
	e.setState(StateFetching)
	if err := e.store.Fetch(ctx, e.remoteName, e.branch); err != nil {
		return docmodel.SyncResult{}, true, err
	}
	if err := ctx.Err(); err != nil {
		return docmodel.SyncResult{}, false, err
	}

	localRef := "refs/heads/" + e.branch
	remoteRef := "refs/remotes/" + e.remoteName + "/" + e.branch

	localOid, err := e.store.ResolveRef(ctx, localRef)
	if err != nil {
		return docmodel.SyncResult{}, false, err
	}
	remoteOid, err := e.store.ResolveRef(ctx, remoteRef)
	if err != nil {
		return docmodel.SyncResult{}, false, err
	}

	switch {
	case localOid == remoteOid:
		return docmodel.SyncResult{Kind: docmodel.SyncNop}, false, nil

	case remoteOid == "":
		// Brand new remote (no such branch there yet): push.
		return e.fatePush(ctx, localRef, localOid)

	case localOid == "":
		// Brand new local clone: adopt remote's history outright.
		return e.fateFastForward(ctx, localRef, localOid, remoteOid)
	}

	remoteIsAncestor, err := e.store.IsAncestor(ctx, remoteOid, localOid)
	if err != nil {
		return docmodel.SyncResult{}, false, err
	}
	if remoteIsAncestor {
		return e.fatePush(ctx, localRef, localOid)
	}

	localIsAncestor, err := e.store.IsAncestor(ctx, localOid, remoteOid)
	if err != nil {
		return docmodel.SyncResult{}, false, err
	}
	if localIsAncestor {
		return e.fateFastForward(ctx, localRef, localOid, remoteOid)
	}

	return e.fateDiverged(ctx, localRef, localOid, remoteOid)
}

// fatePush: remote is behind (or absent); push local forward. Blocked by a
// pull-only session (§7 PushNotAllowed — the only direction-related kind
// the taxonomy defines; reused here for "this session isn't allowed to
// advance the remote", documented in DESIGN.md).
func (e *Engine) fatePush(ctx context.Context, localRef, localOid string) (docmodel.SyncResult, bool, error) {
	if e.opts.Direction == config.SyncDirectionPull {
		return docmodel.SyncResult{}, false, ddberrors.New(ddberrors.KindPushNotAllowed, "sync direction is pull-only")
	}
	e.setState(StatePushing)
	if err := e.store.Push(ctx, e.remoteName, localRef, e.branch); err != nil {
		return docmodel.SyncResult{}, true, ddberrors.Wrap(ddberrors.KindPushWorker, "push rejected", err)
	}
	return docmodel.SyncResult{Kind: docmodel.SyncPush}, false, nil
}

// fateFastForward: local is behind; adopt remote's tip. Skipped (as a nop,
// not an error — a push-only session simply isn't interested in remote
// advancement this cycle) when the session is push-only.
func (e *Engine) fateFastForward(ctx context.Context, localRef, localOid, remoteOid string) (docmodel.SyncResult, bool, error) {
	if e.opts.Direction == config.SyncDirectionPush {
		return docmodel.SyncResult{Kind: docmodel.SyncNop}, false, nil
	}
	if err := e.store.UpdateRef(ctx, localRef, remoteOid, localOid); err != nil {
		return docmodel.SyncResult{}, false, err
	}
	return docmodel.SyncResult{Kind: docmodel.SyncFastForwardMerge}, false, nil
}

// fateDiverged: neither side is an ancestor of the other. Computes the
// merge base (§4.7 step 3); no base at all routes to the combine path
// (§4.8). Otherwise classifies and resolves every touched path, writes one
// merge commit, and pushes it.
func (e *Engine) fateDiverged(ctx context.Context, localRef, localOid, remoteOid string) (docmodel.SyncResult, bool, error) {
	if e.opts.Direction == config.SyncDirectionPush {
		// A push-only session cannot incorporate remote content, which a
		// merge fundamentally requires.
		return docmodel.SyncResult{}, false, ddberrors.New(ddberrors.KindPushNotAllowed, "sync direction is push-only but histories have diverged")
	}

	mergeBase, err := e.store.MergeBase(ctx, localOid, remoteOid)
	if err != nil {
		return docmodel.SyncResult{}, false, err
	}

	var mergedOid string
	var result docmodel.SyncResult

	if mergeBase == "" {
		if e.opts.CombineDbStrategy == config.CombineThrowError {
			return docmodel.SyncResult{}, false, ddberrors.New(ddberrors.KindNoMergeBaseFound, "local and remote share no common ancestor")
		}
		e.setState(StateWriting)
		mergedOid, result, err = e.combine(ctx, localOid, remoteOid)
		if err != nil {
			return docmodel.SyncResult{}, false, err
		}
	} else {
		e.setState(StateClassifying)
		plans, err := e.classifyAndResolve(ctx, mergeBase, localOid, remoteOid)
		if err != nil {
			return docmodel.SyncResult{}, false, err
		}

		e.setState(StateResolving)
		applied, err := e.applyPlans(ctx, plans)
		if err != nil {
			return docmodel.SyncResult{}, false, err
		}

		e.setState(StateWriting)
		treeOid, err := e.store.WriteTree(ctx, localRef, applied.writes, applied.deletes)
		if err != nil {
			return docmodel.SyncResult{}, false, err
		}
		message := mergeCommitMessage(applied.conflicts)
		mergedOid, err = e.store.Commit(ctx, treeOid, []string{localOid, remoteOid}, message)
		if err != nil {
			return docmodel.SyncResult{}, false, err
		}

		result = docmodel.SyncResult{
			Kind:          syncKindFor(applied.conflicts),
			LocalChanges:  applied.localChanges,
			RemoteChanges: applied.remoteChanges,
			Conflicts:     applied.conflicts,
		}
	}

	if err := e.store.UpdateRef(ctx, localRef, mergedOid, localOid); err != nil {
		return docmodel.SyncResult{}, false, err
	}

	if e.opts.Direction == config.SyncDirectionPull {
		// Merge commit stays local; a future push-enabled sync ships it.
		return result, false, nil
	}

	e.setState(StatePushing)
	if err := e.store.Push(ctx, e.remoteName, localRef, e.branch); err != nil {
		return docmodel.SyncResult{}, true, ddberrors.Wrap(ddberrors.KindPushWorker, "push of merge commit rejected", err)
	}

	if e.opts.IncludeCommits {
		result.Commits = []docmodel.CommitInfo{{OID: mergedOid}}
	}
	return result, false, nil
}

func syncKindFor(conflicts []docmodel.Conflict) docmodel.SyncResultKind {
	if len(conflicts) > 0 {
		return docmodel.SyncResolveConflictsAndPush
	}
	return docmodel.SyncMergeAndPush
}

// mergeCommitMessage renders the §6 normative commit message: "merge" for a
// conflict-free merge, or the comma-joined "resolve: ..." form, sorted by
// path so the message is deterministic regardless of map iteration order.
func mergeCommitMessage(conflicts []docmodel.Conflict) string {
	if len(conflicts) == 0 {
		return "merge"
	}
	entries := make([]string, len(conflicts))
	for i, c := range conflicts {
		entries[i] = merge.FormatResolveEntry(c.FatDoc.Name, c.Operation, c.FatDoc.FileOid, c.Strategy)
	}
	sort.Strings(entries)
	return strings.Join(entries, ", ")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
