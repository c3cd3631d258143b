// Package database ties the object store, the task queue, the merge
// policy, and the sync engine together into the handle described by §3's
// Lifecycle and §5's concurrency model: one Database per opened repository,
// every mutation serialized through the task queue (invariant 1), an
// optional sync binding with an optional live scheduler on top.
//
// Grounded on the teacher's cmd/bd/sync.go, which acquires a gofrs/flock
// lock on a `.sync.lock` file before touching the repository and on
// internal/storage.Storage's Open/Close lifecycle shape, generalized from a
// SQLite connection handle to a git working tree plus its in-process
// collaborators.
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gitddb/gitddb/internal/canon"
	"github.com/gitddb/gitddb/internal/config"
	"github.com/gitddb/gitddb/internal/ddberrors"
	"github.com/gitddb/gitddb/internal/docmodel"
	"github.com/gitddb/gitddb/internal/gitstore"
	"github.com/gitddb/gitddb/internal/history"
	"github.com/gitddb/gitddb/internal/live"
	"github.com/gitddb/gitddb/internal/logging"
	"github.com/gitddb/gitddb/internal/merge"
	"github.com/gitddb/gitddb/internal/syncengine"
	"github.com/gitddb/gitddb/internal/taskqueue"
)

const (
	gitddbDir    = ".gitddb"
	lockFileName = "sync.lock"
)

// Database is one opened gitddb repository.
type Database struct {
	mu     sync.RWMutex
	closed bool

	opts     *config.Options
	store    *gitstore.Store
	identity gitstore.Identity
	queue    *taskqueue.Queue
	log      zerolog.Logger
	lock     *flock.Flock
	branch   string
	info     docmodel.DatabaseInfo

	engine    *syncengine.Engine
	scheduler *live.Scheduler
	watcher   *live.Watcher

	listenersMu sync.Mutex
	listeners   []syncengine.Emitter

	cancel context.CancelFunc
}

// Open initializes or adopts the repository at opts.LocalDir and wires up
// the task queue and, if configured, the sync engine and live scheduler.
// custom is required only when opts.Sync.ConflictResolutionStrategy is
// docmodel.StrategyCustom.
func Open(ctx context.Context, opts *config.Options, log zerolog.Logger, custom merge.UserStrategyFunc) (*Database, error) {
	opts, err := config.Validate(opts)
	if err != nil {
		return nil, err
	}
	if opts.LocalDir == "" {
		return nil, ddberrors.New(ddberrors.KindRepositoryNotOpen, "localDir is required to open a database")
	}
	if err := os.MkdirAll(filepath.Join(opts.LocalDir, gitddbDir), 0o755); err != nil {
		return nil, fmt.Errorf("database: create %s: %w", gitddbDir, err)
	}

	lock := flock.New(filepath.Join(opts.LocalDir, gitddbDir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("database: acquire write lock: %w", err)
	}
	if !locked {
		return nil, ddberrors.New(ddberrors.KindDatabaseClosing, "another process holds the write lock for this database")
	}

	identity := gitstore.ResolveIdentity(ctx, opts.LocalDir)
	store := gitstore.Open(opts.LocalDir, identity)
	if err := store.Init(ctx); err != nil {
		_, _ = lock.TryLock() // no-op: the lock is already held; it is released below
		_ = lock.Unlock()
		return nil, fmt.Errorf("database: init repository: %w", err)
	}

	dbLog := logging.WithDatabase(log, opts.DbName)
	branch := syncengine.DefaultBranch
	if opts.Sync != nil && opts.Sync.Branch != "" {
		branch = opts.Sync.Branch
	}

	d := &Database{
		opts:     opts,
		store:    store,
		identity: identity,
		log:      dbLog,
		lock:     lock,
		branch:   branch,
	}

	if err := d.ensureInfo(ctx); err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	if opts.Sync != nil {
		remoteURL := authenticatedRemoteURL(opts.Sync.RemoteURL, opts.Sync.AccessToken)
		if err := store.EnsureRemote(ctx, syncengine.DefaultRemoteName, remoteURL); err != nil {
			_ = lock.Unlock()
			return nil, ddberrors.Wrap(ddberrors.KindRemoteRepositoryConnect, "configure remote", err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.queue = taskqueue.New(runCtx, dbLog)

	if opts.Sync != nil {
		d.engine = syncengine.New(store, *opts.Sync, custom, dbLog, d.emit)

		if opts.Sync.Live {
			d.scheduler = live.New(opts.Sync.Interval, opts.Sync.RetryInterval, config.MinimumInterval, d.TriggerSync, dbLog)
			if w, werr := live.NewWatcher(opts.LocalDir, opts.Sync.RetryInterval, dbLog); werr != nil {
				dbLog.Warn().Err(werr).Msg("live watcher unavailable, live sync continues on its timer only")
			} else {
				d.watcher = w
				go w.Run(runCtx, func() { _ = d.TriggerSync() })
			}
			if err := d.scheduler.Start(runCtx); err != nil {
				_ = d.Close(ctx)
				return nil, err
			}
		}
	}

	return d, nil
}

// authenticatedRemoteURL embeds an access token into an http(s) remote URL
// as userinfo, the same scheme a token-authenticated git-over-https clone
// uses; ssh remotes (git@...) carry no token and are passed through as-is,
// matching §6's "authentication is delegated to the collaborator".
func authenticatedRemoteURL(rawURL, token string) string {
	if token == "" {
		return rawURL
	}
	for _, scheme := range []string{"https://", "http://"} {
		if strings.HasPrefix(rawURL, scheme) {
			return scheme + token + "@" + strings.TrimPrefix(rawURL, scheme)
		}
	}
	return rawURL
}

func (d *Database) localRef() string {
	return "refs/heads/" + d.branch
}

// ensureInfo reads the database identity marker from the current branch
// tip, or creates it (in its own commit) the first time a repository is
// opened — the local identifier adopted by a future combine (§4.8 step 4).
func (d *Database) ensureInfo(ctx context.Context) error {
	ref := d.localRef()
	headOid, err := d.store.ResolveRef(ctx, ref)
	if err != nil {
		return fmt.Errorf("database: resolve %s: %w", ref, err)
	}

	if headOid != "" {
		if oid, found, err := d.store.ResolveBlob(ctx, ref, syncengine.DatabaseInfoPath); err != nil {
			return fmt.Errorf("database: read %s: %w", syncengine.DatabaseInfoPath, err)
		} else if found {
			data, err := d.store.ReadObject(ctx, oid)
			if err != nil {
				return err
			}
			var info docmodel.DatabaseInfo
			if err := json.Unmarshal(data, &info); err != nil {
				return fmt.Errorf("database: decode %s: %w", syncengine.DatabaseInfoPath, err)
			}
			d.info = info
			return nil
		}
	}

	info := docmodel.DatabaseInfo{
		DbID:    uuid.NewString(),
		DbName:  d.opts.DbName,
		Creator: d.identity.Name,
		Version: 1,
	}
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	oid, err := d.store.WriteObject(ctx, data)
	if err != nil {
		return err
	}
	treeOid, err := d.store.WriteTree(ctx, ref, map[string]string{syncengine.DatabaseInfoPath: oid}, nil)
	if err != nil {
		return err
	}
	var parents []string
	if headOid != "" {
		parents = []string{headOid}
	}
	commitOid, err := d.store.Commit(ctx, treeOid, parents, "initialize database identity")
	if err != nil {
		return err
	}
	if err := d.store.UpdateRef(ctx, ref, commitOid, headOid); err != nil {
		return err
	}
	d.info = info
	return nil
}

// Info returns the database's identity marker, as read or created at open.
func (d *Database) Info() docmodel.DatabaseInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.info
}

// defaultExtension derives the storage extension a caller-supplied ext of
// "" resolves to, from the open-time serialize option (§6).
func (d *Database) defaultExtension() string {
	if d.opts.Serialize == config.SerializeFrontMatter {
		return ".md"
	}
	return ".json"
}

func docTypeForExtension(ext string) docmodel.DocType {
	if ext == ".json" {
		return docmodel.DocTypeJSON
	}
	return docmodel.DocTypeOther
}

// ValidateID enforces §7's input error kinds for a document identifier: it
// must be non-empty and must not contain characters that would escape its
// collection directory or collide with the reserved `.gitddb/` prefix.
func ValidateID(id string) error {
	if id == "" {
		return ddberrors.New(ddberrors.KindUndefinedDocumentId, "document id must not be empty")
	}
	if strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return ddberrors.New(ddberrors.KindInvalidIdCharacter, fmt.Sprintf("document id %q contains a path-traversal character", id))
	}
	if strings.HasPrefix(id, ".") {
		return ddberrors.New(ddberrors.KindInvalidIdCharacter, fmt.Sprintf("document id %q must not start with '.'", id))
	}
	return nil
}

// Put writes value under id, serialized per ext (defaulting to the
// database's configured extension), as one task-queue-serialized commit.
func (d *Database) Put(ctx context.Context, id string, value map[string]any, ext string) (docmodel.PutResult, error) {
	if err := ValidateID(id); err != nil {
		return docmodel.PutResult{}, err
	}
	if value == nil {
		return docmodel.PutResult{}, ddberrors.New(ddberrors.KindInvalidJsonObject, "document value must be a JSON object")
	}
	if ext == "" {
		ext = d.defaultExtension()
	}

	_, outcome, err := d.queue.Enqueue(taskqueue.KindPut, func(taskCtx context.Context) (any, error) {
		return d.doPut(taskCtx, id, value, ext)
	})
	if err != nil {
		return docmodel.PutResult{}, err
	}
	o := <-outcome
	if o.Canceled {
		return docmodel.PutResult{}, ddberrors.New(ddberrors.KindDatabaseClosing, "put was canceled")
	}
	if o.Err != nil {
		return docmodel.PutResult{}, o.Err
	}
	res, _ := o.Result.(docmodel.PutResult)
	return res, nil
}

func (d *Database) doPut(ctx context.Context, id string, value map[string]any, ext string) (docmodel.PutResult, error) {
	path := id + ext
	data, err := canon.EncodeForExtension(ext, value)
	if err != nil {
		return docmodel.PutResult{}, ddberrors.Wrap(ddberrors.KindInvalidJsonObject, "encode document", err)
	}
	oid, err := d.store.WriteObject(ctx, data)
	if err != nil {
		return docmodel.PutResult{}, err
	}

	ref := d.localRef()
	headOid, err := d.store.ResolveRef(ctx, ref)
	if err != nil {
		return docmodel.PutResult{}, err
	}
	treeOid, err := d.store.WriteTree(ctx, ref, map[string]string{path: oid}, nil)
	if err != nil {
		return docmodel.PutResult{}, err
	}
	var parents []string
	if headOid != "" {
		parents = []string{headOid}
	}
	message := fmt.Sprintf("put %s", id)
	commitOid, err := d.store.Commit(ctx, treeOid, parents, message)
	if err != nil {
		return docmodel.PutResult{}, err
	}
	if err := d.store.UpdateRef(ctx, ref, commitOid, headOid); err != nil {
		return docmodel.PutResult{}, err
	}

	commit := docmodel.CommitInfo{
		OID: commitOid, Author: docmodel.Identity(d.identity), Committer: docmodel.Identity(d.identity),
		Timestamp: time.Now().Unix(), Message: message,
	}
	d.log.Debug().Str("id", id).Str("oid", oid).Msg("put")
	return docmodel.PutResult{ID: id, Name: path, FileOid: oid, CommitOid: commitOid, Commit: commit}, nil
}

// Get reads the current value of id, or KindCannotGetEntry if no such
// document exists at HEAD — the taxonomy's sync-execution kind for "could
// not retrieve an entry", reused here for a local miss since §7 defines no
// separate not-found kind for the local read path (documented in
// DESIGN.md's Open Question decisions).
func (d *Database) Get(ctx context.Context, id, ext string) (*docmodel.FatDoc, error) {
	d.mu.RLock()
	closed := d.closed
	d.mu.RUnlock()
	if closed {
		return nil, ddberrors.New(ddberrors.KindDatabaseClosing, "database is closed")
	}
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if ext == "" {
		ext = d.defaultExtension()
	}
	path := id + ext

	oid, found, err := d.store.ResolveBlob(ctx, d.localRef(), path)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ddberrors.New(ddberrors.KindCannotGetEntry, fmt.Sprintf("no document %q", id))
	}
	data, err := d.store.ReadObject(ctx, oid)
	if err != nil {
		return nil, err
	}
	value, err := canon.DecodeForExtension(ext, data)
	if err != nil {
		return nil, ddberrors.Wrap(ddberrors.KindInvalidJsonObject, "decode document", err)
	}
	obj, _ := value.(map[string]any)
	return &docmodel.FatDoc{
		ID: id, Name: path, FileOid: oid, Type: docTypeForExtension(ext),
		Doc: &docmodel.Document{ID: id, Value: obj, Extension: ext},
	}, nil
}

// Delete removes id as one task-queue-serialized commit.
func (d *Database) Delete(ctx context.Context, id, ext string) (docmodel.DeleteResult, error) {
	if err := ValidateID(id); err != nil {
		return docmodel.DeleteResult{}, err
	}
	if ext == "" {
		ext = d.defaultExtension()
	}

	_, outcome, err := d.queue.Enqueue(taskqueue.KindDelete, func(taskCtx context.Context) (any, error) {
		return d.doDelete(taskCtx, id, ext)
	})
	if err != nil {
		return docmodel.DeleteResult{}, err
	}
	o := <-outcome
	if o.Canceled {
		return docmodel.DeleteResult{}, ddberrors.New(ddberrors.KindDatabaseClosing, "delete was canceled")
	}
	if o.Err != nil {
		return docmodel.DeleteResult{}, o.Err
	}
	res, _ := o.Result.(docmodel.DeleteResult)
	return res, nil
}

func (d *Database) doDelete(ctx context.Context, id, ext string) (docmodel.DeleteResult, error) {
	path := id + ext
	ref := d.localRef()

	oid, found, err := d.store.ResolveBlob(ctx, ref, path)
	if err != nil {
		return docmodel.DeleteResult{}, err
	}
	if !found {
		return docmodel.DeleteResult{}, ddberrors.New(ddberrors.KindCannotGetEntry, fmt.Sprintf("no document %q", id))
	}

	headOid, err := d.store.ResolveRef(ctx, ref)
	if err != nil {
		return docmodel.DeleteResult{}, err
	}
	treeOid, err := d.store.WriteTree(ctx, ref, nil, []string{path})
	if err != nil {
		return docmodel.DeleteResult{}, err
	}
	message := fmt.Sprintf("delete %s", id)
	commitOid, err := d.store.Commit(ctx, treeOid, []string{headOid}, message)
	if err != nil {
		return docmodel.DeleteResult{}, err
	}
	if err := d.store.UpdateRef(ctx, ref, commitOid, headOid); err != nil {
		return docmodel.DeleteResult{}, err
	}

	commit := docmodel.CommitInfo{
		OID: commitOid, Author: docmodel.Identity(d.identity), Committer: docmodel.Identity(d.identity),
		Timestamp: time.Now().Unix(), Message: message,
	}
	d.log.Debug().Str("id", id).Str("oid", oid).Msg("delete")
	return docmodel.DeleteResult{ID: id, Name: path, FileOid: oid, CommitOid: commitOid, Commit: commit}, nil
}

// Sync enqueues and waits for one full sync protocol run (§4.7).
func (d *Database) Sync(ctx context.Context) (docmodel.SyncResult, error) {
	if d.engine == nil {
		return docmodel.SyncResult{}, ddberrors.New(ddberrors.KindUndefinedSync, "database was opened without sync configuration")
	}
	_, outcome, err := d.queue.Enqueue(taskqueue.KindSync, d.runSync)
	if err != nil {
		return docmodel.SyncResult{}, err
	}
	o := <-outcome
	if o.Canceled {
		return docmodel.SyncResult{Kind: docmodel.SyncCanceled}, nil
	}
	if o.Err != nil {
		return docmodel.SyncResult{}, o.Err
	}
	res, _ := o.Result.(docmodel.SyncResult)
	return res, nil
}

// TriggerSync enqueues a sync task without waiting for its outcome — the
// live.SyncFunc the scheduler and the file watcher call on every firing,
// relying on the task queue's own sync-kind coalescing (§4.6) to collapse a
// burst of triggers into one pending run.
func (d *Database) TriggerSync() error {
	if d.engine == nil {
		return nil
	}
	_, _, err := d.queue.Enqueue(taskqueue.KindSync, d.runSync)
	return err
}

func (d *Database) runSync(taskCtx context.Context) (any, error) {
	taskID, _ := taskqueue.TaskIDFromContext(taskCtx)
	return d.engine.Run(taskCtx, taskID)
}

// OnSyncEvent registers a listener for every event the sync engine emits
// (§6). Implementations must not block.
func (d *Database) OnSyncEvent(l syncengine.Emitter) {
	d.listenersMu.Lock()
	defer d.listenersMu.Unlock()
	d.listeners = append(d.listeners, l)
}

func (d *Database) emit(ev syncengine.Event) {
	d.listenersMu.Lock()
	listeners := append([]syncengine.Emitter(nil), d.listeners...)
	d.listenersMu.Unlock()
	for _, l := range listeners {
		l(ev)
	}
}

// PauseLiveSync stops the live scheduler's future firings without
// canceling the binding (§4.9).
func (d *Database) PauseLiveSync() bool {
	if d.scheduler == nil {
		return false
	}
	return d.scheduler.Pause()
}

// ResumeLiveSync re-arms a paused live scheduler (§4.9).
func (d *Database) ResumeLiveSync(opts live.ResumeOptions) error {
	if d.scheduler == nil {
		return ddberrors.New(ddberrors.KindUndefinedSync, "live sync is not enabled")
	}
	return d.scheduler.Resume(opts)
}

// History returns every revision of id's document reachable from HEAD,
// newest first, matching filter.
func (d *Database) History(ctx context.Context, id, ext string, filter history.Filter) ([]history.Entry, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if ext == "" {
		ext = d.defaultExtension()
	}
	return history.Log(ctx, d.opts.LocalDir, d.localRef(), id+ext, filter)
}

// Stats returns the task queue's accumulated counters (§4.6).
func (d *Database) Stats() taskqueue.Stats {
	return d.queue.Stats()
}

// Close stops the live scheduler and watcher, drains and cancels the task
// queue (forced close per §3's Lifecycle), and releases the process-level
// write lock.
func (d *Database) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	if d.scheduler != nil {
		d.scheduler.Cancel()
	}
	if d.watcher != nil {
		_ = d.watcher.Close()
	}
	if d.queue != nil {
		d.queue.Close()
	}
	if d.cancel != nil {
		d.cancel()
	}
	if err := d.lock.Unlock(); err != nil {
		return fmt.Errorf("database: release write lock: %w", err)
	}
	return nil
}
