// Package docmodel defines the data types exchanged across every gitddb
// boundary: documents, their FatDoc metadata envelope, the outcomes of a
// local mutation, and the variants produced by a sync run. None of these
// types know how to read or write a Git repository; that belongs to
// internal/gitstore. This package is pure data plus the small amount of
// classification logic (tagging a ChangedFile, a SyncResult) that every
// consumer needs to agree on.
package docmodel

import "fmt"

// Document is a JSON object identified by ID. It has no opinion on storage
// location; Path derives one from ID plus Extension.
type Document struct {
	ID         string
	Value      map[string]any
	Extension  string // ".json", ".md", ".yml"/".yaml"
}

// Path returns the storage-relative path for this document under a
// collection root, e.g. "issues/1.json".
func (d Document) Path(collectionPath string) string {
	ext := d.Extension
	if ext == "" {
		ext = ".json"
	}
	return collectionPath + d.ID + ext
}

// DocType tags the serialization family a FatDoc was read as.
type DocType string

const (
	DocTypeJSON  DocType = "json"
	DocTypeOther DocType = "other"
)

// FatDoc is a document plus the metadata needed to exchange it across a
// sync boundary: its identifier, its storage name (path with extension),
// the blob object identifier of its canonical bytes, and a type tag.
type FatDoc struct {
	ID    string
	Name  string // storage name, i.e. path with extension
	FileOid string
	Type  DocType
	Doc   *Document // nil for a FatDoc describing a deletion
}

// CommitInfo is the commit descriptor attached to PutResult, DeleteResult,
// and to entries produced by the history traversal (internal/history).
type CommitInfo struct {
	OID       string
	Author    Identity
	Committer Identity
	Timestamp int64 // unix seconds
	Message   string
}

// Identity is a commit's author or committer.
type Identity struct {
	Name  string
	Email string
}

// PutResult is the outcome of a local put.
type PutResult struct {
	ID       string
	Name     string
	FileOid  string
	CommitOid string
	Commit   CommitInfo
}

// DeleteResult is the outcome of a local delete.
type DeleteResult struct {
	ID        string
	Name      string
	FileOid   string // oid of the blob that existed before deletion
	CommitOid string
	Commit    CommitInfo
}

// ChangeOp tags the shape of a ChangedFile.
type ChangeOp string

const (
	ChangeInsert ChangeOp = "insert"
	ChangeUpdate ChangeOp = "update"
	ChangeDelete ChangeOp = "delete"
)

// ChangedFile is a tagged variant describing one path's transition during a
// sync run: insert{new}, update{old,new}, or delete{old}.
type ChangedFile struct {
	Op  ChangeOp
	Old *FatDoc // nil for insert
	New *FatDoc // nil for delete
}

// Strategy selects which side a conflict resolver accepts. The five
// variants in the specification; Custom carries a user function evaluated
// at resolution time (see internal/merge.UserStrategyFunc).
type Strategy string

const (
	StrategyOurs       Strategy = "ours"
	StrategyTheirs     Strategy = "theirs"
	StrategyOursProp   Strategy = "ours-prop"
	StrategyTheirsProp Strategy = "theirs-prop"
	StrategyCustom     Strategy = "custom"
)

// Conflict is one resolved path: the resulting document, the operation
// that produced it, and which strategy decided the outcome.
type Conflict struct {
	FatDoc    FatDoc
	Strategy  Strategy
	Operation ChangeOp
}

// MergeCase identifies one of the seventeen three-way merge patterns
// classified by internal/merge.Classify.
type MergeCase int

const (
	CaseTheirsAdded MergeCase = iota + 1 // 1
	CaseOursAdded                        // 2
	CaseBothAddedSame                    // 3
	CaseBothAddedDifferOurs              // 4
	CaseBothAddedDifferTheirs            // 5
	CaseBothDeleted                      // 6
	CaseTheirsKeptOursDeleted            // 7
	CaseUpdateVsDelete                   // 8
	CaseDeleteVsUpdate                   // 9
	CaseTheirsRemovedCleanly             // 10
	CaseDeleteVsUpdateSymmetric          // 11
	CaseDeleteAndRecreate                // 12
	CaseBothUpdatedSame                  // 13
	CaseFastForwardTheirs                // 14
	CaseFastForwardOurs                  // 15
	CaseConflictOursDefault              // 16
	CaseConflictTheirsDefault            // 17
)

func (c MergeCase) String() string {
	return fmt.Sprintf("case-%d", int(c))
}

// IsConflict reports whether a case requires resolver input rather than
// having a unique deterministic outcome.
func (c MergeCase) IsConflict() bool {
	switch c {
	case CaseBothAddedDifferOurs, CaseBothAddedDifferTheirs,
		CaseUpdateVsDelete, CaseDeleteVsUpdate,
		CaseDeleteVsUpdateSymmetric, CaseDeleteAndRecreate,
		CaseConflictOursDefault, CaseConflictTheirsDefault:
		return true
	default:
		return false
	}
}

// SyncResultKind tags the outcome of a sync run.
type SyncResultKind string

const (
	SyncNop                    SyncResultKind = "nop"
	SyncPush                   SyncResultKind = "push"
	SyncFastForwardMerge       SyncResultKind = "fast-forward-merge"
	SyncMergeAndPush           SyncResultKind = "merge-and-push"
	SyncResolveConflictsAndPush SyncResultKind = "resolve-conflicts-and-push"
	SyncCombineDatabase        SyncResultKind = "combine-database"
	SyncCanceled               SyncResultKind = "canceled"
)

// DuplicatedFile names one path duplicated during a combine (§4.8).
type DuplicatedFile struct {
	Original  FatDoc
	Duplicate FatDoc
}

// SyncResult is the tagged variant returned by a completed sync task.
type SyncResult struct {
	Kind           SyncResultKind
	Commits        []CommitInfo
	LocalChanges   []ChangedFile
	RemoteChanges  []ChangedFile
	Conflicts      []Conflict
	Duplicates     []DuplicatedFile
}

// HasChanges reports whether this result represents any observable change,
// used by callers deciding whether to emit "change" events.
func (r SyncResult) HasChanges() bool {
	return len(r.LocalChanges) > 0 || len(r.RemoteChanges) > 0 || len(r.Conflicts) > 0 || len(r.Duplicates) > 0
}

// DatabaseInfo is the identity marker persisted under .gitddb/, read once
// at open and updated by the combine path (§4.8 step 4) when adopting a
// remote's database identifier.
type DatabaseInfo struct {
	DbID    string `json:"db_id"`
	DbName  string `json:"db_name"`
	Creator string `json:"creator"`
	Version int    `json:"version"`
}
