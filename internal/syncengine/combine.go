package syncengine

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/gitddb/gitddb/internal/docmodel"
)

// DatabaseInfoPath is the identity marker's storage path. It lives outside
// any document collection and is not synchronized through the document
// APIs (§6) — the combine path is the one place the sync engine touches it
// directly, to adopt the remote's identity per §4.8 step 4.
const DatabaseInfoPath = ".gitddb/info.json"

func (e *Engine) readDatabaseInfo(ctx context.Context, ref string) (docmodel.DatabaseInfo, error) {
	idx, err := treeIndex(ctx, e.store, ref)
	if err != nil {
		return docmodel.DatabaseInfo{}, err
	}
	te, ok := idx[DatabaseInfoPath]
	if !ok {
		return docmodel.DatabaseInfo{}, fmt.Errorf("syncengine: %s not found at %s", DatabaseInfoPath, ref)
	}
	data, err := e.store.ReadObject(ctx, te.OID)
	if err != nil {
		return docmodel.DatabaseInfo{}, err
	}
	var info docmodel.DatabaseInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return docmodel.DatabaseInfo{}, fmt.Errorf("syncengine: decode %s: %w", DatabaseInfoPath, err)
	}
	return info, nil
}

// combine implements §4.8: local and remote share no common ancestor, and
// combineDbStrategy is combine-head-with-theirs. It grafts remote's history
// on as a second parent, unions both trees, duplicates any path that
// collides with differing content, and adopts the remote's database
// identity. It returns the new local commit oid; the caller is responsible
// for moving the local ref and pushing it, same as any other merge commit.
func (e *Engine) combine(ctx context.Context, localOid, remoteOid string) (string, docmodel.SyncResult, error) {
	localIdx, err := treeIndex(ctx, e.store, localOid)
	if err != nil {
		return "", docmodel.SyncResult{}, fmt.Errorf("syncengine: combine: read local tree: %w", err)
	}
	remoteIdx, err := treeIndex(ctx, e.store, remoteOid)
	if err != nil {
		return "", docmodel.SyncResult{}, fmt.Errorf("syncengine: combine: read remote tree: %w", err)
	}
	localInfo, err := e.readDatabaseInfo(ctx, localOid)
	if err != nil {
		return "", docmodel.SyncResult{}, fmt.Errorf("syncengine: combine requires a local database identity: %w", err)
	}

	writes := map[string]string{}
	for p, te := range localIdx {
		writes[p] = te.OID
	}

	var duplicates []docmodel.DuplicatedFile
	for p, te := range remoteIdx {
		if p == DatabaseInfoPath {
			continue
		}
		existing, collides := localIdx[p]
		if !collides || existing.OID == te.OID {
			writes[p] = te.OID
			continue
		}

		dupID := documentID(p) + "-from-" + localInfo.DbID
		dupPath := path.Join(path.Dir(p), dupID+path.Ext(p))
		writes[dupPath] = existing.OID
		writes[p] = te.OID

		original, err := e.loadFatDocFromOid(ctx, p, te.OID, docTypeFor(p))
		if err != nil {
			return "", docmodel.SyncResult{}, fmt.Errorf("syncengine: combine: load remote %s: %w", p, err)
		}
		duplicate, err := e.loadFatDocFromOid(ctx, dupPath, existing.OID, docTypeFor(dupPath))
		if err != nil {
			return "", docmodel.SyncResult{}, fmt.Errorf("syncengine: combine: load local %s: %w", p, err)
		}
		duplicates = append(duplicates, docmodel.DuplicatedFile{Original: *original, Duplicate: *duplicate})
	}

	if te, ok := remoteIdx[DatabaseInfoPath]; ok {
		writes[DatabaseInfoPath] = te.OID
	}

	treeOid, err := e.store.WriteTree(ctx, "", writes, nil)
	if err != nil {
		return "", docmodel.SyncResult{}, fmt.Errorf("syncengine: combine: write-tree: %w", err)
	}
	commitOid, err := e.store.Commit(ctx, treeOid, []string{localOid, remoteOid}, "combine database head with theirs\n")
	if err != nil {
		return "", docmodel.SyncResult{}, fmt.Errorf("syncengine: combine: commit: %w", err)
	}

	result := docmodel.SyncResult{Kind: docmodel.SyncCombineDatabase, Duplicates: duplicates}
	return commitOid, result, nil
}
