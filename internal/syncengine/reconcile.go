package syncengine

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/gitddb/gitddb/internal/canon"
	"github.com/gitddb/gitddb/internal/docmodel"
	"github.com/gitddb/gitddb/internal/gitstore"
	"github.com/gitddb/gitddb/internal/merge"
)

// maxParallelClassify bounds how many paths are classified concurrently in
// one merge, grounded on OpenMined-syftbox's reconcile step fanning out
// per-path work with a bounded worker pool rather than one goroutine per
// path unconditionally.
const maxParallelClassify = 8

func treeIndex(ctx context.Context, store *gitstore.Store, ref string) (map[string]gitstore.TreeEntry, error) {
	entries, err := store.ReadTree(ctx, ref)
	if err != nil {
		return nil, err
	}
	idx := make(map[string]gitstore.TreeEntry, len(entries))
	for _, te := range entries {
		if te.Type != "blob" {
			continue
		}
		idx[te.Path] = te
	}
	return idx, nil
}

// buildTreeIndex is treeIndex with the database identity marker filtered
// out, since it is not a synchronized document (§6).
func (e *Engine) buildTreeIndex(ctx context.Context, ref string) (map[string]gitstore.TreeEntry, error) {
	idx, err := treeIndex(ctx, e.store, ref)
	if err != nil {
		return nil, err
	}
	delete(idx, DatabaseInfoPath)
	return idx, nil
}

func unionPaths(maps ...map[string]gitstore.TreeEntry) []string {
	seen := map[string]struct{}{}
	for _, m := range maps {
		for p := range m {
			seen[p] = struct{}{}
		}
	}
	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func documentID(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}

func docTypeFor(p string) docmodel.DocType {
	if strings.HasSuffix(p, ".json") {
		return docmodel.DocTypeJSON
	}
	return docmodel.DocTypeOther
}

func asObject(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return nil
}

func (e *Engine) loadSide(ctx context.Context, idx map[string]gitstore.TreeEntry, p string) (merge.Side, error) {
	te, ok := idx[p]
	if !ok {
		return merge.Side{}, nil
	}
	data, err := e.store.ReadObject(ctx, te.OID)
	if err != nil {
		return merge.Side{}, err
	}
	value, parseErr := canon.Parse(data)
	if parseErr != nil {
		value = nil // non-JSON document (e.g. front-matter); merged purely by oid
	}
	return merge.Side{Present: true, FileOid: te.OID, Value: value}, nil
}

func (e *Engine) loadFatDocFromOid(ctx context.Context, p, oid string, docType docmodel.DocType) (*docmodel.FatDoc, error) {
	data, err := e.store.ReadObject(ctx, oid)
	if err != nil {
		return nil, err
	}
	value, _ := canon.Parse(data)
	return &docmodel.FatDoc{
		ID:      documentID(p),
		Name:    p,
		FileOid: oid,
		Type:    docType,
		Doc:     &docmodel.Document{ID: documentID(p), Value: asObject(value), Extension: path.Ext(p)},
	}, nil
}

func fatDocFromSide(p string, s merge.Side) *docmodel.FatDoc {
	if !s.Present {
		return nil
	}
	return &docmodel.FatDoc{
		ID:      documentID(p),
		Name:    p,
		FileOid: s.FileOid,
		Type:    docTypeFor(p),
		Doc:     &docmodel.Document{ID: documentID(p), Value: asObject(s.Value), Extension: path.Ext(p)},
	}
}

func sideDiffers(base, s merge.Side) bool {
	if base.Present != s.Present {
		return true
	}
	if !base.Present {
		return false
	}
	return base.FileOid != s.FileOid
}

func changedFile(p string, base, side merge.Side) docmodel.ChangedFile {
	old := fatDocFromSide(p, base)
	neu := fatDocFromSide(p, side)
	op := docmodel.ChangeUpdate
	switch {
	case old == nil:
		op = docmodel.ChangeInsert
	case neu == nil:
		op = docmodel.ChangeDelete
	}
	return docmodel.ChangedFile{Op: op, Old: old, New: neu}
}

// pathPlan is what classifyAndResolve produces for one changed path.
type pathPlan struct {
	path           string
	classification merge.Classification
	outcome        merge.Outcome
	base, ours, theirs merge.Side
}

// classifyAndResolve walks every path touched since baseRef on either side
// (§4.7 step 4), classifying and resolving each in parallel — paths are
// independent of one another by construction (each is its own document),
// so there is nothing to synchronize beyond collecting results.
func (e *Engine) classifyAndResolve(ctx context.Context, baseRef, localRef, remoteRef string) ([]pathPlan, error) {
	baseIdx, err := e.buildTreeIndex(ctx, baseRef)
	if err != nil {
		return nil, fmt.Errorf("syncengine: read base tree: %w", err)
	}
	localIdx, err := e.buildTreeIndex(ctx, localRef)
	if err != nil {
		return nil, fmt.Errorf("syncengine: read local tree: %w", err)
	}
	remoteIdx, err := e.buildTreeIndex(ctx, remoteRef)
	if err != nil {
		return nil, fmt.Errorf("syncengine: read remote tree: %w", err)
	}

	paths := unionPaths(baseIdx, localIdx, remoteIdx)
	plans := make([]pathPlan, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelClassify)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			base, err := e.loadSide(gctx, baseIdx, p)
			if err != nil {
				return fmt.Errorf("syncengine: load base %s: %w", p, err)
			}
			ours, err := e.loadSide(gctx, localIdx, p)
			if err != nil {
				return fmt.Errorf("syncengine: load ours %s: %w", p, err)
			}
			theirs, err := e.loadSide(gctx, remoteIdx, p)
			if err != nil {
				return fmt.Errorf("syncengine: load theirs %s: %w", p, err)
			}

			c := merge.Classify(base, ours, theirs)
			plan := pathPlan{path: p, classification: c, base: base, ours: ours, theirs: theirs}
			if !c.NonInteracting {
				outcome, resolveErr := merge.Resolve(c, base, ours, theirs,
					e.opts.ConflictResolutionStrategy, e.custom,
					fatDocFromSide(p, ours), fatDocFromSide(p, theirs))
				if resolveErr != nil {
					return fmt.Errorf("syncengine: resolve %s: %w", p, resolveErr)
				}
				plan.outcome = outcome
			}
			plans[i] = plan
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return plans, nil
}

// mergeResult is what applying a set of pathPlans to the object store
// produces: the tree writes/deletes, the audit-facing conflict records, and
// the before/after change lists for event reporting.
type mergeResult struct {
	writes        map[string]string
	deletes       []string
	conflicts     []docmodel.Conflict
	localChanges  []docmodel.ChangedFile
	remoteChanges []docmodel.ChangedFile
}

func (e *Engine) applyPlans(ctx context.Context, plans []pathPlan) (mergeResult, error) {
	res := mergeResult{writes: map[string]string{}}
	for _, plan := range plans {
		if plan.classification.NonInteracting {
			continue
		}

		if plan.outcome.Deleted {
			res.deletes = append(res.deletes, plan.path)
		} else {
			data, err := canon.Serialize(plan.outcome.Value)
			if err != nil {
				return mergeResult{}, fmt.Errorf("syncengine: serialize merged %s: %w", plan.path, err)
			}
			oid, err := e.store.WriteObject(ctx, data)
			if err != nil {
				return mergeResult{}, fmt.Errorf("syncengine: write merged %s: %w", plan.path, err)
			}
			res.writes[plan.path] = oid
		}

		if plan.classification.Case.IsConflict() {
			fat := docmodel.FatDoc{ID: documentID(plan.path), Name: plan.path, Type: docTypeFor(plan.path)}
			if !plan.outcome.Deleted {
				fat.FileOid = res.writes[plan.path]
				fat.Doc = &docmodel.Document{ID: documentID(plan.path), Value: asObject(plan.outcome.Value), Extension: path.Ext(plan.path)}
			}
			res.conflicts = append(res.conflicts, docmodel.Conflict{
				FatDoc:    fat,
				Strategy:  plan.outcome.StrategyUsed,
				Operation: plan.outcome.Operation,
			})
		}

		if sideDiffers(plan.base, plan.ours) {
			res.localChanges = append(res.localChanges, changedFile(plan.path, plan.base, plan.ours))
		}
		if sideDiffers(plan.base, plan.theirs) {
			res.remoteChanges = append(res.remoteChanges, changedFile(plan.path, plan.base, plan.theirs))
		}
	}
	return res, nil
}
