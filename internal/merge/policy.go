package merge

import (
	"fmt"

	"github.com/gitddb/gitddb/internal/docmodel"
	"github.com/gitddb/gitddb/internal/jsondiff"
	"github.com/gitddb/gitddb/internal/ot"
)

// UserStrategyFunc is the dynamic tie-break variant of Strategy: given the
// ours/theirs FatDocs (either may be nil if that side deleted the path),
// it returns which side to accept.
type UserStrategyFunc func(ours, theirs *docmodel.FatDoc) docmodel.Strategy

// Outcome is the concrete result of resolving one path.
type Outcome struct {
	Deleted      bool
	Value        any // decoded JSON result, valid when !Deleted
	Operation    docmodel.ChangeOp
	Case         docmodel.MergeCase // possibly relabeled for audit (4<->5, 16<->17)
	StrategyUsed docmodel.Strategy
}

// Resolve maps a Classification plus a Strategy to a concrete Outcome. For
// non-conflicting cases the strategy is accepted but ignored — the outcome
// is already fully determined by the classifier.
func Resolve(
	c Classification,
	base, ours, theirs Side,
	strategy docmodel.Strategy,
	custom UserStrategyFunc,
	oursFat, theirsFat *docmodel.FatDoc,
) (Outcome, error) {
	switch c.Case {
	case docmodel.CaseTheirsAdded:
		return Outcome{Value: theirs.Value, Operation: docmodel.ChangeInsert, Case: c.Case}, nil
	case docmodel.CaseOursAdded:
		return Outcome{Value: ours.Value, Operation: docmodel.ChangeInsert, Case: c.Case}, nil
	case docmodel.CaseBothAddedSame:
		return Outcome{Value: ours.Value, Operation: docmodel.ChangeInsert, Case: c.Case}, nil
	case docmodel.CaseBothDeleted:
		return Outcome{Deleted: true, Operation: docmodel.ChangeDelete, Case: c.Case}, nil
	case docmodel.CaseTheirsKeptOursDeleted, docmodel.CaseTheirsRemovedCleanly:
		return Outcome{Deleted: true, Operation: docmodel.ChangeDelete, Case: c.Case}, nil
	case docmodel.CaseBothUpdatedSame:
		return Outcome{Value: ours.Value, Operation: docmodel.ChangeUpdate, Case: c.Case}, nil
	case docmodel.CaseFastForwardTheirs:
		return Outcome{Value: theirs.Value, Operation: docmodel.ChangeUpdate, Case: c.Case}, nil
	case docmodel.CaseFastForwardOurs:
		return Outcome{Value: ours.Value, Operation: docmodel.ChangeUpdate, Case: c.Case}, nil

	case docmodel.CaseBothAddedDifferOurs, docmodel.CaseUpdateVsDelete,
		docmodel.CaseDeleteVsUpdate, docmodel.CaseConflictOursDefault:
		return resolveConflict(c, base, ours, theirs, strategy, custom, oursFat, theirsFat)
	}
	return Outcome{}, fmt.Errorf("merge: classifier returned non-interacting or unknown case %v", c.Case)
}

func resolveConflict(
	c Classification,
	base, ours, theirs Side,
	strategy docmodel.Strategy,
	custom UserStrategyFunc,
	oursFat, theirsFat *docmodel.FatDoc,
) (Outcome, error) {
	effective := strategy
	if strategy == docmodel.StrategyCustom {
		if custom == nil {
			return Outcome{}, fmt.Errorf("merge: strategy is custom but no resolver function was supplied")
		}
		picked := custom(oursFat, theirsFat)
		if picked != docmodel.StrategyOurs && picked != docmodel.StrategyTheirs {
			return Outcome{}, fmt.Errorf("merge: custom resolver returned invalid strategy %q", picked)
		}
		effective = picked
	}

	switch effective {
	case docmodel.StrategyOurs:
		return sideOutcome(c, ours, docmodel.StrategyOurs), nil
	case docmodel.StrategyTheirs:
		return sideOutcome(relabelForTheirs(c), theirs, docmodel.StrategyTheirs), nil

	case docmodel.StrategyOursProp, docmodel.StrategyTheirsProp:
		// Property-level OT merge requires both sides present as JSON
		// objects (§4.4); a delete-vs-update conflict can't be diffed on
		// the deleted side, so it falls back to the plain ours/theirs
		// semantics of the requested bias (documented Open-Question
		// decision, DESIGN.md).
		if !ours.Present || !theirs.Present {
			if effective == docmodel.StrategyOursProp {
				return sideOutcome(c, ours, docmodel.StrategyOursProp), nil
			}
			return sideOutcome(relabelForTheirs(c), theirs, docmodel.StrategyTheirsProp), nil
		}
		merged := mergeProperty(base.Value, ours.Value, theirs.Value, effective)
		return Outcome{Value: merged, Operation: docmodel.ChangeUpdate, Case: c.Case, StrategyUsed: effective}, nil
	}
	return Outcome{}, fmt.Errorf("merge: unsupported strategy %q", strategy)
}

func sideOutcome(c Classification, s Side, strategy docmodel.Strategy) Outcome {
	if !s.Present {
		return Outcome{Deleted: true, Operation: docmodel.ChangeDelete, Case: c.Case, StrategyUsed: strategy}
	}
	op := docmodel.ChangeUpdate
	if c.Case == docmodel.CaseBothAddedDifferOurs || c.Case == docmodel.CaseBothAddedDifferTheirs {
		op = docmodel.ChangeInsert
	}
	return Outcome{Value: s.Value, Operation: op, Case: c.Case, StrategyUsed: strategy}
}

// relabelForTheirs converts the lower-numbered member of a symmetric
// conflict pair (4/5, 16/17) to its theirs-biased twin purely for audit
// purposes; classification never emits the higher-numbered member
// directly (§9 Open Questions, resolved in DESIGN.md).
func relabelForTheirs(c Classification) Classification {
	switch c.Case {
	case docmodel.CaseBothAddedDifferOurs:
		return Classification{Case: docmodel.CaseBothAddedDifferTheirs}
	case docmodel.CaseConflictOursDefault:
		return Classification{Case: docmodel.CaseConflictTheirsDefault}
	default:
		return c
	}
}

// mergeProperty implements §4.4 steps 1-5: diff each side against base,
// linearize into operation sequences, transform ours against theirs with
// the requested bias, then apply theirs' ops followed by the transformed
// ours' ops to base. A sixth pass then revisits every leaf both sides
// changed to a different string: jsondiff/ot treat strings as opaque
// whole-value leaves, so the path-level Transform above already picked a
// single winner for those paths (§8 Scenario B needs the two edits
// combined instead, via ot.MergeText's character-level pass).
func mergeProperty(base, ours, theirs any, strategy docmodel.Strategy) any {
	if base == nil {
		base = map[string]any{}
	}
	diffOurs := jsondiff.Diff(base, ours)
	diffTheirs := jsondiff.Diff(base, theirs)

	opsOurs := ot.FromDelta(diffOurs)
	opsTheirs := ot.FromDelta(diffTheirs)

	bias := ot.BiasLeft
	if strategy == docmodel.StrategyTheirsProp {
		bias = ot.BiasRight
	}
	transformedOurs := ot.Transform(opsOurs, opsTheirs, bias)

	merged := ot.Apply(base, opsTheirs)
	merged = ot.Apply(merged, transformedOurs)

	if mergedObj, ok := merged.(map[string]any); ok {
		mergeCollidingStrings(mergedObj, diffOurs, diffTheirs, bias)
	}
	return merged
}

// mergeCollidingStrings walks diffOurs and diffTheirs in lockstep and, for
// every key both deltas touched with an OpUpdate whose base/ours/theirs
// values are all strings, replaces obj's whole-value-replace result with
// ot.MergeText's character-level merge. Keys both sides touched as a nested
// object (OpNested) recurse the same way jsondiff itself recurses.
func mergeCollidingStrings(obj map[string]any, diffOurs, diffTheirs *jsondiff.Delta, bias ot.Bias) {
	if diffOurs == nil || diffTheirs == nil {
		return
	}
	for k, oursFC := range diffOurs.Fields {
		theirsFC, ok := diffTheirs.Fields[k]
		if !ok {
			continue
		}
		if oursFC.Op == jsondiff.OpNested && theirsFC.Op == jsondiff.OpNested {
			if child, ok := obj[k].(map[string]any); ok {
				mergeCollidingStrings(child, oursFC.Child, theirsFC.Child, bias)
			}
			continue
		}
		if oursFC.Op != jsondiff.OpUpdate || theirsFC.Op != jsondiff.OpUpdate {
			continue
		}
		baseStr, baseIsStr := oursFC.Old.(string)
		oursStr, oursIsStr := oursFC.New.(string)
		theirsStr, theirsIsStr := theirsFC.New.(string)
		if !baseIsStr || !oursIsStr || !theirsIsStr {
			continue
		}
		obj[k] = ot.MergeText(baseStr, oursStr, theirsStr, bias)
	}
}

// ShortOid returns the first 7 hex characters of a blob object identifier,
// as used in commit messages (§6).
func ShortOid(oid string) string {
	if len(oid) <= 7 {
		return oid
	}
	return oid[:7]
}

// FormatResolveEntry renders one "resolve: <path>(<op>,<short-oid>,<strategy>)"
// commit-message segment (§4.4, §6). Callers join multiple entries with ", ".
// A property-level merge is audited as "update-merge" rather than "update",
// per §4.4's operation vocabulary (insert/update/update-merge/delete); the
// distinction lives only in the audit text, since docmodel.ChangeOp has no
// separate constant for it (there is nothing else in the model that needs
// to tell an ordinary update apart from a merged one).
func FormatResolveEntry(path string, op docmodel.ChangeOp, blobOid string, strategy docmodel.Strategy) string {
	opText := string(op)
	if op == docmodel.ChangeUpdate && (strategy == docmodel.StrategyOursProp || strategy == docmodel.StrategyTheirsProp) {
		opText = "update-merge"
	}
	return fmt.Sprintf("resolve: %s(%s,%s,%s)", path, opText, ShortOid(blobOid), strategy)
}
