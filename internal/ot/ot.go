// Package ot implements the property-level operational-transformation
// patch layer (§4.5): a patch is an ordered sequence of path-keyed
// operations derived from a jsondiff.Delta, applied to a base document, and
// transformed against a concurrent patch with a deterministic tie-break.
//
// Only the JSON-object use case is required: property insert, property
// remove, and property replace (modeled as remove then insert at the same
// path). There are no array operations: a changed array value is replaced
// whole, as a property replace — the document model's top-level value is
// always a JSON object (§4.5).
package ot

import (
	"sort"
	"strings"

	"github.com/gitddb/gitddb/internal/jsondiff"
)

// Action tags what an Op does at its Path.
type Action string

const (
	ActionInsert  Action = "i" // {i: value}
	ActionRemove  Action = "r" // {r: value}
	ActionSubtree Action = "p" // {p: operation} — nested patch at Path
)

// Op is one path-keyed operation.
type Op struct {
	Path   []string
	Action Action
	Value  any    // insert/remove payload
	Sub    Patch  // subtree payload, when Action == ActionSubtree
	seq    int    // creation order, used only as a final tie-break
}

func (o *Op) key() string { return strings.Join(o.Path, "/") }

// Patch is an ordered operation sequence. The required order (§4.5) is
// deepest-path first, then latest-created-path first, so that
// apply(a, fromDiff(d)) equals apply-diff(a, d) under canonical
// serialization regardless of which peer produced the patch.
type Patch []*Op

// FromDelta linearizes a jsondiff.Delta produced against the same base
// into a deterministically ordered Patch.
func FromDelta(d *jsondiff.Delta) Patch {
	seq := 0
	p := fromDelta(nil, d, &seq)
	sortPatch(p)
	return p
}

func fromDelta(path []string, d *jsondiff.Delta, seq *int) Patch {
	if d.Empty() {
		return nil
	}
	var out Patch
	// Stable key order: sort field names so two equal deltas always
	// produce the same op sequence before the final depth/seq sort.
	keys := make([]string, 0, len(d.Fields))
	for k := range d.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fc := d.Fields[k]
		childPath := append(append([]string{}, path...), k)
		if fc.Op == jsondiff.OpNested && fc.Child.IsArray {
			fc = &jsondiff.FieldChange{Op: jsondiff.OpUpdate, Old: fc.Old, New: fc.New}
		}
		switch fc.Op {
		case jsondiff.OpAdd:
			out = append(out, &Op{Path: childPath, Action: ActionInsert, Value: fc.New, seq: next(seq)})
		case jsondiff.OpRemove:
			out = append(out, &Op{Path: childPath, Action: ActionRemove, Value: fc.Old, seq: next(seq)})
		case jsondiff.OpUpdate:
			// Property replace: remove then insert at the same path. The
			// insert is created first so that the latest-created-first
			// order applies the remove before it.
			out = append(out, &Op{Path: childPath, Action: ActionInsert, Value: fc.New, seq: next(seq)})
			out = append(out, &Op{Path: childPath, Action: ActionRemove, Value: fc.Old, seq: next(seq)})
		case jsondiff.OpNested:
			sub := fromDelta(nil, fc.Child, seq)
			sortPatch(sub)
			out = append(out, &Op{Path: childPath, Action: ActionSubtree, Sub: sub, seq: next(seq)})
		}
	}
	return out
}

func next(seq *int) int {
	*seq++
	return *seq
}

func sortPatch(p Patch) {
	sort.SliceStable(p, func(i, j int) bool {
		if len(p[i].Path) != len(p[j].Path) {
			return len(p[i].Path) > len(p[j].Path) // deepest first
		}
		if p[i].seq != p[j].seq {
			return p[i].seq > p[j].seq // latest-created first
		}
		return p[i].key() < p[j].key()
	})
}

// Apply applies patch to base in order, returning the resulting value.
// base and the result are map[string]any (or nested thereof); a nil base
// is treated as an empty object.
func Apply(base any, patch Patch) any {
	obj, ok := base.(map[string]any)
	if !ok {
		obj = map[string]any{}
	}
	out := cloneShallow(obj)
	for _, op := range patch {
		out = applyOp(out, op)
	}
	return out
}

func applyOp(root map[string]any, op *Op) map[string]any {
	if len(op.Path) == 0 {
		return root
	}
	return setPath(root, op.Path, op)
}

func setPath(root map[string]any, path []string, op *Op) map[string]any {
	out := cloneShallow(root)
	head := path[0]
	if len(path) == 1 {
		switch op.Action {
		case ActionInsert:
			out[head] = op.Value
		case ActionRemove:
			delete(out, head)
		case ActionSubtree:
			child, _ := out[head].(map[string]any)
			out[head] = Apply(child, op.Sub)
		}
		return out
	}
	child, _ := out[head].(map[string]any)
	out[head] = setPath(child, path[1:], op)
	return out
}

func cloneShallow(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Bias selects which side wins when two ops collide on the same path.
type Bias string

const (
	BiasLeft  Bias = "left"
	BiasRight Bias = "right"
)

// Opposite returns the complementary bias, used by callers re-deriving
// b' = transform(b, a, opposite(bias)) per the transform contract.
func Opposite(b Bias) Bias {
	if b == BiasLeft {
		return BiasRight
	}
	return BiasLeft
}

// Transform returns a' such that applying b then a' has the same effect as
// applying a then b' (where b' = Transform(b, a, Opposite(bias))). Ops on
// disjoint paths pass through unchanged — this is what makes the diamond
// property (§8 property 4) hold for any pair of non-overlapping edits.
// Ops that collide on the exact same path are kept only on the winning
// side, as selected by bias.
func Transform(a, against Patch, bias Bias) Patch {
	collides := map[string]bool{}
	for _, op := range against {
		collides[op.key()] = true
	}
	out := make(Patch, 0, len(a))
	for _, op := range a {
		if !collides[op.key()] {
			out = append(out, op)
			continue
		}
		if bias == BiasLeft {
			out = append(out, op) // left wins: keep our op
			continue
		}
		// right wins: drop this op, unless it is a subtree op whose
		// children can be transformed independently of the colliding
		// peer subtree — recurse to preserve non-overlapping grandchildren.
		if op.Action == ActionSubtree {
			peer := findOp(against, op.key())
			if peer != nil && peer.Action == ActionSubtree {
				sub := Transform(op.Sub, peer.Sub, bias)
				if len(sub) > 0 {
					out = append(out, &Op{Path: op.Path, Action: ActionSubtree, Sub: sub, seq: op.seq})
				}
			}
		}
	}
	sortPatch(out)
	return out
}

func findOp(p Patch, key string) *Op {
	for _, op := range p {
		if op.key() == key {
			return op
		}
	}
	return nil
}
