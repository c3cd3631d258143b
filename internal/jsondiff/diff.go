// Package jsondiff computes a structural delta between two JSON values
// (§4.2). The delta is the shared input to both the three-way merge
// classifier (internal/merge) and the OT patch layer (internal/ot): it
// names exactly which object keys were added, removed, or changed, and
// recurses into nested objects so that a conflict on one property doesn't
// force a replace of its whole parent.
package jsondiff

import (
	"github.com/gitddb/gitddb/internal/canon"
)

// Op tags one field-level or array-element change.
type Op string

const (
	OpAdd    Op = "add"
	OpRemove Op = "remove"
	OpUpdate Op = "update" // leaf value replaced
	OpNested Op = "nested" // value is itself an object/array with its own Delta
)

// FieldChange is one key's transition within an ObjectDelta.
type FieldChange struct {
	Op    Op
	Old   any
	New   any
	Child *Delta // set when Op == OpNested
}

// ArrayChange is one index's transition within an array Delta. Array
// reordering is represented but, per §4.5, not required by the document
// model (top-level documents are JSON objects) — ArrayChange exists so the
// representation is total, not so every caller must implement it.
type ArrayChange struct {
	Op    Op
	Index int
	Old   any
	New   any
	Child *Delta
}

// Delta is the structural edit from value a to value b. IsArray
// disambiguates an array-shaped delta (Items, index-addressed) from an
// object-shaped delta (Fields, key-addressed): without that marker, an
// array delta serialized key-by-key ("0", "1", ...) would be indistinguishable
// from an object literally keyed by numeric strings.
type Delta struct {
	IsArray bool
	Fields  map[string]*FieldChange // object-shaped delta
	Items   []*ArrayChange          // array-shaped delta, ordered by Index
}

// Empty reports whether the delta represents no change at all.
func (d *Delta) Empty() bool {
	if d == nil {
		return true
	}
	return len(d.Fields) == 0 && len(d.Items) == 0
}

// Diff computes the minimal structural delta transforming a into b.
// Deterministic: no random tie-breaks, no map-iteration-order dependence
// in the output (Fields/Items are stable once built; callers that need a
// stable traversal order should sort the Fields keys themselves, as
// internal/ot does when linearizing into an operation sequence).
func Diff(a, b any) *Delta {
	aObj, aIsObj := a.(map[string]any)
	bObj, bIsObj := b.(map[string]any)
	if aIsObj || bIsObj {
		return diffObjects(aObj, bObj)
	}

	aArr, aIsArr := a.([]any)
	bArr, bIsArr := b.([]any)
	if aIsArr || bIsArr {
		return diffArrays(aArr, bArr)
	}

	// Leaf vs leaf (or leaf vs nil): no delta if canonically equal.
	if canon.Equal(a, b) {
		return &Delta{}
	}
	// A delta between two leaves/scalars has no keyed shape; represent it
	// as a single-field delta under a synthetic root key consumed only by
	// callers that already know they are diffing two scalars directly
	// (internal/merge handles whole-document leaf replacement itself and
	// never calls Diff on two non-objects).
	return &Delta{Fields: map[string]*FieldChange{
		"": {Op: OpUpdate, Old: a, New: b},
	}}
}

func diffObjects(a, b map[string]any) *Delta {
	d := &Delta{Fields: map[string]*FieldChange{}}
	keys := map[string]struct{}{}
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}
	for k := range keys {
		av, aok := a[k]
		bv, bok := b[k]
		switch {
		case !aok && bok:
			d.Fields[k] = &FieldChange{Op: OpAdd, New: bv}
		case aok && !bok:
			d.Fields[k] = &FieldChange{Op: OpRemove, Old: av}
		case canon.Equal(av, bv):
			// unchanged, omit
		default:
			if isContainer(av) && isContainer(bv) && sameShape(av, bv) {
				child := Diff(av, bv)
				if !child.Empty() {
					d.Fields[k] = &FieldChange{Op: OpNested, Old: av, New: bv, Child: child}
				}
			} else {
				d.Fields[k] = &FieldChange{Op: OpUpdate, Old: av, New: bv}
			}
		}
	}
	return d
}

func diffArrays(a, b []any) *Delta {
	d := &Delta{IsArray: true}
	// Positional comparison: index-aligned update/add/remove. This is the
	// minimal delta shape the document model actually exercises (§4.5
	// notes array reordering is a stub); it is still a total, deterministic
	// diff for any pair of arrays.
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	for i := 0; i < maxLen; i++ {
		var av, bv any
		aok, bok := i < len(a), i < len(b)
		if aok {
			av = a[i]
		}
		if bok {
			bv = b[i]
		}
		switch {
		case !aok && bok:
			d.Items = append(d.Items, &ArrayChange{Op: OpAdd, Index: i, New: bv})
		case aok && !bok:
			d.Items = append(d.Items, &ArrayChange{Op: OpRemove, Index: i, Old: av})
		case canon.Equal(av, bv):
			// unchanged
		default:
			if isContainer(av) && isContainer(bv) && sameShape(av, bv) {
				child := Diff(av, bv)
				if !child.Empty() {
					d.Items = append(d.Items, &ArrayChange{Op: OpNested, Index: i, Old: av, New: bv, Child: child})
				}
			} else {
				d.Items = append(d.Items, &ArrayChange{Op: OpUpdate, Index: i, Old: av, New: bv})
			}
		}
	}
	return d
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	default:
		return false
	}
}

func sameShape(a, b any) bool {
	_, aObj := a.(map[string]any)
	_, bObj := b.(map[string]any)
	if aObj != bObj {
		return false
	}
	_, aArr := a.([]any)
	_, bArr := b.([]any)
	return aArr == bArr
}

// Apply applies delta to a, returning a new value equal (under canonical
// serialization) to the b that Diff(a, b) was computed from (§8 property 3).
func Apply(a any, d *Delta) any {
	if d.Empty() {
		return a
	}
	if d.IsArray {
		arr, _ := a.([]any)
		return applyArray(arr, d)
	}
	obj, ok := a.(map[string]any)
	if !ok {
		obj = map[string]any{}
	}
	out := make(map[string]any, len(obj)+len(d.Fields))
	for k, v := range obj {
		out[k] = v
	}
	for k, fc := range d.Fields {
		switch fc.Op {
		case OpAdd, OpUpdate:
			out[k] = fc.New
		case OpRemove:
			delete(out, k)
		case OpNested:
			out[k] = Apply(out[k], fc.Child)
		}
	}
	return out
}

func applyArray(a []any, d *Delta) []any {
	maxLen := len(a)
	for _, it := range d.Items {
		if it.Index+1 > maxLen {
			maxLen = it.Index + 1
		}
	}
	out := make([]any, maxLen)
	copy(out, a)
	removed := map[int]bool{}
	for _, it := range d.Items {
		switch it.Op {
		case OpAdd, OpUpdate:
			out[it.Index] = it.New
		case OpRemove:
			removed[it.Index] = true
		case OpNested:
			out[it.Index] = Apply(out[it.Index], it.Child)
		}
	}
	kept := make([]any, 0, len(out)-len(removed))
	for i, v := range out {
		if !removed[i] {
			kept = append(kept, v)
		}
	}
	return kept
}
