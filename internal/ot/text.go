package ot

import (
	"sort"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// charOp is one character-level insert or delete, positioned against
// whatever base string it was diffed from. Exactly one of insert/delLen is
// set, mirroring the insert-xor-remove shape of Op above but at character
// rather than path granularity.
type charOp struct {
	pos    int
	insert string
	delLen int
}

// charOpsFromDiff reduces a diffmatchpatch edit script to a position-keyed
// list of inserts and deletes against base.
func charOpsFromDiff(base, changed string) []charOp {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(base, changed, false)
	var ops []charOp
	pos := 0
	for _, d := range diffs {
		n := len([]rune(d.Text))
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			pos += n
		case diffmatchpatch.DiffDelete:
			ops = append(ops, charOp{pos: pos, delLen: n})
			pos += n
		case diffmatchpatch.DiffInsert:
			ops = append(ops, charOp{pos: pos, insert: d.Text})
		}
	}
	return ops
}

// transformCharOps adjusts ops' positions for the edits in against, which
// are assumed to already be baked into the string ops will next be applied
// to. An insert in against shifts every later position forward by its
// length; a delete shifts every position at or past its end backward by its
// length, and clamps any position it straddles down to its start. Ties at
// the same position (simultaneous inserts) break left-before-right on
// BiasLeft, matching Transform's left-wins default.
func transformCharOps(ops, against []charOp, bias Bias) []charOp {
	out := make([]charOp, len(ops))
	copy(out, ops)
	for _, a := range against {
		switch {
		case a.insert != "":
			n := len([]rune(a.insert))
			for i := range out {
				if a.pos < out[i].pos || (a.pos == out[i].pos && bias == BiasRight) {
					out[i].pos += n
				}
			}
		case a.delLen > 0:
			end := a.pos + a.delLen
			for i := range out {
				switch {
				case end <= out[i].pos:
					out[i].pos -= a.delLen
				case a.pos < out[i].pos:
					out[i].pos = a.pos
				}
			}
		}
	}
	return out
}

// applyCharOps applies ops to s, processing rightmost-position-first so an
// earlier op's position is never invalidated by a later op's mutation.
func applyCharOps(s string, ops []charOp) string {
	sorted := make([]charOp, len(ops))
	copy(sorted, ops)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].pos > sorted[j].pos })

	r := []rune(s)
	for _, op := range sorted {
		pos := op.pos
		if pos > len(r) {
			pos = len(r)
		}
		if op.delLen > 0 {
			end := pos + op.delLen
			if end > len(r) {
				end = len(r)
			}
			r = append(r[:pos], r[end:]...)
		}
		if op.insert != "" {
			ins := []rune(op.insert)
			tail := append([]rune{}, r[pos:]...)
			r = append(append(r[:pos], ins...), tail...)
		}
	}
	return string(r)
}

// MergeText three-way merges a string leaf that both ours and theirs
// changed relative to base, character by character, instead of letting one
// side's whole value win outright (§8 Scenario B). Edits that touch
// disjoint character ranges combine; bias only decides ordering when both
// sides inserted at the exact same position.
func MergeText(base, ours, theirs string, bias Bias) string {
	opsOurs := charOpsFromDiff(base, ours)
	opsTheirs := charOpsFromDiff(base, theirs)

	transformed := transformCharOps(opsOurs, opsTheirs, bias)
	return applyCharOps(applyCharOps(base, opsTheirs), transformed)
}
