// Package merge implements the three-way merge classifier (§4.3) and the
// conflict-resolution policy (§4.4). The classifier looks only at the
// presence/oid/value triple for one path across base, ours, and theirs and
// produces a MergeCase; the policy maps a MergeCase plus a Strategy to a
// concrete outcome, delegating to internal/ot for property-level merges.
//
// This package is adapted from the teacher's Issue-specific 3-way merge
// (internal/merge/merge.go in the original tree, vendored there from
// neongreen/beads-merge): the same "classify by presence, then by sameness
// against base" shape, generalized from a fixed Issue struct to arbitrary
// JSON documents addressed by jsondiff/ot rather than per-field rules.
package merge

import (
	"github.com/gitddb/gitddb/internal/canon"
	"github.com/gitddb/gitddb/internal/docmodel"
)

// Side is one side's state for a single path: base, ours, or theirs.
type Side struct {
	Present bool
	FileOid string
	Value   any // decoded JSON value; nil when Present is false or non-JSON
}

func absentSide() Side { return Side{} }

// sameAsBase reports whether s represents no change relative to base: both
// absent, or both present with the same blob oid (§3 invariant 3 — oid
// depends only on canonical content, so oid equality is content equality).
func sameAsBase(s, base Side) bool {
	if !s.Present && !base.Present {
		return true
	}
	if s.Present != base.Present {
		return false
	}
	return s.FileOid == base.FileOid
}

// equalSides reports whether two present sides hold the same content. When
// both sides carry a real blob oid, that oid is authoritative (content-
// addressed storage guarantees identical content hashes identically, and
// different oids mean different bytes even for non-JSON document types
// where Value is never decoded). The canon.Equal fallback only applies when
// at least one side's oid is not yet known — e.g. a Side assembled from an
// in-memory value before it has been hashed — where the §4.3 edge case
// (values differing only in unordered-map key order) is resolved by
// comparing canonical serializations instead.
func equalSides(a, b Side) bool {
	if a.Present != b.Present {
		return false
	}
	if !a.Present {
		return true
	}
	if a.FileOid != "" && b.FileOid != "" {
		return a.FileOid == b.FileOid
	}
	return canon.Equal(a.Value, b.Value)
}

// Classification is the classifier's full output for one path: the case
// number, or NonInteracting when there is nothing to merge.
type Classification struct {
	Case       docmodel.MergeCase
	NonInteracting bool // true when neither side changed the path (absent everywhere, or unchanged on both sides): not reported at all
}

// Classify implements the 17-case table in §4.3. Cases 4/5 and 11/12/8/9/16/17
// are the spec's acknowledged ambiguous region (§9 Open Questions): this
// implementation always classifies the "both sides touched the path and
// disagree" situation as the lower-numbered case in each symmetric pair
// (4 over 5, 8/9 cover the two delete-vs-update directions, 16 over 17) and
// lets Resolve relabel the Conflict's audit case when the selected
// strategy is the theirs-biased one, per DESIGN.md's Open Question
// decision.
func Classify(base, ours, theirs Side) Classification {
	if !base.Present {
		switch {
		case !ours.Present && !theirs.Present:
			return Classification{NonInteracting: true}
		case !ours.Present && theirs.Present:
			return Classification{Case: docmodel.CaseTheirsAdded}
		case ours.Present && !theirs.Present:
			return Classification{Case: docmodel.CaseOursAdded}
		default: // both present
			if equalSides(ours, theirs) {
				return Classification{Case: docmodel.CaseBothAddedSame}
			}
			return Classification{Case: docmodel.CaseBothAddedDifferOurs}
		}
	}

	oursDeleted := !ours.Present
	theirsDeleted := !theirs.Present
	oursUnchanged := ours.Present && sameAsBase(ours, base)
	theirsUnchanged := theirs.Present && sameAsBase(theirs, base)
	oursUpdated := ours.Present && !oursUnchanged
	theirsUpdated := theirs.Present && !theirsUnchanged

	switch {
	case oursDeleted && theirsDeleted:
		return Classification{Case: docmodel.CaseBothDeleted}
	case oursUnchanged && theirsDeleted:
		return Classification{Case: docmodel.CaseTheirsRemovedCleanly}
	case oursUpdated && theirsDeleted:
		return Classification{Case: docmodel.CaseUpdateVsDelete}
	case oursDeleted && theirsUnchanged:
		return Classification{Case: docmodel.CaseTheirsKeptOursDeleted}
	case oursDeleted && theirsUpdated:
		return Classification{Case: docmodel.CaseDeleteVsUpdate}
	case oursUnchanged && theirsUnchanged:
		return Classification{NonInteracting: true}
	case oursUnchanged && theirsUpdated:
		return Classification{Case: docmodel.CaseFastForwardTheirs}
	case oursUpdated && theirsUnchanged:
		return Classification{Case: docmodel.CaseFastForwardOurs}
	case oursUpdated && theirsUpdated:
		if equalSides(ours, theirs) {
			return Classification{Case: docmodel.CaseBothUpdatedSame}
		}
		return Classification{Case: docmodel.CaseConflictOursDefault}
	}
	// Unreachable: the above switch is exhaustive over the three
	// {deleted, unchanged, updated} states for each side.
	return Classification{NonInteracting: true}
}
