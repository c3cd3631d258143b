package merge

import (
	"testing"

	"github.com/gitddb/gitddb/internal/docmodel"
)

func TestClassify(t *testing.T) {
	present := func(oid string, v any) Side { return Side{Present: true, FileOid: oid, Value: v} }

	tests := []struct {
		name              string
		base, ours, theirs Side
		wantCase          docmodel.MergeCase
		wantNonInteracting bool
	}{
		{"both absent", absentSide(), absentSide(), absentSide(), 0, true},
		{"theirs added", absentSide(), absentSide(), present("a", 1), docmodel.CaseTheirsAdded, false},
		{"ours added", absentSide(), present("a", 1), absentSide(), docmodel.CaseOursAdded, false},
		{"both added same", absentSide(), present("a", 1), present("a", 1), docmodel.CaseBothAddedSame, false},
		{"both added differ", absentSide(), present("a", 1), present("b", 2), docmodel.CaseBothAddedDifferOurs, false},
		{"both deleted", present("base", 0), absentSide(), absentSide(), docmodel.CaseBothDeleted, false},
		{"theirs kept, ours deleted", present("base", 0), absentSide(), present("base", 0), docmodel.CaseTheirsKeptOursDeleted, false},
		{"update vs delete", present("base", 0), present("upd", 1), absentSide(), docmodel.CaseUpdateVsDelete, false},
		{"theirs removed cleanly", present("base", 0), present("base", 0), absentSide(), docmodel.CaseTheirsRemovedCleanly, false},
		{"delete vs update", present("base", 0), absentSide(), present("upd", 1), docmodel.CaseDeleteVsUpdate, false},
		{"both unchanged", present("base", 0), present("base", 0), present("base", 0), 0, true},
		{"fast-forward theirs", present("base", 0), present("base", 0), present("upd", 1), docmodel.CaseFastForwardTheirs, false},
		{"fast-forward ours", present("base", 0), present("upd", 1), present("base", 0), docmodel.CaseFastForwardOurs, false},
		{"both updated same", present("base", 0), present("upd", 1), present("upd", 1), docmodel.CaseBothUpdatedSame, false},
		{"both updated differ", present("base", 0), present("a", 1), present("b", 2), docmodel.CaseConflictOursDefault, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.base, tt.ours, tt.theirs)
			if c.NonInteracting != tt.wantNonInteracting {
				t.Fatalf("NonInteracting = %v, want %v", c.NonInteracting, tt.wantNonInteracting)
			}
			if !tt.wantNonInteracting && c.Case != tt.wantCase {
				t.Errorf("Case = %v, want %v", c.Case, tt.wantCase)
			}
		})
	}
}

func TestEqualSidesPrefersOidWhenBothKnown(t *testing.T) {
	a := Side{Present: true, FileOid: "same", Value: map[string]any{"x": float64(1)}}
	b := Side{Present: true, FileOid: "same", Value: map[string]any{"x": float64(2)}}
	if !equalSides(a, b) {
		t.Errorf("equalSides should trust matching oids even when decoded Values differ")
	}
}

func TestEqualSidesFallsBackToCanonWithoutOid(t *testing.T) {
	a := Side{Present: true, Value: map[string]any{"x": float64(1), "y": float64(2)}}
	b := Side{Present: true, Value: map[string]any{"y": float64(2), "x": float64(1)}}
	if !equalSides(a, b) {
		t.Errorf("equalSides should treat key-order-only differences as equal via canon.Equal")
	}
}
