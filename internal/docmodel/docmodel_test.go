package docmodel

import "testing"

func TestMergeCaseStringFormat(t *testing.T) {
	if got, want := CaseBothAddedSame.String(), "case-3"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestMergeCaseIsConflict(t *testing.T) {
	conflicting := []MergeCase{
		CaseBothAddedDifferOurs, CaseBothAddedDifferTheirs,
		CaseUpdateVsDelete, CaseDeleteVsUpdate,
		CaseDeleteVsUpdateSymmetric, CaseDeleteAndRecreate,
		CaseConflictOursDefault, CaseConflictTheirsDefault,
	}
	for _, c := range conflicting {
		if !c.IsConflict() {
			t.Errorf("%v.IsConflict() = false, want true", c)
		}
	}

	nonConflicting := []MergeCase{
		CaseTheirsAdded, CaseOursAdded, CaseBothAddedSame, CaseBothDeleted,
		CaseTheirsKeptOursDeleted, CaseTheirsRemovedCleanly, CaseBothUpdatedSame,
		CaseFastForwardTheirs, CaseFastForwardOurs,
	}
	for _, c := range nonConflicting {
		if c.IsConflict() {
			t.Errorf("%v.IsConflict() = true, want false", c)
		}
	}
}

func TestSyncResultHasChanges(t *testing.T) {
	if (SyncResult{Kind: SyncNop}).HasChanges() {
		t.Errorf("a result with no changed paths should report no changes")
	}
	if !(SyncResult{Kind: SyncMergeAndPush, LocalChanges: []ChangedFile{{}}}).HasChanges() {
		t.Errorf("a result with local changes should report changes")
	}
	if !(SyncResult{Kind: SyncCombineDatabase, Duplicates: []DuplicatedFile{{}}}).HasChanges() {
		t.Errorf("a result with duplicates should report changes")
	}
}
