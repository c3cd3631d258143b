package ot

import "testing"

// TestMergeTextCombinesNonOverlappingEdits is spec.md §8 Scenario B: a
// trailing insert on one side and a middle delete on the other touch
// disjoint character ranges and must both survive the merge.
func TestMergeTextCombinesNonOverlappingEdits(t *testing.T) {
	base := "Hello, world!"
	ours := "Hello, world! Hello, Nara!"
	theirs := "Hello"

	got := MergeText(base, ours, theirs, BiasLeft)
	want := "Hello Hello, Nara!"
	if got != want {
		t.Errorf("MergeText(BiasLeft) = %q, want %q", got, want)
	}
}

func TestMergeTextIsSymmetricUnderBias(t *testing.T) {
	base := "Hello, world!"
	ours := "Hello, world! Hello, Nara!"
	theirs := "Hello"

	got := MergeText(base, ours, theirs, BiasRight)
	want := "Hello Hello, Nara!"
	if got != want {
		t.Errorf("MergeText(BiasRight) = %q, want %q", got, want)
	}
}

func TestMergeTextReturnsUnchangedWhenNeitherSideEdited(t *testing.T) {
	if got := MergeText("same", "same", "same", BiasLeft); got != "same" {
		t.Errorf("MergeText with no edits = %q, want %q", got, "same")
	}
}
