package jsondiff

import (
	"testing"

	"github.com/gitddb/gitddb/internal/canon"
)

func TestDiffObjects(t *testing.T) {
	tests := []struct {
		name       string
		a, b       map[string]any
		wantFields []string
	}{
		{"no change", map[string]any{"x": float64(1)}, map[string]any{"x": float64(1)}, nil},
		{"add field", map[string]any{}, map[string]any{"x": float64(1)}, []string{"x"}},
		{"remove field", map[string]any{"x": float64(1)}, map[string]any{}, []string{"x"}},
		{"update field", map[string]any{"x": float64(1)}, map[string]any{"x": float64(2)}, []string{"x"}},
		{
			"nested object change",
			map[string]any{"x": map[string]any{"y": float64(1)}},
			map[string]any{"x": map[string]any{"y": float64(2)}},
			[]string{"x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Diff(tt.a, tt.b)
			if len(tt.wantFields) == 0 {
				if !d.Empty() {
					t.Fatalf("Diff(%v, %v) = %+v, want empty", tt.a, tt.b, d)
				}
				return
			}
			for _, k := range tt.wantFields {
				if _, ok := d.Fields[k]; !ok {
					t.Errorf("Diff(%v, %v) missing field change for %q", tt.a, tt.b, k)
				}
			}
		})
	}
}

func TestNestedUpdateIsTaggedNested(t *testing.T) {
	a := map[string]any{"x": map[string]any{"y": float64(1)}}
	b := map[string]any{"x": map[string]any{"y": float64(2)}}
	d := Diff(a, b)
	fc := d.Fields["x"]
	if fc == nil {
		t.Fatalf("expected a field change for x")
	}
	if fc.Op != OpNested {
		t.Errorf("Op = %v, want OpNested", fc.Op)
	}
	if fc.Child == nil || fc.Child.Empty() {
		t.Errorf("expected a non-empty child delta")
	}
}

func TestApplyRoundTrips(t *testing.T) {
	tests := []struct {
		name string
		a, b map[string]any
	}{
		{"add", map[string]any{}, map[string]any{"x": float64(1)}},
		{"remove", map[string]any{"x": float64(1)}, map[string]any{}},
		{"update", map[string]any{"x": float64(1)}, map[string]any{"x": float64(2)}},
		{
			"nested",
			map[string]any{"x": map[string]any{"y": float64(1), "z": float64(9)}},
			map[string]any{"x": map[string]any{"y": float64(2), "z": float64(9)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Diff(tt.a, tt.b)
			got := Apply(tt.a, d)
			if !canon.Equal(got, tt.b) {
				gotBytes, _ := canon.Serialize(got)
				wantBytes, _ := canon.Serialize(tt.b)
				t.Errorf("Apply(a, Diff(a,b)) = %s, want %s", gotBytes, wantBytes)
			}
		})
	}
}

func TestDiffArrays(t *testing.T) {
	a := []any{float64(1), float64(2), float64(3)}
	b := []any{float64(1), float64(9)}

	d := Diff(a, b)
	if !d.IsArray {
		t.Fatalf("expected an array-shaped delta")
	}
	got := Apply(a, d)
	if !canon.Equal(got, []any{float64(1), float64(9)}) {
		t.Errorf("unexpected array apply result: %#v", got)
	}
}

func TestDeltaEmptyOnNilReceiver(t *testing.T) {
	var d *Delta
	if !d.Empty() {
		t.Errorf("nil *Delta should be Empty")
	}
}
