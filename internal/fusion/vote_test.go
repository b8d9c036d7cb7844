package fusion

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestVote(t *testing.T) {
	flat := Weights{"a": 1, "b": 1, "c": 1}
	tests := []struct {
		name    string
		col     Column
		weights Weights
		anchor  CandidateKey
		want    Cell
	}{
		{name: "empty column", col: Column{}, weights: flat, anchor: "a", want: Gap},
		{name: "all gaps", col: Column{"a": Gap, "b": Gap}, weights: flat, anchor: "a", want: Gap},
		{name: "majority", col: Column{"a": Char('x'), "b": Char('y'), "c": Char('y')}, weights: flat, anchor: "a", want: Char('y')},
		{name: "anchor wins tie", col: Column{"a": Char('z'), "b": Char('y')}, weights: flat, anchor: "a", want: Char('z')},
		{name: "smallest wins tie without anchor", col: Column{"b": Char('z'), "c": Char('y')}, weights: flat, anchor: "a", want: Char('y')},
		{name: "digit bonus beats anchor", col: Column{"a": Char('l'), "b": Char('1')}, weights: flat, anchor: "a", want: Char('1')},
		{name: "diacritic bonus", col: Column{"a": Char('e'), "b": Char('é')}, weights: flat, anchor: "a", want: Char('é')},
		{name: "heavier weight", col: Column{"a": Char('o'), "b": Char('e')}, weights: Weights{"a": 1, "b": 2}, anchor: "a", want: Char('e')},
		{name: "lone inserted space suppressed", col: Column{"a": Gap, "b": Char(' ')}, weights: flat, anchor: "a", want: Gap},
		{name: "supported inserted space kept", col: Column{"a": Gap, "b": Char(' '), "c": Char(' ')}, weights: flat, anchor: "a", want: Char(' ')},
		{name: "anchor space kept", col: Column{"a": Char(' '), "b": Gap}, weights: flat, anchor: "a", want: Char(' ')},
		{name: "lone inserted letter kept", col: Column{"a": Gap, "b": Char('q')}, weights: flat, anchor: "a", want: Char('q')},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Vote(tt.col, tt.weights, tt.anchor)
			if diff := cmp.Diff(tt.want, got, cmp.AllowUnexported(Cell{})); diff != "" {
				t.Fatalf("Vote mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDefaultWeights(t *testing.T) {
	got := DefaultWeights([]CandidateKey{"tess_psm03", "tesseract", "paddle", "easy", "Paddle2", "gold", "custom"})
	want := Weights{
		"tess_psm03": 1.1,
		"tesseract":  1.1,
		"paddle":     1.1,
		"easy":       1.1,
		"Paddle2":    1.1,
		"gold":       1.0,
		"custom":     1.0,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("DefaultWeights mismatch (-want +got):\n%s", diff)
	}
}

func TestWeightFallback(t *testing.T) {
	w := Weights{"zero": 0}
	if got := w.Weight("zero"); got != 1.0 {
		t.Fatalf("Weight(zero) = %v, want 1.0", got)
	}
	if got := w.Weight("absent"); got != 1.0 {
		t.Fatalf("Weight(absent) = %v, want 1.0", got)
	}
}
