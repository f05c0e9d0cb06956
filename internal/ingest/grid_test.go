package ingest

import "testing"

func TestIsEmptyRow(t *testing.T) {
	tests := []struct {
		name string
		row  []string
		want bool
	}{
		{name: "nil row", row: nil, want: true},
		{name: "all blank", row: []string{"", "  ", ""}, want: true},
		{name: "pandas artifacts", row: []string{"nan", "NaN", "None"}, want: true},
		{name: "mostly blank", row: []string{"x", "", "", "", ""}, want: true},
		{name: "half filled", row: []string{"a", "b", "", ""}, want: false},
		{name: "full row", row: []string{"99213", "Office visit", "1.30"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsEmptyRow(tt.row, 0.8); got != tt.want {
				t.Errorf("IsEmptyRow(%v) = %v, want %v", tt.row, got, tt.want)
			}
		})
	}
}

func TestGridCell(t *testing.T) {
	g := RawGrid{{" a ", "b"}, {"c"}}

	if got := g.Cell(0, 0); got != "a" {
		t.Errorf("Cell(0,0) = %q, want a", got)
	}
	if got := g.Cell(0, 5); got != "" {
		t.Errorf("out-of-range column = %q, want empty", got)
	}
	if got := g.Cell(9, 0); got != "" {
		t.Errorf("out-of-range row = %q, want empty", got)
	}
	if got := g.NumRows(); got != 2 {
		t.Errorf("NumRows = %d, want 2", got)
	}
}
