package costmap

import (
	"math"
	"testing"
)

func TestNewGrid_Invalid(t *testing.T) {
	if _, err := NewGrid(0, 10, 0.05, 0, 0, FreeSpace); err == nil {
		t.Error("expected error for zero width")
	}
	if _, err := NewGrid(10, 10, 0, 0, 0, FreeSpace); err == nil {
		t.Error("expected error for zero resolution")
	}
	if _, err := NewGrid(10, 10, math.NaN(), 0, 0, FreeSpace); err == nil {
		t.Error("expected error for NaN resolution")
	}
}

func TestWorldToMap(t *testing.T) {
	g, err := NewGrid(10, 20, 0.5, -1, -2, FreeSpace)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}

	tests := []struct {
		x, y   float64
		mx, my uint
		ok     bool
	}{
		{-1, -2, 0, 0, true},
		{-0.51, -1.51, 0, 0, true},
		{-0.5, -1.5, 1, 1, true},
		{3.99, 7.99, 9, 19, true},
		{4.0, 0, 0, 0, false},
		{0, 8.0, 0, 0, false},
		{-1.01, 0, 0, 0, false},
		{math.NaN(), 0, 0, 0, false},
	}

	for _, tt := range tests {
		mx, my, ok := g.WorldToMap(tt.x, tt.y)
		if ok != tt.ok {
			t.Errorf("WorldToMap(%v, %v) ok = %v, want %v", tt.x, tt.y, ok, tt.ok)
			continue
		}
		if ok && (mx != tt.mx || my != tt.my) {
			t.Errorf("WorldToMap(%v, %v) = (%d, %d), want (%d, %d)", tt.x, tt.y, mx, my, tt.mx, tt.my)
		}
	}
}

func TestCostAt_OutsideIsNoInformation(t *testing.T) {
	g, _ := NewGrid(4, 4, 1, 0, 0, LethalObstacle)

	if got := CostAt(g, 2, 2); got != LethalObstacle {
		t.Errorf("CostAt inside = %v, want lethal", got)
	}
	if got := CostAt(g, 10, 2); got != NoInformation {
		t.Errorf("CostAt outside = %v, want unknown", got)
	}
	if got := g.Cost(4, 0); got != NoInformation {
		t.Errorf("Cost out of range = %v, want unknown", got)
	}
}

func TestParseRows(t *testing.T) {
	g, err := ParseRows([]string{
		"#??",
		".+#",
	}, 1, 0, 0)
	if err != nil {
		t.Fatalf("ParseRows: %v", err)
	}

	// First row is the top of the map.
	if got := g.Cost(0, 1); got != LethalObstacle {
		t.Errorf("cell (0,1) = %v, want lethal", got)
	}
	if got := g.Cost(1, 1); got != NoInformation {
		t.Errorf("cell (1,1) = %v, want unknown", got)
	}
	if got := g.Cost(0, 0); got != FreeSpace {
		t.Errorf("cell (0,0) = %v, want free", got)
	}
	if got := g.Cost(1, 0); got != InscribedInflated {
		t.Errorf("cell (1,0) = %v, want inscribed", got)
	}
	if got := g.Cost(2, 0); got != LethalObstacle {
		t.Errorf("cell (2,0) = %v, want lethal", got)
	}

	if _, err := ParseRows([]string{"..", "."}, 1, 0, 0); err == nil {
		t.Error("expected error for ragged rows")
	}
	if _, err := ParseRows([]string{"x"}, 1, 0, 0); err == nil {
		t.Error("expected error for unknown rune")
	}
}

func TestDrawSegmentAndLethalCells(t *testing.T) {
	g, _ := NewGrid(20, 20, 0.1, 0, 0, FreeSpace)
	g.DrawSegment(0.05, 0.05, 1.95, 0.05, LethalObstacle)

	cells := g.LethalCells()
	if len(cells) != 20 {
		t.Fatalf("expected a full row of 20 lethal cells, got %d", len(cells))
	}
	for _, c := range cells {
		if math.Abs(c[1]-0.05) > 1e-9 {
			t.Errorf("lethal cell off the drawn row: %v", c)
		}
	}
}

func TestFillRect(t *testing.T) {
	g, _ := NewGrid(10, 10, 1, 0, 0, FreeSpace)
	g.FillRect(2, 2, 4, 4, LethalObstacle)

	if len(g.LethalCells()) != 4 {
		t.Errorf("expected 4 cells with centres inside [2,4]², got %d", len(g.LethalCells()))
	}
}

func TestRaycast(t *testing.T) {
	g, _ := NewGrid(100, 10, 0.1, 0, 0, FreeSpace)
	g.DrawSegment(5.05, 0, 5.05, 0.99, LethalObstacle)

	d := Raycast(g, 0.05, 0.5, 0, 20)
	if math.Abs(d-4.95) > 0.03 {
		t.Errorf("Raycast to wall = %v, want ≈4.95", d)
	}

	if d := Raycast(g, 0.05, 0.5, math.Pi, 20); !math.IsInf(d, 1) {
		t.Errorf("Raycast away from wall = %v, want +Inf", d)
	}
	if d := Raycast(g, 0.05, 0.5, 0, 2); !math.IsInf(d, 1) {
		t.Errorf("Raycast beyond max range = %v, want +Inf", d)
	}
}

func TestCostString(t *testing.T) {
	if LethalObstacle.String() != "lethal" || Cost(7).String() != "cost(7)" {
		t.Errorf("unexpected Cost strings: %q %q", LethalObstacle.String(), Cost(7).String())
	}
}
