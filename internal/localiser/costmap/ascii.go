package costmap

import (
	"fmt"
	"math"
)

// ParseRows builds a grid from an ASCII picture. The first row is the top of
// the map (highest y). Recognised runes:
//
//	'#' lethal   '.' free   '+' inscribed   '?' unknown
func ParseRows(rows []string, resolution, originX, originY float64) (*Grid, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no rows")
	}
	width := len(rows[0])
	for i, r := range rows {
		if len(r) != width {
			return nil, fmt.Errorf("row %d has width %d, want %d", i, len(r), width)
		}
	}

	g, err := NewGrid(uint(width), uint(len(rows)), resolution, originX, originY, FreeSpace)
	if err != nil {
		return nil, err
	}

	for i, r := range rows {
		my := uint(len(rows) - 1 - i)
		for mx, ch := range []byte(r) {
			var c Cost
			switch ch {
			case '#':
				c = LethalObstacle
			case '.', ' ':
				c = FreeSpace
			case '+':
				c = InscribedInflated
			case '?':
				c = NoInformation
			default:
				return nil, fmt.Errorf("row %d col %d: unknown cell %q", i, mx, ch)
			}
			g.SetCost(uint(mx), my, c)
		}
	}
	return g, nil
}

// Raycast walks from (x, y) along heading theta in quarter-cell steps and
// returns the distance to the first lethal cell. It returns +Inf when no
// lethal cell is met within maxRange or the ray leaves the grid.
func Raycast(g OccupancyGrid, x, y, theta, maxRange float64) float64 {
	step := g.Resolution() * 0.25
	s, c := math.Sincos(theta)
	for d := 0.0; d <= maxRange; d += step {
		mx, my, ok := g.WorldToMap(x+d*c, y+d*s)
		if !ok {
			return math.Inf(1)
		}
		if g.Cost(mx, my) == LethalObstacle {
			return d
		}
	}
	return math.Inf(1)
}
