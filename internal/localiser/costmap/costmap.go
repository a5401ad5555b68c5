// Package costmap defines the occupancy-grid capability consumed by the
// sensor model, plus a dense in-memory grid used by the simulator and tests.
//
// Cost values follow the navigation-stack convention: 0 free, 253
// inscribed, 254 lethal, 255 no information.
package costmap

import (
	"fmt"
	"math"
)

// Cost is the classification of one grid cell.
type Cost uint8

const (
	FreeSpace         Cost = 0
	InscribedInflated Cost = 253
	LethalObstacle    Cost = 254
	NoInformation     Cost = 255
)

// String returns a short name for well-known costs.
func (c Cost) String() string {
	switch c {
	case FreeSpace:
		return "free"
	case InscribedInflated:
		return "inscribed"
	case LethalObstacle:
		return "lethal"
	case NoInformation:
		return "unknown"
	default:
		return fmt.Sprintf("cost(%d)", uint8(c))
	}
}

// OccupancyGrid is the read-only map capability required by the sensor
// model. Implementations must be safe for concurrent readers if shared
// between filters.
type OccupancyGrid interface {
	// WorldToMap converts world coordinates to cell indices. ok is false
	// when the point lies outside the grid.
	WorldToMap(x, y float64) (mx, my uint, ok bool)
	// Cost returns the classification of cell (mx, my).
	Cost(mx, my uint) Cost
	// Resolution returns the cell edge length in metres.
	Resolution() float64
}

// CostAt looks up the cost at a world position, reporting NoInformation
// for points outside the grid.
func CostAt(g OccupancyGrid, x, y float64) Cost {
	mx, my, ok := g.WorldToMap(x, y)
	if !ok {
		return NoInformation
	}
	return g.Cost(mx, my)
}

// Grid is a dense row-major occupancy grid anchored at a world origin.
// Cell (0, 0) covers [OriginX, OriginX+Res) × [OriginY, OriginY+Res).
type Grid struct {
	Width   uint
	Height  uint
	Res     float64
	OriginX float64
	OriginY float64
	Cells   []Cost
}

// NewGrid allocates a width×height grid with every cell set to fill.
func NewGrid(width, height uint, resolution, originX, originY float64, fill Cost) (*Grid, error) {
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("grid dimensions must be positive, got %dx%d", width, height)
	}
	if !(resolution > 0) || math.IsInf(resolution, 0) {
		return nil, fmt.Errorf("grid resolution must be positive, got %v", resolution)
	}

	cells := make([]Cost, width*height)
	if fill != 0 {
		for i := range cells {
			cells[i] = fill
		}
	}
	return &Grid{
		Width:   width,
		Height:  height,
		Res:     resolution,
		OriginX: originX,
		OriginY: originY,
		Cells:   cells,
	}, nil
}

// Resolution returns the cell edge length in metres.
func (g *Grid) Resolution() float64 { return g.Res }

// WorldToMap converts world coordinates to cell indices.
func (g *Grid) WorldToMap(x, y float64) (mx, my uint, ok bool) {
	if math.IsNaN(x) || math.IsNaN(y) {
		return 0, 0, false
	}
	if x < g.OriginX || y < g.OriginY {
		return 0, 0, false
	}

	fx := math.Floor((x - g.OriginX) / g.Res)
	fy := math.Floor((y - g.OriginY) / g.Res)
	if fx >= float64(g.Width) || fy >= float64(g.Height) {
		return 0, 0, false
	}
	return uint(fx), uint(fy), true
}

// MapToWorld returns the world coordinates of the centre of cell (mx, my).
func (g *Grid) MapToWorld(mx, my uint) (x, y float64) {
	x = g.OriginX + (float64(mx)+0.5)*g.Res
	y = g.OriginY + (float64(my)+0.5)*g.Res
	return x, y
}

// Cost returns the cost of cell (mx, my); out-of-range cells report
// NoInformation.
func (g *Grid) Cost(mx, my uint) Cost {
	if mx >= g.Width || my >= g.Height {
		return NoInformation
	}
	return g.Cells[my*g.Width+mx]
}

// SetCost sets cell (mx, my). Out-of-range writes are ignored.
func (g *Grid) SetCost(mx, my uint, c Cost) {
	if mx >= g.Width || my >= g.Height {
		return
	}
	g.Cells[my*g.Width+mx] = c
}

// MarkLethalWorld marks the cell containing (x, y) as a lethal obstacle and
// reports whether the point fell inside the grid.
func (g *Grid) MarkLethalWorld(x, y float64) bool {
	mx, my, ok := g.WorldToMap(x, y)
	if !ok {
		return false
	}
	g.SetCost(mx, my, LethalObstacle)
	return true
}

// DrawSegment marks every cell crossed by the segment (x0,y0)-(x1,y1) with
// cost c, sampling at half-cell spacing.
func (g *Grid) DrawSegment(x0, y0, x1, y1 float64, c Cost) {
	length := math.Hypot(x1-x0, y1-y0)
	steps := int(math.Ceil(length/(g.Res*0.5))) + 1
	for i := 0; i <= steps; i++ {
		f := float64(i) / float64(steps)
		mx, my, ok := g.WorldToMap(x0+f*(x1-x0), y0+f*(y1-y0))
		if ok {
			g.SetCost(mx, my, c)
		}
	}
}

// FillRect sets every cell whose centre lies inside the axis-aligned
// rectangle to cost c.
func (g *Grid) FillRect(xMin, yMin, xMax, yMax float64, c Cost) {
	for my := uint(0); my < g.Height; my++ {
		for mx := uint(0); mx < g.Width; mx++ {
			x, y := g.MapToWorld(mx, my)
			if x >= xMin && x <= xMax && y >= yMin && y <= yMax {
				g.SetCost(mx, my, c)
			}
		}
	}
}

// LethalCells returns the world-frame centres of all lethal cells.
func (g *Grid) LethalCells() [][2]float64 {
	var out [][2]float64
	for my := uint(0); my < g.Height; my++ {
		for mx := uint(0); mx < g.Width; mx++ {
			if g.Cells[my*g.Width+mx] == LethalObstacle {
				x, y := g.MapToWorld(mx, my)
				out = append(out, [2]float64{x, y})
			}
		}
	}
	return out
}
