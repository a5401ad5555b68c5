package monitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/localiser/internal/localiser/controller"
	"github.com/banshee-data/localiser/internal/localiser/costmap"
	"github.com/banshee-data/localiser/internal/localiser/geom"
	"github.com/banshee-data/localiser/internal/localiser/particles"
)

// CloudPlotter records the estimated trajectory, an optional ground truth
// trajectory and the latest particle cloud, and renders them over the
// map's lethal cells.
type CloudPlotter struct {
	mu sync.Mutex

	grid          *costmap.Grid
	particleColor RGBA

	estimates plotter.XYs
	truth     plotter.XYs
	last      []particles.Particle
	steps     int
}

// NewCloudPlotter creates a plotter over grid. A nil grid plots without
// the map layer.
func NewCloudPlotter(grid *costmap.Grid, particleColor RGBA) *CloudPlotter {
	return &CloudPlotter{grid: grid, particleColor: particleColor}
}

// Publish implements controller.Publisher.
func (cp *CloudPlotter) Publish(_ context.Context, s controller.Snapshot) error {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	cp.steps++
	cp.last = s.Particles
	if s.HasEstimate {
		cp.estimates = append(cp.estimates, plotter.XY{X: s.Estimate.X, Y: s.Estimate.Y})
	}
	return nil
}

// AddTruth appends a ground-truth pose to the reference trajectory.
func (cp *CloudPlotter) AddTruth(pose geom.Transform) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.truth = append(cp.truth, plotter.XY{X: pose.Translation.X, Y: pose.Translation.Y})
}

// SampleCount returns the number of snapshots recorded.
func (cp *CloudPlotter) SampleCount() int {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.steps
}

// Save renders a PNG (or any format gonum/plot infers from the
// extension) to path.
func (cp *CloudPlotter) Save(path string) error {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	if cp.steps == 0 && len(cp.truth) == 0 {
		return fmt.Errorf("nothing to plot")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Localisation - %d steps", cp.steps)
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	if cp.grid != nil {
		cells := cp.grid.LethalCells()
		if len(cells) > 0 {
			pts := make(plotter.XYs, len(cells))
			for i, c := range cells {
				pts[i] = plotter.XY{X: c[0], Y: c[1]}
			}
			walls, err := plotter.NewScatter(pts)
			if err != nil {
				return err
			}
			walls.GlyphStyle.Color = Black.RGBA(1).NRGBA()
			walls.GlyphStyle.Radius = vg.Points(1.5)
			p.Add(walls)
		}
	}

	if len(cp.last) > 0 {
		pts := make(plotter.XYs, len(cp.last))
		for i, pt := range cp.last {
			pts[i] = plotter.XY{X: pt.Pose.Translation.X, Y: pt.Pose.Translation.Y}
		}
		cloud, err := plotter.NewScatter(pts)
		if err != nil {
			return err
		}
		cloud.GlyphStyle.Color = cp.particleColor.NRGBA()
		cloud.GlyphStyle.Radius = vg.Points(1)
		p.Add(cloud)
		p.Legend.Add("particles", cloud)
	}

	if len(cp.truth) > 1 {
		line, err := plotter.NewLine(cp.truth)
		if err != nil {
			return err
		}
		line.Color = Green.RGBA(1).NRGBA()
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add("truth", line)
	}

	if len(cp.estimates) > 1 {
		line, err := plotter.NewLine(cp.estimates)
		if err != nil {
			return err
		}
		line.Color = Blue.RGBA(1).NRGBA()
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add("estimate", line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("save cloud plot: %w", err)
	}
	return nil
}

// FormatTimestamp generates a timestamp string for file naming.
func FormatTimestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// PlotPath returns baseDir/<name>_<timestamp>.png.
func PlotPath(baseDir, name string, t time.Time) string {
	return filepath.Join(baseDir, fmt.Sprintf("%s_%s.png", name, FormatTimestamp(t)))
}
