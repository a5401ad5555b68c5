package monitor

import (
	"context"
	"fmt"
	"image/color"
	"sync"
	"time"

	"github.com/banshee-data/localiser/internal/localiser/controller"
	"github.com/banshee-data/localiser/internal/localiser/particles"
)

// Color names a marker palette entry.
type Color int

const (
	Red Color = iota
	Green
	Blue
	White
	Grey
	DarkGrey
	Black
	Yellow
	Orange
	Brown
	Pink
	LimeGreen
	Purple
	Cyan
	Magenta
	NumColors
)

var palette = [NumColors][3]float64{
	Red:       {0.8, 0.1, 0.1},
	Green:     {0.1, 0.8, 0.1},
	Blue:      {0.1, 0.1, 0.8},
	White:     {1.0, 1.0, 1.0},
	Grey:      {0.9, 0.9, 0.9},
	DarkGrey:  {0.6, 0.6, 0.6},
	Black:     {0.0, 0.0, 0.0},
	Yellow:    {1.0, 1.0, 0.0},
	Orange:    {1.0, 0.5, 0.0},
	Brown:     {0.597, 0.296, 0.0},
	Pink:      {1.0, 0.4, 1.0},
	LimeGreen: {0.6, 1.0, 0.2},
	Purple:    {0.597, 0.0, 0.597},
	Cyan:      {0.0, 1.0, 1.0},
	Magenta:   {1.0, 0.0, 1.0},
}

// RGBA is a colour with components in [0, 1].
type RGBA struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	A float64 `json:"a"`
}

// RGBA returns the palette colour with the given alpha. Unknown colours
// are transparent black.
func (c Color) RGBA(alpha float64) RGBA {
	if c < 0 || c >= NumColors {
		return RGBA{}
	}
	p := palette[c]
	return RGBA{R: p[0], G: p[1], B: p[2], A: alpha}
}

// NRGBA converts to an image colour for plotting.
func (c RGBA) NRGBA() color.NRGBA {
	return color.NRGBA{R: unit8(c.R), G: unit8(c.G), B: unit8(c.B), A: unit8(c.A)}
}

// Hex formats the colour as #rrggbb, ignoring alpha.
func (c RGBA) Hex() string {
	n := c.NRGBA()
	return fmt.Sprintf("#%02x%02x%02x", n.R, n.G, n.B)
}

func unit8(v float64) uint8 {
	return uint8(max(0, min(1, v))*255 + 0.5)
}

// Marker is an arrow drawn at one particle pose.
type Marker struct {
	ID          int        `json:"id"`
	FrameID     string     `json:"frame_id"`
	Stamp       time.Time  `json:"stamp"`
	Type        string     `json:"type"`
	Action      string     `json:"action"`
	Position    [3]float64 `json:"position"`
	Orientation [4]float64 `json:"orientation"` // x, y, z, w
	Scale       [3]float64 `json:"scale"`
	Color       RGBA       `json:"color"`
}

// MarkerArray is one published particle cloud.
type MarkerArray struct {
	FilterID string   `json:"filter_id"`
	Step     int      `json:"step"`
	Markers  []Marker `json:"markers"`
}

// Arrow marker dimensions in metres.
var arrowScale = [3]float64{0.1, 0.01, 0.01}

// BuildMarkers returns one arrow per particle, ids 0..N-1.
func BuildMarkers(ps []particles.Particle, c RGBA, frameID string, stamp time.Time) []Marker {
	out := make([]Marker, len(ps))
	for i, p := range ps {
		t, q := p.Pose.Translation, p.Pose.Rotation
		out[i] = Marker{
			ID:          i,
			FrameID:     frameID,
			Stamp:       stamp,
			Type:        "arrow",
			Action:      "add",
			Position:    [3]float64{t.X, t.Y, t.Z},
			Orientation: [4]float64{q.Imag, q.Jmag, q.Kmag, q.Real},
			Scale:       arrowScale,
			Color:       c,
		}
	}
	return out
}

// MarkerPublisher turns controller snapshots into marker arrays and fans
// them out to subscribers. With no subscribers Publish does nothing.
type MarkerPublisher struct {
	mu      sync.Mutex
	frameID string
	color   RGBA
	subs    map[int]chan MarkerArray
	nextSub int
	latest  *MarkerArray
}

// NewMarkerPublisher creates a publisher drawing in frameID with colour c.
func NewMarkerPublisher(frameID string, c RGBA) *MarkerPublisher {
	return &MarkerPublisher{
		frameID: frameID,
		color:   c,
		subs:    make(map[int]chan MarkerArray),
	}
}

// Subscribe registers a receiver. The channel holds up to buffer arrays;
// slow receivers miss updates rather than blocking the controller. Call
// the returned function to unsubscribe.
func (mp *MarkerPublisher) Subscribe(buffer int) (<-chan MarkerArray, func()) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	id := mp.nextSub
	mp.nextSub++
	ch := make(chan MarkerArray, max(buffer, 1))
	mp.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			mp.mu.Lock()
			defer mp.mu.Unlock()
			delete(mp.subs, id)
			close(ch)
		})
	}
}

// SubscriberCount returns the number of active subscriptions.
func (mp *MarkerPublisher) SubscriberCount() int {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return len(mp.subs)
}

// Latest returns the most recently published array.
func (mp *MarkerPublisher) Latest() (MarkerArray, bool) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	if mp.latest == nil {
		return MarkerArray{}, false
	}
	return *mp.latest, true
}

// Publish implements controller.Publisher.
func (mp *MarkerPublisher) Publish(_ context.Context, s controller.Snapshot) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if len(mp.subs) == 0 {
		return nil
	}

	arr := MarkerArray{
		FilterID: s.FilterID,
		Step:     s.Step,
		Markers:  BuildMarkers(s.Particles, mp.color, mp.frameID, s.Stamp),
	}
	mp.latest = &arr

	for _, ch := range mp.subs {
		select {
		case ch <- arr:
		default:
		}
	}
	return nil
}
