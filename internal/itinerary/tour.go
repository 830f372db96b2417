package itinerary

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"tripsync/internal/domain"
)

// Tour camera settings
const (
	TourPitch       = 60.0
	TourZoom        = 17.0
	TourBearingStep = 45.0
	TourDwell       = 1500 * time.Millisecond
	TourTiltTime    = 2 * time.Second
	OverviewPadding = 50
)

// Camera is a viewport pose. A nil Center keeps the current center.
type Camera struct {
	Center  *domain.LngLat
	Zoom    float64
	Pitch   float64
	Bearing float64
}

// Bounds is a south-west / north-east box
type Bounds struct {
	SW domain.LngLat
	NE domain.LngLat
}

// Viewport is a live map camera. Every method returns once the move has
// finished or ctx is done.
type Viewport interface {
	EaseTo(ctx context.Context, cam Camera, duration time.Duration) error
	FlyTo(ctx context.Context, cam Camera) error
	FitBounds(ctx context.Context, bounds Bounds, padding int, cam Camera) error
}

// StepKind names a tour step
type StepKind int

const (
	StepTilt StepKind = iota
	StepFly
	StepDwell
	StepOverview
)

func (k StepKind) String() string {
	switch k {
	case StepTilt:
		return "tilt"
	case StepFly:
		return "fly"
	case StepDwell:
		return "dwell"
	case StepOverview:
		return "overview"
	default:
		return "unknown"
	}
}

// Step is one instruction of a planned tour
type Step struct {
	Kind    StepKind
	Camera  Camera
	Bounds  Bounds
	Padding int
	Wait    time.Duration
	SpotID  int64
	Name    string
}

// PlanTour turns the ordered spots into a tilt, a fly and dwell per spot
// with coordinates, and a final overview. Spots without coordinates are
// skipped and do not advance the bearing. No coordinates means no tour.
func PlanTour(spots []domain.Spot) []Step {
	var stops []domain.Spot
	for _, sp := range spots {
		if sp.Coordinates != nil {
			stops = append(stops, sp)
		}
	}
	if len(stops) == 0 {
		return nil
	}

	steps := []Step{{
		Kind:   StepTilt,
		Camera: Camera{Pitch: TourPitch, Bearing: 0},
		Wait:   TourTiltTime,
	}}

	bounds := Bounds{SW: *stops[0].Coordinates, NE: *stops[0].Coordinates}
	for i, sp := range stops {
		center := *sp.Coordinates
		steps = append(steps,
			Step{
				Kind: StepFly,
				Camera: Camera{
					Center:  &center,
					Zoom:    TourZoom,
					Pitch:   TourPitch,
					Bearing: math.Mod(float64(i)*TourBearingStep, 360),
				},
				SpotID: sp.ID,
				Name:   sp.Name,
			},
			Step{Kind: StepDwell, Wait: TourDwell, SpotID: sp.ID, Name: sp.Name},
		)
		bounds = bounds.extend(center)
	}

	steps = append(steps, Step{
		Kind:    StepOverview,
		Camera:  Camera{Pitch: 0, Bearing: 0},
		Bounds:  bounds,
		Padding: OverviewPadding,
	})
	return steps
}

func (b Bounds) extend(p domain.LngLat) Bounds {
	b.SW = domain.LngLat{math.Min(b.SW.Lng(), p.Lng()), math.Min(b.SW.Lat(), p.Lat())}
	b.NE = domain.LngLat{math.Max(b.NE.Lng(), p.Lng()), math.Max(b.NE.Lat(), p.Lat())}
	return b
}

// Choreographer plays tours against a viewport, one at a time
type Choreographer struct {
	viewport Viewport
	clock    clockwork.Clock
	logger   *zap.Logger

	playing atomic.Bool
}

// NewChoreographer creates a choreographer. A nil clock uses the real one.
func NewChoreographer(viewport Viewport, clock clockwork.Clock, logger *zap.Logger) *Choreographer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Choreographer{viewport: viewport, clock: clock, logger: logger}
}

// IsPlaying reports whether a tour is in flight
func (c *Choreographer) IsPlaying() bool {
	return c.playing.Load()
}

// Play runs the tour for spots step by step. A call made while another tour
// is playing returns ErrTourInProgress without touching the viewport.
func (c *Choreographer) Play(ctx context.Context, spots []domain.Spot) error {
	steps := PlanTour(spots)
	if len(steps) == 0 {
		return nil
	}
	if !c.playing.CompareAndSwap(false, true) {
		return ErrTourInProgress
	}
	defer c.playing.Store(false)

	c.logger.Info("Tour started", zap.Int("steps", len(steps)))
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.run(ctx, step); err != nil {
			c.logger.Warn("Tour stopped",
				zap.Int("step", i),
				zap.Stringer("kind", step.Kind),
				zap.Error(err))
			return fmt.Errorf("tour step %d (%s): %w", i, step.Kind, err)
		}
	}
	c.logger.Info("Tour finished")
	return nil
}

func (c *Choreographer) run(ctx context.Context, step Step) error {
	switch step.Kind {
	case StepTilt:
		return c.viewport.EaseTo(ctx, step.Camera, step.Wait)
	case StepFly:
		c.logger.Debug("Flying to stop", zap.Int64("spot_id", step.SpotID), zap.String("name", step.Name))
		return c.viewport.FlyTo(ctx, step.Camera)
	case StepDwell:
		return c.sleep(ctx, step.Wait)
	case StepOverview:
		return c.viewport.FitBounds(ctx, step.Bounds, step.Padding, step.Camera)
	default:
		return fmt.Errorf("unknown step kind %d", step.Kind)
	}
}

func (c *Choreographer) sleep(ctx context.Context, d time.Duration) error {
	timer := c.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.Chan():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
