package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jonboulle/clockwork"

	"tripsync/internal/itinerary"
)

// printViewport stands in for a map camera: it prints every move and takes
// as long as the move would
type printViewport struct {
	out    io.Writer
	clock  clockwork.Clock
	flight time.Duration
}

func newPrintViewport(out io.Writer, clock clockwork.Clock, flight time.Duration) *printViewport {
	return &printViewport{out: out, clock: clock, flight: flight}
}

func (v *printViewport) EaseTo(ctx context.Context, cam itinerary.Camera, duration time.Duration) error {
	fmt.Fprintf(v.out, "ease   pitch=%.0f bearing=%.0f\n", cam.Pitch, cam.Bearing)
	return v.wait(ctx, duration)
}

func (v *printViewport) FlyTo(ctx context.Context, cam itinerary.Camera) error {
	if cam.Center == nil {
		fmt.Fprintf(v.out, "fly    zoom=%.0f bearing=%.0f\n", cam.Zoom, cam.Bearing)
	} else {
		fmt.Fprintf(v.out, "fly    %.4f,%.4f zoom=%.0f bearing=%.0f\n",
			cam.Center.Lng(), cam.Center.Lat(), cam.Zoom, cam.Bearing)
	}
	return v.wait(ctx, v.flight)
}

func (v *printViewport) FitBounds(ctx context.Context, b itinerary.Bounds, padding int, cam itinerary.Camera) error {
	fmt.Fprintf(v.out, "fit    %.4f,%.4f %.4f,%.4f padding=%d\n",
		b.SW.Lng(), b.SW.Lat(), b.NE.Lng(), b.NE.Lat(), padding)
	return v.wait(ctx, v.flight)
}

func (v *printViewport) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-v.clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
