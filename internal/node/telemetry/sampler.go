// Package telemetry samples the node's sensors, calibrates the accelerometer
// and publishes readings.
package telemetry

import (
	"context"
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/autopeer-io/sensornode/internal/node/sched"
	"github.com/autopeer-io/sensornode/internal/node/sensor"
	"github.com/autopeer-io/sensornode/internal/node/shared"
	"github.com/autopeer-io/sensornode/pkg/log"
)

// readErrorInterval limits how often a failing sensor is logged.
const readErrorInterval = 10 * time.Second

// Reading is the RMS acceleration per axis, in g.
type Reading struct {
	X, Y, Z float64
}

// Sampler computes RMS acceleration over a window of samples.
type Sampler struct {
	accel      sensor.Accelerometer
	avail      *shared.Cell[bool]
	offsets    *shared.Cell[sensor.Offsets]
	y          sched.Yielder
	samples    int
	yieldEvery int

	readErrors rate.Sometimes
}

func NewSampler(
	accel sensor.Accelerometer,
	avail *shared.Cell[bool],
	offsets *shared.Cell[sensor.Offsets],
	y sched.Yielder,
	samples, yieldEvery int,
) *Sampler {
	if samples < 1 {
		samples = 1
	}
	return &Sampler{
		accel:      accel,
		avail:      avail,
		offsets:    offsets,
		y:          y,
		samples:    samples,
		yieldEvery: yieldEvery,
		readErrors: rate.Sometimes{Interval: readErrorInterval},
	}
}

// RMS acquires one window. ok is false when the accelerometer is unavailable
// or its availability changed while sampling; the window is then discarded.
// A failed read counts as a zero sample.
func (s *Sampler) RMS(ctx context.Context) (r Reading, ok bool, err error) {
	available, gen := s.avail.Snapshot()
	if !available {
		return Reading{}, false, nil
	}
	off := s.offsets.Load()
	budget := sched.NewBudget(s.y, s.yieldEvery)

	var sx, sy, sz float64
	for range s.samples {
		raw, rerr := s.accel.ReadRaw(ctx)
		if rerr != nil {
			s.readErrors.Do(func() { log.Warn("Accelerometer read failed", "error", rerr) })
			raw = sensor.Raw{}
		}
		x := (float64(raw.X) - off.AX) / sensor.CountsPerG
		y := (float64(raw.Y) - off.AY) / sensor.CountsPerG
		z := (float64(raw.Z) - off.AZ) / sensor.CountsPerG
		sx += x * x
		sy += y * y
		sz += z * z

		if err := budget.Tick(ctx); err != nil {
			return Reading{}, false, err
		}
	}

	if s.avail.Changed(gen) {
		log.Debug("Accelerometer availability changed while sampling, discarding window")
		return Reading{}, false, nil
	}

	n := float64(s.samples)
	return Reading{X: math.Sqrt(sx / n), Y: math.Sqrt(sy / n), Z: math.Sqrt(sz / n)}, true, nil
}
