package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/autopeer-io/sensornode/internal/node/sched"
	"github.com/autopeer-io/sensornode/internal/node/sensor"
	"github.com/autopeer-io/sensornode/internal/node/shared"
	"github.com/autopeer-io/sensornode/pkg/log"
)

// ErrCalibrationRunning is returned when a calibration is already in progress.
var ErrCalibrationRunning = errors.New("calibration already running")

// OffsetsSaver persists calibration offsets.
type OffsetsSaver interface {
	Save(o sensor.Offsets) error
}

// Calibrator derives accelerometer offsets from a stationary device lying
// flat, so that Z reads 1 g and X and Y read zero. It is the only writer of
// the offsets cell.
type Calibrator struct {
	accel      sensor.Accelerometer
	saver      OffsetsSaver
	offsets    *shared.Writer[sensor.Offsets]
	y          sched.Yielder
	samples    int
	yieldEvery int

	running    atomic.Bool
	readErrors rate.Sometimes
}

func NewCalibrator(
	accel sensor.Accelerometer,
	saver OffsetsSaver,
	offsets *shared.Writer[sensor.Offsets],
	y sched.Yielder,
	samples, yieldEvery int,
) *Calibrator {
	if samples < 1 {
		samples = 1
	}
	return &Calibrator{
		accel:      accel,
		saver:      saver,
		offsets:    offsets,
		y:          y,
		samples:    samples,
		yieldEvery: yieldEvery,
		readErrors: rate.Sometimes{Interval: readErrorInterval},
	}
}

// Running reports whether a calibration is in progress.
func (c *Calibrator) Running() bool {
	return c.running.Load()
}

// Calibrate averages raw samples, subtracts 1 g from Z and applies the result.
// The offsets are applied even when persisting them fails.
func (c *Calibrator) Calibrate(ctx context.Context) (sensor.Offsets, error) {
	if !c.running.CompareAndSwap(false, true) {
		return sensor.Offsets{}, ErrCalibrationRunning
	}
	defer c.running.Store(false)

	log.Info("Calibrating accelerometer", "samples", c.samples)
	budget := sched.NewBudget(c.y, c.yieldEvery)

	var sx, sy, sz float64
	for range c.samples {
		raw, err := c.accel.ReadRaw(ctx)
		if err != nil {
			c.readErrors.Do(func() { log.Warn("Calibration read failed", "error", err) })
			raw = sensor.Raw{}
		}
		sx += float64(raw.X)
		sy += float64(raw.Y)
		sz += float64(raw.Z)

		if err := budget.Tick(ctx); err != nil {
			return sensor.Offsets{}, err
		}
	}

	n := float64(c.samples)
	o := sensor.Offsets{AX: sx / n, AY: sy / n, AZ: sz/n - sensor.CountsPerG}
	c.offsets.Store(o)

	if err := c.saver.Save(o); err != nil {
		return o, fmt.Errorf("save calibration offsets: %w", err)
	}
	log.Info("Calibration complete", "ax", o.AX, "ay", o.AY, "az", o.AZ)
	return o, nil
}
