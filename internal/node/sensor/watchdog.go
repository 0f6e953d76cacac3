package sensor

import (
	"context"
	"time"

	"github.com/autopeer-io/sensornode/internal/node/sched"
	"github.com/autopeer-io/sensornode/internal/node/shared"
	"github.com/autopeer-io/sensornode/internal/pkg/metrics"
	"github.com/autopeer-io/sensornode/pkg/log"
)

// Watchdog polls the accelerometer and owns the availability cell.
type Watchdog struct {
	accel    Accelerometer
	avail    *shared.Writer[bool]
	y        sched.Yielder
	interval time.Duration
}

func NewWatchdog(accel Accelerometer, avail *shared.Writer[bool], y sched.Yielder, interval time.Duration) *Watchdog {
	return &Watchdog{accel: accel, avail: avail, y: y, interval: interval}
}

// Run checks the device every interval until ctx is done.
func (w *Watchdog) Run(ctx context.Context) error {
	for {
		w.Check(ctx)
		if err := w.y.Sleep(ctx, w.interval); err != nil {
			return err
		}
	}
}

// Check runs one detection pass and returns the resulting availability.
// A device that is newly detected is woken before it is marked available.
func (w *Watchdog) Check(ctx context.Context) bool {
	available := w.avail.Cell().Load()

	if err := w.accel.Detect(ctx); err != nil {
		if available {
			log.Warn("Accelerometer disconnected", "error", err)
			w.set(false)
		}
		return false
	}
	if available {
		return true
	}

	log.Info("Accelerometer detected, initializing")
	if err := w.accel.Wake(ctx); err != nil {
		log.Error(err, "Accelerometer initialization failed")
		return false
	}

	log.Info("Accelerometer initialized")
	w.set(true)
	return true
}

func (w *Watchdog) set(v bool) {
	w.avail.Store(v)
	if v {
		metrics.SensorAvailable.Set(1)
	} else {
		metrics.SensorAvailable.Set(0)
	}
}
