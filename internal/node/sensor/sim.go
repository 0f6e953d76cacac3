package sensor

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync/atomic"
)

var (
	_ Accelerometer = (*SimAccelerometer)(nil)
	_ Thermometer   = (*SimThermometer)(nil)
)

// SimAccelerometer produces a device at rest: noise around 1 g on Z.
type SimAccelerometer struct {
	present atomic.Bool
	awake   atomic.Bool
	noise   int32
}

func NewSimAccelerometer() *SimAccelerometer {
	a := &SimAccelerometer{noise: 64}
	a.present.Store(true)
	return a
}

// SetPresent simulates plugging or unplugging the device.
func (a *SimAccelerometer) SetPresent(v bool) {
	a.present.Store(v)
	if !v {
		a.awake.Store(false)
	}
}

func (a *SimAccelerometer) Detect(context.Context) error {
	if !a.present.Load() {
		return ErrNotPresent
	}
	return nil
}

func (a *SimAccelerometer) Wake(ctx context.Context) error {
	if err := a.Detect(ctx); err != nil {
		return err
	}
	a.awake.Store(true)
	return nil
}

func (a *SimAccelerometer) ReadRaw(context.Context) (Raw, error) {
	if !a.present.Load() || !a.awake.Load() {
		return Raw{}, errors.New("simulated accelerometer not ready")
	}
	return Raw{
		X: a.jitter(),
		Y: a.jitter(),
		Z: CountsPerG + a.jitter(),
	}, nil
}

func (a *SimAccelerometer) jitter() int32 {
	return rand.Int32N(2*a.noise+1) - a.noise
}

// SimThermometer reports a room temperature with a little noise.
type SimThermometer struct {
	Base float64
}

func (t *SimThermometer) Temperature(context.Context) (float64, error) {
	return t.Base + rand.Float64()*0.1, nil
}
