// Package sensor defines the node's sensors and keeps track of whether the
// accelerometer is present.
package sensor

import (
	"context"
	"errors"
)

// CountsPerG is the accelerometer reading for 1 g at the ±2 g range.
const CountsPerG = 16384

// ErrNotPresent is returned by Detect when the device does not answer as expected.
var ErrNotPresent = errors.New("sensor not present")

// Offsets are per-axis calibration offsets in raw counts.
type Offsets struct {
	AX float64 `json:"ax_offset"`
	AY float64 `json:"ay_offset"`
	AZ float64 `json:"az_offset"`
}

// Raw is one accelerometer sample in raw counts.
type Raw struct {
	X, Y, Z int32
}

// Accelerometer is a three-axis accelerometer that can disappear and come back.
type Accelerometer interface {
	// Detect checks that the device answers with the expected identity.
	Detect(ctx context.Context) error

	// Wake takes the device out of sleep so samples can be read.
	Wake(ctx context.Context) error

	// ReadRaw reads one sample.
	ReadRaw(ctx context.Context) (Raw, error)
}

// Thermometer reads a temperature in degrees Celsius.
type Thermometer interface {
	Temperature(ctx context.Context) (float64, error)
}
