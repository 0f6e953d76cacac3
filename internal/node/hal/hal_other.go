//go:build !linux

package hal

import (
	"github.com/autopeer-io/sensornode/internal/node/core"
	"github.com/autopeer-io/sensornode/pkg/log"
	"github.com/autopeer-io/sensornode/pkg/options"
)

// NewHAL returns the HAL for this platform. Only Linux has real devices.
func NewHAL(opts *options.HALOptions, shutdown func()) core.HAL {
	if !opts.Simulate {
		log.Warn("[HAL-Mock] No device support on this platform, using simulated hardware")
	}
	return NewMockHAL(shutdown)
}
