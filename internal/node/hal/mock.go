// Package hal adapts the node to the platform it runs on.
package hal

import (
	"sync/atomic"

	"github.com/autopeer-io/sensornode/internal/node/core"
	"github.com/autopeer-io/sensornode/internal/node/link"
	"github.com/autopeer-io/sensornode/internal/node/sensor"
	"github.com/autopeer-io/sensornode/pkg/log"
)

// MockHAL runs the node without hardware. Restart stops the process instead
// of rebooting the host.
type MockHAL struct {
	accel    *sensor.SimAccelerometer
	thermo   *sensor.SimThermometer
	shutdown func()

	indicator atomic.Bool
	restarts  atomic.Int32
}

var _ core.HAL = (*MockHAL)(nil)

func NewMockHAL(shutdown func()) *MockHAL {
	return &MockHAL{
		accel:    sensor.NewSimAccelerometer(),
		thermo:   &sensor.SimThermometer{Base: 22},
		shutdown: shutdown,
	}
}

func (h *MockHAL) Accelerometer() sensor.Accelerometer { return h.accel }

func (h *MockHAL) Thermometer() sensor.Thermometer { return h.thermo }

func (h *MockHAL) Link() link.Link { return link.Always{} }

// SimAccelerometer exposes the simulated device so it can be unplugged.
func (h *MockHAL) SimAccelerometer() *sensor.SimAccelerometer { return h.accel }

func (h *MockHAL) SetIndicator(on bool) error {
	h.indicator.Store(on)
	return nil
}

// Indicator reports the last indicator state.
func (h *MockHAL) Indicator() bool { return h.indicator.Load() }

func (h *MockHAL) Restart(reason string) error {
	h.restarts.Add(1)
	log.Warn("[HAL-Mock] >>> RESTART REQUESTED <<<", "reason", reason)
	if h.shutdown != nil {
		h.shutdown()
	}
	return nil
}

// Restarts returns how many restarts were requested.
func (h *MockHAL) Restarts() int { return int(h.restarts.Load()) }
