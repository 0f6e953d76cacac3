// Package system keeps the node alive and visible: the heartbeat indicator,
// the periodic self-reboot and the remote reboot command.
package system

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/autopeer-io/sensornode/internal/node/core"
	"github.com/autopeer-io/sensornode/internal/node/sched"
	"github.com/autopeer-io/sensornode/internal/pkg/metrics"
	"github.com/autopeer-io/sensornode/pkg/log"
	"github.com/autopeer-io/sensornode/pkg/options"
)

// Module owns the heartbeat and reboot tasks.
type Module struct {
	opts *options.TelemetryOptions

	hal   core.HAL
	y     sched.Yielder
	beats atomic.Int64
	last  atomic.Int64
}

var _ core.Module = (*Module)(nil)

func NewModule(opts *options.TelemetryOptions) *Module {
	return &Module{opts: opts}
}

func (m *Module) Name() string {
	return "System"
}

func (m *Module) Setup(_ context.Context, rt core.Runtime) error {
	m.hal = rt.HAL
	m.y = rt.Scheduler

	rt.Scheduler.Go(sched.Task{Name: "heartbeat", Run: m.Heartbeat})
	if m.opts.RebootInterval > 0 {
		rt.Scheduler.Go(sched.Task{Name: "reboot", Run: m.ScheduledReboot})
	}
	return nil
}

func (m *Module) Routes() map[core.Command]core.HandlerFunc {
	return map[core.Command]core.HandlerFunc{
		core.CommandReboot: func(context.Context, []byte) error {
			log.Info("Reboot command received")
			return m.hal.Restart("remote command")
		},
	}
}

// Heartbeat pulses the indicator every HeartbeatInterval. A steady pulse
// shows that the scheduler is not starved.
func (m *Module) Heartbeat(ctx context.Context) error {
	for {
		m.beat()
		if err := m.hal.SetIndicator(true); err != nil {
			log.Debug("Indicator unavailable", "error", err)
		}
		if err := m.y.Sleep(ctx, m.opts.HeartbeatPulse); err != nil {
			return err
		}
		_ = m.hal.SetIndicator(false)
		if err := m.y.Sleep(ctx, m.opts.HeartbeatInterval-m.opts.HeartbeatPulse); err != nil {
			return err
		}
	}
}

func (m *Module) beat() {
	now := time.Now()
	m.beats.Add(1)
	m.last.Store(now.UnixNano())
	metrics.HeartbeatTimestamp.Set(float64(now.Unix()))
}

// LastBeat returns the time of the most recent heartbeat.
func (m *Module) LastBeat() (time.Time, bool) {
	ns := m.last.Load()
	if ns == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}

// Beats returns the number of heartbeats so far.
func (m *Module) Beats() int64 {
	return m.beats.Load()
}

// Healthy reports whether the heartbeat ran within maxAge.
func (m *Module) Healthy(maxAge time.Duration) bool {
	last, ok := m.LastBeat()
	return ok && time.Since(last) <= maxAge
}

// ScheduledReboot restarts the node every RebootInterval.
func (m *Module) ScheduledReboot(ctx context.Context) error {
	if err := m.y.Sleep(ctx, m.opts.RebootInterval); err != nil {
		return err
	}
	log.Info("Scheduled reboot", "uptime", m.opts.RebootInterval)
	if err := m.hal.Restart("scheduled"); err != nil {
		return fmt.Errorf("scheduled reboot: %w", err)
	}
	return nil
}
