// Package node assembles the sensor node: its modules, the scheduler that
// runs them and the messaging hub they talk through.
package node

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/autopeer-io/sensornode/internal/node/core"
	"github.com/autopeer-io/sensornode/internal/node/hub"
	"github.com/autopeer-io/sensornode/internal/node/ota"
	"github.com/autopeer-io/sensornode/internal/node/sched"
	"github.com/autopeer-io/sensornode/internal/node/server"
	"github.com/autopeer-io/sensornode/internal/node/store"
	"github.com/autopeer-io/sensornode/internal/node/system"
	"github.com/autopeer-io/sensornode/internal/node/telemetry"
	"github.com/autopeer-io/sensornode/pkg/log"
)

// healthWindow is how old the last heartbeat may be before the node reports
// itself unhealthy.
const healthWindow = 5 * time.Second

type Agent struct {
	nodeID   string
	hal      core.HAL
	hub      *hub.Hub
	sched    *sched.Scheduler
	versions *store.VersionStore
	server   *server.Server

	system    *system.Module
	telemetry *telemetry.Module
	update    *ota.Module

	ready atomic.Bool
}

// Run sets up every module and runs the scheduler until ctx is done.
func (a *Agent) Run(ctx context.Context) error {
	log.Info("Starting cpeer-node", "nodeID", a.nodeID, "firmware", a.versions.Load())

	if err := a.versions.Ensure(); err != nil {
		log.Error(err, "Failed to initialize version record, continuing with version 0")
	}

	rt := core.Runtime{HAL: a.hal, Sender: a.hub, Scheduler: a.sched}
	for _, m := range a.modules() {
		if err := m.Setup(ctx, rt); err != nil {
			return fmt.Errorf("module %s setup failed: %w", m.Name(), err)
		}
		for cmd, handler := range m.Routes() {
			if err := a.hub.Register(cmd, handler); err != nil {
				return fmt.Errorf("module %s register command %s failed: %w", m.Name(), cmd, err)
			}
		}
	}

	if err := a.hub.Start(ctx); err != nil {
		return fmt.Errorf("start hub: %w", err)
	}
	defer a.hub.Stop()

	if a.server != nil {
		go func() {
			if err := a.server.Start(ctx); err != nil {
				log.Error(err, "Status server stopped")
			}
		}()
	}

	a.ready.Store(true)
	defer a.ready.Store(false)

	err := a.sched.Run(ctx)
	log.Info("Agent shutting down...")
	return err
}

func (a *Agent) modules() []core.Module {
	return []core.Module{a.system, a.telemetry, a.update}
}

// Healthy reports whether the heartbeat task ran recently.
func (a *Agent) Healthy() bool {
	return a.system.Healthy(healthWindow)
}

// Ready reports whether every module is running.
func (a *Agent) Ready() bool {
	return a.ready.Load()
}

// Status is the document served on /status.
type Status struct {
	NodeID        string            `json:"nodeID"`
	Firmware      store.Version     `json:"firmware"`
	Ready         bool              `json:"ready"`
	MQTTConnected bool              `json:"mqttConnected"`
	Heartbeats    int64             `json:"heartbeats"`
	Scheduler     sched.Stats       `json:"scheduler"`
	Update        *UpdateStatus     `json:"update,omitempty"`
	Telemetry     *telemetry.Status `json:"telemetry,omitempty"`
}

// UpdateStatus describes the update coordinator.
type UpdateStatus struct {
	Phase       ota.Phase  `json:"phase"`
	LastCheck   *time.Time `json:"lastCheck,omitempty"`
	LastOutcome string     `json:"lastOutcome,omitempty"`
	LastReason  ota.Reason `json:"lastReason,omitempty"`
}

func (a *Agent) Status() Status {
	s := Status{
		NodeID:        a.nodeID,
		Firmware:      a.versions.Load(),
		Ready:         a.Ready(),
		MQTTConnected: a.hub.IsConnected(),
		Heartbeats:    a.system.Beats(),
		Scheduler:     a.sched.Stats(),
	}
	if !s.Ready {
		return s
	}

	ts := a.telemetry.Status()
	s.Telemetry = &ts

	c := a.update.Coordinator()
	us := &UpdateStatus{Phase: c.Phase()}
	if rec, ok := c.LastCheck(); ok {
		us.LastCheck = &rec.At
		us.LastOutcome = rec.Outcome.Kind.String()
		if rec.Outcome.Err != nil {
			us.LastReason = rec.Outcome.Err.Reason
		}
	}
	s.Update = us
	return s
}
