package ota

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"github.com/autopeer-io/sensornode/internal/node/core"
	"github.com/autopeer-io/sensornode/internal/node/installer"
	"github.com/autopeer-io/sensornode/internal/node/ota/transport"
	"github.com/autopeer-io/sensornode/internal/node/sched"
	"github.com/autopeer-io/sensornode/internal/node/store"
)

// Module runs the update task.
type Module struct {
	id         Identity
	opts       Options
	source     transport.Source
	versions   *store.VersionStore
	data       afero.Fs
	install    afero.Fs
	yieldEvery int

	coordinator *Coordinator
}

var _ core.Module = (*Module)(nil)

// NewModule prepares the update task. data holds the version record and the
// staging file; install receives the extracted firmware.
func NewModule(id Identity, opts Options, source transport.Source, versions *store.VersionStore, data, install afero.Fs, yieldEvery int) *Module {
	return &Module{
		id:         id,
		opts:       opts,
		source:     source,
		versions:   versions,
		data:       data,
		install:    install,
		yieldEvery: yieldEvery,
	}
}

func (m *Module) Name() string {
	return "OTA"
}

func (m *Module) Setup(_ context.Context, rt core.Runtime) error {
	if err := m.install.MkdirAll(".", 0o755); err != nil {
		return fmt.Errorf("prepare install directory: %w", err)
	}

	m.coordinator = NewCoordinator(m.id, m.opts, Deps{
		Source:    m.source,
		Link:      rt.HAL.Link(),
		Versions:  m.versions,
		Installer: installer.New(m.install, rt.Scheduler, m.yieldEvery),
		Activator: rt.HAL,
		Staging:   m.data,
		Yielder:   rt.Scheduler,
		Clock:     rt.Scheduler.Clock(),
	})
	rt.Scheduler.Go(sched.Task{Name: "update", Run: m.coordinator.Run})
	return nil
}

func (m *Module) Routes() map[core.Command]core.HandlerFunc {
	return nil
}

// Coordinator returns the coordinator built by Setup.
func (m *Module) Coordinator() *Coordinator {
	return m.coordinator
}
