package telemetry

import (
	"context"
	"fmt"

	"github.com/autopeer-io/sensornode/internal/node/core"
	"github.com/autopeer-io/sensornode/internal/node/sched"
	"github.com/autopeer-io/sensornode/internal/node/sensor"
	"github.com/autopeer-io/sensornode/internal/node/shared"
	"github.com/autopeer-io/sensornode/internal/node/store"
	"github.com/autopeer-io/sensornode/pkg/log"
	"github.com/autopeer-io/sensornode/pkg/options"
)

// Module owns the sensors: the presence watchdog, the telemetry task and
// calibration.
type Module struct {
	nodeID   string
	opts     *options.TelemetryOptions
	offsets  *store.OffsetsStore
	firmware func() store.Version

	sched      *sched.Scheduler
	avail      *shared.Cell[bool]
	calibrated *shared.Cell[sensor.Offsets]
	watchdog   *sensor.Watchdog
	publisher  *Publisher
	calibrator *Calibrator
}

var _ core.Module = (*Module)(nil)

func NewModule(nodeID string, opts *options.TelemetryOptions, offsets *store.OffsetsStore, firmware func() store.Version) *Module {
	return &Module{
		nodeID:   nodeID,
		opts:     opts,
		offsets:  offsets,
		firmware: firmware,
	}
}

func (m *Module) Name() string {
	return "Telemetry"
}

func (m *Module) Setup(ctx context.Context, rt core.Runtime) error {
	accel := rt.HAL.Accelerometer()
	if accel == nil {
		return fmt.Errorf("no accelerometer")
	}
	m.sched = rt.Scheduler

	avail, availWriter := shared.New(false)
	calibrated, offsetsWriter := shared.New(m.offsets.Load())
	m.avail, m.calibrated = avail, calibrated

	m.watchdog = sensor.NewWatchdog(accel, availWriter, rt.Scheduler, m.opts.WatchdogInterval)
	m.calibrator = NewCalibrator(accel, m.offsets, offsetsWriter, rt.Scheduler, m.opts.CalibrationSamples, m.opts.SampleYieldEvery)
	m.publisher = NewPublisher(
		m.nodeID,
		NewSampler(accel, avail, calibrated, rt.Scheduler, m.opts.Samples, m.opts.SampleYieldEvery),
		rt.HAL.Thermometer(),
		m.firmware,
		rt.Sender,
		rt.Scheduler,
		m.opts.Interval,
	)
	m.publisher.clock = rt.Scheduler.Clock()

	rt.Scheduler.Go(sched.Task{Name: "watchdog", Run: m.watchdog.Run})
	rt.Scheduler.Go(sched.Task{Name: "telemetry", Run: m.publisher.Run})
	return nil
}

func (m *Module) Routes() map[core.Command]core.HandlerFunc {
	return map[core.Command]core.HandlerFunc{
		core.CommandCalibrate: m.TriggerCalibration,
	}
}

// TriggerCalibration starts a calibration task unless one is running.
func (m *Module) TriggerCalibration(_ context.Context, _ []byte) error {
	if m.calibrator.Running() {
		log.Info("Calibration already in progress")
		return nil
	}
	started := m.sched.Spawn("calibrate", func(ctx context.Context) error {
		_, err := m.calibrator.Calibrate(ctx)
		return err
	})
	if !started {
		return fmt.Errorf("scheduler not running, calibration skipped")
	}
	log.Info("Calibration requested")
	return nil
}

// Status is the module's view for the status endpoint.
type Status struct {
	SensorAvailable bool           `json:"sensorAvailable"`
	Calibrating     bool           `json:"calibrating"`
	Offsets         sensor.Offsets `json:"offsets"`
	LastPublish     *PublishRecord `json:"lastPublish,omitempty"`
	LastError       string         `json:"lastError,omitempty"`
}

func (m *Module) Status() Status {
	s := Status{
		SensorAvailable: m.avail.Load(),
		Calibrating:     m.calibrator.Running(),
		Offsets:         m.calibrated.Load(),
	}
	if r, ok := m.publisher.LastPublish(); ok {
		s.LastPublish = &r
		if r.Err != nil {
			s.LastError = r.Err.Error()
		}
	}
	return s
}
