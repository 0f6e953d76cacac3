package telemetry

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/sensornode/internal/node/core"
	"github.com/autopeer-io/sensornode/internal/node/sched"
	"github.com/autopeer-io/sensornode/internal/node/sensor"
	"github.com/autopeer-io/sensornode/internal/node/store"
	"github.com/autopeer-io/sensornode/internal/pkg/metrics"
	"github.com/autopeer-io/sensornode/pkg/log"
	"github.com/autopeer-io/sensornode/pkg/mqtt"
)

// Publisher is the telemetry task.
type Publisher struct {
	nodeID   string
	sampler  *Sampler
	thermo   sensor.Thermometer
	firmware func() store.Version
	sender   core.Sender
	y        sched.Yielder
	interval time.Duration
	clock    clock.PassiveClock

	last       atomic.Pointer[PublishRecord]
	sendErrors rate.Sometimes
}

// PublishRecord is the most recent sample handed to the sender.
type PublishRecord struct {
	At      time.Time `json:"at"`
	Payload string    `json:"payload"`
	Err     error     `json:"-"`
}

func NewPublisher(
	nodeID string,
	sampler *Sampler,
	thermo sensor.Thermometer,
	firmware func() store.Version,
	sender core.Sender,
	y sched.Yielder,
	interval time.Duration,
) *Publisher {
	return &Publisher{
		nodeID:     nodeID,
		sampler:    sampler,
		thermo:     thermo,
		firmware:   firmware,
		sender:     sender,
		y:          y,
		interval:   interval,
		clock:      clock.RealClock{},
		sendErrors: rate.Sometimes{Interval: readErrorInterval},
	}
}

// Run publishes a sample every interval until ctx is done.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		if err := p.PublishOnce(ctx); err != nil {
			return err
		}
		if err := p.y.Sleep(ctx, p.interval); err != nil {
			return err
		}
	}
}

// PublishOnce samples the sensors and sends one message. Only context errors
// are returned; a failed send drops the sample.
func (p *Publisher) PublishOnce(ctx context.Context) error {
	s, err := p.Sample(ctx)
	if err != nil {
		return err
	}
	payload := s.Format()

	err = p.y.Await(ctx, func(ctx context.Context) error {
		return p.sender.Send(ctx, core.EventTelemetry, []byte(payload))
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	p.last.Store(&PublishRecord{At: p.clock.Now(), Payload: payload, Err: err})

	switch {
	case err == nil:
		metrics.TelemetryPublishesTotal.WithLabelValues("ok").Inc()
		log.Debug("Telemetry published", "payload", payload)
	case errors.Is(err, mqtt.ErrNotConnected):
		metrics.TelemetryPublishesTotal.WithLabelValues("dropped").Inc()
		p.sendErrors.Do(func() { log.Warn("Broker not connected, dropping telemetry") })
	default:
		metrics.TelemetryPublishesTotal.WithLabelValues("error").Inc()
		p.sendErrors.Do(func() { log.Error(err, "Failed to publish telemetry") })
	}
	return nil
}

// Sample reads the sensors without sending anything.
func (p *Publisher) Sample(ctx context.Context) (Sample, error) {
	s := Sample{NodeID: p.nodeID, Temperature: TemperatureUnavailable, Firmware: p.firmware()}

	r, ok, err := p.sampler.RMS(ctx)
	if err != nil {
		return Sample{}, err
	}
	if ok {
		s.Accel = &r
	}

	if t, err := p.thermo.Temperature(ctx); err == nil {
		s.Temperature = t
	} else {
		log.Warn("Temperature read failed", "error", err)
	}
	return s, nil
}

// LastPublish returns the most recent publish attempt, if any.
func (p *Publisher) LastPublish() (PublishRecord, bool) {
	r := p.last.Load()
	if r == nil {
		return PublishRecord{}, false
	}
	return *r, true
}
