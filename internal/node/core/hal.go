package core

import (
	"github.com/autopeer-io/sensornode/internal/node/link"
	"github.com/autopeer-io/sensornode/internal/node/sensor"
)

// HAL is how the node reaches its hardware and operating system.
type HAL interface {
	// Accelerometer and Thermometer return the node's sensors.
	Accelerometer() sensor.Accelerometer
	Thermometer() sensor.Thermometer

	// Link returns the network link used for updates.
	Link() link.Link

	// SetIndicator switches the heartbeat LED.
	SetIndicator(on bool) error

	// Restart reboots the node. On a device it does not return on success.
	Restart(reason string) error
}
