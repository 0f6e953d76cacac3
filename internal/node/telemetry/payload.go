package telemetry

import (
	"fmt"
	"strings"

	"github.com/autopeer-io/sensornode/internal/node/store"
	"github.com/autopeer-io/sensornode/pkg/mqtt/topic"
)

// TemperatureUnavailable is published when the thermometer cannot be read.
const TemperatureUnavailable = 999.0

// Sample is one telemetry message. A nil Accel means the accelerometer was
// unavailable.
type Sample struct {
	NodeID      string
	Accel       *Reading
	Temperature float64
	Firmware    store.Version
}

// Format renders s in the text format the collectors parse:
//
//	N<id>, AccX: <x>, AccY: <y>, AccZ: <z>, Temp: <t>C, FW: <version>
func (s Sample) Format() string {
	var b strings.Builder
	b.WriteString(topic.NodeTag(s.NodeID))
	b.WriteString(", ")
	if s.Accel != nil {
		fmt.Fprintf(&b, "AccX: %.10f, AccY: %.10f, AccZ: %.10f, ", s.Accel.X, s.Accel.Y, s.Accel.Z)
	} else {
		b.WriteString("AccX: 0.0, AccY: 0.0, AccZ: 0.0, ")
	}
	fmt.Fprintf(&b, "Temp: %.8fC, FW: %d", s.Temperature, s.Firmware)
	return b.String()
}
