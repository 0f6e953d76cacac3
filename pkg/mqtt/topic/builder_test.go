package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicBuilder(t *testing.T) {
	b := NewTopicBuilder("OC7")

	assert.Equal(t, "OC7/data/N7", b.Telemetry("7"))
	assert.Equal(t, "OC7/data/+", b.TelemetryWildcard())
	assert.Equal(t, "OC7/status/+", b.StatusWildcard())
	assert.Equal(t, "OC7/status/N7", b.Status("7"))
	assert.Equal(t, "N12", NodeTag("12"))
}
