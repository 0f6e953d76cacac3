package options

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAddress(t *testing.T) {
	assert.NoError(t, ValidateAddress("127.0.0.1:9100"))
	assert.NoError(t, ValidateAddress(":9100"))
	assert.Error(t, ValidateAddress("9100"))
	assert.Error(t, ValidateAddress("localhost:http"))
	assert.Error(t, ValidateAddress("localhost:70000"))
}

func TestNodeOptions(t *testing.T) {
	o := NewNodeOptions()
	assert.Empty(t, o.Validate())
	assert.Equal(t, "/var/lib/cpeer-node/app", o.InstallPath())

	o.InstallDir = "/opt/app"
	assert.Equal(t, "/opt/app", o.InstallPath())

	o.Source = "ftp"
	o.PayloadName = "../firmware.tar"
	assert.Len(t, o.Validate(), 2)
}

func TestNodeOptionsRepoURLOnlyForHTTP(t *testing.T) {
	o := NewNodeOptions()
	o.RepoURL = "not a url"
	assert.NotEmpty(t, o.Validate())

	o.Source = SourceS3
	assert.Empty(t, o.Validate())
}

func TestDefaultsAreValid(t *testing.T) {
	all := []IOptions{
		NewNodeOptions(),
		NewUpdateOptions(),
		NewTelemetryOptions(),
		NewHALOptions(),
		NewMqttOptions(),
		NewS3Options(),
		NewHttpOptions(),
	}
	for _, o := range all {
		assert.Empty(t, o.Validate(), "%T", o)
	}
}

func TestFlagsOverrideDefaults(t *testing.T) {
	u := NewUpdateOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	u.AddFlags(fs)

	require.NoError(t, fs.Parse([]string{"--update.check-interval=2h", "--update.max-attempts=0"}))
	assert.Equal(t, "2h0m0s", u.CheckInterval.String())
	assert.Len(t, u.Validate(), 1)
}

func TestTelemetryPulseShorterThanInterval(t *testing.T) {
	o := NewTelemetryOptions()
	o.HeartbeatPulse = o.HeartbeatInterval
	assert.Len(t, o.Validate(), 1)
}
