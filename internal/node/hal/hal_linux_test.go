//go:build linux

package hal

import (
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/autopeer-io/sensornode/pkg/options"
)

func newTestHAL(t *testing.T) (*LinuxHAL, afero.Fs, *[]string) {
	t.Helper()

	fs := afero.NewMemMapFs()
	calls := &[]string{}
	h := newLinuxHAL(fs, options.NewHALOptions(), func() { *calls = append(*calls, "shutdown") })
	h.sync = func() { *calls = append(*calls, "sync") }
	h.reboot = func(cmd int) error {
		assert.Equal(t, unix.LINUX_REBOOT_CMD_RESTART, cmd)
		*calls = append(*calls, "reboot")
		return nil
	}
	return h, fs, calls
}

func TestLinuxHALIndicator(t *testing.T) {
	h, fs, _ := newTestHAL(t)

	require.NoError(t, h.SetIndicator(true))
	bs, err := afero.ReadFile(fs, "/sys/class/leds/led0/brightness")
	require.NoError(t, err)
	assert.Equal(t, "1", string(bs))

	require.NoError(t, h.SetIndicator(false))
	bs, err = afero.ReadFile(fs, "/sys/class/leds/led0/brightness")
	require.NoError(t, err)
	assert.Equal(t, "0", string(bs))

	h.led = ""
	assert.NoError(t, h.SetIndicator(true))
}

func TestLinuxHALRestart(t *testing.T) {
	h, _, calls := newTestHAL(t)

	require.NoError(t, h.Restart("firmware 3 installed"))
	assert.Equal(t, []string{"sync", "reboot"}, *calls)
}

func TestLinuxHALRestartWithoutPrivilege(t *testing.T) {
	h, _, calls := newTestHAL(t)
	h.reboot = func(int) error { return unix.EPERM }

	require.NoError(t, h.Restart("scheduled"))
	assert.Equal(t, []string{"sync", "shutdown"}, *calls)
}

func TestLinuxHALRestartFailure(t *testing.T) {
	h, _, _ := newTestHAL(t)
	h.reboot = func(int) error { return errors.New("device busy") }

	assert.ErrorContains(t, h.Restart("scheduled"), "device busy")
}

func TestNewHALSimulate(t *testing.T) {
	opts := options.NewHALOptions()
	opts.Simulate = true

	_, ok := NewHAL(opts, nil).(*MockHAL)
	assert.True(t, ok)
}
