//go:build linux

package hal

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"

	"github.com/autopeer-io/sensornode/internal/node/core"
	"github.com/autopeer-io/sensornode/internal/node/link"
	"github.com/autopeer-io/sensornode/internal/node/sensor"
	"github.com/autopeer-io/sensornode/pkg/log"
	"github.com/autopeer-io/sensornode/pkg/options"
)

const ledClassDir = "/sys/class/leds"

// LinuxHAL drives the node's devices through sysfs and netlink.
type LinuxHAL struct {
	fs       afero.Fs
	led      string
	accel    *sensor.IIOAccelerometer
	thermo   *sensor.IIOThermometer
	link     link.Link
	shutdown func()

	sync   func()
	reboot func(cmd int) error
}

var _ core.HAL = (*LinuxHAL)(nil)

// NewHAL returns the HAL for this platform. shutdown stops the process and is
// used when the host cannot be rebooted.
func NewHAL(opts *options.HALOptions, shutdown func()) core.HAL {
	if opts.Simulate {
		return NewMockHAL(shutdown)
	}
	return newLinuxHAL(afero.NewOsFs(), opts, shutdown)
}

func newLinuxHAL(fs afero.Fs, opts *options.HALOptions, shutdown func()) *LinuxHAL {
	return &LinuxHAL{
		fs:       fs,
		led:      opts.LED,
		accel:    sensor.NewIIOAccelerometer(fs, opts.AccelDevice, opts.AccelName),
		thermo:   sensor.NewIIOThermometer(fs, opts.TempDevice),
		link:     link.New(opts.Interface),
		shutdown: shutdown,
		sync:     unix.Sync,
		reboot:   unix.Reboot,
	}
}

func (h *LinuxHAL) Accelerometer() sensor.Accelerometer { return h.accel }

func (h *LinuxHAL) Thermometer() sensor.Thermometer { return h.thermo }

func (h *LinuxHAL) Link() link.Link { return h.link }

func (h *LinuxHAL) SetIndicator(on bool) error {
	if h.led == "" {
		return nil
	}
	v := []byte("0")
	if on {
		v = []byte("1")
	}
	path := filepath.Join(ledClassDir, h.led, "brightness")
	if err := afero.WriteFile(h.fs, path, v, 0o644); err != nil {
		return fmt.Errorf("set indicator %s: %w", h.led, err)
	}
	return nil
}

// Restart flushes file systems and reboots. Without CAP_SYS_BOOT the process
// exits instead and relies on its service manager to start it again.
func (h *LinuxHAL) Restart(reason string) error {
	log.Warn("System is rebooting NOW...", "reason", reason)
	h.sync()

	err := h.reboot(unix.LINUX_REBOOT_CMD_RESTART)
	if errors.Is(err, unix.EPERM) && h.shutdown != nil {
		log.Warn("Not permitted to reboot, stopping for the service manager to restart")
		h.shutdown()
		return nil
	}
	if err != nil {
		return fmt.Errorf("reboot: %w", err)
	}
	return nil
}
