package options

import (
	"github.com/spf13/pflag"
)

var _ IOptions = (*HALOptions)(nil)

// HALOptions locates the platform devices used by the Linux HAL.
type HALOptions struct {
	// AccelDevice is the IIO sysfs directory of the accelerometer.
	AccelDevice string `json:"accel-device" mapstructure:"accel-device"`

	// AccelName is the expected content of the device's name attribute.
	AccelName string `json:"accel-name" mapstructure:"accel-name"`

	// TempDevice is the IIO sysfs directory of the RTD converter.
	TempDevice string `json:"temp-device" mapstructure:"temp-device"`

	// LED is the /sys/class/leds entry used as the heartbeat indicator.
	LED string `json:"led" mapstructure:"led"`

	// Interface is the wireless interface whose association gates network use.
	Interface string `json:"interface" mapstructure:"interface"`

	// Simulate replaces the hardware with simulated sensors and a restart
	// that only stops the process.
	Simulate bool `json:"simulate" mapstructure:"simulate"`
}

func NewHALOptions() *HALOptions {
	return &HALOptions{
		AccelDevice: "/sys/bus/iio/devices/iio:device0",
		AccelName:   "mpu6050",
		TempDevice:  "/sys/bus/iio/devices/iio:device1",
		LED:         "led0",
		Interface:   "wlan0",
	}
}

func (o *HALOptions) Validate() []error {
	return nil
}

func (o *HALOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.AccelDevice, "hal.accel-device", o.AccelDevice, "IIO sysfs directory of the accelerometer.")
	fs.StringVar(&o.AccelName, "hal.accel-name", o.AccelName, "Expected IIO name of the accelerometer.")
	fs.StringVar(&o.TempDevice, "hal.temp-device", o.TempDevice, "IIO sysfs directory of the RTD temperature converter.")
	fs.StringVar(&o.LED, "hal.led", o.LED, "LED used as heartbeat indicator (empty disables it).")
	fs.StringVar(&o.Interface, "hal.interface", o.Interface, "Wireless interface that must be associated before network use.")
	fs.BoolVar(&o.Simulate, "hal.simulate", o.Simulate, "Use simulated sensors and never reboot the host.")
}
