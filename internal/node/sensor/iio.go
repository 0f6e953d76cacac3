package sensor

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

var _ Accelerometer = (*IIOAccelerometer)(nil)

// IIOAccelerometer reads an accelerometer through the Linux IIO sysfs interface.
type IIOAccelerometer struct {
	fs   afero.Fs
	dir  string
	name string
}

// NewIIOAccelerometer returns an accelerometer backed by the IIO device
// directory dir whose name attribute must equal name.
func NewIIOAccelerometer(fs afero.Fs, dir, name string) *IIOAccelerometer {
	return &IIOAccelerometer{fs: fs, dir: dir, name: name}
}

func (a *IIOAccelerometer) Detect(ctx context.Context) error {
	got, err := readAttr(a.fs, a.dir, "name")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotPresent, err)
	}
	if got != a.name {
		return fmt.Errorf("%w: found %q, want %q", ErrNotPresent, got, a.name)
	}
	return nil
}

// Wake powers the device on when runtime power management is exposed and
// checks that a channel can be read.
func (a *IIOAccelerometer) Wake(ctx context.Context) error {
	control := path.Join(a.dir, "power", "control")
	if ok, _ := afero.Exists(a.fs, control); ok {
		if err := afero.WriteFile(a.fs, control, []byte("on"), 0o644); err != nil {
			return fmt.Errorf("power on: %w", err)
		}
	}
	if _, err := readInt(a.fs, a.dir, "in_accel_x_raw"); err != nil {
		return fmt.Errorf("first read: %w", err)
	}
	return nil
}

func (a *IIOAccelerometer) ReadRaw(ctx context.Context) (Raw, error) {
	var r Raw
	for _, ch := range []struct {
		attr string
		dst  *int32
	}{
		{"in_accel_x_raw", &r.X},
		{"in_accel_y_raw", &r.Y},
		{"in_accel_z_raw", &r.Z},
	} {
		v, err := readInt(a.fs, a.dir, ch.attr)
		if err != nil {
			return Raw{}, err
		}
		*ch.dst = int32(v)
	}
	return r, nil
}

var _ Thermometer = (*IIOThermometer)(nil)

// IIOThermometer reads an RTD converter through IIO sysfs. It prefers the
// processed in_temp_input (millidegrees) and falls back to raw times scale.
type IIOThermometer struct {
	fs  afero.Fs
	dir string
}

func NewIIOThermometer(fs afero.Fs, dir string) *IIOThermometer {
	return &IIOThermometer{fs: fs, dir: dir}
}

func (t *IIOThermometer) Temperature(ctx context.Context) (float64, error) {
	if v, err := readFloat(t.fs, t.dir, "in_temp_input"); err == nil {
		return v / 1000, nil
	}

	raw, err := readFloat(t.fs, t.dir, "in_temp_raw")
	if err != nil {
		return 0, err
	}
	scale, err := readFloat(t.fs, t.dir, "in_temp_scale")
	if err != nil {
		return 0, err
	}
	return raw * scale / 1000, nil
}

func readAttr(fs afero.Fs, dir, attr string) (string, error) {
	bs, err := afero.ReadFile(fs, path.Join(dir, attr))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(bs)), nil
}

func readInt(fs afero.Fs, dir, attr string) (int64, error) {
	s, err := readAttr(fs, dir, attr)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", attr, err)
	}
	return v, nil
}

func readFloat(fs afero.Fs, dir, attr string) (float64, error) {
	s, err := readAttr(fs, dir, attr)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", attr, err)
	}
	return v, nil
}
