package store

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/afero"

	"github.com/autopeer-io/sensornode/internal/node/sensor"
	"github.com/autopeer-io/sensornode/pkg/log"
)

// OffsetsFile is the name of the calibration record in the data directory.
const OffsetsFile = "mpu6050_offsets.json"

// OffsetsStore persists accelerometer calibration offsets.
type OffsetsStore struct {
	fs afero.Fs
}

func NewOffsetsStore(fs afero.Fs) *OffsetsStore {
	return &OffsetsStore{fs: fs}
}

// Load returns the persisted offsets, or zero offsets if there are none.
func (s *OffsetsStore) Load() sensor.Offsets {
	var o sensor.Offsets
	if err := readJSON(s.fs, OffsetsFile, &o); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn("Calibration record unreadable, using zero offsets", "file", OffsetsFile, "error", err)
		}
		return sensor.Offsets{}
	}
	return o
}

// Save atomically replaces the persisted offsets.
func (s *OffsetsStore) Save(o sensor.Offsets) error {
	if err := writeJSON(s.fs, OffsetsFile, o); err != nil {
		return fmt.Errorf("save offsets: %w", err)
	}
	return nil
}
