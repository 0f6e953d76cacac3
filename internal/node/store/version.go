// Package store persists the node's small records: the installed firmware
// version and the accelerometer calibration offsets.
package store

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/afero"

	"github.com/autopeer-io/sensornode/pkg/log"
)

// VersionFile is the name of the version record in the data directory.
const VersionFile = "version.json"

// Version is an installed firmware version. It never decreases.
type Version int64

type versionRecord struct {
	Version *int64 `json:"version"`
}

// VersionStore reads and writes the version record. Save has one caller,
// the update coordinator, after an archive has been fully extracted.
type VersionStore struct {
	fs afero.Fs
}

// NewVersionStore returns a store over fs, which is rooted at the data directory.
func NewVersionStore(fs afero.Fs) *VersionStore {
	return &VersionStore{fs: fs}
}

// Load returns the persisted version. An absent, unreadable or invalid record
// reads as 0.
func (s *VersionStore) Load() Version {
	var rec versionRecord
	if err := readJSON(s.fs, VersionFile, &rec); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn("Version record unreadable, assuming version 0", "file", VersionFile, "error", err)
		}
		return 0
	}
	if rec.Version == nil || *rec.Version < 0 {
		log.Warn("Version record invalid, assuming version 0", "file", VersionFile)
		return 0
	}
	return Version(*rec.Version)
}

// Ensure creates the record with version 0 when it does not exist yet.
func (s *VersionStore) Ensure() error {
	ok, err := afero.Exists(s.fs, VersionFile)
	if err != nil {
		return fmt.Errorf("stat %s: %w", VersionFile, err)
	}
	if ok {
		return nil
	}
	log.Info("Creating version record", "file", VersionFile, "version", 0)
	return s.Save(0)
}

// Save atomically replaces the record with v.
func (s *VersionStore) Save(v Version) error {
	if v < 0 {
		return fmt.Errorf("invalid version %d", v)
	}
	n := int64(v)
	if err := writeJSON(s.fs, VersionFile, versionRecord{Version: &n}); err != nil {
		return fmt.Errorf("save version %d: %w", v, err)
	}
	return nil
}
