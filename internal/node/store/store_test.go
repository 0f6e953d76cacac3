package store

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/sensornode/internal/node/sensor"
)

func TestVersionStoreLoad(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Version
	}{
		{"valid", `{"version": 7}`, 7},
		{"zero", `{"version":0}`, 0},
		{"negative", `{"version": -3}`, 0},
		{"missing field", `{"other": 1}`, 0},
		{"not json", `garbage`, 0},
		{"fractional", `{"version": 1.5}`, 0},
		{"string", `{"version": "2"}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, VersionFile, []byte(tt.content), 0o644))
			assert.Equal(t, tt.want, NewVersionStore(fs).Load())
		})
	}
}

func TestVersionStoreAbsent(t *testing.T) {
	s := NewVersionStore(afero.NewMemMapFs())
	assert.Equal(t, Version(0), s.Load())
}

func TestVersionStoreEnsure(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := NewVersionStore(fs)

	require.NoError(t, s.Ensure())
	ok, err := afero.Exists(fs, VersionFile)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Version(0), s.Load())

	require.NoError(t, s.Save(4))
	require.NoError(t, s.Ensure())
	assert.Equal(t, Version(4), s.Load())
}

func TestVersionStoreSaveReplaces(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := NewVersionStore(fs)

	require.NoError(t, s.Save(1))
	require.NoError(t, s.Save(2))
	assert.Equal(t, Version(2), s.Load())
	assert.Error(t, s.Save(-1))
	assert.Equal(t, Version(2), s.Load())

	// Only the record remains; temp files are renamed away.
	entries, err := afero.ReadDir(fs, ".")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, VersionFile, entries[0].Name())
}

func TestVersionStoreSaveReadOnly(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, NewVersionStore(fs).Save(3))

	ro := NewVersionStore(afero.NewReadOnlyFs(fs))
	assert.Error(t, ro.Save(4))
	assert.Equal(t, Version(3), ro.Load())
}

func TestOffsetsStore(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := NewOffsetsStore(fs)

	assert.Equal(t, sensor.Offsets{}, s.Load())

	want := sensor.Offsets{AX: 12.5, AY: -3.25, AZ: 140}
	require.NoError(t, s.Save(want))
	assert.Equal(t, want, s.Load())

	bs, err := afero.ReadFile(fs, OffsetsFile)
	require.NoError(t, err)
	assert.Contains(t, string(bs), `"az_offset"`)

	require.NoError(t, afero.WriteFile(fs, OffsetsFile, []byte("{"), 0o644))
	assert.Equal(t, sensor.Offsets{}, s.Load())
}
