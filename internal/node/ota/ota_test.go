package ota

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/sensornode/internal/node/store"
)

func TestIdentityURLs(t *testing.T) {
	tests := []struct {
		repo     string
		manifest string
	}{
		{"https://github.com/acme/firmware", "https://raw.githubusercontent.com/acme/firmware/main/node_7/version.json"},
		{"https://www.github.com/acme/firmware.git/", "https://raw.githubusercontent.com/acme/firmware/main/node_7/version.json"},
		{"https://fw.example.com/repo", "https://fw.example.com/repo/main/node_7/version.json"},
	}

	for _, tt := range tests {
		t.Run(tt.repo, func(t *testing.T) {
			id := Identity{NodeID: "7", RepoURL: tt.repo, PayloadName: "firmware.tar"}
			assert.Equal(t, tt.manifest, id.ManifestURL())
		})
	}

	id := Identity{NodeID: "3", RepoURL: "https://fw.example.com/repo", PayloadName: "firmware.tar"}
	assert.Equal(t, "https://fw.example.com/repo/main/node_3/firmware.tar", id.PayloadURL())
	assert.Equal(t, "main/node_3", id.NodeDir())
}

func TestParseManifest(t *testing.T) {
	tests := []struct {
		body    string
		want    store.Version
		wantErr bool
	}{
		{`{"version": 12}`, 12, false},
		{`{"version": 0, "notes": "first"}`, 0, false},
		{`{"version": 4.0}`, 4, false},
		{`{"version": 9007199254740993}`, 9007199254740993, false},
		{`{"version": -2}`, 0, true},
		{`{"version": 9223372036854775808}`, 0, true},
		{`{"version": 9223372036854775808.0}`, 0, true},
		{`{"version": 1e19}`, 0, true},
		{`{"version": null}`, 0, true},
		{`{}`, 0, true},
		{`[1]`, 0, true},
		{`not json`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			m, err := ParseManifest([]byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Version)
		})
	}
}

func TestErrorClassification(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("wrapped: %w", &Error{Reason: ReasonStorage, Op: "install", Err: cause})

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, &Error{Reason: ReasonStorage})
	assert.False(t, errors.Is(err, &Error{Reason: ReasonProtocol}))
	assert.Equal(t, ReasonStorage, ReasonOf(err))
	assert.Equal(t, Reason(""), ReasonOf(cause))

	assert.True(t, ReasonConnectivity.Transient())
	assert.True(t, ReasonProtocol.Transient())
	for _, r := range []Reason{ReasonNotFound, ReasonExtraction, ReasonStorage, ReasonActivation} {
		assert.False(t, r.Transient(), r)
	}
}

func TestPhaseMachineGuardsDownload(t *testing.T) {
	ctx := context.Background()
	m := newPhaseMachine(func() store.Version { return 5 })

	require.NoError(t, m.Event(ctx, evCheck))
	assert.Error(t, m.Event(ctx, evDownload, store.Version(5)))
	assert.Equal(t, string(PhaseChecking), m.Current())

	require.NoError(t, m.Event(ctx, evDownload, store.Version(6)))
	assert.Equal(t, string(PhaseDownloading), m.Current())

	require.NoError(t, m.Event(ctx, evFail))
	require.NoError(t, m.Event(ctx, evReset))
	assert.Equal(t, string(PhaseIdle), m.Current())

	assert.Error(t, m.Event(ctx, evInstall))
}
