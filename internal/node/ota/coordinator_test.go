package ota

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/sensornode/internal/node/installer"
	"github.com/autopeer-io/sensornode/internal/node/ota/transport"
	"github.com/autopeer-io/sensornode/internal/node/sched"
	"github.com/autopeer-io/sensornode/internal/node/store"
)

type artifact struct {
	body []byte
	err  error
}

type fakeSource struct {
	mu        sync.Mutex
	artifacts map[string][]artifact
	opened    []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{artifacts: map[string][]artifact{}}
}

// serve queues responses for name; the last one repeats.
func (s *fakeSource) serve(name string, responses ...artifact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[name] = responses
}

func (s *fakeSource) Open(_ context.Context, name string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.opened = append(s.opened, name)
	queue := s.artifacts[name]
	if len(queue) == 0 {
		return nil, transport.ErrNotFound
	}
	a := queue[0]
	if len(queue) > 1 {
		s.artifacts[name] = queue[1:]
	}
	if a.err != nil {
		return nil, a.err
	}
	return io.NopCloser(bytes.NewReader(a.body)), nil
}

func (s *fakeSource) Location(name string) string { return "fake://" + name }

func (s *fakeSource) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, o := range s.opened {
		if o == name {
			n++
		}
	}
	return n
}

type fakeLink struct{ up bool }

func (l *fakeLink) EnsureAssociated(context.Context, time.Duration) bool { return l.up }

type fakeActivator struct {
	err      error
	versions *store.VersionStore
	install  afero.Fs

	restarts        int
	versionAtReboot store.Version
	filesAtReboot   bool
}

func (a *fakeActivator) Restart(string) error {
	a.restarts++
	a.versionAtReboot = a.versions.Load()
	a.filesAtReboot, _ = afero.Exists(a.install, "main.bin")
	return a.err
}

type harness struct {
	source    *fakeSource
	link      *fakeLink
	data      afero.Fs
	install   afero.Fs
	versions  *store.VersionStore
	activator *fakeActivator
	c         *Coordinator
}

func newHarness(t *testing.T, installed store.Version) *harness {
	t.Helper()

	h := &harness{
		source:  newFakeSource(),
		link:    &fakeLink{up: true},
		data:    afero.NewMemMapFs(),
		install: afero.NewMemMapFs(),
	}
	h.versions = store.NewVersionStore(h.data)
	require.NoError(t, h.versions.Save(installed))
	h.activator = &fakeActivator{versions: h.versions, install: h.install}

	y := sched.New(sched.Options{Logger: logr.Discard()})
	h.c = NewCoordinator(
		Identity{NodeID: "7", RepoURL: "https://example.com/repo", PayloadName: "firmware.tar"},
		Options{LinkTimeout: time.Second, MaxManifestSize: 256, MaxAttempts: 3},
		Deps{
			Source:    h.source,
			Link:      h.link,
			Versions:  h.versions,
			Installer: installer.New(h.install, y, installer.DefaultYieldEvery),
			Activator: h.activator,
			Staging:   h.data,
			Yielder:   y,
		},
	)
	h.c.reclaim = func() {}
	return h
}

func manifest(v string) artifact {
	return artifact{body: []byte(`{"version": ` + v + `}`)}
}

func firmware(t *testing.T, files map[string]string) artifact {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(body)),
			Typeflag: tar.TypeReg,
			ModTime:  time.Unix(1700000000, 0),
			Format:   tar.FormatUSTAR,
		}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return artifact{body: buf.Bytes()}
}

func (h *harness) stagingExists(t *testing.T) bool {
	ok, err := afero.Exists(h.data, StagingFile)
	require.NoError(t, err)
	return ok
}

func TestCheckAndApplyNoUpdate(t *testing.T) {
	for _, published := range []string{"4", "2"} {
		t.Run(published, func(t *testing.T) {
			h := newHarness(t, 4)
			h.source.serve(ManifestName, manifest(published))

			out := h.c.CheckAndApply(context.Background())

			assert.Equal(t, NoUpdateAvailable, out.Kind)
			assert.Equal(t, store.Version(4), out.Version)
			assert.Nil(t, out.Err)
			assert.Zero(t, h.source.count("firmware.tar"))
			assert.Zero(t, h.activator.restarts)
			assert.Equal(t, store.Version(4), h.versions.Load())
			assert.Equal(t, PhaseIdle, h.c.Phase())
		})
	}
}

func TestCheckAndApplyUpdates(t *testing.T) {
	h := newHarness(t, 1)
	h.source.serve(ManifestName, manifest("3"))
	h.source.serve("firmware.tar", firmware(t, map[string]string{
		"main.bin":     "new firmware",
		"lib/util.bin": strings.Repeat("u", 1500),
	}))

	out := h.c.CheckAndApply(context.Background())

	require.Equal(t, Updated, out.Kind, "outcome error: %v", out.Err)
	assert.Equal(t, store.Version(3), out.Version)
	assert.Equal(t, store.Version(3), h.versions.Load())

	bs, err := afero.ReadFile(h.install, "main.bin")
	require.NoError(t, err)
	assert.Equal(t, "new firmware", string(bs))

	// The version is persisted and every file extracted before the restart.
	assert.Equal(t, 1, h.activator.restarts)
	assert.Equal(t, store.Version(3), h.activator.versionAtReboot)
	assert.True(t, h.activator.filesAtReboot)

	assert.False(t, h.stagingExists(t))
	assert.Equal(t, PhaseIdle, h.c.Phase())

	rec, ok := h.c.LastCheck()
	require.True(t, ok)
	assert.Equal(t, Updated, rec.Outcome.Kind)
}

// failingSaves fails the first n version writes, as a power loss between
// extraction and the version write would.
type failingSaves struct {
	*store.VersionStore
	n int
}

func (f *failingSaves) Save(v store.Version) error {
	if f.n > 0 {
		f.n--
		return errors.New("power lost")
	}
	return f.VersionStore.Save(v)
}

func TestCheckAndApplyExtractsAndPersists(t *testing.T) {
	h := newHarness(t, 3)
	h.source.serve(ManifestName, manifest("5"))
	h.source.serve("firmware.tar", firmware(t, map[string]string{
		"main.py":       "X",
		"lib/helper.py": "Y",
	}))

	out := h.c.CheckAndApply(context.Background())

	require.Equal(t, Updated, out.Kind, "outcome error: %v", out.Err)
	assert.Equal(t, store.Version(5), h.versions.Load())
	for name, want := range map[string]string{"main.py": "X", "lib/helper.py": "Y"} {
		bs, err := afero.ReadFile(h.install, name)
		require.NoError(t, err)
		assert.Equal(t, want, string(bs), name)
	}
	assert.Equal(t, 1, h.activator.restarts)
	assert.Equal(t, store.Version(5), h.activator.versionAtReboot)
}

func TestCheckAndApplyIsIdempotentAfterUpdate(t *testing.T) {
	h := newHarness(t, 3)
	h.source.serve(ManifestName, manifest("5"))
	h.source.serve("firmware.tar", firmware(t, map[string]string{"main.py": "X"}))

	require.Equal(t, Updated, h.c.CheckAndApply(context.Background()).Kind)

	out := h.c.CheckAndApply(context.Background())
	assert.Equal(t, NoUpdateAvailable, out.Kind)
	assert.Equal(t, store.Version(5), out.Version)
	assert.Equal(t, 1, h.source.count("firmware.tar"))
	assert.Equal(t, 1, h.activator.restarts)
}

func TestCheckAndApplyRetriesAfterLostVersionWrite(t *testing.T) {
	h := newHarness(t, 3)
	h.c.Versions = &failingSaves{VersionStore: h.versions, n: 1}
	h.source.serve(ManifestName, manifest("5"))
	h.source.serve("firmware.tar", firmware(t, map[string]string{"main.py": "X"}))

	out := h.c.CheckAndApply(context.Background())
	require.Equal(t, Failed, out.Kind)
	assert.Equal(t, ReasonStorage, out.Err.Reason)
	assert.Equal(t, store.Version(3), h.versions.Load())
	assert.Zero(t, h.activator.restarts)
	assert.False(t, h.stagingExists(t))

	out = h.c.CheckAndApply(context.Background())
	require.Equal(t, Updated, out.Kind, "outcome error: %v", out.Err)
	assert.Equal(t, store.Version(5), h.versions.Load())
	assert.Equal(t, 2, h.source.count("firmware.tar"))
	assert.Equal(t, 1, h.activator.restarts)
}

func TestCheckRecordUsesClock(t *testing.T) {
	h := newHarness(t, 4)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h.c.Clock = clocktesting.NewFakePassiveClock(at)
	h.source.serve(ManifestName, manifest("4"))

	h.c.CheckAndApply(context.Background())

	rec, ok := h.c.LastCheck()
	require.True(t, ok)
	assert.Equal(t, at, rec.At)
}

// canceledAwait runs the operation but reports that the run token could not
// be taken back.
type canceledAwait struct {
	sched.Yielder
}

func (y canceledAwait) Await(ctx context.Context, fn func(ctx context.Context) error) error {
	_ = fn(ctx)
	return context.Canceled
}

func TestCheckAndApplyAssociateAwaitCanceled(t *testing.T) {
	h := newHarness(t, 1)
	h.c.Yielder = canceledAwait{Yielder: h.c.Yielder}
	h.source.serve(ManifestName, manifest("3"))

	out := h.c.CheckAndApply(context.Background())

	require.Equal(t, Failed, out.Kind)
	assert.Equal(t, ReasonConnectivity, out.Err.Reason)
	assert.Equal(t, "associate", out.Err.Op)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Zero(t, h.source.count(ManifestName))
}

func TestCheckAndApplyLinkDown(t *testing.T) {
	h := newHarness(t, 1)
	h.link.up = false
	h.source.serve(ManifestName, manifest("3"))

	out := h.c.CheckAndApply(context.Background())

	require.Equal(t, Failed, out.Kind)
	assert.Equal(t, ReasonConnectivity, out.Err.Reason)
	assert.Zero(t, h.source.count(ManifestName))
	assert.Equal(t, PhaseFailed, h.c.Phase())
}

func TestCheckAndApplyManifestFailures(t *testing.T) {
	tests := []struct {
		name     string
		response artifact
		want     Reason
	}{
		{"not published", artifact{err: transport.ErrNotFound}, ReasonNotFound},
		{"server error", artifact{err: &transport.StatusError{URL: "x", Code: 503}}, ReasonProtocol},
		{"transport error", artifact{err: errors.New("dial tcp: i/o timeout")}, ReasonConnectivity},
		{"malformed", artifact{body: []byte(`{"version": `)}, ReasonProtocol},
		{"missing version", artifact{body: []byte(`{"v": 3}`)}, ReasonProtocol},
		{"negative", artifact{body: []byte(`{"version": -1}`)}, ReasonProtocol},
		{"string version", artifact{body: []byte(`{"version": "3"}`)}, ReasonProtocol},
		{"fractional", artifact{body: []byte(`{"version": 3.5}`)}, ReasonProtocol},
		{"too large", artifact{body: []byte(`{"version": 3, "pad": "` + strings.Repeat("x", 300) + `"}`)}, ReasonProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 1)
			h.source.serve(ManifestName, tt.response)

			out := h.c.CheckAndApply(context.Background())

			require.Equal(t, Failed, out.Kind)
			assert.Equal(t, tt.want, out.Err.Reason)
			assert.Equal(t, "manifest", out.Err.Op)
			assert.Equal(t, store.Version(1), h.versions.Load())
			assert.Zero(t, h.source.count("firmware.tar"))
		})
	}
}

func TestCheckAndApplyPayloadMissing(t *testing.T) {
	h := newHarness(t, 1)
	h.source.serve(ManifestName, manifest("2"))

	out := h.c.CheckAndApply(context.Background())

	require.Equal(t, Failed, out.Kind)
	assert.Equal(t, ReasonNotFound, out.Err.Reason)
	assert.Equal(t, store.Version(1), h.versions.Load())
	assert.Zero(t, h.activator.restarts)
	assert.False(t, h.stagingExists(t))
}

func TestCheckAndApplyTruncatedArchive(t *testing.T) {
	h := newHarness(t, 1)
	full := firmware(t, map[string]string{"main.bin": strings.Repeat("m", 3000)})
	h.source.serve(ManifestName, manifest("2"))
	h.source.serve("firmware.tar", artifact{body: full.body[:1500]})

	out := h.c.CheckAndApply(context.Background())

	require.Equal(t, Failed, out.Kind)
	assert.Equal(t, ReasonExtraction, out.Err.Reason)
	assert.ErrorIs(t, out.Err, installer.ErrTruncated)
	assert.Equal(t, store.Version(1), h.versions.Load())
	assert.Zero(t, h.activator.restarts)
	assert.False(t, h.stagingExists(t))
	assert.Equal(t, PhaseFailed, h.c.Phase())
}

func TestCheckAndApplyInstallStorageFailure(t *testing.T) {
	h := newHarness(t, 1)
	y := sched.New(sched.Options{Logger: logr.Discard()})
	h.c.Installer = installer.New(afero.NewReadOnlyFs(h.install), y, installer.DefaultYieldEvery)
	h.source.serve(ManifestName, manifest("2"))
	h.source.serve("firmware.tar", firmware(t, map[string]string{"main.bin": "x"}))

	out := h.c.CheckAndApply(context.Background())

	require.Equal(t, Failed, out.Kind)
	assert.Equal(t, ReasonStorage, out.Err.Reason)
	assert.Equal(t, store.Version(1), h.versions.Load())
}

func TestCheckAndApplyActivationFailure(t *testing.T) {
	h := newHarness(t, 1)
	h.activator.err = errors.New("reboot refused")
	h.source.serve(ManifestName, manifest("2"))
	h.source.serve("firmware.tar", firmware(t, map[string]string{"main.bin": "x"}))

	out := h.c.CheckAndApply(context.Background())

	require.Equal(t, Failed, out.Kind)
	assert.Equal(t, ReasonActivation, out.Err.Reason)
	assert.Equal(t, store.Version(2), h.versions.Load())
	assert.Equal(t, PhaseFailed, h.c.Phase())

	// The next check starts from idle and sees nothing newer.
	out = h.c.CheckAndApply(context.Background())
	assert.Equal(t, NoUpdateAvailable, out.Kind)
	assert.Equal(t, PhaseIdle, h.c.Phase())
}

func TestCheckWithRetry(t *testing.T) {
	t.Run("transient failures exhaust attempts", func(t *testing.T) {
		h := newHarness(t, 1)
		h.source.serve(ManifestName, artifact{err: errors.New("connection reset")})

		out := h.c.CheckWithRetry(context.Background())

		require.Equal(t, Failed, out.Kind)
		assert.Equal(t, ReasonConnectivity, out.Err.Reason)
		assert.Equal(t, 3, h.source.count(ManifestName))
	})

	t.Run("not found is not retried", func(t *testing.T) {
		h := newHarness(t, 1)

		out := h.c.CheckWithRetry(context.Background())

		require.Equal(t, Failed, out.Kind)
		assert.Equal(t, ReasonNotFound, out.Err.Reason)
		assert.Equal(t, 1, h.source.count(ManifestName))
	})

	t.Run("recovers after transient failures", func(t *testing.T) {
		h := newHarness(t, 1)
		h.source.serve(ManifestName,
			artifact{err: errors.New("connection reset")},
			artifact{err: &transport.StatusError{URL: "x", Code: 502}},
			manifest("2"),
		)
		h.source.serve("firmware.tar", firmware(t, map[string]string{"main.bin": "x"}))

		out := h.c.CheckWithRetry(context.Background())

		assert.Equal(t, Updated, out.Kind)
		assert.Equal(t, 3, h.source.count(ManifestName))
		assert.Equal(t, 1, h.activator.restarts)
	})
}

func TestRunWaitsInitialDelayThenChecksPeriodically(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.Unix(1700000000, 0))
	y := sched.New(sched.Options{Clock: fc, Logger: logr.Discard()})

	h := newHarness(t, 1)
	h.c.Yielder = y
	h.c.opts.InitialDelay = 30 * time.Second
	h.c.opts.CheckInterval = time.Hour
	h.source.serve(ManifestName, manifest("1"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.c.Run(ctx) }()
	defer func() {
		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
	}()

	require.Eventually(t, fc.HasWaiters, time.Second, time.Millisecond)
	fc.Step(29 * time.Second)
	assert.Never(t, func() bool { return h.source.count(ManifestName) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	fc.Step(time.Second)
	require.Eventually(t, func() bool { return h.source.count(ManifestName) == 1 }, time.Second, time.Millisecond)

	require.Eventually(t, fc.HasWaiters, time.Second, time.Millisecond)
	fc.Step(time.Hour)
	require.Eventually(t, func() bool { return h.source.count(ManifestName) == 2 }, time.Second, time.Millisecond)
}
