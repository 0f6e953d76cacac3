// Package ota keeps the node's firmware current: it compares the published
// manifest with the installed version, stages and extracts a newer archive,
// records the new version and restarts into it.
package ota

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/looplab/fsm"
	"github.com/spf13/afero"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/sensornode/internal/node/installer"
	"github.com/autopeer-io/sensornode/internal/node/ota/transport"
	"github.com/autopeer-io/sensornode/internal/node/sched"
	"github.com/autopeer-io/sensornode/internal/node/store"
	"github.com/autopeer-io/sensornode/internal/pkg/metrics"
	fsmutil "github.com/autopeer-io/sensornode/internal/pkg/util/fsm"
	"github.com/autopeer-io/sensornode/pkg/log"
)

// StagingFile is the payload download target in the data directory.
const StagingFile = "firmware.tar.partial"

const copyChunk = 4 << 10

// Link reports whether the network can be used.
type Link interface {
	EnsureAssociated(ctx context.Context, timeout time.Duration) bool
}

// VersionStore is the persisted installed version.
type VersionStore interface {
	Load() store.Version
	Save(v store.Version) error
}

// Extractor installs an archive stream.
type Extractor interface {
	Extract(ctx context.Context, r io.Reader) (installer.Report, error)
}

// Activator restarts the node into the installed firmware. On a device it
// does not return on success.
type Activator interface {
	Restart(reason string) error
}

// OutcomeKind is the result class of one check.
type OutcomeKind int

const (
	NoUpdateAvailable OutcomeKind = iota
	Updated
	Failed
)

func (k OutcomeKind) String() string {
	switch k {
	case NoUpdateAvailable:
		return "no_update"
	case Updated:
		return "updated"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the result of CheckAndApply. Version is the installed version
// for NoUpdateAvailable and the new version for Updated. Err is set for Failed.
type Outcome struct {
	Kind    OutcomeKind
	Version store.Version
	Err     *Error
}

// Options tunes the coordinator.
type Options struct {
	LinkTimeout     time.Duration
	MaxManifestSize int64
	InitialDelay    time.Duration
	CheckInterval   time.Duration
	RetryDelay      time.Duration
	MaxAttempts     int
}

// Deps are the coordinator's collaborators.
type Deps struct {
	Source    transport.Source
	Link      Link
	Versions  VersionStore
	Installer Extractor
	Activator Activator

	// Staging is the data directory that holds StagingFile.
	Staging afero.Fs

	Yielder sched.Yielder

	// Clock stamps check records. Defaults to the real clock.
	Clock clock.PassiveClock
}

// Coordinator runs update checks for one node identity.
type Coordinator struct {
	id   Identity
	opts Options
	Deps

	phase   *fsm.FSM
	reclaim func()

	last atomic.Pointer[CheckRecord]
}

// CheckRecord is the most recent completed check.
type CheckRecord struct {
	At      time.Time
	Outcome Outcome
}

func NewCoordinator(id Identity, opts Options, deps Deps) *Coordinator {
	if deps.Clock == nil {
		deps.Clock = clock.RealClock{}
	}
	c := &Coordinator{
		id:      id,
		opts:    opts,
		Deps:    deps,
		reclaim: debug.FreeOSMemory,
	}
	c.phase = newPhaseMachine(deps.Versions.Load)
	setPhaseMetric(PhaseIdle)
	metrics.InstalledVersion.Set(float64(deps.Versions.Load()))
	return c
}

// Phase returns the current update phase.
func (c *Coordinator) Phase() Phase {
	return Phase(c.phase.Current())
}

// LastCheck returns the most recent completed check, if any.
func (c *Coordinator) LastCheck() (CheckRecord, bool) {
	r := c.last.Load()
	if r == nil {
		return CheckRecord{}, false
	}
	return *r, true
}

// CheckAndApply runs one check. It never panics and converts every failure
// into a Failed outcome; the installed version only advances after the whole
// archive has been extracted.
func (c *Coordinator) CheckAndApply(ctx context.Context) Outcome {
	if c.Phase() != PhaseIdle {
		c.event(ctx, evReset)
	}
	c.event(ctx, evCheck)

	out := c.checkAndApply(ctx)

	switch out.Kind {
	case NoUpdateAvailable:
		c.event(ctx, evSettle)
		log.Info("Firmware is up to date", "version", out.Version)
	case Updated:
		// Only reached when the activator returns, e.g. in simulation.
		c.event(ctx, evReset)
		log.Info("Firmware updated", "version", out.Version)
	case Failed:
		c.event(ctx, evFail)
		metrics.UpdateFailuresTotal.WithLabelValues(string(out.Err.Reason)).Inc()
		log.Error(out.Err, "Update check failed", "reason", out.Err.Reason, "op", out.Err.Op)
	}
	metrics.UpdateChecksTotal.WithLabelValues(out.Kind.String()).Inc()

	c.last.Store(&CheckRecord{At: c.Clock.Now(), Outcome: out})
	return out
}

func (c *Coordinator) checkAndApply(ctx context.Context) Outcome {
	var up bool
	if err := c.Yielder.Await(ctx, func(ctx context.Context) error {
		up = c.Link.EnsureAssociated(ctx, c.opts.LinkTimeout)
		return nil
	}); err != nil {
		return failedFrom("associate", err)
	}
	if !up {
		return failed(ReasonConnectivity, "associate", errLinkDown)
	}

	c.reclaim()
	var m Manifest
	err := c.Yielder.Await(ctx, func(ctx context.Context) error {
		var err error
		m, err = c.fetchManifest(ctx)
		return err
	})
	c.reclaim()
	if err != nil {
		return failedFrom("manifest", err)
	}

	installed := c.Versions.Load()
	if m.Version <= installed {
		return Outcome{Kind: NoUpdateAvailable, Version: installed}
	}
	log.Info("Newer firmware available", "installed", installed, "available", m.Version)

	if err := c.phase.Event(context.WithoutCancel(ctx), evDownload, m.Version); err != nil {
		var canceled fsm.CanceledError
		if errors.As(err, &canceled) {
			return Outcome{Kind: NoUpdateAvailable, Version: c.Versions.Load()}
		}
		return failed(ReasonProtocol, "download", err)
	}

	defer c.removeStaging()
	c.reclaim()
	err = c.Yielder.Await(ctx, c.stage)
	c.reclaim()
	if err != nil {
		return failedFrom("download", err)
	}

	c.event(ctx, evInstall)
	rep, err := c.install(ctx)
	if err != nil {
		return failedFrom("install", err)
	}
	log.Info("Firmware extracted", "files", rep.Files, "dirs", rep.Dirs, "skipped", rep.Skipped, "bytes", rep.Bytes)
	c.removeStaging()

	if err := c.Versions.Save(m.Version); err != nil {
		return failed(ReasonStorage, "persist", err)
	}
	metrics.InstalledVersion.Set(float64(m.Version))

	c.event(ctx, evActivate)
	if err := c.Activator.Restart(fmt.Sprintf("firmware %d installed", m.Version)); err != nil {
		return failed(ReasonActivation, "activate", err)
	}
	return Outcome{Kind: Updated, Version: m.Version}
}

func (c *Coordinator) fetchManifest(ctx context.Context) (Manifest, error) {
	log.Info("Checking for firmware update", "url", c.Source.Location(ManifestName))

	rc, err := c.Source.Open(ctx, ManifestName)
	if err != nil {
		return Manifest{}, classifyFetch("manifest", err)
	}
	defer rc.Close()

	limit := c.opts.MaxManifestSize
	if limit <= 0 {
		limit = 4 << 10
	}
	body, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return Manifest{}, &Error{Reason: ReasonConnectivity, Op: "manifest", Err: err}
	}
	if int64(len(body)) > limit {
		return Manifest{}, &Error{Reason: ReasonProtocol, Op: "manifest", Err: errTooLarge}
	}

	m, err := ParseManifest(body)
	if err != nil {
		return Manifest{}, &Error{Reason: ReasonProtocol, Op: "manifest", Err: err}
	}
	return m, nil
}

// stage copies the payload into StagingFile in fixed-size chunks.
func (c *Coordinator) stage(ctx context.Context) error {
	log.Info("Downloading firmware", "url", c.Source.Location(c.id.PayloadName))

	rc, err := c.Source.Open(ctx, c.id.PayloadName)
	if err != nil {
		return classifyFetch("download", err)
	}
	defer rc.Close()

	f, err := c.Staging.OpenFile(StagingFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return &Error{Reason: ReasonStorage, Op: "download", Err: err}
	}

	var written int64
	buf := make([]byte, copyChunk)
	for {
		n, rerr := rc.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				_ = f.Close()
				return &Error{Reason: ReasonStorage, Op: "download", Err: werr}
			}
			written += int64(n)
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			_ = f.Close()
			return &Error{Reason: ReasonConnectivity, Op: "download", Err: rerr}
		}
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		return &Error{Reason: ReasonStorage, Op: "download", Err: err}
	}
	if err := f.Close(); err != nil {
		return &Error{Reason: ReasonStorage, Op: "download", Err: err}
	}
	log.Info("Firmware downloaded", "bytes", written)
	return nil
}

func (c *Coordinator) install(ctx context.Context) (installer.Report, error) {
	f, err := c.Staging.Open(StagingFile)
	if err != nil {
		return installer.Report{}, &Error{Reason: ReasonStorage, Op: "install", Err: err}
	}
	defer f.Close()

	rep, err := c.Installer.Extract(ctx, f)
	if err != nil {
		var serr *installer.StorageError
		if errors.As(err, &serr) {
			return rep, &Error{Reason: ReasonStorage, Op: "install", Err: err}
		}
		return rep, &Error{Reason: ReasonExtraction, Op: "install", Err: err}
	}
	return rep, nil
}

func (c *Coordinator) removeStaging() {
	if err := c.Staging.Remove(StagingFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Failed to remove staging file", "file", StagingFile, "error", err)
	}
}

// event fires a phase transition. Refused transitions are logged, not fatal.
func (c *Coordinator) event(ctx context.Context, name string) {
	err := fsmutil.IgnoreNoTransition(c.phase.Event(context.WithoutCancel(ctx), name))
	if err != nil {
		log.Warn("Update phase transition refused", "event", name, "phase", c.phase.Current(), "error", err)
	}
}

func classifyFetch(op string, err error) *Error {
	var serr *transport.StatusError
	switch {
	case errors.Is(err, transport.ErrNotFound):
		return &Error{Reason: ReasonNotFound, Op: op, Err: err}
	case errors.As(err, &serr):
		return &Error{Reason: ReasonProtocol, Op: op, Err: err}
	default:
		return &Error{Reason: ReasonConnectivity, Op: op, Err: err}
	}
}

func failed(reason Reason, op string, err error) Outcome {
	return Outcome{Kind: Failed, Err: &Error{Reason: reason, Op: op, Err: err}}
}

// failedFrom turns an error returned through Await into an outcome. Errors
// that were not classified, such as a cancelled context, count as connectivity.
func failedFrom(op string, err error) Outcome {
	var e *Error
	if errors.As(err, &e) {
		return Outcome{Kind: Failed, Err: e}
	}
	return failed(ReasonConnectivity, op, err)
}
