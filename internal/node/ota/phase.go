package ota

import (
	"context"

	"github.com/looplab/fsm"

	"github.com/autopeer-io/sensornode/internal/node/store"
	"github.com/autopeer-io/sensornode/internal/pkg/metrics"
	fsmutil "github.com/autopeer-io/sensornode/internal/pkg/util/fsm"
)

// Phase is a state of the update state machine.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseChecking    Phase = "checking"
	PhaseDownloading Phase = "downloading"
	PhaseInstalling  Phase = "installing"
	PhaseActivating  Phase = "activating"
	PhaseFailed      Phase = "failed"
)

var allPhases = []Phase{PhaseIdle, PhaseChecking, PhaseDownloading, PhaseInstalling, PhaseActivating, PhaseFailed}

const (
	evCheck    = "check"
	evDownload = "download"
	evInstall  = "install"
	evActivate = "activate"
	evFail     = "fail"
	evSettle   = "settle"
	evReset    = "reset"
)

// newPhaseMachine builds the update state machine. The download transition
// is refused unless its argument is newer than installed().
func newPhaseMachine(installed func() store.Version) *fsm.FSM {
	return fsm.NewFSM(
		string(PhaseIdle),
		fsm.Events{
			{Name: evCheck, Src: []string{string(PhaseIdle)}, Dst: string(PhaseChecking)},
			{Name: evDownload, Src: []string{string(PhaseChecking)}, Dst: string(PhaseDownloading)},
			{Name: evInstall, Src: []string{string(PhaseDownloading)}, Dst: string(PhaseInstalling)},
			{Name: evActivate, Src: []string{string(PhaseInstalling)}, Dst: string(PhaseActivating)},
			{
				Name: evFail,
				Src:  []string{string(PhaseChecking), string(PhaseDownloading), string(PhaseInstalling), string(PhaseActivating)},
				Dst:  string(PhaseFailed),
			},
			{Name: evSettle, Src: []string{string(PhaseChecking)}, Dst: string(PhaseIdle)},
			{Name: evReset, Src: []string{string(PhaseFailed), string(PhaseActivating)}, Dst: string(PhaseIdle)},
		},
		fsm.Callbacks{
			"before_" + evDownload: fsmutil.WrapEvent(func(_ context.Context, e *fsm.Event) error {
				if len(e.Args) == 0 {
					return errNotNewer
				}
				candidate, ok := e.Args[0].(store.Version)
				if !ok || candidate <= installed() {
					return errNotNewer
				}
				return nil
			}),
			"enter_state": func(_ context.Context, e *fsm.Event) {
				setPhaseMetric(Phase(e.Dst))
			},
		},
	)
}

func setPhaseMetric(current Phase) {
	for _, p := range allPhases {
		v := 0.0
		if p == current {
			v = 1
		}
		metrics.UpdatePhase.WithLabelValues(string(p)).Set(v)
	}
}
