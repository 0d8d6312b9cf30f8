package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/audiolibrelab/voicecapture/internal/capture"
	"github.com/audiolibrelab/voicecapture/internal/meter"
	"github.com/audiolibrelab/voicecapture/internal/store"
)

// Player consumes a finalized artifact for playback. Fire-and-forget from the
// orchestrator's perspective.
type Player interface {
	Play(artifact []byte) error
}

// Exporter persists a finalized artifact under a suggested name.
type Exporter interface {
	Export(artifact []byte, suggestedName string) error
}

// Status is a read-only snapshot of the session for display.
type Status struct {
	State     capture.State
	Sample    meter.Sample
	Selected  *store.Recording
	Count     int
	LastError string
}

// Orchestrator maps user intents onto the capture controller, the metering
// loop and the recording store, and keeps them consistent. All mutating
// intents are serialized through one mutex; the store is never mutated from
// anywhere else.
type Orchestrator struct {
	mu sync.Mutex

	ctrl     *capture.Controller
	meter    *meter.Loop
	store    *store.Store
	player   Player
	exporter Exporter

	lastError      string
	lastErrorMutex sync.RWMutex
}

// New wires the orchestrator and registers the capture-lost handler.
func New(ctrl *capture.Controller, loop *meter.Loop, st *store.Store, player Player, exporter Exporter) *Orchestrator {
	o := &Orchestrator{
		ctrl:     ctrl,
		meter:    loop,
		store:    st,
		player:   player,
		exporter: exporter,
	}
	ctrl.OnCaptureLost(o.handleCaptureLost)
	return o
}

// StartStop toggles the capture session. From Idle it starts a new session
// and the metering loop; from Recording it stops the loop, finalizes the
// session and inserts the new recording as the selected entity. The store
// insertion completes before StartStop returns, so it always happens before
// the next start can begin.
func (o *Orchestrator) StartStop(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.ctrl.State() {
	case capture.StateIdle:
		if err := o.ctrl.Start(ctx); err != nil {
			o.setLastError(fmt.Sprintf("Failed to start recording: %v", err))
			return err
		}
		o.clearLastError()
		o.meter.Start(o.ctrl.SessionStart())
		return nil

	case capture.StateRecording:
		// The loop is cancelled before the device is torn down so no tick
		// ever fires against a dead analysis source.
		o.meter.Stop()
		rec, err := o.ctrl.Stop()
		if err != nil {
			o.setLastError(fmt.Sprintf("Failed to stop recording: %v", err))
			return err
		}
		o.clearLastError()
		if rec != nil {
			o.store.Insert(rec)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", capture.ErrInvalidState, o.ctrl.State())
}

// Play hands the recording's artifact to the playback collaborator. Playback
// runs in the background; failures are logged, not returned.
func (o *Orchestrator) Play(id string) error {
	rec, err := o.store.Get(id)
	if err != nil {
		return err
	}
	go func() {
		if err := o.player.Play(rec.Artifact); err != nil {
			slog.Error("Playback failed", "id", rec.ID, "error", err)
			o.setLastError(fmt.Sprintf("Playback failed: %v", err))
		}
	}()
	return nil
}

// Save hands the recording's artifact and a createdAt-derived filename to the
// export collaborator.
func (o *Orchestrator) Save(id string) error {
	rec, err := o.store.Get(id)
	if err != nil {
		return err
	}
	name := ExportName(rec)
	if err := o.exporter.Export(rec.Artifact, name); err != nil {
		o.setLastError(fmt.Sprintf("Failed to save recording: %v", err))
		return fmt.Errorf("export %s: %w", name, err)
	}
	slog.Info("Recording exported", "id", rec.ID, "name", name)
	return nil
}

// Delete removes the recording. Unknown ids are a no-op.
func (o *Orchestrator) Delete(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.store.Delete(id)
}

// ClearAll removes every recording and clears the selection.
func (o *Orchestrator) ClearAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.store.Clear()
}

// Select marks a recording as the current one.
func (o *Orchestrator) Select(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.store.Select(id)
}

// List returns the recordings, most recent first.
func (o *Orchestrator) List() []*store.Recording {
	return o.store.List()
}

// Status returns a display snapshot. Reads go straight to the components,
// which carry their own locks, so display polling never blocks behind a
// long-running intent.
func (o *Orchestrator) Status() Status {
	sel, _ := o.store.Selected()
	return Status{
		State:     o.ctrl.State(),
		Sample:    o.meter.Current(),
		Selected:  sel,
		Count:     o.store.Len(),
		LastError: o.LastError(),
	}
}

// handleCaptureLost reacts to mid-recording device loss: the metering loop is
// shut down and whatever the controller could finalize is kept.
func (o *Orchestrator) handleCaptureLost(rec *store.Recording, cause error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.meter.Stop()
	if rec != nil {
		o.store.Insert(rec)
		slog.Warn("Capture lost, partial recording kept", "id", rec.ID, "cause", cause)
		o.setLastError(fmt.Sprintf("Capture lost, partial recording kept: %v", cause))
		return
	}
	slog.Error("Capture lost, nothing recorded", "cause", cause)
	o.setLastError(fmt.Sprintf("Capture lost: %v", cause))
}

// ExportName derives the suggested export filename from the recording's
// finalization time.
func ExportName(rec *store.Recording) string {
	return fmt.Sprintf("recording_%s.wav", rec.CreatedAt.Format("20060102_150405"))
}

// LastError returns the last error message (thread-safe).
func (o *Orchestrator) LastError() string {
	o.lastErrorMutex.RLock()
	defer o.lastErrorMutex.RUnlock()
	return o.lastError
}

func (o *Orchestrator) setLastError(msg string) {
	o.lastErrorMutex.Lock()
	defer o.lastErrorMutex.Unlock()
	o.lastError = msg
}

func (o *Orchestrator) clearLastError() {
	o.lastErrorMutex.Lock()
	defer o.lastErrorMutex.Unlock()
	o.lastError = ""
}
