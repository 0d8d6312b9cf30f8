package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/audiolibrelab/voicecapture/internal/store"
)

// State represents the current state of the capture session
type State string

const (
	StateIdle      State = "IDLE"
	StateRecording State = "RECORDING"
)

// LostFunc is invoked when the device disappears mid-recording. rec is the
// recording finalized from whatever was accumulated, or nil if nothing was.
type LostFunc func(rec *store.Recording, cause error)

// Controller owns the capture state machine. One Idle -> Recording -> Idle
// cycle produces at most one finalized recording; finalization is atomic,
// so no partial entity ever leaves this package.
type Controller struct {
	device Device

	mu           sync.RWMutex
	state        State
	acquiring    bool
	stopping     bool
	released     bool
	stream       Stream
	handle       Handle
	chunks       [][]byte
	sessionStart time.Time
	accumDone    chan struct{}

	onLost LostFunc
}

// NewController creates a controller in the Idle state.
func NewController(device Device) *Controller {
	return &Controller{
		device: device,
		state:  StateIdle,
	}
}

// OnCaptureLost registers the handler for mid-recording device loss. Must be
// called before the first Start.
func (c *Controller) OnCaptureLost(fn LostFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLost = fn
}

// State returns the current session state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SessionStart returns the start timestamp of the most recent session.
func (c *Controller) SessionStart() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionStart
}

// Start requests device access and, on grant, transitions to Recording and
// begins accumulating chunks. A Start while Recording, or while a previous
// Start is still waiting on the device grant, is rejected with
// ErrInvalidState so that two device acquisitions can never be live at once.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle || c.acquiring {
		c.mu.Unlock()
		return fmt.Errorf("%w: start while %s", ErrInvalidState, c.state)
	}
	c.acquiring = true
	c.mu.Unlock()

	// May suspend until the grant resolves. Session state stays Idle the
	// whole time; a failed grant leaves everything untouched.
	stream, err := c.device.RequestAccess(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.acquiring = false

	if err != nil {
		slog.Warn("Device access not granted", "error", err)
		return err
	}

	handle, err := stream.Begin()
	if err != nil {
		stream.Close()
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	c.stream = stream
	c.handle = handle
	c.chunks = nil
	c.stopping = false
	c.released = false
	c.sessionStart = time.Now()
	c.state = StateRecording
	c.accumDone = make(chan struct{})

	go c.accumulate(handle, c.accumDone)

	slog.Info("Recording started", "session_start", c.sessionStart)
	return nil
}

// Stop ends the active session: chunk emission stops, the device is released,
// and the accumulated chunks are finalized into a recording. Stop while Idle
// is a no-op and returns (nil, nil).
func (c *Controller) Stop() (*store.Recording, error) {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return nil, nil
	}
	c.stopping = true
	handle := c.handle
	done := c.accumDone
	c.mu.Unlock()

	// End stops emission and closes the chunk channel; draining accumDone
	// guarantees every emitted chunk has been accumulated before finalize.
	if err := handle.End(); err != nil {
		slog.Debug("Capture handle end reported error", "error", err)
	}
	<-done

	c.mu.Lock()
	defer c.mu.Unlock()

	// Release the device before finalize completes so the hardware lock is
	// freed even if assembly were to fail.
	c.releaseLocked()

	rec := c.finalizeLocked()
	c.resetLocked()

	slog.Info("Recording finalized", "id", rec.ID, "bytes", len(rec.Artifact))
	return rec, nil
}

// accumulate drains the chunk channel for one session. If the channel closes
// without Stop being in progress, the device was lost: the session is torn
// down in place and the registered loss handler is notified.
func (c *Controller) accumulate(handle Handle, done chan struct{}) {
	defer close(done)

	for chunk := range handle.Chunks() {
		c.mu.Lock()
		c.chunks = append(c.chunks, chunk)
		c.mu.Unlock()
	}

	c.mu.Lock()
	if c.stopping {
		c.mu.Unlock()
		return
	}

	cause := handle.Err()
	if cause == nil {
		cause = ErrCaptureLost
	}
	slog.Error("Device lost mid-recording", "error", cause)

	var rec *store.Recording
	if len(c.chunks) > 0 {
		rec = c.finalizeLocked()
	}
	c.releaseLocked()
	c.resetLocked()
	fn := c.onLost
	c.mu.Unlock()

	if fn != nil {
		fn(rec, cause)
	}
}

// finalizeLocked concatenates the accumulated chunks into one immutable
// artifact and builds the recording entity. Caller holds c.mu.
func (c *Controller) finalizeLocked() *store.Recording {
	total := 0
	for _, chunk := range c.chunks {
		total += len(chunk)
	}
	artifact := make([]byte, 0, total)
	for _, chunk := range c.chunks {
		artifact = append(artifact, chunk...)
	}

	return &store.Recording{
		ID:        uuid.NewString(),
		Artifact:  artifact,
		CreatedAt: time.Now(),
	}
}

// releaseLocked closes the stream exactly once per successful Start.
func (c *Controller) releaseLocked() {
	if c.released || c.stream == nil {
		return
	}
	c.released = true
	if err := c.stream.Close(); err != nil {
		slog.Debug("Stream close reported error", "error", err)
	}
}

func (c *Controller) resetLocked() {
	c.state = StateIdle
	c.stopping = false
	c.stream = nil
	c.handle = nil
	c.chunks = nil
}
