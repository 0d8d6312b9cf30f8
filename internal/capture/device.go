package capture

import (
	"context"
	"errors"
)

// Typed failure reasons for the capture lifecycle. Device implementations
// wrap these with fmt.Errorf("...: %w", ...) so callers can classify with
// errors.Is.
var (
	// ErrPermissionDenied means access to the input device was refused.
	ErrPermissionDenied = errors.New("device access denied")

	// ErrDeviceUnavailable means no usable input device exists, or the
	// device could not be opened.
	ErrDeviceUnavailable = errors.New("input device unavailable")

	// ErrCaptureLost means the device disappeared mid-recording and nothing
	// usable was accumulated.
	ErrCaptureLost = errors.New("capture lost")

	// ErrInvalidState means the requested transition is not legal from the
	// current session state.
	ErrInvalidState = errors.New("invalid session state")
)

// Device grants access to an audio input. RequestAccess may suspend the
// calling flow (permission prompt, device negotiation) until it resolves.
type Device interface {
	RequestAccess(ctx context.Context) (Stream, error)
}

// Stream is a granted audio input. Close releases the underlying device
// resource and must be safe to call exactly once per grant.
type Stream interface {
	Begin() (Handle, error)
	Close() error
}

// Handle emits raw audio chunks for one capture session. The chunk channel is
// closed when End is called or when the device is lost; in the latter case Err
// reports the cause.
type Handle interface {
	Chunks() <-chan []byte
	End() error
	Err() error
}
