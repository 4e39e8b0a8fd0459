// Package capture records microphone audio into a single opaque payload.
//
// A Device grants exclusive access to an audio input and hands out a Stream.
// A Stream is a lazy, finite, non-restartable sequence of byte fragments:
// Next yields fragments in arrival order until Finalize has been called and
// the device has flushed, at which point Next returns io.EOF. Close releases
// the device and must be safe to call on every exit path.
package capture

import "context"

// Device is the capability surface of an audio input
type Device interface {
	// Open acquires the device and begins streaming. Failures are reported
	// as DeviceAccessError and leave the device released.
	Open(ctx context.Context) (Stream, error)
	// Name identifies the device in logs and errors
	Name() string
}

// Stream delivers recorded fragments from an open device
type Stream interface {
	// Next blocks for the next fragment. It returns io.EOF once the stream
	// has been finalized and drained.
	Next(ctx context.Context) ([]byte, error)
	// Finalize asks the device to stop and flush its container
	Finalize() error
	// Close releases the device. It is idempotent.
	Close() error
}

// State is the lifecycle state of the recorder
type State int

const (
	StateInactive State = iota
	StateAcquiring
	StateRecording
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateAcquiring:
		return "acquiring"
	case StateRecording:
		return "recording"
	case StateFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}
