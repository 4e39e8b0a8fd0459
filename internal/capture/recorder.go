package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog/log"

	apierrors "github.com/diogo/voxchat/internal/errors"
)

// Recorder owns at most one active capture session
type Recorder struct {
	device   Device
	maxBytes int

	mu     sync.Mutex
	state  State
	active *session
}

// RecorderOption configures a Recorder
type RecorderOption func(*Recorder)

// WithMaxBytes bounds the size of a single recording
func WithMaxBytes(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.maxBytes = n
		}
	}
}

// NewRecorder creates a recorder for the given device
func NewRecorder(device Device, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		device:   device,
		maxBytes: DefaultMaxBufferSize,
		state:    StateInactive,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type session struct {
	stream Stream
	buf    *AudioBuffer
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// pump pulls fragments from the stream into the buffer until the stream ends
func (s *session) pump(ctx context.Context) {
	defer close(s.done)
	for {
		chunk, err := s.stream.Next(ctx)
		if len(chunk) > 0 {
			if appendErr := s.buf.Append(chunk); appendErr != nil {
				s.err = appendErr
				return
			}
		}
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			s.err = err
			return
		}
	}
}

// State returns the current lifecycle state
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Active reports whether a recording is being acquired, captured or finalized
func (r *Recorder) Active() bool {
	return r.State() != StateInactive
}

// BufferedBytes returns the number of bytes captured so far
func (r *Recorder) BufferedBytes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return 0
	}
	return r.active.buf.Size()
}

// Start acquires the device and begins capturing.
// A failed acquisition leaves the recorder inactive and the device released.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateInactive {
		r.mu.Unlock()
		return apierrors.ErrCaptureActive
	}
	r.state = StateAcquiring
	r.mu.Unlock()

	stream, err := r.device.Open(ctx)
	if err != nil {
		r.mu.Lock()
		r.state = StateInactive
		r.mu.Unlock()
		log.Warn().Err(err).Str("device", r.device.Name()).Msg("capture device acquisition failed")
		if !apierrors.IsDeviceAccessDenied(err) {
			err = apierrors.NewDeviceAccessError(r.device.Name(), err)
		}
		return err
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	sess := &session{
		stream: stream,
		buf:    NewAudioBuffer(r.maxBytes),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	r.mu.Lock()
	if r.state != StateAcquiring {
		// aborted while the device was being opened
		r.mu.Unlock()
		cancel()
		_ = stream.Close()
		return apierrors.ErrCaptureInterrupted
	}
	r.active = sess
	r.state = StateRecording
	r.mu.Unlock()

	go sess.pump(pumpCtx)
	log.Debug().Str("device", r.device.Name()).Msg("capture started")
	return nil
}

// Stop finalizes the recording and returns every fragment concatenated in
// arrival order. If the stream failed mid-recording, the fragments received
// so far are returned together with an error wrapping ErrCaptureInterrupted.
func (r *Recorder) Stop(ctx context.Context) ([]byte, error) {
	r.mu.Lock()
	if r.state != StateRecording || r.active == nil {
		r.mu.Unlock()
		return nil, apierrors.ErrNoCapture
	}
	sess := r.active
	r.state = StateFinalizing
	r.mu.Unlock()

	finErr := sess.stream.Finalize()
	if finErr != nil {
		// the device cannot flush, stop waiting for it
		sess.cancel()
		_ = sess.stream.Close()
	}

	select {
	case <-sess.done:
	case <-ctx.Done():
		sess.cancel()
		_ = sess.stream.Close()
		<-sess.done
		if sess.err == nil {
			sess.err = ctx.Err()
		}
	}
	sess.cancel()
	closeErr := sess.stream.Close()
	payload := sess.buf.Flush()

	r.mu.Lock()
	if r.active == sess {
		r.active = nil
		r.state = StateInactive
	}
	r.mu.Unlock()

	var err error
	switch {
	case sess.err != nil:
		err = fmt.Errorf("%w: %w", apierrors.ErrCaptureInterrupted, sess.err)
	case finErr != nil:
		err = fmt.Errorf("%w: finalize: %w", apierrors.ErrCaptureInterrupted, finErr)
	case closeErr != nil:
		log.Debug().Err(closeErr).Msg("capture device close reported an error")
	}

	log.Debug().Int("bytes", len(payload)).Err(err).Msg("capture stopped")
	return payload, err
}

// Abort discards the current recording and releases the device.
// It is safe to call in any state.
func (r *Recorder) Abort() {
	r.mu.Lock()
	sess := r.active
	r.active = nil
	r.state = StateInactive
	r.mu.Unlock()

	if sess == nil {
		return
	}
	sess.cancel()
	if err := sess.stream.Close(); err != nil {
		log.Debug().Err(err).Msg("capture device close reported an error")
	}
	<-sess.done
	sess.buf.Clear()
	log.Debug().Msg("capture aborted")
}
