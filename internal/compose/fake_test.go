package compose

import (
	"context"
	"io"
	"sync"

	"github.com/diogo/voxchat/internal/capture"
)

var _ capture.Device = (*chanDevice)(nil)

// chanDevice delivers whatever the test pushes onto chunks
type chanDevice struct {
	chunks  chan []byte
	openErr error

	mu     sync.Mutex
	closed int
}

func newChanDevice() *chanDevice {
	return &chanDevice{chunks: make(chan []byte)}
}

func (d *chanDevice) Name() string { return "test-mic" }

func (d *chanDevice) Open(ctx context.Context) (capture.Stream, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	return &chanStream{
		device: d,
		fin:    make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

func (d *chanDevice) closeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

type chanStream struct {
	device    *chanDevice
	fin       chan struct{}
	done      chan struct{}
	finOnce   sync.Once
	closeOnce sync.Once
}

func (s *chanStream) Next(ctx context.Context) ([]byte, error) {
	select {
	case c := <-s.device.chunks:
		return c, nil
	case <-s.fin:
		return nil, io.EOF
	case <-s.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *chanStream) Finalize() error {
	s.finOnce.Do(func() { close(s.fin) })
	return nil
}

func (s *chanStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.device.mu.Lock()
		s.device.closed++
		s.device.mu.Unlock()
	})
	return nil
}
