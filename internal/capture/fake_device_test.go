package capture

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
)

// fakeDevice hands out streams that replay a fixed list of fragments
type fakeDevice struct {
	chunks  [][]byte
	failErr error
	openErr error

	opens  atomic.Int32
	closes atomic.Int32
	held   atomic.Bool

	mu     sync.Mutex
	stream *fakeStream
}

func (d *fakeDevice) Name() string { return "fake" }

func (d *fakeDevice) Open(ctx context.Context) (Stream, error) {
	d.opens.Add(1)
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.held.Store(true)
	s := &fakeStream{
		device:    d,
		chunks:    d.chunks,
		failErr:   d.failErr,
		finalized: make(chan struct{}),
		closed:    make(chan struct{}),
	}
	d.mu.Lock()
	d.stream = s
	d.mu.Unlock()
	return s, nil
}

type fakeStream struct {
	device  *fakeDevice
	chunks  [][]byte
	failErr error

	mu  sync.Mutex
	idx int

	finalized chan struct{}
	closed    chan struct{}
	finOnce   sync.Once
	closeOnce sync.Once
}

func (s *fakeStream) Next(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	if s.idx < len(s.chunks) {
		c := s.chunks[s.idx]
		s.idx++
		s.mu.Unlock()
		return c, nil
	}
	s.mu.Unlock()

	if s.failErr != nil {
		return nil, s.failErr
	}

	select {
	case <-s.finalized:
		return nil, io.EOF
	case <-s.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *fakeStream) Finalize() error {
	s.finOnce.Do(func() { close(s.finalized) })
	return nil
}

func (s *fakeStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.device.closes.Add(1)
		s.device.held.Store(false)
	})
	return nil
}
