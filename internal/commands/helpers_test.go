package commands

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/diogo/voxchat/internal/api"
	"github.com/diogo/voxchat/internal/capture"
	"github.com/diogo/voxchat/internal/compose"
	"github.com/diogo/voxchat/internal/config"
	"github.com/diogo/voxchat/internal/tui"
)

// testBackend adds audio downloads to the scripted backend
type testBackend struct {
	*api.MockBackend

	mu        sync.Mutex
	downloads []string
	dir       string
}

func (b *testBackend) DownloadAudio(ctx context.Context, ref string, opts api.AudioDownloadOptions) (string, error) {
	b.mu.Lock()
	b.downloads = append(b.downloads, ref)
	b.mu.Unlock()

	dir := opts.Directory
	if dir == "" {
		dir = b.dir
	}
	path := filepath.Join(dir, "reply.mp3")
	if err := os.WriteFile(path, []byte("ID3"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// scriptedDevice yields its chunks, then EOF once finalized
type scriptedDevice struct {
	chunks  [][]byte
	openErr error
}

func (d *scriptedDevice) Name() string { return "scripted" }

func (d *scriptedDevice) Open(ctx context.Context) (capture.Stream, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	return &scriptedStream{chunks: d.chunks, finalized: make(chan struct{})}, nil
}

type scriptedStream struct {
	mu        sync.Mutex
	chunks    [][]byte
	finalized chan struct{}
	once      sync.Once
}

func (s *scriptedStream) Next(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	if len(s.chunks) > 0 {
		chunk := s.chunks[0]
		s.chunks = s.chunks[1:]
		s.mu.Unlock()
		return chunk, nil
	}
	s.mu.Unlock()

	select {
	case <-s.finalized:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *scriptedStream) Finalize() error {
	s.once.Do(func() { close(s.finalized) })
	return nil
}

func (s *scriptedStream) Close() error {
	s.once.Do(func() { close(s.finalized) })
	return nil
}

// fakeTUI records the controller and options it was started with
type fakeTUI struct {
	ctl  *compose.Controller
	opts tui.Options
	err  error
}

func (f *fakeTUI) RunChat(ctl *compose.Controller, opts tui.Options) error {
	f.ctl = ctl
	f.opts = opts
	return f.err
}

type testEnv struct {
	deps    *Dependencies
	backend *testBackend
	device  *scriptedDevice
	tui     *fakeTUI
	stdout  *bytes.Buffer
	stderr  *bytes.Buffer
	cfg     config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	resetFlags()
	t.Cleanup(resetFlags)

	env := &testEnv{
		backend: &testBackend{MockBackend: &api.MockBackend{Origin: "http://backend"}, dir: t.TempDir()},
		device:  &scriptedDevice{},
		tui:     &fakeTUI{},
		stdout:  &bytes.Buffer{},
		stderr:  &bytes.Buffer{},
	}
	env.cfg = config.DefaultConfig()
	env.cfg.CacheDir = t.TempDir()

	env.deps = &Dependencies{
		LoadConfig: func() (config.Config, error) { return env.cfg, nil },
		NewBackend: func(cfg config.Config) (Backend, error) { return env.backend, nil },
		NewDevice:  func(cfg config.Config) capture.Device { return env.device },
		TUI:        env.tui,
		IsTTY:      func() bool { return false },
		Stdout:     env.stdout,
		Stderr:     env.stderr,
	}
	return env
}

func resetFlags() {
	backendFlag = ""
	personalityFlag = ""
	languageFlag = ""
	verboseFlag = false
	outputFlag = ""
	fileFlag = ""
	imageFlag = ""
	audioFlag = ""
	recordFlag = 0
	playFlag = false
	rawFlag = false
	exportDirFlag = ""
}
