package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	apierrors "github.com/diogo/voxchat/internal/errors"
)

// DefaultChunkSize is the size of a single stdout read
const DefaultChunkSize = 4096

// maxStderr caps how much recorder diagnostics are kept for error messages
const maxStderr = 4096

// ErrDeviceBusy is returned when the device is already held by another stream
var ErrDeviceBusy = errors.New("device busy")

// DefaultCommand returns the recorder command and arguments for the current
// platform. The recorder writes WebM/Opus to stdout.
func DefaultCommand() (string, []string) {
	input := []string{"-f", "pulse", "-i", "default"}
	switch runtime.GOOS {
	case "darwin":
		input = []string{"-f", "avfoundation", "-i", ":0"}
	case "windows":
		input = []string{"-f", "dshow", "-i", "audio=default"}
	}
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	args = append(args, input...)
	args = append(args, "-ac", "1", "-c:a", "libopus", "-f", "webm", "pipe:1")
	return "ffmpeg", args
}

// CommandDevice captures audio by running an external recorder process and
// reading its stdout
type CommandDevice struct {
	command   string
	args      []string
	chunkSize int

	held atomic.Bool
}

// NewCommandDevice creates a device for the given recorder command.
// An empty command selects DefaultCommand.
func NewCommandDevice(command string, args []string, chunkSize int) *CommandDevice {
	if command == "" {
		command, args = DefaultCommand()
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &CommandDevice{
		command:   command,
		args:      append([]string(nil), args...),
		chunkSize: chunkSize,
	}
}

// Name returns the recorder command
func (d *CommandDevice) Name() string {
	return d.command
}

// Open starts the recorder process
func (d *CommandDevice) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, apierrors.NewDeviceAccessError(d.command, err)
	}
	if !d.held.CompareAndSwap(false, true) {
		return nil, apierrors.NewDeviceAccessError(d.command, ErrDeviceBusy)
	}

	path, err := exec.LookPath(d.command)
	if err != nil {
		d.held.Store(false)
		return nil, apierrors.NewDeviceAccessError(d.command, err)
	}

	// The process outlives ctx; it ends on Finalize or Close.
	cmd := exec.Command(path, d.args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		d.held.Store(false)
		return nil, apierrors.NewDeviceAccessError(d.command, err)
	}
	stderr := &limitedBuffer{max: maxStderr}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		d.held.Store(false)
		return nil, apierrors.NewDeviceAccessError(d.command, err)
	}

	log.Debug().Str("command", d.command).Int("pid", cmd.Process.Pid).Msg("recorder process started")

	return &commandStream{
		device:    d,
		cmd:       cmd,
		stdout:    stdout,
		stderr:    stderr,
		chunkSize: d.chunkSize,
	}, nil
}

type commandStream struct {
	device    *CommandDevice
	cmd       *exec.Cmd
	stdout    io.ReadCloser
	stderr    *limitedBuffer
	chunkSize int

	finalized atomic.Bool
	closed    atomic.Bool

	waitOnce  sync.Once
	waitErr   error
	closeOnce sync.Once
}

// Next reads the next slice of recorder output. The read itself is not
// interruptible by ctx; Close unblocks it by ending the process.
func (s *commandStream) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buf := make([]byte, s.chunkSize)
	n, err := s.stdout.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == nil {
		return nil, nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
		waitErr := s.wait()
		if s.finalized.Load() || s.closed.Load() || waitErr == nil {
			return nil, io.EOF
		}
		return nil, s.exitError(waitErr)
	}
	return nil, err
}

// Finalize interrupts the recorder so it closes the container and exits
func (s *commandStream) Finalize() error {
	if !s.finalized.CompareAndSwap(false, true) {
		return nil
	}
	if runtime.GOOS == "windows" {
		return s.kill()
	}
	if err := s.cmd.Process.Signal(os.Interrupt); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return s.kill()
	}
	return nil
}

// Close ends the recorder process and releases the device
func (s *commandStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		_ = s.kill()
		waitErr := s.wait()
		if waitErr != nil && !s.finalized.Load() && !isKilled(waitErr) {
			err = s.exitError(waitErr)
		}
		s.device.held.Store(false)
		log.Debug().Str("command", s.device.command).Msg("recorder process released")
	})
	return err
}

func (s *commandStream) kill() error {
	err := s.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (s *commandStream) wait() error {
	s.waitOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
	})
	return s.waitErr
}

func (s *commandStream) exitError(err error) error {
	msg := strings.TrimSpace(s.stderr.String())
	if msg == "" {
		return fmt.Errorf("recorder exited: %w", err)
	}
	return fmt.Errorf("recorder exited: %w: %s", err, msg)
}

func isKilled(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	return !exitErr.Exited()
}

// limitedBuffer keeps the first max bytes written to it
type limitedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
