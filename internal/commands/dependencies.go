package commands

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/diogo/voxchat/internal/api"
	"github.com/diogo/voxchat/internal/capture"
	"github.com/diogo/voxchat/internal/compose"
	"github.com/diogo/voxchat/internal/config"
	"github.com/diogo/voxchat/internal/tui"
)

// Backend is the backend surface the commands need: chat plus audio download.
type Backend interface {
	api.Backend
	DownloadAudio(ctx context.Context, ref string, opts api.AudioDownloadOptions) (string, error)
}

// TUIInterface defines the methods required from the TUI package.
type TUIInterface interface {
	RunChat(ctl *compose.Controller, opts tui.Options) error
}

// Dependencies holds the external dependencies for the commands.
// This allows for dependency injection and easier testing.
type Dependencies struct {
	// LoadConfig resolves the layered user configuration.
	LoadConfig func() (config.Config, error)

	// NewBackend builds the backend client for a configuration.
	NewBackend func(cfg config.Config) (Backend, error)

	// NewDevice builds the microphone device for a configuration.
	NewDevice func(cfg config.Config) capture.Device

	// TUI is the terminal user interface.
	TUI TUIInterface

	// IsTTY reports whether stdout is a terminal; decorations are
	// skipped when it is not.
	IsTTY func() bool

	Stdout io.Writer
	Stderr io.Writer
}

// DefaultTUI is the production implementation of TUIInterface.
type DefaultTUI struct{}

func (d *DefaultTUI) RunChat(ctl *compose.Controller, opts tui.Options) error {
	return tui.RunChat(ctl, opts)
}

// NewDependencies creates a new Dependencies struct with default implementations.
func NewDependencies() *Dependencies {
	return &Dependencies{
		LoadConfig: config.LoadConfig,
		NewBackend: newClient,
		NewDevice:  newDevice,
		TUI:        &DefaultTUI{},
		IsTTY:      isStdoutTTY,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
	}
}

// withDefaults fills unset fields with the production implementations
func (d *Dependencies) withDefaults() *Dependencies {
	def := NewDependencies()
	if d == nil {
		return def
	}
	out := *d
	if out.LoadConfig == nil {
		out.LoadConfig = def.LoadConfig
	}
	if out.NewBackend == nil {
		out.NewBackend = def.NewBackend
	}
	if out.NewDevice == nil {
		out.NewDevice = def.NewDevice
	}
	if out.TUI == nil {
		out.TUI = def.TUI
	}
	if out.IsTTY == nil {
		out.IsTTY = def.IsTTY
	}
	if out.Stdout == nil {
		out.Stdout = def.Stdout
	}
	if out.Stderr == nil {
		out.Stderr = def.Stderr
	}
	return &out
}

func newClient(cfg config.Config) (Backend, error) {
	opts := []api.ClientOption{}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, api.WithTimeout(time.Duration(cfg.RequestTimeout)*time.Second))
	}
	client, err := api.NewClient(cfg.BackendURL, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func newDevice(cfg config.Config) capture.Device {
	return capture.NewCommandDevice(cfg.Capture.Command, cfg.Capture.Args, cfg.Capture.ChunkSize)
}
