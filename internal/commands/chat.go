package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/diogo/voxchat/internal/config"
	"github.com/diogo/voxchat/internal/playback"
	"github.com/diogo/voxchat/internal/render"
	"github.com/diogo/voxchat/internal/tui"
)

var exportDirFlag string

// NewChatCmd creates the interactive chat command
func NewChatCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Start an interactive chat session with the voxchat backend.

Type and press Enter to send. Press ctrl+r to start talking and ctrl+r
again to send the recording. Press Esc or Ctrl+C to end the session.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(deps)
		},
	}
	cmd.Flags().StringVar(&exportDirFlag, "export-dir", "", "Directory for transcripts saved with ctrl+e")
	return cmd
}

func runChat(d *Dependencies) error {
	d = d.withDefaults()

	cfg, err := loadConfig(d)
	if err != nil {
		return err
	}
	defer setupLogging(cfg, true)()

	backend, err := d.NewBackend(cfg)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	ctl, err := newController(cfg, backend, newRecorder(d, cfg))
	if err != nil {
		return err
	}

	if !render.SetTUITheme(cfg.TUITheme) {
		fmt.Fprintf(d.Stderr, "Warning: unknown tui_theme %q, using %s\n", cfg.TUITheme, render.GetTUITheme().Name)
	}
	tui.UpdateTheme()

	return d.TUI.RunChat(ctl, chatOptions(cfg, backend))
}

// chatOptions maps the configuration onto the TUI options
func chatOptions(cfg config.Config, backend Backend) tui.Options {
	opts := tui.Options{
		Render:          render.FromConfig(cfg.Markdown),
		AutoPlay:        cfg.AutoPlay,
		CopyToClipboard: cfg.CopyToClipboard,
		ExportDir:       exportDirFlag,
		BackendURL:      cfg.BackendURL,
	}
	if cacheDir, err := config.GetCacheDir(cfg); err == nil {
		opts.Player = playback.NewPlayer(backend, cacheDir, cfg.Playback.Command, cfg.Playback.Args)
	}
	return opts
}
