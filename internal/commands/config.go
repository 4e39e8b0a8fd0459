package commands

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/diogo/voxchat/internal/config"
)

var (
	configKeyStyle   = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	configValueStyle = lipgloss.NewStyle().Foreground(colorText)
)

// NewConfigCmd creates a new config command
func NewConfigCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change configuration",
		Long: `Show the effective configuration.

Values are layered: defaults, then ~/.voxchat/config.toml, then .env, then
VOXCHAT_* environment variables (VOXCHAT_CAPTURE__COMMAND sets capture.command).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(deps)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value in config.toml",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(deps, args[0], args[1])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.GetConfigPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(deps.withDefaults().Stdout, path)
			return nil
		},
	})

	return cmd
}

func runConfigShow(d *Dependencies) error {
	d = d.withDefaults()
	cfg, err := d.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	values := cfg.Values()
	width := 0
	for _, key := range config.Keys() {
		if len(key) > width {
			width = len(key)
		}
	}

	decorated := d.IsTTY()
	for _, key := range config.Keys() {
		if !decorated {
			fmt.Fprintf(d.Stdout, "%s = %s\n", key, values[key])
			continue
		}
		fmt.Fprintf(d.Stdout, "%s  %s\n",
			configKeyStyle.Render(key+strings.Repeat(" ", width-len(key))),
			configValueStyle.Render(values[key]))
	}
	return nil
}

func runConfigSet(d *Dependencies, key, value string) error {
	d = d.withDefaults()
	if !config.IsKnownKey(key) {
		return fmt.Errorf("unknown config key %q (known: %s)", key, strings.Join(config.Keys(), ", "))
	}
	cfg, err := config.SetValue(key, value)
	if err != nil {
		fmt.Fprintln(d.Stderr, formatErrorMessage(err, "Invalid value"))
		return err
	}
	fmt.Fprintln(d.Stdout, lipgloss.NewStyle().Foreground(colorSuccess).Render(
		fmt.Sprintf("✓ %s = %s", key, cfg.Values()[key]),
	))
	return nil
}
