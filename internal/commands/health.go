package commands

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// NewHealthCmd creates the backend health check command
func NewHealthCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the backend is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(cmd.Context(), deps)
		},
	}
}

func runHealth(ctx context.Context, d *Dependencies) error {
	d = d.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(d)
	if err != nil {
		return err
	}
	defer setupLogging(cfg, false)()

	backend, err := d.NewBackend(cfg)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	prog := &progress{w: d.Stderr, enabled: d.IsTTY()}
	prog.start("Checking " + cfg.BackendURL)
	if err := backend.Health(ctx); err != nil {
		prog.fail(err, "Backend unreachable")
		return fmt.Errorf("backend unreachable: %w", err)
	}
	prog.success("Connected")

	if !prog.enabled {
		fmt.Fprintf(d.Stdout, "%s ok\n", cfg.BackendURL)
		return nil
	}
	fmt.Fprintln(d.Stdout, lipgloss.NewStyle().Foreground(colorSuccess).Render(
		fmt.Sprintf("✓ %s is reachable", cfg.BackendURL),
	))
	return nil
}
