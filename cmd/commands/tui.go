package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/urfave/cli/v3"

	"github.com/kessler-labs/switchboard/internal/dashboard"
)

// NewTUICommand returns the tui subcommand: it starts a runtime using the
// same wiring as NewGatewayCommand and attaches a live operator dashboard
// to its event bus.
func NewTUICommand() *cli.Command {
	return &cli.Command{
		Name:   "tui",
		Usage:  "Start the runtime and attach a live operator dashboard",
		Action: runTUI,
	}
}

func runTUI(ctx context.Context, cmd *cli.Command) error {
	cfg := loadConfigOrDefaults(cmd)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	orch, bus, cleanup, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("start runtime: %w", err)
	}

	p := tea.NewProgram(dashboard.New(bus), tea.WithAltScreen())

	go func() {
		<-ctx.Done()
		p.Send(dashboard.ShutdownMsg{})
	}()

	_, runErr := p.Run()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := orch.Dispose(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
