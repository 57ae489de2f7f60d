package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/kessler-labs/switchboard/internal/config"
	"github.com/kessler-labs/switchboard/internal/sessions"
)

// NewSessionsCommand returns the sessions subcommand.
func NewSessionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "Inspect switchboard conversation sessions",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List sessions in the configured store",
				Action: runSessionsList,
			},
			{
				Name:      "show",
				Usage:     "Show a session's message history",
				ArgsUsage: "<session_id>",
				Action:    runSessionsShow,
			},
		},
		DefaultCommand: "list",
	}
}

func sessionsStore(cmd *cli.Command) (sessions.Store, error) {
	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		cfg = &config.Config{}
	}
	if cfg.SessionStore.Backend != "sqlite" {
		return nil, fmt.Errorf("sessions command requires session_store.backend = \"sqlite\"; the in-memory store only exists inside a running gateway process")
	}
	return sessions.NewSQLiteStore(cfg.SessionStore.SQLitePath)
}

func runSessionsList(_ context.Context, cmd *cli.Command) error {
	store, err := sessionsStore(cmd)
	if err != nil {
		return err
	}

	list, err := store.List(0, 200, nil)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tPLATFORM\tROOM\tMESSAGES\tLAST ACTIVITY")
	for _, s := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			s.ID,
			s.State,
			s.Conversation.Platform,
			s.Conversation.Room,
			len(s.History),
			s.LastActivityAt.Format("2006-01-02 15:04"),
		)
	}
	return w.Flush()
}

func runSessionsShow(_ context.Context, cmd *cli.Command) error {
	sessionID := cmd.Args().First()
	if sessionID == "" {
		return fmt.Errorf("usage: switchboard sessions show <session_id>")
	}

	store, err := sessionsStore(cmd)
	if err != nil {
		return err
	}

	sess, err := store.Get(sessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	if len(sess.History) == 0 {
		fmt.Println("No messages in this session.")
		return nil
	}

	for _, m := range sess.History {
		fmt.Printf("[%s] %s: %s\n", m.Ts.Format("15:04:05"), m.Role, m.Content)
	}
	return nil
}
