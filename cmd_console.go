package main

import (
	"fmt"
	"path/filepath"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/meetline/server/console"
)

func newConsoleCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Record a meeting interactively from the terminal",
		Long: `Record a meeting from the terminal. Type "help" for commands.

Segments are written to the same store "serve" uses, so a console session
and a running server should not record at the same time.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			closer := initLogger(cfg, false)
			defer closer.Close()

			engine, st, err := newEngine(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := engine.Start(); err != nil {
				return err
			}
			defer engine.Stop()

			rl, err := readline.NewEx(&readline.Config{
				Prompt:            "meetline> ",
				HistoryFile:       filepath.Join(cfg.DataDir, "console_history"),
				HistorySearchFold: true,
				InterruptPrompt:   "^C",
				EOFPrompt:         "quit",
			})
			if err != nil {
				return fmt.Errorf("init readline: %w", err)
			}
			defer rl.Close()

			return console.New(engine, rl.Stdout()).Run(rl)
		},
	}
}
