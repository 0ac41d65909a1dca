package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/meetline/server/mcp"
)

func newMCPCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the stored agenda to MCP clients over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			// stdout carries the protocol.
			closer := initLogger(cfg, true)
			defer closer.Close()

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			// A running server writes the same store.
			if err := st.StartWatching(); err != nil {
				slog.Warn("store watching unavailable, results may be stale", "error", err)
			}

			slog.Info("mcp server starting", "store", cfg.Store)
			return mcp.NewServer(st, version).ServeStdio(cmd.Context(), os.Stdin, os.Stdout)
		},
	}
}
