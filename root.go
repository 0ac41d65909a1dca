package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/meetline/server/config"
	"github.com/meetline/server/logger"
	"github.com/meetline/server/persist"
	"github.com/meetline/server/store"
)

var version = "dev"

type globalFlags struct {
	configPath string
	dataDir    string
	devMode    bool
	storeKind  string
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "meetline",
		Short: "Track time spent per agenda item during a meeting",
		Long: `Meetline records which agenda item is being discussed as a list of
elapsed-time ranges per item, and persists them to the agenda store.

Run "meetline seed" to import an agenda outline, then "meetline serve" for
WebSocket clients or "meetline console" to drive a meeting from the terminal.`,
		Version:      version,
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/meetline/config.toml)")
	pf.StringVar(&flags.dataDir, "data-dir", "", "data directory")
	pf.BoolVar(&flags.devMode, "dev", false, "development mode: log to stdout, accept any WebSocket origin")
	pf.StringVar(&flags.storeKind, "store", "", `agenda store: "file" or "sqlite"`)

	cmd.AddCommand(newServeCommand(flags))
	cmd.AddCommand(newConsoleCommand(flags))
	cmd.AddCommand(newSeedCommand(flags))
	cmd.AddCommand(newReportCommand(flags))
	cmd.AddCommand(newMCPCommand(flags))

	return cmd
}

// load resolves the config and applies command-line overrides on top.
func (f *globalFlags) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir = f.dataDir
	}
	if cmd.Flags().Changed("dev") {
		cfg.DevMode = f.devMode
	}
	if cmd.Flags().Changed("store") {
		cfg.Store = f.storeKind
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func initLogger(cfg *config.Config, stderr bool) io.Closer {
	return logger.Init(logger.Config{
		DataDir: cfg.DataDir,
		DevMode: cfg.DevMode,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Stderr:  stderr,
	})
}

func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.Store == config.StoreSQLite {
		st, err := store.NewSQLiteStore(cfg.ResolvedDBPath())
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	st, err := store.NewFileStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func openJournal(cfg *config.Config) (*persist.Journal, error) {
	if path := cfg.JournalPath(); path != "" {
		return persist.OpenJournal(path)
	}
	return persist.NewJournal(), nil
}

// seedIfEmpty imports the configured outline into an empty store.
func seedIfEmpty(ctx context.Context, cfg *config.Config, st store.Store) error {
	if cfg.AgendaFile == "" {
		return nil
	}
	records, err := st.List(ctx)
	if err != nil {
		return err
	}
	if len(records) > 0 {
		return nil
	}
	_, err = importOutline(ctx, st, cfg.AgendaFile)
	return err
}

func importOutline(ctx context.Context, st store.Store, path string) (int, error) {
	items, err := agendaFromFile(path)
	if err != nil {
		return 0, err
	}
	if err := st.Replace(ctx, items); err != nil {
		return 0, fmt.Errorf("store agenda: %w", err)
	}
	return len(items), nil
}
