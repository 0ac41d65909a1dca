package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/meetline/server/agenda"
)

func agendaFromFile(path string) ([]agenda.Item, error) {
	items, err := agenda.LoadOutline(path)
	if err != nil {
		return nil, fmt.Errorf("load outline %s: %w", path, err)
	}
	if _, err := agenda.NewTree(items); err != nil {
		return nil, err
	}
	return items, nil
}

func newSeedCommand(flags *globalFlags) *cobra.Command {
	var keepPending bool

	cmd := &cobra.Command{
		Use:   "seed [outline]",
		Short: "Replace the stored agenda with an outline file",
		Long: `Replace the stored agenda with an outline in YAML, JSON or TOML.

The outline nests items under "children" up to three levels:

  items:
    - title: Opening
      children:
        - title: Budget
    - title: Roadmap

Without an argument the configured agenda_file is used. Recorded segments
and unconfirmed writes for the old agenda are discarded.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			closer := initLogger(cfg, true)
			defer closer.Close()

			path := cfg.AgendaFile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return errors.New("no outline given and agenda_file is not configured")
			}

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := importOutline(cmd.Context(), st, path)
			if err != nil {
				return err
			}

			if !keepPending {
				journal, err := openJournal(cfg)
				if err != nil {
					return err
				}
				if dropped := journal.Clear(); dropped > 0 {
					slog.Info("discarded pending writes for the replaced agenda", "count", dropped)
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "imported %d items from %s\n", n, path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&keepPending, "keep-pending", false, "keep unconfirmed writes from before the import")
	return cmd
}
