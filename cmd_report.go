package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/meetline/server/agenda"
	"github.com/meetline/server/console"
	"github.com/meetline/server/segment"
	"github.com/meetline/server/store"
)

func newReportCommand(flags *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print time spent per agenda item from the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			closer := initLogger(cfg, true)
			defer closer.Close()

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			records, err := st.List(cmd.Context())
			if err != nil {
				return err
			}
			tree, err := agenda.NewTree(store.Items(records))
			if err != nil {
				return err
			}
			report := segment.DwellReport(tree)

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return console.WriteReport(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}
