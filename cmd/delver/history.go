package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/rahul/delver/internal/store"
	"github.com/rahul/delver/pkg/config"
	"github.com/spf13/cobra"
)

func newHistoryCmd(load func() (*config.Config, error)) *cobra.Command {
	var (
		limit  int
		chatID string
	)
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List past research runs, or print one run's record",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			db, err := store.Open(cfg.Memory.Path)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer db.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				run, err := db.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(run.Record))
				return nil
			}

			runs, err := db.ListRuns(cmd.Context(), chatID, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No research runs yet.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tWHEN\tCHAT\tQUERY")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04"), r.ChatID, truncate(r.Query, 60))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list")
	cmd.Flags().StringVar(&chatID, "chat", "", "only runs from this chat id")
	return cmd
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
