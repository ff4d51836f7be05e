package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"marklift/internal/history"
	"marklift/internal/textutil"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect past conversions",
	}

	historyCmd.AddCommand(newHistoryListCommand(ctx))
	historyCmd.AddCommand(newHistoryStatsCommand(ctx))
	historyCmd.AddCommand(newHistoryClearCommand(ctx))

	return historyCmd
}

func newHistoryListCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent conversions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(ctx, func(store *history.Store) error {
				records, err := store.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintln(out, "No conversions recorded yet")
					return nil
				}

				rows := make([][]string, 0, len(records))
				for _, rec := range records {
					rows = append(rows, []string{
						fmt.Sprintf("%d", rec.ID),
						rec.CreatedAt.Local().Format("2006-01-02 15:04"),
						textutil.Truncate(itemLabel(rec.ItemName), 48),
						rec.Kind,
						colorizeStatus(rec.Status, shouldColorize(out)),
						formatBytes(rec.Bytes),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "WHEN", "ITEM", "KIND", "STATUS", "SIZE"},
					rows,
					map[int]bool{0: true, 5: true},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of records to show")
	return cmd
}

func newHistoryStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize conversion outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(ctx, func(store *history.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(stats) == 0 {
					fmt.Fprintln(out, "No conversions recorded yet")
					return nil
				}

				statuses := make([]string, 0, len(stats))
				for status := range stats {
					statuses = append(statuses, status)
				}
				sort.Strings(statuses)

				rows := make([][]string, 0, len(statuses))
				for _, status := range statuses {
					rows = append(rows, []string{status, fmt.Sprintf("%d", stats[status])})
				}
				fmt.Fprintln(out, renderTable([]string{"STATUS", "COUNT"}, rows, map[int]bool{1: true}))
				return nil
			})
		},
	}
}

func newHistoryClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all conversion history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(ctx, func(store *history.Store) error {
				removed, err := store.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d records\n", removed)
				return nil
			})
		},
	}
}

func withHistory(ctx *commandContext, fn func(*history.Store) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	store, err := history.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}
