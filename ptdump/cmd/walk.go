package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/sarchlab/ptdump/datarecording"
	"github.com/sarchlab/ptdump/paging"
	"github.com/sarchlab/ptdump/report"
)

var walkCmd = &cobra.Command{
	Use:   "walk [TABLE_BASE]",
	Short: "Decode all entries of one page table.",
	Long: "`walk [TABLE_BASE]` decodes the 512 entries of the table at " +
		"TABLE_BASE. Without an argument, the PML4 is read through the " +
		"recursive mapping at 0xfffffffffffff000. Interrupting the walk " +
		"keeps the entries printed so far.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		base := paging.DefaultTableBase
		if len(args) > 0 {
			var err error
			if base, err = paging.ParseAddress(args[0]); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		return runWalk(ctx, cmd, base)
	},
}

func init() {
	rootCmd.AddCommand(walkCmd)
	walkCmd.Flags().BoolP("all", "a", false, "also print empty entries")
	walkCmd.Flags().String("record", cfg.Record,
		"record the walk into the SQLite database at this path")
	walkCmd.Flags().Bool("summary", false, "print a one-line summary at the end")
}

func runWalk(ctx context.Context, cmd *cobra.Command, base uint64) error {
	storage, err := cfg.loadMemory()
	if err != nil {
		return err
	}

	showEmpty, _ := cmd.Flags().GetBool("all")
	printer := report.NewPrinter(cmd.OutOrStdout()).WithEmpty(showEmpty)

	b := paging.MakeBuilder().
		WithReader(storage).
		WithLevel(cfg.level).
		WithHook(printer)

	recordPath, _ := cmd.Flags().GetString("record")
	if recordPath != "" {
		recorder, err := datarecording.New(recordPath)
		if err != nil {
			return err
		}
		defer recorder.Close()

		walkRecorder, err := datarecording.NewWalkRecorder(recorder)
		if err != nil {
			return err
		}

		b = b.WithHook(walkRecorder)
	}

	table, err := b.Build().Walk(ctx, base)
	if err != nil && !errors.Is(err, paging.ErrCancelled) {
		return err
	}

	if err := printer.Err(); err != nil {
		return err
	}

	if summary, _ := cmd.Flags().GetBool("summary"); summary {
		fmt.Fprintln(cmd.OutOrStdout(), report.Summary(table))
	}

	return nil
}
