package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/ptdump/paging"
	"github.com/sarchlab/ptdump/report"
)

var decodeCmd = &cobra.Command{
	Use:   "decode RAW",
	Short: "Decode a single raw entry value.",
	Long: "`decode RAW --level L` decodes an entry value without reading " +
		"memory. --base and --slot place the entry in a table to compute its " +
		"virtual range; the level is inferred from --base when not given.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := paging.ParseAddress(args[0])
		if err != nil {
			return err
		}

		baseStr, _ := cmd.Flags().GetString("base")
		base, err := paging.ParseAddress(baseStr)
		if err != nil {
			return err
		}

		slot, _ := cmd.Flags().GetInt("slot")
		if slot < 0 || slot >= paging.EntriesPerTable {
			return fmt.Errorf("slot must be between 0 and %d",
				paging.EntriesPerTable-1)
		}

		base, _ = paging.AlignBase(base)
		out := cmd.OutOrStdout()

		level := cfg.level
		if level == 0 {
			var ok bool
			if level, ok = paging.InferLevel(base); !ok {
				fmt.Fprintf(out, "WARN: %v\n", paging.ErrLevelAssumed)
			}
		}

		r := paging.Record{
			Entry: paging.DecodeEntry(raw, slot, level),
			Addr:  base + uint64(slot)*paging.EntrySize,
		}
		r.Mapping, r.Err = paging.ComputeMapping(level, base, r.Entry)

		fmt.Fprintf(out, "level: %d (%s)\n", level, level)

		return report.NewPrinter(out).PrintRecord(level, &r)
	},
}

var childCmd = &cobra.Command{
	Use:   "child TABLE_BASE SLOT",
	Short: "Print the address of the table an entry points to.",
	Long: "`child TABLE_BASE SLOT` composes the address of the subordinate " +
		"table of SLOT, which can be passed to walk to descend one level.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := paging.ParseAddress(args[0])
		if err != nil {
			return err
		}

		slot, err := paging.ParseAddress(args[1])
		if err != nil || slot >= paging.EntriesPerTable {
			return fmt.Errorf("slot must be between 0 and %d",
				paging.EntriesPerTable-1)
		}

		base, _ = paging.AlignBase(base)
		child := paging.ChildTable(base, int(slot))
		level, ok := paging.InferLevel(child)

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%#016x\n", child)
		if ok {
			fmt.Fprintf(out, "inferred table level: %d (%s)\n", level, level)
		} else {
			fmt.Fprintln(out, "table level not recognized")
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().String("base", "0", "address of the table holding the entry")
	decodeCmd.Flags().Int("slot", 0, "slot of the entry in its table")

	rootCmd.AddCommand(childCmd)
}
