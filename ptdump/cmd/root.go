// Package cmd provides the command-line interface of ptdump.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var cfg = loadConfig()

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ptdump",
	Short: "ptdump decodes x86-64 page tables.",
	Long: `ptdump decodes the 512 entries of an x86-64 page table (PML4, PDPT, ` +
		`PD or PT), showing the flags of each entry and the virtual and ` +
		`physical ranges it maps. Tables are read from memory dump files ` +
		`placed at arbitrary addresses with --segment.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return cfg.applyFlags(cmd.Flags())
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringArrayP("segment", "s", nil,
		"load a dump file at an address, as ADDR=PATH (repeatable)")
	flags.String("level", cfg.Level,
		"table level (1-4 or pt, pd, pdpt, pml4); inferred when empty")
	flags.String("log-level", cfg.LogLevel, "debug, info, warn or error")
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err != nil {
		return 1
	}

	return 0
}

func newLogger(level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stderr,
		&slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	return logger
}
