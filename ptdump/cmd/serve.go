package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/sarchlab/ptdump/datarecording"
	"github.com/sarchlab/ptdump/monitoring"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve decoded page tables over HTTP.",
	Long: "`serve` loads the segments and answers GET /api/walk/{base} and " +
		"GET /api/entry/{base}/{slot} until interrupted.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		storage, err := cfg.loadMemory()
		if err != nil {
			return err
		}

		port := cfg.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		monitor := monitoring.NewMonitor(storage).
			WithPortNumber(port).
			WithLogger(slog.Default())

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

			monitor.WithHook(walkRecorder)
		}

		url, err := monitor.StartServer()
		if err != nil {
			return err
		}

		if open, _ := cmd.Flags().GetBool("open"); open {
			if err := browser.OpenURL(url + "/api/walk/0xfffffffffffff000"); err != nil {
				fmt.Fprintf(os.Stderr, "Cannot open browser: %v\n", err)
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return monitor.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Int("port", 0, "port to listen on; random when 0")
	serveCmd.Flags().Bool("open", false, "open the PML4 walk in a browser")
	serveCmd.Flags().String("record", cfg.Record,
		"record every walk into the SQLite database at this path")
}
