// Command exportctl runs exports locally against a data database, without
// going through the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artisthq/exportd/internal/common"
)

// Exit codes by failure class, so scripts can branch on what went wrong.
const (
	exitOK         = 0
	exitError      = 1
	exitValidation = 2
	exitDataSource = 3
	exitSink       = 4
	exitCancelled  = 5
)

var rootCmd = &cobra.Command{
	Use:   "exportctl",
	Short: "Run and inspect data exports locally",
	Long: `exportctl streams records from a data database through the export
pipeline (field selection, privacy redaction, formatting) into a CSV or
XLSX file, with the same semantics the API server applies.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.AddCommand(exportCmd, seedCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, common.ErrValidation):
		return exitValidation
	case errors.Is(err, common.ErrDataSource):
		return exitDataSource
	case errors.Is(err, common.ErrSink):
		return exitSink
	case errors.Is(err, common.ErrCancelled), errors.Is(err, context.Canceled):
		return exitCancelled
	default:
		return exitError
	}
}
