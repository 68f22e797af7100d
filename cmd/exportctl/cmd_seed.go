package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artisthq/exportd/constants"
	"github.com/artisthq/exportd/internal/common"
	"github.com/artisthq/exportd/internal/entity"
	"github.com/artisthq/exportd/internal/source"
)

var seedFlags struct {
	dataDB string
}

var seedCmd = &cobra.Command{
	Use:   "seed <type> <file.json>",
	Short: "Load records from a JSON file into the data database",
	Long: `Read a JSON array of objects and insert them as records of the
given export type. Useful for fixtures and local testing.`,
	Args: cobra.ExactArgs(2),
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedFlags.dataDB, "data-db", "./data.db", "path to the data database")
}

func runSeed(cmd *cobra.Command, args []string) error {
	t, ok := constants.ParseExportType(args[0])
	if !ok {
		return common.ValidationErrorf("unknown export type %q", args[0])
	}

	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", common.ErrValidation, args[1], err)
	}
	var recs []entity.Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return common.ValidationErrorf("decode %s: %v", args[1], err)
	}

	store, err := source.NewSQLiteStore(seedFlags.dataDB)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Seed(cmd.Context(), t, recs); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "seeded %d %s records into %s\n", len(recs), t, seedFlags.dataDB)
	return nil
}
