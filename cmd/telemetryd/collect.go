package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"codeberg.org/mutker/telemetryd/internal/errors"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run one collection pass and print the stored readings as JSON",
	RunE:  runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)
}

func runCollect(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadApp(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	e, err := openEnv(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer e.Close()

	coll, release, err := newCollector(ctx, cfg, e, log)
	if err != nil {
		return err
	}
	defer release()

	results, failures := coll.Collect(ctx)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return err
	}

	if len(results) == 0 && len(failures) > 0 {
		return errors.Join(failures...)
	}

	return nil
}
