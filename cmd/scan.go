package main

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/zzenonn/zplace/internal/service"
)

var (
	scanVersion  uint32
	scanCapacity int
	scanPrune    bool
)

var scanCmd = &cobra.Command{
	Use:   "scan [objects.yaml]",
	Short: "Compute the rebuild work of a list of objects",
	Long: "scan reads a YAML list of object metadata (id, class, pda, layout_version)\n" +
		"and computes the rebuild work of every object against one snapshot of the\n" +
		"pool map. The report is written to --report when set; with --prune a\n" +
		"clean scan removes the report left there by an earlier run instead.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pool, info, err := loadPool(ctx)
		if err != nil {
			return err
		}
		objects, err := placements.LoadObjects(ctx, args[0])
		if err != nil {
			return err
		}

		version := scanVersion
		if !cmd.Flags().Changed("version") {
			version = info.MapVersion
		}

		var progress func(service.ScanResult)
		if !quiet {
			bar := progressbar.Default(int64(len(objects)), "scanning")
			progress = func(service.ScanResult) { _ = bar.Add(1) }
		}

		report, err := placements.Scan(ctx, pool, objects, version, scanCapacity, progress)
		if err != nil {
			return err
		}
		fmt.Printf("%d objects, %d shards to rebuild, %d failed (map version %d, rebuild version %d)\n",
			len(report.Objects), report.Items, report.Failed, report.MapVersion, report.RebuildVersion)

		if cfg.ReportSink == "" {
			return nil
		}
		if scanPrune && report.Clean() {
			if err := placements.DeleteReport(ctx, cfg.ReportSink); err != nil {
				return fmt.Errorf("failed to prune report: %w", err)
			}
			fmt.Printf("Nothing to rebuild, removed %s\n", cfg.ReportSink)
			return nil
		}
		where, err := placements.StoreReport(ctx, cfg.ReportSink, report)
		if err != nil {
			return fmt.Errorf("failed to store report: %w", err)
		}
		fmt.Printf("Report written to %s (%s)\n", where.Location, where.Storage)
		return nil
	},
}

func init() {
	scanCmd.Flags().Uint32Var(&scanVersion, "version", 0, "rebuild version (default: map version)")
	scanCmd.Flags().IntVar(&scanCapacity, "capacity", 64, "maximum work items per object")
	scanCmd.Flags().BoolVar(&scanPrune, "prune", false, "delete the stored report when the scan finds nothing to rebuild")
	rootCmd.AddCommand(scanCmd)
}
