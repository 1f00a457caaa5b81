package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raaihank/llm-anonymizer/internal/app"
	"github.com/raaihank/llm-anonymizer/internal/batch"
	"github.com/raaihank/llm-anonymizer/internal/metrics"
)

var (
	runInput       string
	runOutput      string
	runBatchSize   int
	runWorkers     int
	runVerify      bool
	runCategories  []string
	runTextField   string
	runNoAudit     bool
	runMetricsFile string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Mask a dataset file",
	Long: `Masks the text column of a CSV, JSON lines or Parquet file and writes the
result next to it (data.csv becomes data.masked.csv) unless --output is
given. The output format follows the output file extension.`,
	Example: `  maskbatch run --input dataset.csv --workers 8
  maskbatch run -i dataset.parquet -o masked.jsonl --verify`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(runInput); err != nil {
			return fmt.Errorf("input file: %w", err)
		}
		if runOutput == "" {
			runOutput = batch.OutputPath(runInput)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if runNoAudit {
			cfg.Audit.Enabled = false
		}
		services, err := app.Initialize(cfg, log)
		if err != nil {
			return err
		}
		defer services.Close()

		pipelineConfig := &batch.Config{
			BatchSize:       cfg.Batch.BatchSize,
			WorkerCount:     cfg.Batch.WorkerCount,
			VerifyRoundTrip: cfg.Batch.VerifyRoundTrip,
			ProgressReport:  cfg.Batch.ProgressReport,
			TextField:       runTextField,
		}
		if cmd.Flags().Changed("batch-size") {
			pipelineConfig.BatchSize = runBatchSize
		}
		if cmd.Flags().Changed("workers") {
			pipelineConfig.WorkerCount = runWorkers
		}
		if cmd.Flags().Changed("verify") {
			pipelineConfig.VerifyRoundTrip = runVerify
		}

		opts := app.EngineOptions(cfg)
		if len(runCategories) > 0 {
			opts.Categories = runCategories
		}

		promReg := prometheus.NewRegistry()
		rec := metrics.New(promReg)

		var sink batch.AuditSink
		if services.Audit != nil {
			sink = services.Audit
		}

		pipeline, err := batch.NewPipeline(services.Registry, opts, pipelineConfig, sink, rec, log)
		if err != nil {
			return err
		}

		result, err := pipeline.ProcessFile(ctx, runInput, runOutput)
		if result != nil {
			printResult(result, runOutput)
		}
		if runMetricsFile != "" {
			if werr := prometheus.WriteToTextfile(runMetricsFile, promReg); werr != nil {
				log.Warn("Failed to write metrics file", zap.String("path", runMetricsFile), zap.Error(werr))
			}
		}
		if err != nil {
			return fmt.Errorf("dataset masking failed: %w", err)
		}
		if result.VerifyFailures > 0 {
			return fmt.Errorf("round-trip verification failed for %d records", result.VerifyFailures)
		}
		return nil
	},
}

func printResult(result *batch.Result, output string) {
	fmt.Printf("\n=== Dataset Masking Summary ===\n")
	fmt.Printf("Run ID:             %s\n", result.RunID)
	fmt.Printf("Output:             %s\n", output)
	fmt.Printf("Total Records:      %d\n", result.TotalRecords)
	fmt.Printf("Masked:             %d\n", result.Masked)
	fmt.Printf("Unchanged:          %d\n", result.Unchanged)
	fmt.Printf("Failed:             %d\n", result.Failed)
	fmt.Printf("Degraded:           %d\n", result.Degraded)
	fmt.Printf("Verify Failures:    %d\n", result.VerifyFailures)
	fmt.Printf("Duration:           %v\n", result.Duration)
	if secs := result.Duration.Seconds(); secs > 0 {
		fmt.Printf("Records/sec:        %.1f\n", float64(result.TotalRecords)/secs)
	}

	if len(result.Placeholders) > 0 {
		fmt.Printf("\n=== Placeholders by Category ===\n")
		categories := make([]string, 0, len(result.Placeholders))
		for c := range result.Placeholders {
			categories = append(categories, c)
		}
		sort.Strings(categories)
		for _, c := range categories {
			fmt.Printf("%-19s %d\n", c+":", result.Placeholders[c])
		}
	}

	if len(result.Errors) > 0 {
		fmt.Printf("\n=== Errors (first %d) ===\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Printf("  %s\n", e)
		}
	}
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runInput, "input", "i", "", "input dataset (CSV, Parquet, or JSON lines)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "output file (default: <input>.masked.<ext>)")
	runCmd.Flags().IntVar(&runBatchSize, "batch-size", 500, "records per batch (default from batch.batch_size)")
	runCmd.Flags().IntVar(&runWorkers, "workers", 4, "worker goroutines (default from batch.worker_count)")
	runCmd.Flags().BoolVar(&runVerify, "verify", false, "check that every record restores to its original")
	runCmd.Flags().StringSliceVar(&runCategories, "categories", nil, "categories to mask (default from privacy.categories)")
	runCmd.Flags().StringVar(&runTextField, "text-field", "text", "name of the text column or field")
	runCmd.Flags().BoolVar(&runNoAudit, "no-audit", false, "do not write audit records even if enabled")
	runCmd.Flags().StringVar(&runMetricsFile, "metrics-file", "", "write Prometheus metrics in textfile format when done")
	_ = runCmd.MarkFlagRequired("input")
}
