package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raaihank/llm-anonymizer/internal/app"
	"github.com/raaihank/llm-anonymizer/internal/batch"
	"github.com/raaihank/llm-anonymizer/internal/privacy"
)

var (
	validateInput     string
	validateTextField string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and that a dataset can be read",
	Long: `Builds the configured detectors and, when --input is given, reads every
record of the dataset without masking it, reporting malformed rows.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg.Audit.Enabled = false
		services, err := app.Initialize(cfg, log)
		if err != nil {
			return err
		}
		defer services.Close()

		engine, err := privacy.New(services.Registry, app.EngineOptions(cfg), log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "✗ Configuration invalid\n")
			return err
		}
		fmt.Printf("✓ Configuration valid\n")
		fmt.Printf("  Categories: %v\n", engine.Categories())
		fmt.Printf("  Grammar:    %v\n", cfg.Privacy.PreserveGrammar)
		fmt.Printf("  NER:        %v\n", services.Tagger != nil)
		fmt.Printf("  Cache:      %v\n", services.Cache != nil)

		if validateInput == "" {
			return nil
		}

		reader, file, err := batch.OpenReader(validateInput, &batch.Config{TextField: validateTextField})
		if err != nil {
			fmt.Fprintf(os.Stderr, "✗ Cannot read dataset: %s\n", validateInput)
			return err
		}
		defer file.Close()
		defer reader.Close()

		var records, malformed, empty int64
		for {
			rec, err := reader.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			var rowErr *batch.RowError
			if errors.As(err, &rowErr) {
				malformed++
				log.Warn("Malformed row", zap.Int64("row", rowErr.Row), zap.Error(rowErr.Err))
				continue
			}
			if err != nil {
				return fmt.Errorf("reading %s: %w", validateInput, err)
			}
			records++
			if rec.Text == "" {
				empty++
			}
		}

		fmt.Printf("\n✓ Dataset readable: %s (%s)\n", validateInput, batch.DetectFileFormat(validateInput))
		fmt.Printf("  Records:    %d\n", records)
		fmt.Printf("  Empty text: %d\n", empty)
		fmt.Printf("  Malformed:  %d\n", malformed)

		if malformed > 0 {
			return fmt.Errorf("%d malformed rows", malformed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateInput, "input", "i", "", "dataset to check")
	validateCmd.Flags().StringVar(&validateTextField, "text-field", "text", "name of the text column or field")
}
