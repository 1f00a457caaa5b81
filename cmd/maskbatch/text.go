package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raaihank/llm-anonymizer/internal/app"
	"github.com/raaihank/llm-anonymizer/internal/privacy"
)

var (
	mapFile        string
	hideJSON       bool
	hideCategories []string
)

var hideCmd = &cobra.Command{
	Use:   "hide [text]",
	Short: "Mask a single text",
	Long: `Masks the text given as arguments, or stdin when there are none. With
--map-file the substitution map is saved so "fill" can restore the text
later. The map holds the original values; keep it private.`,
	Example: `  maskbatch hide "Dear Dr. John Doe, your case 12345" --map-file case.map.json
  cat letter.txt | maskbatch hide --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := inputText(cmd, args)
		if err != nil {
			return err
		}

		cfg.Audit.Enabled = false
		services, err := app.Initialize(cfg, log)
		if err != nil {
			return err
		}
		defer services.Close()

		opts := app.EngineOptions(cfg)
		if len(hideCategories) > 0 {
			opts.Categories = hideCategories
		}
		engine, err := privacy.New(services.Registry, opts, log)
		if err != nil {
			return err
		}

		res := engine.Process(cmd.Context(), text)

		if mapFile != "" {
			if err := saveMap(mapFile, engine.Substitutions()); err != nil {
				return err
			}
		}

		if hideJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			return enc.Encode(res)
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.MaskedText)
		return nil
	},
}

var fillCmd = &cobra.Command{
	Use:   "fill [text]",
	Short: "Restore a text masked by hide",
	Long: `Replaces the placeholders in the text given as arguments, or stdin when
there are none, using a map saved by "hide --map-file".`,
	Example: `  maskbatch fill --map-file case.map.json "Reply to <FIRST_NAME_1> about <ID_1>"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		subs, err := loadMap(mapFile)
		if err != nil {
			return err
		}
		text, err := inputText(cmd, args)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), privacy.Restore(text, subs))
		return nil
	},
}

// inputText joins the arguments, or reads stdin when there are none. One
// trailing newline from stdin is dropped.
func inputText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	text := strings.TrimSuffix(string(data), "\n")
	return strings.TrimSuffix(text, "\r"), nil
}

func saveMap(path string, subs *privacy.SubstitutionMap) error {
	data, err := json.MarshalIndent(subs, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing map file: %w", err)
	}
	return nil
}

func loadMap(path string) (*privacy.SubstitutionMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading map file: %w", err)
	}
	subs := privacy.NewSubstitutionMap()
	if err := json.Unmarshal(data, subs); err != nil {
		return nil, fmt.Errorf("parsing map file %s: %w", path, err)
	}
	return subs, nil
}

func init() {
	rootCmd.AddCommand(hideCmd, fillCmd)

	hideCmd.Flags().StringVar(&mapFile, "map-file", "", "save the substitution map to this file")
	hideCmd.Flags().BoolVar(&hideJSON, "json", false, "print masked text and findings as JSON")
	hideCmd.Flags().StringSliceVar(&hideCategories, "categories", nil, "categories to mask (default from privacy.categories)")

	fillCmd.Flags().StringVar(&mapFile, "map-file", "", "substitution map saved by hide")
	_ = fillCmd.MarkFlagRequired("map-file")
}
