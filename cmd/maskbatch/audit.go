package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/raaihank/llm-anonymizer/internal/audit"
)

var (
	auditLimit     int
	auditSession   string
	auditSince     time.Duration
	auditOlderThan time.Duration
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect and prune the masking audit log",
	Long: `Reads the PostgreSQL audit log configured under "audit". Records hold
category counts and sizes only, never text.`,
}

var auditRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List the latest audit records",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openAuditStore()
		if err != nil {
			return err
		}
		defer store.Close()

		var records []audit.Record
		if auditSession != "" {
			records, err = store.Session(cmd.Context(), auditSession)
		} else {
			records, err = store.Recent(cmd.Context(), auditLimit)
		}
		if err != nil {
			return err
		}
		printRecords(cmd.OutOrStdout(), records)
		return nil
	},
}

var auditStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise audit records per operation",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openAuditStore()
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.Stats(cmd.Context(), time.Now().Add(-auditSince))
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "OPERATION\tCOUNT\tPLACEHOLDERS\tAVG MS")
		for _, s := range stats {
			fmt.Fprintf(w, "%s\t%d\t%d\t%.2f\n", s.Operation, s.Count, s.Placeholders, s.AvgDuration)
		}
		return w.Flush()
	},
}

var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete audit records older than --older-than",
	RunE: func(cmd *cobra.Command, args []string) error {
		if auditOlderThan <= 0 {
			return fmt.Errorf("--older-than must be positive")
		}
		store, err := openAuditStore()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()
		n, err := store.Prune(ctx, auditOlderThan)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d records\n", n)
		return nil
	},
}

func openAuditStore() (*audit.Store, error) {
	if !cfg.Audit.Enabled {
		return nil, fmt.Errorf("audit log is disabled (audit.enabled)")
	}
	return audit.NewStore(&audit.Config{
		DatabaseURL:     cfg.Audit.DatabaseURL,
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: cfg.Audit.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Audit.ConnMaxIdleTime,
	}, log.Logger)
}

func printRecords(out io.Writer, records []audit.Record) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tOPERATION\tREQUEST\tSESSION\tCHARS\tMS\tCATEGORIES")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.2f\t%s\n",
			r.CreatedAt.Format(time.RFC3339), r.Operation, r.RequestID, r.SessionID,
			r.TextLength, r.DurationMs, formatCounts(r.Categories))
	}
	w.Flush()
}

// formatCounts renders counts as "date=1 id=2", sorted by category
func formatCounts(c audit.Counts) string {
	if len(c) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, c[k])
	}
	return strings.Join(parts, " ")
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditRecentCmd, auditStatsCmd, auditPruneCmd)

	auditRecentCmd.Flags().IntVar(&auditLimit, "limit", 20, "number of records")
	auditRecentCmd.Flags().StringVar(&auditSession, "session", "", "list the records of one session instead")
	auditStatsCmd.Flags().DurationVar(&auditSince, "since", 24*time.Hour, "window to summarise")
	auditPruneCmd.Flags().DurationVar(&auditOlderThan, "older-than", 30*24*time.Hour, "age of records to delete")
}
