package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaihank/llm-anonymizer/internal/audit"
	"github.com/raaihank/llm-anonymizer/internal/logger"
	"github.com/raaihank/llm-anonymizer/internal/privacy"
	"github.com/raaihank/llm-anonymizer/internal/privacy/filters"
)

func TestMapFileRoundTrip(t *testing.T) {
	reg, err := filters.DefaultRegistry()
	require.NoError(t, err)
	engine, err := privacy.New(reg, privacy.DefaultOptions(), logger.NewNop())
	require.NoError(t, err)

	text := "Dear Dr. John Doe, your case 12345 is being processed"
	masked := engine.Hide(text)

	path := filepath.Join(t.TempDir(), "case.map.json")
	require.NoError(t, saveMap(path, engine.Substitutions()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	subs, err := loadMap(path)
	require.NoError(t, err)
	assert.Equal(t, text, privacy.Restore(masked, subs))
}

func TestLoadMapErrors(t *testing.T) {
	_, err := loadMap(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "reading map file")

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	_, err = loadMap(path)
	assert.ErrorContains(t, err, "parsing map file")
}

func TestInputText(t *testing.T) {
	cmd := &cobra.Command{}

	text, err := inputText(cmd, []string{"case", "12345"})
	require.NoError(t, err)
	assert.Equal(t, "case 12345", text)

	cmd.SetIn(strings.NewReader("line one\nline two\r\n"))
	text, err = inputText(cmd, nil)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", text)
}

func TestFormatCounts(t *testing.T) {
	assert.Equal(t, "-", formatCounts(nil))
	assert.Equal(t, "date=1 id=2 name=3", formatCounts(audit.Counts{"name": 3, "id": 2, "date": 1}))
}

func TestPrintRecords(t *testing.T) {
	var buf strings.Builder
	printRecords(&buf, []audit.Record{{
		RequestID:  "req-1",
		SessionID:  "s-1",
		Operation:  audit.OperationHide,
		Categories: audit.Counts{"id": 1},
		TextLength: 12,
		DurationMs: 0.25,
		CreatedAt:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "TIME"))
	assert.Contains(t, lines[1], "2024-05-01T10:00:00Z")
	assert.Contains(t, lines[1], "id=1")
	assert.Contains(t, lines[1], "0.25")
}
