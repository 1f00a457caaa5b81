package batch

import (
	"path/filepath"
	"strings"
	"time"
)

// Record is one text cell read from a dataset. The remaining fields of the
// row travel with it untouched so writers can reproduce the row.
type Record struct {
	Row  int64
	ID   string
	Text string

	row any
}

// Result summarises a dataset run
type Result struct {
	RunID          string         `json:"run_id"`
	TotalRecords   int64          `json:"total_records"`
	Masked         int64          `json:"masked"`
	Unchanged      int64          `json:"unchanged"`
	Failed         int64          `json:"failed"`
	VerifyFailures int64          `json:"verify_failures"`
	Degraded       int64          `json:"degraded"`
	Placeholders   map[string]int `json:"placeholders"`
	Duration       time.Duration  `json:"duration"`
	MaskingTime    time.Duration  `json:"masking_time"`
	AuditTime      time.Duration  `json:"audit_time"`
	Errors         []string       `json:"errors,omitempty"`
}

// Config contains dataset pipeline configuration
type Config struct {
	BatchSize       int    `yaml:"batch_size" mapstructure:"batch_size"`               // 500
	WorkerCount     int    `yaml:"worker_count" mapstructure:"worker_count"`           // 4
	VerifyRoundTrip bool   `yaml:"verify_round_trip" mapstructure:"verify_round_trip"` // false
	ProgressReport  int    `yaml:"progress_report" mapstructure:"progress_report"`     // 1000
	TextField       string `yaml:"text_field" mapstructure:"text_field"`               // text
	IDField         string `yaml:"id_field" mapstructure:"id_field"`                   // id
	// MaxErrors caps the messages kept in Result.Errors
	MaxErrors int `yaml:"max_errors" mapstructure:"max_errors"`
}

// DefaultConfig returns the defaults used when fields are left zero
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      500,
		WorkerCount:    4,
		ProgressReport: 1000,
		TextField:      "text",
		IDField:        "id",
		MaxErrors:      100,
	}
}

func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.BatchSize <= 0 {
		out.BatchSize = d.BatchSize
	}
	if out.WorkerCount <= 0 {
		out.WorkerCount = d.WorkerCount
	}
	if out.ProgressReport <= 0 {
		out.ProgressReport = d.ProgressReport
	}
	if out.TextField == "" {
		out.TextField = d.TextField
	}
	if out.IDField == "" {
		out.IDField = d.IDField
	}
	if out.MaxErrors <= 0 {
		out.MaxErrors = d.MaxErrors
	}
	return &out
}

// ProcessingStats tracks real-time processing statistics
type ProcessingStats struct {
	StartTime      time.Time `json:"start_time"`
	RecordsRead    int64     `json:"records_read"`
	RecordsMasked  int64     `json:"records_masked"`
	RecordsFailed  int64     `json:"records_failed"`
	CurrentBatch   int64     `json:"current_batch"`
	ProcessingRate float64   `json:"processing_rate"` // records per second
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects file format from extension. JSON files hold one
// object per line.
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".parquet":
		return FormatParquet
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON
	default:
		return FormatCSV
	}
}

// OutputPath derives the default output file for an input file, e.g.
// data/train.csv becomes data/train.masked.csv.
func OutputPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + ".masked" + ext
}
