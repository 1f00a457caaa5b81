package audit

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/lib/pq"
	"github.com/raaihank/llm-anonymizer/internal/privacy"
)

// Operations recorded in the audit log
const (
	OperationHide  = "hide"
	OperationFill  = "fill"
	OperationBatch = "batch"
)

// Config contains database configuration
type Config struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// Counts maps a category to the number of placeholders allocated for it.
// It is stored as a jsonb column.
type Counts map[string]int

// Value implements driver.Valuer
func (c Counts) Value() (driver.Value, error) {
	if c == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c)
}

// Scan implements sql.Scanner
func (c *Counts) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*c = Counts{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Counts", src)
	}
	out := Counts{}
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("invalid category counts: %w", err)
	}
	*c = out
	return nil
}

// Total returns the sum of all counts
func (c Counts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// Record is one audited masking operation. It never holds the processed
// text, only its size and what was found in it.
type Record struct {
	ID         int64          `db:"id" json:"id"`
	RequestID  string         `db:"request_id" json:"request_id"`
	SessionID  string         `db:"session_id" json:"session_id,omitempty"`
	Operation  string         `db:"operation" json:"operation"`
	Categories Counts         `db:"categories" json:"categories"`
	Degraded   pq.StringArray `db:"degraded" json:"degraded,omitempty"`
	TextLength int            `db:"text_length" json:"text_length"`
	DurationMs float64        `db:"duration_ms" json:"duration_ms"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// OperationStats aggregates the records of one operation
type OperationStats struct {
	Operation    string  `db:"operation" json:"operation"`
	Count        int64   `db:"count" json:"count"`
	Placeholders int64   `db:"placeholders" json:"placeholders"`
	AvgDuration  float64 `db:"avg_duration_ms" json:"avg_duration_ms"`
}

// BatchInsertResult represents the result of a batch insert operation
type BatchInsertResult struct {
	Inserted int64         `json:"inserted"`
	Duration time.Duration `json:"duration"`
}

// NewHideRecord builds the audit record for one masking call
func NewHideRecord(requestID, sessionID string, res privacy.ProcessResult, elapsed time.Duration) *Record {
	return &Record{
		RequestID:  requestID,
		SessionID:  sessionID,
		Operation:  OperationHide,
		Categories: Counts(res.Counts()),
		Degraded:   pq.StringArray(res.Degraded),
		TextLength: utf8.RuneCountInString(res.Original),
		DurationMs: float64(elapsed.Microseconds()) / 1000,
	}
}
