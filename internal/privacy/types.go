package privacy

import (
	"time"
)

// Category is a personal-data class with one dedicated detector
type Category string

// Built-in categories
const (
	CategoryDate Category = "date"
	CategoryID   Category = "id"
	CategoryName Category = "name"
)

// NameParts is the structure of a detected personal name. First is never
// empty; Title and Last may be.
type NameParts struct {
	Title string `json:"title,omitempty"`
	First string `json:"first"`
	Last  string `json:"last,omitempty"`
}

// Match is one detected span of personal data. Text is the literal
// substring as it appears in the input.
type Match struct {
	Category Category   `json:"category"`
	Text     string     `json:"text"`
	Name     *NameParts `json:"name,omitempty"`
}

// Outcome is the result of one detector call. A degraded outcome carries
// no matches and the reason in Err.
type Outcome struct {
	Category Category
	Matches  []Match
	Err      error
	Degraded bool
	Duration time.Duration
}

// Finding summarises what was masked for one category. It never carries
// the original text.
type Finding struct {
	EntityType   string `json:"entity_type"`
	Placeholders int    `json:"placeholders"`
	Occurrences  int    `json:"occurrences"`
}

// ProcessResult contains the result of masking one text
type ProcessResult struct {
	MaskedText string    `json:"masked_text"`
	Findings   []Finding `json:"findings"`
	Degraded   []string  `json:"degraded,omitempty"`
	Original   string    `json:"-"` // Never serialize original text
}

// Counts returns the number of placeholders allocated per category
func (r ProcessResult) Counts() map[string]int {
	counts := make(map[string]int, len(r.Findings))
	for _, f := range r.Findings {
		counts[f.EntityType] = f.Placeholders
	}
	return counts
}
