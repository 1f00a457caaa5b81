package filters

import "github.com/raaihank/llm-anonymizer/internal/privacy"

// collector keeps matches in detection order and drops repeated literals
type collector struct {
	seen    map[string]struct{}
	matches []privacy.Match
}

func newCollector() *collector {
	return &collector{seen: make(map[string]struct{})}
}

func (c *collector) add(m privacy.Match) {
	if m.Text == "" {
		return
	}
	if _, dup := c.seen[m.Text]; dup {
		return
	}
	c.seen[m.Text] = struct{}{}
	c.matches = append(c.matches, m)
}
