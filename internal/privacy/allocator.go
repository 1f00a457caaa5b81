package privacy

import (
	"sort"
)

// allocator assigns placeholders and applies them to the working text in
// one interleaved pass, so that a match already consumed by a longer one
// never receives a sequence number.
type allocator struct {
	subs    *SubstitutionMap
	next    map[Category]int
	text    string
	skipped int
}

func newAllocator(text string) *allocator {
	return &allocator{
		subs: NewSubstitutionMap(),
		next: make(map[Category]int),
		text: text,
	}
}

// orderCandidates sorts outcomes by category and each category's matches
// by decreasing literal length, keeping detection order for ties.
func orderCandidates(outcomes []Outcome) []Match {
	sorted := make([]Outcome, len(outcomes))
	copy(sorted, outcomes)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Category < sorted[j].Category })

	var out []Match
	for _, o := range sorted {
		batch := make([]Match, 0, len(o.Matches))
		for _, m := range o.Matches {
			m.Category = o.Category
			batch = append(batch, m)
		}
		sort.SliceStable(batch, func(i, j int) bool {
			return len(batch[i].Text) > len(batch[j].Text)
		})
		out = append(out, batch...)
	}
	return out
}

// allocate masks text with the given outcomes and returns the masked text,
// the substitution map that reverses it and the number of skipped matches.
func allocate(text string, outcomes []Outcome) (string, *SubstitutionMap, int) {
	a := newAllocator(text)
	for _, m := range orderCandidates(outcomes) {
		a.commit(m)
	}
	return a.text, a.subs, a.skipped
}

func (a *allocator) commit(m Match) {
	if m.Text == "" {
		a.skipped++
		return
	}
	if _, seen := a.subs.Reverse[m.Text]; seen {
		a.skipped++
		return
	}

	seq := a.next[m.Category] + 1

	var (
		target      string
		replacement string
		forward     = make(map[string]string, 2)
		tags        []string
	)

	if n, ok := splitName(m); ok {
		first := FirstNameTag(m.Category, seq)
		forward[first] = n.first
		tags = append(tags, first)
		replacement = first
		if n.last != "" {
			last := LastNameTag(m.Category, seq)
			forward[last] = n.last
			tags = append(tags, last)
			replacement += n.sep + last
		}
		target = n.core()
	} else {
		tag := Placeholder(m.Category, seq)
		forward[tag] = m.Text
		tags = append(tags, tag)
		replacement = tag
		target = m.Text
	}

	// A tag may only ever stand for one literal.
	for tag := range forward {
		if _, taken := a.subs.Forward[tag]; taken {
			a.skipped++
			return
		}
	}

	masked, count := replaceBounded(a.text, target, replacement)
	if count == 0 {
		a.skipped++
		return
	}

	a.text = masked
	a.next[m.Category] = seq
	for tag, original := range forward {
		a.subs.Forward[tag] = original
	}
	a.subs.Reverse[m.Text] = replacement
	a.subs.Entries = append(a.subs.Entries, Substitution{
		Category:    m.Category,
		Sequence:    seq,
		Literal:     m.Text,
		Target:      target,
		Replacement: replacement,
		Tags:        tags,
		Occurrences: count,
	})
}
