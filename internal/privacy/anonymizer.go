package privacy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/raaihank/llm-anonymizer/internal/logger"
	"go.uber.org/zap"
)

// Observer receives engine measurements. Implementations must be safe for
// concurrent use.
type Observer interface {
	DetectorFinished(category Category, matches int, degraded bool, elapsed time.Duration)
	Masked(result ProcessResult, elapsed time.Duration)
	Restored(elapsed time.Duration)
}

// NopObserver discards all measurements
type NopObserver struct{}

func (NopObserver) DetectorFinished(Category, int, bool, time.Duration) {}
func (NopObserver) Masked(ProcessResult, time.Duration)                 {}
func (NopObserver) Restored(time.Duration)                              {}

// Options configures an Anonymizer
type Options struct {
	// Categories selects the detectors to run; empty means all.
	Categories []string
	// PreserveGrammar fixes "a"/"an" in front of placeholders.
	PreserveGrammar bool
	// Parallel runs detectors concurrently.
	Parallel bool
	Observer Observer
}

// DefaultOptions returns all categories with grammar preservation on
func DefaultOptions() Options {
	return Options{PreserveGrammar: true}
}

// Anonymizer masks personal data with placeholders and restores it.
//
// The substitution map built by the latest Hide is owned by the instance
// and consulted by every later Fill; only one masked text can be
// outstanding per instance. Calls are serialised, but callers that need
// independent outstanding results must use separate instances.
type Anonymizer struct {
	aggregator      *Aggregator
	preserveGrammar bool
	observer        Observer
	logger          *logger.Logger

	mu   sync.Mutex
	subs *SubstitutionMap
}

// New creates an engine over the categories selected from reg
func New(reg *Registry, opts Options, log *logger.Logger) (*Anonymizer, error) {
	if reg == nil {
		return nil, ErrNoDetectors
	}
	if log == nil {
		log = logger.NewNop()
	}

	detectors, err := reg.Resolve(opts.Categories)
	if err != nil {
		return nil, fmt.Errorf("failed to configure detectors: %w", err)
	}

	observer := opts.Observer
	if observer == nil {
		observer = NopObserver{}
	}

	log = log.WithComponent("privacy")
	a := &Anonymizer{
		aggregator:      NewAggregator(detectors, opts.Parallel, observer, log),
		preserveGrammar: opts.PreserveGrammar,
		observer:        observer,
		logger:          log,
		subs:            NewSubstitutionMap(),
	}

	log.Debug("Anonymizer initialized",
		zap.Int("categories", len(detectors)),
		zap.Bool("preserve_grammar", opts.PreserveGrammar),
		zap.Bool("parallel", opts.Parallel),
	)

	return a, nil
}

// Categories returns the active categories
func (a *Anonymizer) Categories() []Category {
	return a.aggregator.Categories()
}

// Hide replaces personal data in text with placeholders
func (a *Anonymizer) Hide(text string) string {
	return a.HideContext(context.Background(), text)
}

// HideContext is Hide with a context passed to the detectors. A cancelled
// context degrades the remaining detectors rather than failing the call.
func (a *Anonymizer) HideContext(ctx context.Context, text string) string {
	return a.Process(ctx, text).MaskedText
}

// Process masks text and reports what was found. The substitution map is
// reset and rebuilt; empty input is returned unchanged and leaves the map
// as it was.
func (a *Anonymizer) Process(ctx context.Context, text string) ProcessResult {
	if text == "" {
		return ProcessResult{MaskedText: text, Findings: []Finding{}, Original: text}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	start := time.Now()
	outcomes := a.aggregator.Aggregate(ctx, text)
	masked, subs, skipped := allocate(text, outcomes)

	if a.preserveGrammar {
		masked, subs.Articles = fixArticles(masked)
	}
	a.subs = subs

	result := ProcessResult{
		MaskedText: masked,
		Findings:   subs.findings(),
		Original:   text,
	}
	if result.Findings == nil {
		result.Findings = []Finding{}
	}
	for _, o := range outcomes {
		if o.Degraded {
			result.Degraded = append(result.Degraded, string(o.Category))
		}
	}

	elapsed := time.Since(start)
	a.observer.Masked(result, elapsed)
	a.logger.Debug("Personal data masked",
		logger.CategoryCounts(result.Counts()),
		zap.Int("skipped", skipped),
		zap.Int("articles_fixed", len(subs.Articles)),
		zap.Duration("duration", elapsed),
	)

	return result
}

// Fill restores the originals for every placeholder created by the latest
// Hide. Unknown tags and text without tags pass through unchanged.
func (a *Anonymizer) Fill(text string) string {
	if text == "" {
		return text
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	start := time.Now()
	restored := restore(text, a.subs)
	a.observer.Restored(time.Since(start))

	return restored
}

// Restore applies a saved substitution map to text, the same way Fill
// applies the engine's own map.
func Restore(text string, subs *SubstitutionMap) string {
	return restore(text, subs)
}

// Substitutions returns a copy of the current substitution map
func (a *Anonymizer) Substitutions() *SubstitutionMap {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.subs.Clone()
}
