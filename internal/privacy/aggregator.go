package privacy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/raaihank/llm-anonymizer/internal/logger"
	"go.uber.org/zap"
)

// Aggregator runs every active detector over the same input and collects
// one Outcome per category
type Aggregator struct {
	detectors map[Category]Detector
	order     []Category
	parallel  bool
	observer  Observer
	logger    *logger.Logger
}

// NewAggregator creates an aggregator over the given detectors. When
// parallel is set detectors run concurrently; the result order is the same
// either way.
func NewAggregator(detectors map[Category]Detector, parallel bool, observer Observer, log *logger.Logger) *Aggregator {
	order := make([]Category, 0, len(detectors))
	for c := range detectors {
		order = append(order, c)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	if observer == nil {
		observer = NopObserver{}
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &Aggregator{
		detectors: detectors,
		order:     order,
		parallel:  parallel,
		observer:  observer,
		logger:    log,
	}
}

// Categories returns the active categories in processing order
func (a *Aggregator) Categories() []Category {
	out := make([]Category, len(a.order))
	copy(out, a.order)
	return out
}

// Aggregate calls each detector exactly once and returns the outcomes in
// alphabetical category order. Detector errors and panics degrade that
// category to an empty result.
func (a *Aggregator) Aggregate(ctx context.Context, text string) []Outcome {
	outcomes := make([]Outcome, len(a.order))

	if !a.parallel || len(a.order) < 2 {
		for i, category := range a.order {
			outcomes[i] = a.run(ctx, category, text)
		}
	} else {
		var wg sync.WaitGroup
		for i, category := range a.order {
			wg.Add(1)
			go func(i int, category Category) {
				defer wg.Done()
				outcomes[i] = a.run(ctx, category, text)
			}(i, category)
		}
		wg.Wait()
	}

	for _, out := range outcomes {
		a.observer.DetectorFinished(out.Category, len(out.Matches), out.Degraded, out.Duration)
		if out.Degraded {
			a.logger.Warn("Detector degraded to empty result",
				zap.String("category", string(out.Category)),
				zap.Error(out.Err),
			)
		}
	}

	return outcomes
}

func (a *Aggregator) run(ctx context.Context, category Category, text string) (out Outcome) {
	start := time.Now()
	out.Category = category

	defer func() {
		if r := recover(); r != nil {
			out = Outcome{
				Category: category,
				Err:      fmt.Errorf("detector panic: %v", r),
				Degraded: true,
			}
		}
		out.Duration = time.Since(start)
	}()

	if err := ctx.Err(); err != nil {
		out.Err = err
		out.Degraded = true
		return out
	}

	matches, err := a.detectors[category].Find(ctx, text)
	if err != nil {
		out.Err = err
		out.Degraded = true
		return out
	}

	out.Matches = make([]Match, 0, len(matches))
	for _, m := range matches {
		m.Category = category
		out.Matches = append(out.Matches, m)
	}

	return out
}
