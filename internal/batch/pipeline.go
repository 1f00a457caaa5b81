// Package batch masks whole datasets. Records are read in batches, masked
// by a pool of workers that each own an engine, and written back in input
// order.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/raaihank/llm-anonymizer/internal/audit"
	"github.com/raaihank/llm-anonymizer/internal/logger"
	"github.com/raaihank/llm-anonymizer/internal/metrics"
	"github.com/raaihank/llm-anonymizer/internal/privacy"
)

// Record outcomes reported to metrics
const (
	OutcomeMasked       = "masked"
	OutcomeUnchanged    = "unchanged"
	OutcomeFailed       = "failed"
	OutcomeVerifyFailed = "verify_failed"
)

// AuditSink stores one audit row per masked record
type AuditSink interface {
	RecordBatch(ctx context.Context, records []*audit.Record) (*audit.BatchInsertResult, error)
}

// Pipeline handles dataset masking runs
type Pipeline struct {
	registry *privacy.Registry
	options  privacy.Options
	config   *Config
	audit    AuditSink
	metrics  *metrics.Recorder
	logger   *logger.Logger
	stats    *ProcessingStats
	mu       sync.RWMutex
}

// NewPipeline creates a new pipeline. sink and rec may be nil. The engine
// options are checked once here so a bad category fails before any input
// is read.
func NewPipeline(
	registry *privacy.Registry,
	options privacy.Options,
	config *Config,
	sink AuditSink,
	rec *metrics.Recorder,
	log *logger.Logger,
) (*Pipeline, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if rec != nil && options.Observer == nil {
		options.Observer = rec
	}

	p := &Pipeline{
		registry: registry,
		options:  options,
		config:   config.withDefaults(),
		audit:    sink,
		metrics:  rec,
		logger:   log.WithComponent("batch"),
		stats:    &ProcessingStats{StartTime: time.Now()},
	}

	if _, err := p.newEngine(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) newEngine() (*privacy.Anonymizer, error) {
	return privacy.New(p.registry, p.options, p.logger)
}

// OpenReader opens a dataset file for reading in the format given by its
// extension.
func OpenReader(path string, config *Config) (Reader, *os.File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input file: %w", err)
	}

	var reader Reader
	switch DetectFileFormat(path) {
	case FormatParquet:
		info, statErr := file.Stat()
		if statErr != nil {
			file.Close()
			return nil, nil, statErr
		}
		reader, err = NewParquetReader(file, info.Size())
	case FormatJSON:
		reader = NewJSONReader(file, config)
	default:
		reader, err = NewCSVReader(file, config)
	}
	if err != nil {
		file.Close()
		return nil, nil, err
	}
	return reader, file, nil
}

// NewWriter creates the writer for format. header is only used by CSV.
func NewWriter(format FileFormat, w io.Writer, header []string, config *Config) Writer {
	switch format {
	case FormatParquet:
		return NewParquetWriter(w)
	case FormatJSON:
		return NewJSONWriter(w, config)
	default:
		return NewCSVWriter(w, header)
	}
}

// ProcessFile masks a dataset file (CSV, Parquet, or JSON lines) into
// outPath. The output format follows the output file's extension.
func (p *Pipeline) ProcessFile(ctx context.Context, inPath, outPath string) (*Result, error) {
	inFormat, outFormat := DetectFileFormat(inPath), DetectFileFormat(outPath)
	p.logger.Info("Starting dataset masking",
		zap.String("input", inPath),
		zap.String("output", outPath),
		zap.String("input_format", string(inFormat)),
		zap.String("output_format", string(outFormat)),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("workers", p.config.WorkerCount),
		zap.Bool("verify_round_trip", p.config.VerifyRoundTrip))

	reader, in, err := OpenReader(inPath, p.config)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	defer reader.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	var header []string
	if h, ok := reader.(headered); ok && outFormat == FormatCSV {
		header = h.Header()
	}
	writer := NewWriter(outFormat, out, header, p.config)

	result, err := p.Process(ctx, reader, writer)
	if closeErr := writer.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to finish output file: %w", closeErr)
	}
	return result, err
}

// Process masks every record from r into w. Malformed rows are counted and
// dropped; a read, write or context error stops the run.
func (p *Pipeline) Process(ctx context.Context, r Reader, w Writer) (*Result, error) {
	result := &Result{
		RunID:        uuid.NewString(),
		Placeholders: make(map[string]int),
	}

	engines := make([]*privacy.Anonymizer, p.config.WorkerCount)
	for i := range engines {
		engine, err := p.newEngine()
		if err != nil {
			return result, err
		}
		engines[i] = engine
	}

	p.resetStats()
	start := time.Now()
	log := p.logger.With(zap.String("run_id", result.RunID))

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		batch, err := p.readBatch(r, result)
		if err != nil {
			return result, fmt.Errorf("failed to read batch: %w", err)
		}
		if len(batch) == 0 {
			break // End of input
		}

		maskStart := time.Now()
		outcomes := p.maskBatch(ctx, engines, batch)
		result.MaskingTime += time.Since(maskStart)

		// A cancelled context degrades detection; never write that output.
		if err := ctx.Err(); err != nil {
			return result, err
		}

		before := result.TotalRecords
		for i, rec := range batch {
			p.account(result, outcomes[i])
			rec.Text = outcomes[i].result.MaskedText
			if err := w.Write(rec); err != nil {
				return result, fmt.Errorf("failed to write row %d: %w", rec.Row, err)
			}
		}

		p.recordAudit(ctx, result, batch, outcomes)
		p.updateStats(result)

		if int(result.TotalRecords)/p.config.ProgressReport > int(before)/p.config.ProgressReport {
			p.reportProgress(log, result)
		}
	}

	result.Duration = time.Since(start)

	log.Info("Dataset masking completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("masked", result.Masked),
		zap.Int64("unchanged", result.Unchanged),
		zap.Int64("failed", result.Failed),
		zap.Int64("degraded", result.Degraded),
		zap.Int64("verify_failures", result.VerifyFailures),
		logger.CategoryCounts(result.Placeholders),
		zap.Duration("total_duration", result.Duration),
		zap.Duration("masking_time", result.MaskingTime))

	return result, nil
}

func (p *Pipeline) readBatch(r Reader, result *Result) ([]*Record, error) {
	var batch []*Record

	for len(batch) < p.config.BatchSize {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		var rowErr *RowError
		if errors.As(err, &rowErr) {
			p.logger.Warn("Skipping malformed row", zap.Int64("row", rowErr.Row), zap.Error(rowErr.Err))
			result.TotalRecords++
			result.Failed++
			p.addError(result, rowErr.Error())
			p.observe(OutcomeFailed)
			continue
		}
		if err != nil {
			return batch, err
		}

		batch = append(batch, rec)
	}

	p.logger.Debug("Batch read completed", zap.Int("batch_size", len(batch)))
	return batch, nil
}

type maskOutcome struct {
	result       privacy.ProcessResult
	elapsed      time.Duration
	verifyFailed bool
}

// maskBatch fans the batch out over the workers. Each engine is used by
// exactly one goroutine.
func (p *Pipeline) maskBatch(ctx context.Context, engines []*privacy.Anonymizer, batch []*Record) []maskOutcome {
	out := make([]maskOutcome, len(batch))
	next := make(chan int)

	var wg sync.WaitGroup
	for _, engine := range engines {
		wg.Add(1)
		go func(engine *privacy.Anonymizer) {
			defer wg.Done()
			for i := range next {
				out[i] = p.mask(ctx, engine, batch[i].Text)
			}
		}(engine)
	}

	for i := range batch {
		next <- i
	}
	close(next)
	wg.Wait()

	return out
}

func (p *Pipeline) mask(ctx context.Context, engine *privacy.Anonymizer, text string) maskOutcome {
	start := time.Now()
	res := engine.Process(ctx, text)
	o := maskOutcome{result: res, elapsed: time.Since(start)}

	if p.config.VerifyRoundTrip && engine.Fill(res.MaskedText) != text {
		o.verifyFailed = true
	}
	return o
}

func (p *Pipeline) account(result *Result, o maskOutcome) {
	result.TotalRecords++
	if len(o.result.Degraded) > 0 {
		result.Degraded++
	}
	for category, n := range o.result.Counts() {
		result.Placeholders[category] += n
	}

	outcome := OutcomeUnchanged
	if len(o.result.Findings) > 0 {
		outcome = OutcomeMasked
		result.Masked++
	} else {
		result.Unchanged++
	}
	if o.verifyFailed {
		outcome = OutcomeVerifyFailed
		result.VerifyFailures++
	}
	p.observe(outcome)
}

func (p *Pipeline) observe(outcome string) {
	if p.metrics != nil {
		p.metrics.BatchRecords.WithLabelValues(outcome).Inc()
	}
}

// recordAudit stores one row per masked record. Audit failures are
// reported in the result but do not stop the run.
func (p *Pipeline) recordAudit(ctx context.Context, result *Result, batch []*Record, outcomes []maskOutcome) {
	if p.audit == nil {
		return
	}

	records := make([]*audit.Record, 0, len(batch))
	for i, rec := range batch {
		if len(outcomes[i].result.Findings) == 0 {
			continue
		}
		r := audit.NewHideRecord(fmt.Sprintf("row-%d", rec.Row), result.RunID, outcomes[i].result, outcomes[i].elapsed)
		r.Operation = audit.OperationBatch
		records = append(records, r)
	}
	if len(records) == 0 {
		return
	}

	auditStart := time.Now()
	if _, err := p.audit.RecordBatch(ctx, records); err != nil {
		p.logger.Warn("Audit batch insert failed", zap.Error(err), zap.Int("records", len(records)))
		p.addError(result, "audit: "+err.Error())
	}
	result.AuditTime += time.Since(auditStart)
}

func (p *Pipeline) addError(result *Result, msg string) {
	if len(result.Errors) < p.config.MaxErrors {
		result.Errors = append(result.Errors, msg)
	}
}

// reportProgress reports current processing progress
func (p *Pipeline) reportProgress(log *zap.Logger, result *Result) {
	stats := p.GetStats()
	log.Info("Processing progress",
		zap.Int64("records_processed", result.TotalRecords),
		zap.Int64("records_masked", result.Masked),
		zap.Int64("records_failed", result.Failed),
		zap.Float64("rate_per_sec", stats.ProcessingRate),
		zap.Duration("elapsed", time.Since(stats.StartTime)))
}

func (p *Pipeline) updateStats(result *Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.RecordsRead = result.TotalRecords
	p.stats.RecordsMasked = result.Masked
	p.stats.RecordsFailed = result.Failed
	p.stats.CurrentBatch++
	if elapsed := time.Since(p.stats.StartTime).Seconds(); elapsed > 0 {
		p.stats.ProcessingRate = float64(result.TotalRecords) / elapsed
	}
}

// resetStats resets processing statistics
func (p *Pipeline) resetStats() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats = &ProcessingStats{
		StartTime: time.Now(),
	}
}

// GetStats returns current processing statistics
func (p *Pipeline) GetStats() *ProcessingStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := *p.stats
	return &stats
}
