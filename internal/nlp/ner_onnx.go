//go:build onnx
// +build onnx

package nlp

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// OnnxTagger runs a token-classification model through ONNX Runtime
type OnnxTagger struct {
	session     *ort.DynamicAdvancedSession
	inputNames  []string
	vocab       *Vocabulary
	labels      []string
	personLabel string
	maxLength   int
	logger      *zap.Logger
	mu          sync.Mutex
}

// NewOnnxTagger loads the model and vocabulary. Requires build tag 'onnx'.
func NewOnnxTagger(cfg TaggerConfig, logger *zap.Logger) (Tagger, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	vocab, err := LoadVocabulary(cfg.VocabPath, cfg.Lowercase)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	switch {
	case cfg.SharedLib != "":
		ort.SetSharedLibraryPath(cfg.SharedLib)
	case os.Getenv("ONNXRUNTIME_SHARED_LIB") != "":
		ort.SetSharedLibraryPath(os.Getenv("ONNXRUNTIME_SHARED_LIB"))
	}

	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("%w: onnx runtime init: %v", ErrModelUnavailable, err)
		}
	}

	inputsInfo, outputsInfo, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: inspect model: %v", ErrModelUnavailable, err)
	}
	if len(outputsInfo) == 0 {
		return nil, fmt.Errorf("%w: model reports no outputs", ErrModelUnavailable)
	}

	var inputNames []string
	for _, ii := range inputsInfo {
		inputNames = append(inputNames, ii.Name)
	}

	sess, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, inputNames, []string{outputsInfo[0].Name}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create session: %v", ErrModelUnavailable, err)
	}

	maxLength := cfg.MaxLength
	if maxLength <= 0 {
		maxLength = 128
	}

	logger.Info("ONNX NER tagger ready",
		zap.String("model", cfg.ModelPath),
		zap.Strings("inputs", inputNames),
		zap.Int("labels", len(cfg.Labels)),
	)

	return &OnnxTagger{
		session:     sess,
		inputNames:  inputNames,
		vocab:       vocab,
		labels:      cfg.Labels,
		personLabel: cfg.PersonLabel,
		maxLength:   maxLength,
		logger:      logger,
	}, nil
}

// Tag returns the person entities found in text
func (t *OnnxTagger) Tag(ctx context.Context, text string) ([]Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.closed() {
		return nil, errTaggerClosed
	}

	enc := t.vocab.Encode(text, t.maxLength)
	if enc.Truncated {
		t.logger.Debug("NER input truncated", zap.Int("max_length", t.maxLength))
	}

	shape := ort.NewShape(1, int64(t.maxLength))
	ids, err := ort.NewTensor(shape, enc.InputIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	defer ids.Destroy()
	mask, err := ort.NewTensor(shape, enc.AttentionMask)
	if err != nil {
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	defer mask.Destroy()
	types, err := ort.NewTensor(shape, enc.TokenTypeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	defer types.Destroy()

	inputs := make([]ort.Value, 0, len(t.inputNames))
	for _, name := range t.inputNames {
		lower := strings.ToLower(name)
		switch {
		case strings.Contains(lower, "mask"):
			inputs = append(inputs, mask)
		case strings.Contains(lower, "type") || strings.Contains(lower, "segment"):
			inputs = append(inputs, types)
		default:
			inputs = append(inputs, ids)
		}
	}

	outputs := make([]ort.Value, 1)
	t.mu.Lock()
	if t.session == nil {
		t.mu.Unlock()
		return nil, errTaggerClosed
	}
	err = t.session.Run(inputs, outputs)
	t.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("onnx run failed: %w", err)
	}
	defer outputs[0].Destroy()

	logits, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type (want float32 tensor)")
	}
	outShape := logits.GetShape()
	if len(outShape) != 3 || int(outShape[2]) != len(t.labels) {
		return nil, fmt.Errorf("unexpected output shape %v for %d labels", outShape, len(t.labels))
	}

	positionLabels := argmaxLabels(logits.GetData(), int(outShape[1]), t.labels)

	return groupEntities(text, enc.Words, enc.FirstPieceLabels(positionLabels), t.personLabel), nil
}

func argmaxLabels(data []float32, seqLen int, labels []string) []string {
	n := len(labels)
	out := make([]string, seqLen)
	for pos := 0; pos < seqLen; pos++ {
		row := data[pos*n : (pos+1)*n]
		best := 0
		for i := 1; i < n; i++ {
			if row[i] > row[best] {
				best = i
			}
		}
		out[pos] = labels[best]
	}
	return out
}

var errTaggerClosed = fmt.Errorf("%w: tagger closed", ErrModelUnavailable)

func (t *OnnxTagger) closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session == nil
}

// Close releases the session
func (t *OnnxTagger) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session != nil {
		t.session.Destroy()
		t.session = nil
	}
	return nil
}
