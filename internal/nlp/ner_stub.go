//go:build !onnx
// +build !onnx

package nlp

import (
	"fmt"

	"go.uber.org/zap"
)

// NewOnnxTagger is unavailable without the 'onnx' build tag
func NewOnnxTagger(cfg TaggerConfig, logger *zap.Logger) (Tagger, error) {
	logger.Warn("NER requested but binary was built without the onnx tag", zap.String("model", cfg.ModelPath))
	return nil, fmt.Errorf("%w: built without onnx support", ErrModelUnavailable)
}
