//go:build onnx
// +build onnx

package nlp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOnnxTaggerAfterClose(t *testing.T) {
	tagger := &OnnxTagger{logger: zap.NewNop(), maxLength: 8}
	require.NoError(t, tagger.Close())

	var err error
	require.NotPanics(t, func() {
		_, err = tagger.Tag(context.Background(), "John Smith")
	})
	assert.ErrorIs(t, err, ErrModelUnavailable)
}
