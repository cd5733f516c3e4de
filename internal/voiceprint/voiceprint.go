// Package voiceprint wraps an external speaker-embedding extractor. The
// neural inference itself is out of scope; only the initialization gate
// and the cosine-similarity contract live here.
package voiceprint

import (
	"fmt"
	"math"
	"sync"
)

// ErrNotInitialized is returned by model-backed operations before Init.
var ErrNotInitialized = fmt.Errorf("voiceprint: model not initialized")

// #region wrapper

// Extractor produces a speaker embedding from PCM samples. The real
// implementation is an external collaborator; tests inject fakes.
type Extractor interface {
	Extract(pcm []float32, sampleRate int) ([]float32, error)
}

// Wrapper gates embedding extraction behind model initialization.
type Wrapper struct {
	mu          sync.Mutex
	extractor   Extractor
	initialized bool
}

// NewWrapper creates an uninitialized wrapper.
func NewWrapper() *Wrapper {
	return &Wrapper{}
}

// Init attaches the extractor. A nil extractor is rejected.
func (w *Wrapper) Init(extractor Extractor) error {
	if extractor == nil {
		return fmt.Errorf("voiceprint init: nil extractor")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.extractor = extractor
	w.initialized = true
	return nil
}

// Initialized reports whether Init has succeeded.
func (w *Wrapper) Initialized() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.initialized
}

// Extract produces an embedding, failing with ErrNotInitialized before
// Init.
func (w *Wrapper) Extract(pcm []float32, sampleRate int) ([]float32, error) {
	w.mu.Lock()
	extractor := w.extractor
	initialized := w.initialized
	w.mu.Unlock()

	if !initialized {
		return nil, ErrNotInitialized
	}
	return extractor.Extract(pcm, sampleRate)
}

// #endregion wrapper

// #region similarity

// CosineSimilarity returns dot(a,b)/(|a|·|b|) in [−1, 1]. Mismatched
// lengths or a zero-norm input yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// #endregion similarity
