// Package tokens provides BPE token counting for prompt context assembly.
package tokens

import (
	"math"
	"sync"
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"
)

// Counter counts the tokens in a piece of text.
type Counter interface {
	CountText(text string) (int, error)
}

var (
	_ Counter = (*Tokenizer)(nil)
	_ Counter = (*Estimator)(nil)
	_ Counter = (*CachingCounter)(nil)
)

// Registry manages one Tokenizer per encoding.
// Codecs are loaded on first use and then shared. When a codec cannot be
// loaded the registry hands out the fallback estimator instead.
type Registry struct {
	mu         sync.RWMutex
	tokenizers map[tokenizer.Encoding]*Tokenizer
	fallback   Counter
}

// NewRegistry creates a new tokenizer registry.
func NewRegistry() *Registry {
	return &Registry{
		tokenizers: make(map[tokenizer.Encoding]*Tokenizer),
		fallback:   NewEstimator(),
	}
}

// SetFallback sets the counter used when an encoding cannot be loaded.
func (r *Registry) SetFallback(counter Counter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = counter
}

// Tokenizer returns the cached tokenizer for an encoding, loading it if needed.
func (r *Registry) Tokenizer(encoding tokenizer.Encoding) (*Tokenizer, error) {
	r.mu.RLock()
	if cached, ok := r.tokenizers[encoding]; ok {
		r.mu.RUnlock()
		return cached, nil
	}
	r.mu.RUnlock()

	t, err := NewTokenizer(encoding)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.tokenizers[encoding]; ok {
		return cached, nil
	}
	r.tokenizers[encoding] = t
	return t, nil
}

// ForModel returns the tokenizer for the encoding a model uses.
func (r *Registry) ForModel(model string) (*Tokenizer, error) {
	return r.Tokenizer(EncodingForModel(model))
}

// CounterForModel returns a counter for the model, falling back to the
// estimator when the model's encoding cannot be loaded.
func (r *Registry) CounterForModel(model string) (Counter, tokenizer.Encoding) {
	return r.CounterForEncoding(EncodingForModel(model))
}

// CounterForEncoding returns the tokenizer for an encoding, or the fallback
// estimator with an empty encoding when it cannot be loaded.
func (r *Registry) CounterForEncoding(encoding tokenizer.Encoding) (Counter, tokenizer.Encoding) {
	t, err := r.Tokenizer(encoding)
	if err != nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		return r.fallback, ""
	}
	return t, encoding
}

// Estimator provides token count estimation based on rune counts.
// This is a fallback for when no codec is available.
type Estimator struct {
	// CharsPerToken is the average characters per token (default: 4)
	CharsPerToken float64
}

// NewEstimator creates a new token estimator.
func NewEstimator() *Estimator {
	return &Estimator{
		CharsPerToken: 4.0,
	}
}

// CountText estimates the token count. It never fails.
func (e *Estimator) CountText(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	ratio := e.CharsPerToken
	if ratio <= 0 {
		ratio = 4.0
	}
	return int(math.Ceil(float64(utf8.RuneCountInString(text)) / ratio)), nil
}
