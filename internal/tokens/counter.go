// Package tokens provides prompt token counting for the content-generation
// collaborator. Prompts are plain text, so one tiktoken codec with a
// character-based fallback is enough to keep file context inside a model's
// window.
package tokens

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// Counter counts tokens in a text fragment.
type Counter interface {
	Count(text string) int
}

// Estimator approximates token counts from character length. Fallback for
// when the tokenizer data is unavailable.
type Estimator struct {
	// CharsPerToken is the average characters per token (default: 4).
	CharsPerToken float64
}

// NewEstimator creates a new token estimator.
func NewEstimator() *Estimator {
	return &Estimator{CharsPerToken: 4.0}
}

// Count estimates the token count.
func (e *Estimator) Count(text string) int {
	cpt := e.CharsPerToken
	if cpt <= 0 {
		cpt = 4.0
	}
	return int(float64(len(text)) / cpt)
}

// TiktokenCounter counts tokens with the Cl100kBase encoding, falling back
// to the estimator if the codec cannot be loaded.
type TiktokenCounter struct {
	once     sync.Once
	codec    tokenizer.Codec
	fallback *Estimator
}

// NewCounter creates a tiktoken-backed counter.
func NewCounter() *TiktokenCounter {
	return &TiktokenCounter{fallback: NewEstimator()}
}

func (c *TiktokenCounter) load() {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err == nil {
		c.codec = codec
	}
}

// Count returns the token count for text.
func (c *TiktokenCounter) Count(text string) int {
	c.once.Do(c.load)
	if c.codec == nil {
		return c.fallback.Count(text)
	}
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return c.fallback.Count(text)
	}
	return len(ids)
}
