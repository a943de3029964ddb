package parser

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates token counts for chunk budgeting. It uses the
// cl100k_base BPE when available and falls back to whitespace word counting.
// Both paths are deterministic and monotone in the input length.
type TokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTokenCounter creates a token counter. The encoding is loaded lazily on
// first use so construction never fails.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{}
}

// Count returns the estimated token count for text.
func (t *TokenCounter) Count(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}

	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err == nil {
			t.enc = enc
		}
	})

	if t.enc != nil {
		return len(t.enc.Encode(text, nil, nil))
	}
	return len(strings.Fields(text))
}
