package budget

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the tokenizer used for estimates.
const DefaultEncoding = "cl100k_base"

// TokenCounter estimates model tokens for the debug view. The encoding is
// loaded lazily; when it cannot be loaded it falls back to runes/4.
type TokenCounter struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
}

func NewTokenCounter(encoding string) *TokenCounter {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &TokenCounter{encoding: encoding}
}

func (c *TokenCounter) load() {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding(c.encoding)
		if err != nil {
			slog.Warn("budget: tokenizer unavailable, using estimate", "encoding", c.encoding, "error", err)
			return
		}
		c.enc = enc
	})
}

// Exact reports whether counts come from the tokenizer.
func (c *TokenCounter) Exact() bool {
	if c == nil {
		return false
	}
	c.load()
	return c.enc != nil
}

// Count returns the token count of s.
func (c *TokenCounter) Count(s string) int {
	if s == "" {
		return 0
	}
	if c != nil {
		c.load()
		if c.enc != nil {
			return len(c.enc.Encode(s, nil, nil))
		}
	}
	return (len([]rune(s)) + 3) / 4
}

// CountAll sums Count over texts.
func (c *TokenCounter) CountAll(texts ...string) int {
	n := 0
	for _, t := range texts {
		n += c.Count(t)
	}
	return n
}
