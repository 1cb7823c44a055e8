// Package quotes fetches short motivational lines for reminder messages.
package quotes

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/smith3v/aquamind/pkg/logger"
)

// Fallback is used whenever no quote can be fetched.
const Fallback = "Stay hydrated! Health is wealth."

var (
	ErrNoQuote       = errors.New("no quote within length limit")
	ErrInvalidLength = errors.New("max length must be positive")
)

// Provider returns a quote of at most maxLen characters.
type Provider interface {
	Quote(ctx context.Context, maxLen int) (string, error)
}

type ProviderError struct {
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("quote provider: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("quote provider: %v", e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// QuoteOrFallback never fails: provider errors are logged and replaced by
// Fallback.
func QuoteOrFallback(ctx context.Context, p Provider, maxLen int) string {
	if p == nil {
		return Fallback
	}
	quote, err := p.Quote(ctx, maxLen)
	if err != nil {
		logger.Info("using fallback quote", "error", err)
		return Fallback
	}
	if quote == "" || utf8.RuneCountInString(quote) > maxLen {
		return Fallback
	}
	return quote
}

// Static serves quotes from a fixed list in rotation.
type Static struct {
	mu     sync.Mutex
	quotes []string
	next   int
}

func NewStatic(quotes ...string) *Static {
	return &Static{quotes: quotes}
}

func (s *Static) Quote(ctx context.Context, maxLen int) (string, error) {
	if maxLen <= 0 {
		return "", ErrInvalidLength
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for range s.quotes {
		q := s.quotes[s.next%len(s.quotes)]
		s.next++
		if utf8.RuneCountInString(q) <= maxLen {
			return q, nil
		}
	}
	return "", ErrNoQuote
}
