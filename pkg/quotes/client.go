package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/smith3v/aquamind/pkg/logger"
)

const (
	DefaultMaxAttempts = 10
	DefaultTimeout     = 5 * time.Second
)

var DefaultCategories = []string{"inspirational", "life", "success", "health", "fitness", "happiness"}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client asks an API-Ninjas style quotes endpoint for a random quote of a
// random category until one fits, giving up after maxAttempts.
type Client struct {
	baseURL     string
	apiKey      string
	categories  []string
	maxAttempts int
	timeout     time.Duration
	http        HTTPDoer
	pick        func(n int) int
}

type Option func(*Client)

func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		c.http = doer
	}
}

func WithCategories(categories ...string) Option {
	return func(c *Client) {
		if len(categories) > 0 {
			c.categories = categories
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		categories:  DefaultCategories,
		maxAttempts: DefaultMaxAttempts,
		timeout:     DefaultTimeout,
		pick:        rand.Intn,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	return c
}

type ninjaQuote struct {
	Quote    string `json:"quote"`
	Author   string `json:"author"`
	Category string `json:"category"`
}

func (c *Client) Quote(ctx context.Context, maxLen int) (string, error) {
	if maxLen <= 0 {
		return "", ErrInvalidLength
	}
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		category := c.categories[c.pick(len(c.categories))]
		quotes, err := c.fetch(ctx, category)
		if err != nil {
			return "", err
		}
		for _, q := range quotes {
			text := strings.TrimSpace(q.Quote)
			if text != "" && utf8.RuneCountInString(text) <= maxLen {
				return text, nil
			}
		}
		logger.Debug("quote too long, retrying", "attempt", attempt, "category", category)
	}
	return "", fmt.Errorf("%w after %d attempts", ErrNoQuote, c.maxAttempts)
}

func (c *Client) fetch(ctx context.Context, category string) ([]ninjaQuote, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + "/v1/quotes?category=" + url.QueryEscape(category)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &ProviderError{Err: err}
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ProviderError{Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(raw)))}
	}
	var quotes []ninjaQuote
	if err := json.Unmarshal(raw, &quotes); err != nil {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Err: err}
	}
	return quotes, nil
}
