// Package gateway talks to the hackathon team/SMS API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/smith3v/aquamind/pkg/logger"
	"github.com/smith3v/aquamind/pkg/phone"
)

const (
	MaxMessageLength = 160
	DefaultTimeout   = 10 * time.Second

	statusSuccess = "Success"
	statusError   = "Error"
)

var (
	ErrMessageTooLong = errors.New("message exceeds 160 characters")
	ErrInvalidPhone   = errors.New("phone number must be digits starting with 49")
	ErrInvalidTeam    = errors.New("team name must contain only letters")
	ErrTeamExists     = errors.New("team already exists")
)

// Sender delivers one outbound text message.
type Sender interface {
	Send(ctx context.Context, phoneNumber, text string) error
}

// HTTPDoer is the subset of *http.Client the gateway needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Error is returned for transport failures, non-200 answers and answers
// whose status is "Error".
type Error struct {
	Op          string
	StatusCode  int
	Description string
	Err         error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("gateway ")
	b.WriteString(e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Description != "" {
		b.WriteString(": ")
		b.WriteString(e.Description)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Client struct {
	baseURL string
	http    HTTPDoer
	sender  string
	timeout time.Duration
}

type Option func(*Client)

func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		c.http = doer
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithSender sets the optional sender id attached to outbound messages.
func WithSender(sender string) Option {
	return func(c *Client) {
		c.sender = sender
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	return c
}

type envelope struct {
	Status      string `json:"status"`
	Description string `json:"description"`
	Error       string `json:"error"`
}

// ValidateMessage checks recipient and length before anything is sent.
func ValidateMessage(phoneNumber, text string) (string, error) {
	number := phone.Normalize(phoneNumber)
	if !phone.Valid(number) {
		return "", ErrInvalidPhone
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return "", ErrMessageTooLong
	}
	return number, nil
}

func (c *Client) Send(ctx context.Context, phoneNumber, text string) error {
	number, err := ValidateMessage(phoneNumber, text)
	if err != nil {
		return err
	}
	payload := map[string]string{
		"phoneNumber": number,
		"message":     text,
		"sender":      c.sender,
	}
	if err := c.postJSON(ctx, "send sms", "/sms/send", payload); err != nil {
		return err
	}
	logger.Debug("sms sent", "phone_number", number, "length", utf8.RuneCountInString(text))
	return nil
}

func (c *Client) AddTeam(ctx context.Context, teamName string) error {
	teamName = strings.TrimSpace(teamName)
	if !validTeamName(teamName) {
		return ErrInvalidTeam
	}
	err := c.postJSON(ctx, "add team", "/team/addNewTeam", map[string]string{"teamName": teamName})
	var gwErr *Error
	if errors.As(err, &gwErr) && strings.Contains(gwErr.Description, "already exists") {
		return fmt.Errorf("%w: %s", ErrTeamExists, teamName)
	}
	return err
}

func (c *Client) RegisterNumber(ctx context.Context, phoneNumber, teamName string) error {
	number := phone.Normalize(phoneNumber)
	if !phone.Valid(number) {
		return ErrInvalidPhone
	}
	return c.postJSON(ctx, "register number", "/team/registerNumber", map[string]string{
		"phoneNumber": number,
		"teamName":    strings.TrimSpace(teamName),
	})
}

func (c *Client) postJSON(ctx context.Context, op, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	raw, status, err := c.do(req)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	if status != http.StatusOK {
		return &Error{Op: op, StatusCode: status, Description: strings.TrimSpace(string(raw))}
	}

	var env envelope
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			return &Error{Op: op, StatusCode: status, Description: "invalid JSON response", Err: err}
		}
	}
	if env.Status == statusError || env.Error != "" {
		desc := env.Description
		if desc == "" {
			desc = env.Error
		}
		return &Error{Op: op, StatusCode: status, Description: desc}
	}
	return nil
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return raw, resp.StatusCode, nil
}

func teamPath(teamName string) string {
	return "/team/getMessages/" + url.PathEscape(strings.TrimSpace(teamName))
}

func validTeamName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
