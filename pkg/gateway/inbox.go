package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/smith3v/aquamind/pkg/phone"
)

// InboundMessage is one SMS a user sent to the team number.
type InboundMessage struct {
	Phone      string
	Text       string
	ReceivedAt time.Time
}

type wireMessage struct {
	Text       string    `json:"text"`
	ReceivedAt timestamp `json:"receivedAt"`
}

// timestamp accepts RFC 3339 strings and epoch milliseconds.
type timestamp struct {
	time.Time
}

func (t *timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000", "2006-01-02 15:04:05"} {
			if parsed, err := time.Parse(layout, s); err == nil {
				t.Time = parsed.UTC()
				return nil
			}
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			t.Time = time.UnixMilli(ms).UTC()
			return nil
		}
		return fmt.Errorf("unrecognized timestamp %q", s)
	}
	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("unrecognized timestamp %s", data)
	}
	t.Time = time.UnixMilli(ms).UTC()
	return nil
}

// Messages fetches every inbound message of the team, oldest first. The
// API groups them as a list of {phone: [messages]} objects.
func (c *Client) Messages(ctx context.Context, teamName string) ([]InboundMessage, error) {
	const op = "get messages"
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+teamPath(teamName), nil)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	raw, status, err := c.do(req)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	if status != http.StatusOK {
		return nil, &Error{Op: op, StatusCode: status, Description: strings.TrimSpace(string(raw))}
	}
	msgs, err := decodeMessages(raw)
	if err != nil {
		return nil, &Error{Op: op, StatusCode: status, Description: "invalid JSON response", Err: err}
	}
	return msgs, nil
}

func decodeMessages(raw []byte) ([]InboundMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	var groups []map[string][]wireMessage
	if raw[0] == '{' {
		var single map[string][]wireMessage
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, err
		}
		groups = append(groups, single)
	} else if err := json.Unmarshal(raw, &groups); err != nil {
		return nil, err
	}

	var out []InboundMessage
	for _, group := range groups {
		for number, msgs := range group {
			normalized := phone.Normalize(number)
			for _, m := range msgs {
				out = append(out, InboundMessage{
					Phone:      normalized,
					Text:       m.Text,
					ReceivedAt: m.ReceivedAt.Time,
				})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ReceivedAt.Before(out[j].ReceivedAt)
	})
	return out, nil
}
