package reminders

import (
	"errors"
	"fmt"
	"strings"

	"github.com/smith3v/aquamind/pkg/store"
)

type State int

const (
	NotStarted State = iota
	AwaitingResponse
	Completed
)

// Status is a user's position in the current cycle. Sent is meaningful for
// AwaitingResponse.
type Status struct {
	State State
	Sent  int
}

func (s Status) String() string {
	switch s.State {
	case NotStarted:
		return "not_started"
	case AwaitingResponse:
		return fmt.Sprintf("awaiting_response(%d)", s.Sent)
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// StatusOf derives the cycle state from the persisted counter.
func StatusOf(rec store.UserRecord, limit int) Status {
	switch {
	case rec.RemindersSent <= 0:
		return Status{State: NotStarted}
	case rec.RemindersSent >= limit:
		return Status{State: Completed, Sent: rec.RemindersSent}
	default:
		return Status{State: AwaitingResponse, Sent: rec.RemindersSent}
	}
}

type Response string

const (
	Done Response = "done"
	Skip Response = "skip"
)

var (
	ErrInvalidResponse   = errors.New("reply must be \"done\" or \"skip\"")
	ErrNoReminderPending = errors.New("no reminder is waiting for a reply")
)

func ParseResponse(text string) (Response, error) {
	switch Response(strings.ToLower(strings.TrimSpace(text))) {
	case Done:
		return Done, nil
	case Skip:
		return Skip, nil
	default:
		return "", ErrInvalidResponse
	}
}
