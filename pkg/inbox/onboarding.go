// Package inbox reads the team inbox: replies to reminders and
// registrations from new numbers.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/smith3v/aquamind/pkg/gateway"
	"github.com/smith3v/aquamind/pkg/hydration"
	"github.com/smith3v/aquamind/pkg/logger"
	"github.com/smith3v/aquamind/pkg/store"
)

const InstructionText = "Please send your username, age, weight, gender (e.g., john_doe 30 70 male)"

var ErrBadFormat = errors.New("expected: username age weight gender")

// ParseRegistration reads "<username> <age> <weight> <gender>".
func ParseRegistration(number, text string) (store.Registration, error) {
	fields := strings.Fields(text)
	if len(fields) != 4 {
		return store.Registration{}, ErrBadFormat
	}
	age, err := strconv.Atoi(fields[1])
	if err != nil {
		return store.Registration{}, fmt.Errorf("age must be a whole number: %w", ErrBadFormat)
	}
	weight, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return store.Registration{}, fmt.Errorf("weight must be a number: %w", ErrBadFormat)
	}
	return store.Registration{
		Username:    fields[0],
		PhoneNumber: number,
		Gender:      fields[3],
		Age:         age,
		Weight:      weight,
	}, nil
}

func WelcomeText(rec store.UserRecord) string {
	return fmt.Sprintf("Welcome, %s! Your daily water intake target is %s liters.", rec.Username, hydration.FormatLiters(rec.DailyTarget))
}

// Onboarding registers unknown numbers from their SMS.
type Onboarding struct {
	registry *store.Registry
	sender   gateway.Sender
}

func NewOnboarding(registry *store.Registry, sender gateway.Sender) *Onboarding {
	return &Onboarding{registry: registry, sender: sender}
}

// Handle registers the sender of msg and answers with the welcome text, or
// with the reason and instructions when the message is not a valid
// registration.
func (o *Onboarding) Handle(ctx context.Context, msg gateway.InboundMessage) (store.UserRecord, error) {
	in, err := ParseRegistration(msg.Phone, msg.Text)
	if err == nil {
		var rec store.UserRecord
		rec, err = o.registry.Register(ctx, in)
		if err == nil || store.IsPersistence(err) {
			if sendErr := o.sender.Send(ctx, rec.PhoneNumber, WelcomeText(rec)); sendErr != nil {
				logger.Error("failed to send welcome", "username", rec.Username, "error", sendErr)
			}
			return rec, err
		}
	}

	logger.Info("rejected registration", "phone", msg.Phone, "error", err)
	reply := fmt.Sprintf("Invalid input: %v. Please try again.", err)
	if errors.Is(err, ErrBadFormat) {
		reply = InstructionText
	}
	if sendErr := o.sender.Send(ctx, msg.Phone, reply); sendErr != nil {
		logger.Error("failed to send registration help", "phone", msg.Phone, "error", sendErr)
	}
	return store.UserRecord{}, err
}
