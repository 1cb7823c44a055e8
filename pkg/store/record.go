// Package store persists registered users and their hydration counters.
package store

import (
	"strings"

	"github.com/smith3v/aquamind/pkg/hydration"
	"github.com/smith3v/aquamind/pkg/phone"
)

const (
	MinAge = 1
	MaxAge = 149
)

type UserRecord struct {
	ID            int              `json:"id"`
	Username      string           `json:"username"`
	PhoneNumber   string           `json:"phone_number"`
	Gender        hydration.Gender `json:"gender"`
	Age           int              `json:"age"`
	Weight        float64          `json:"weight"`
	DailyTarget   float64          `json:"daily_target"`
	WaterIntake   float64          `json:"water_intake"`
	RemindersSent int              `json:"reminders_sent"`
}

type Registration struct {
	Username    string
	PhoneNumber string
	Gender      string
	Age         int
	Weight      float64
}

// validate normalizes in place and returns the first field error.
func (r *Registration) validate() error {
	r.Username = strings.TrimSpace(r.Username)
	if r.Username == "" {
		return &ValidationError{Kind: BadUsername, Value: r.Username}
	}
	r.Gender = strings.ToLower(strings.TrimSpace(r.Gender))
	if !hydration.Gender(r.Gender).Valid() {
		return &ValidationError{Kind: BadGender, Value: r.Gender}
	}
	if r.Age < MinAge || r.Age > MaxAge {
		return &ValidationError{Kind: BadAge, Value: r.Age}
	}
	if !(r.Weight > 0) {
		return &ValidationError{Kind: BadWeight, Value: r.Weight}
	}
	r.PhoneNumber = phone.Normalize(r.PhoneNumber)
	if !phone.Valid(r.PhoneNumber) {
		return &ValidationError{Kind: BadPhone, Value: r.PhoneNumber}
	}
	return nil
}
