package store

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("user not found")
	// ErrCorrupt accompanies an empty table when persisted state could not be parsed.
	ErrCorrupt = errors.New("persisted user data is corrupt")
	// ErrUnavailable means the store could not be read and no earlier
	// snapshot exists, so nothing was changed.
	ErrUnavailable = errors.New("user store unavailable")
)

type ValidationKind string

const (
	DuplicateUser  ValidationKind = "duplicate_user"
	DuplicatePhone ValidationKind = "duplicate_phone"
	BadUsername    ValidationKind = "bad_username"
	BadGender      ValidationKind = "bad_gender"
	BadAge         ValidationKind = "bad_age"
	BadWeight      ValidationKind = "bad_weight"
	BadPhone       ValidationKind = "bad_phone"
)

var (
	ErrDuplicateUser  = &ValidationError{Kind: DuplicateUser}
	ErrDuplicatePhone = &ValidationError{Kind: DuplicatePhone}
	ErrBadGender      = &ValidationError{Kind: BadGender}
	ErrBadAge         = &ValidationError{Kind: BadAge}
	ErrBadWeight      = &ValidationError{Kind: BadWeight}
	ErrBadPhone       = &ValidationError{Kind: BadPhone}
)

type ValidationError struct {
	Kind  ValidationKind
	Value any
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case DuplicateUser:
		return fmt.Sprintf("user %v already exists", e.Value)
	case DuplicatePhone:
		return fmt.Sprintf("phone number %v is already registered", e.Value)
	case BadUsername:
		return "username must not be empty"
	case BadGender:
		return fmt.Sprintf("invalid gender %q, expected male or female", e.Value)
	case BadAge:
		return fmt.Sprintf("invalid age %v, expected %d-%d", e.Value, MinAge, MaxAge)
	case BadWeight:
		return fmt.Sprintf("invalid weight %v, expected a positive number", e.Value)
	case BadPhone:
		return fmt.Sprintf("invalid phone number %q, expected digits starting with 49", e.Value)
	default:
		return string(e.Kind)
	}
}

// Is matches any ValidationError of the same kind.
func (e *ValidationError) Is(target error) bool {
	var other *ValidationError
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
