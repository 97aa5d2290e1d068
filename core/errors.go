package core

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrInvalid        = errors.New("invalid event")
	ErrEventNotFound  = errors.New("event not found")
	ErrSeriesNotFound = errors.New("series not found")
	ErrNoPendingScope = errors.New("no scope decision pending")
	ErrScopePending   = errors.New("a scope decision is already pending")
)

// ConflictError signals a time overlap. It is a decision point for the user
// (proceed anyway or cancel), not a failure path.
type ConflictError struct {
	Conflicts []Event `json:"conflicts"`
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("event overlaps %d existing event(s)", len(e.Conflicts))
}

// Error is the JSON error envelope every handler responds with.
type Error struct {
	Message string   `json:"message,omitempty"`
	Err     []string `json:"err,omitempty"`
}

func NewError(message string, errs ...error) *Error {
	return &Error{
		Message: message,
		Err: func() []string {
			var msgs []string

			for _, err := range errs {
				if err != nil {
					msgs = append(msgs, err.Error())
				}
			}

			return msgs
		}(),
	}
}

func (e *Error) Error() string {
	//nolint:errchkjson
	data, _ := json.Marshal(e)
	return string(data)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	if len(e.Err) == 0 {
		return nil
	}

	errs := make([]error, len(e.Err))
	for i, err := range e.Err {
		errs[i] = fmt.Errorf("%s", err)
	}

	return errors.Join(errs...)
}

func (e *Error) Messages() []string {
	return e.Err
}
