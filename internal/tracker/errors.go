package tracker

import (
	"errors"
	"fmt"
)

// Sentinel errors for tracker responses.
var (
	ErrNotFound     = errors.New("tracker: not found")
	ErrUnauthorized = errors.New("tracker: unauthorized")
	ErrRateLimited  = errors.New("tracker: rate limited")
	ErrBadRequest   = errors.New("tracker: bad request")
	ErrServer       = errors.New("tracker: server error")
	ErrReadOnly     = errors.New("tracker: no credential configured")
)

// Error wraps a failed tracker call with the operation and issue it
// concerned. Status is the HTTP status, 0 when no response arrived.
type Error struct {
	Op     string
	Number int64
	Status int
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Number > 0 && e.Status > 0:
		return fmt.Sprintf("tracker %s #%d: status %d: %v", e.Op, e.Number, e.Status, e.Err)
	case e.Number > 0:
		return fmt.Sprintf("tracker %s #%d: %v", e.Op, e.Number, e.Err)
	case e.Status > 0:
		return fmt.Sprintf("tracker %s: status %d: %v", e.Op, e.Status, e.Err)
	default:
		return fmt.Sprintf("tracker %s: %v", e.Op, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// wrapError names the operation on err, keeping the status recorded by
// doRequest.
func wrapError(op string, number int64, err error) error {
	var te *Error
	if errors.As(err, &te) && te.Op == "" {
		te.Op = op
		te.Number = number
		return te
	}
	return &Error{Op: op, Number: number, Err: err}
}
