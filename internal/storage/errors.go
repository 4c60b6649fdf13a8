package storage

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrInvalid  = errors.New("invalid")
)

// Error carries a client-facing message while matching one of the sentinel
// kinds through errors.Is.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }
func (e *Error) Unwrap() error { return e.Kind }

func notFound(msg string) error { return &Error{Kind: ErrNotFound, Msg: msg} }
func conflict(msg string) error { return &Error{Kind: ErrConflict, Msg: msg} }
func invalid(msg string) error  { return &Error{Kind: ErrInvalid, Msg: msg} }
