package tresor

import (
	"errors"
	"fmt"
)

// Kind classifies failures so callers (the HTTP layer) can map them.
type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthRequired
	KindStorageUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthRequired:
		return "auth_required"
	case KindStorageUnavailable:
		return "storage_unavailable"
	default:
		return "internal"
	}
}

// Sentinels match any *Error of the same kind via errors.Is.
var (
	ErrValidation         = &Error{Kind: KindValidation}
	ErrAuthRequired       = &Error{Kind: KindAuthRequired}
	ErrStorageUnavailable = &Error{Kind: KindStorageUnavailable}
	ErrInternal           = &Error{Kind: KindInternal}
)

type Error struct {
	Kind Kind
	Op   string // e.g. "write", "read_batch", "warm"
	Msg  string // short machine-readable message
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("tresor: %s: %s: %v", e.Op, msg, e.Err)
	case e.Op != "":
		return fmt.Sprintf("tresor: %s: %s", e.Op, msg)
	case e.Err != nil:
		return fmt.Sprintf("tresor: %s: %v", msg, e.Err)
	default:
		return "tresor: " + msg
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func validationErr(op, msg string) error {
	return &Error{Kind: KindValidation, Op: op, Msg: msg}
}

func storageErr(op string, err error) error {
	return &Error{Kind: KindStorageUnavailable, Op: op, Msg: "storage unavailable", Err: err}
}

func internalErr(op, msg string, err error) error {
	return &Error{Kind: KindInternal, Op: op, Msg: msg, Err: err}
}
