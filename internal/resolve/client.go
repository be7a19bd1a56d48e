package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/web3-frozen/chainsync/internal/chain"
)

// Client is the capability every metadata provider implements. Resolve
// must honor ctx's deadline: return a typed timeout error on expiry,
// never block past it, never hand back a partially populated record
// from an aborted fetch.
type Client interface {
	Name() string
	Resolve(ctx context.Context, name chain.Name) (*chain.Partial, error)
}

// ErrorKind classifies provider failures. Every kind is recoverable at
// the coordinator: a failing provider contributes nothing and its
// siblings proceed.
type ErrorKind int

const (
	ErrNotFound ErrorKind = iota + 1
	ErrTimeout
	ErrTransport
	ErrMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case ErrNotFound:
		return "not_found"
	case ErrTimeout:
		return "timeout"
	case ErrTransport:
		return "transport"
	case ErrMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Error is a typed provider failure.
type Error struct {
	Provider string
	Kind     ErrorKind
	Msg      string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(provider string, kind ErrorKind, msg string) *Error {
	return &Error{Provider: provider, Kind: kind, Msg: msg}
}

func WrapError(provider string, kind ErrorKind, err error) *Error {
	return &Error{Provider: provider, Kind: kind, Err: err}
}

// Classify coerces an arbitrary error from a provider into a typed
// Error, preserving one that is already typed.
func Classify(provider string, err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return WrapError(provider, ErrTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return WrapError(provider, ErrTimeout, err)
	}
	return WrapError(provider, ErrTransport, err)
}

// KindOf extracts the kind for logging and metric labels.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}
