package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the bridge layer. Unrecognized raw events are
// deliberately absent: they project to Unknown updates, never to an error.
var (
	// ErrConnectivity: a connection to an external source could not be
	// established or re-established. Fatal to that source's bridge instance;
	// the core performs no retry.
	ErrConnectivity = errors.New("source unreachable")

	// ErrProtocol: the external source returned a value of unexpected shape.
	// A contract breach the bridge cannot reason about, fatal for that read.
	ErrProtocol = errors.New("protocol violation")

	// ErrRegistrationRace: exclusive access to the registry/task state could
	// not be obtained, or a prior dispatcher failed to terminate. The source
	// must be considered unusable until recreated.
	ErrRegistrationRace = errors.New("registration race")

	// ErrClosed: the client or broadcaster has been shut down.
	ErrClosed = errors.New("closed")
)

// BridgeError wraps a sentinel error with the operation that failed and
// optional human-readable detail.
type BridgeError struct {
	Op     string // operation name, e.g. "compositor.Subscribe"
	Err    error  // underlying sentinel or wrapped error
	Detail string
}

func (e *BridgeError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *BridgeError) Unwrap() error { return e.Err }

// NewBridgeError creates a BridgeError.
func NewBridgeError(op string, err error, detail string) *BridgeError {
	return &BridgeError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error. Returns nil if err is nil,
// enabling: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
