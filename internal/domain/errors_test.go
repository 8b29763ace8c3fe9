package domain

import (
	"errors"
	"testing"
)

func TestBridgeErrorUnwrap(t *testing.T) {
	err := NewBridgeError("compositor.Subscribe", ErrProtocol, "subscribe rejected")

	if !errors.Is(err, ErrProtocol) {
		t.Error("expected errors.Is to match ErrProtocol")
	}

	var be *BridgeError
	if !errors.As(err, &be) {
		t.Fatal("expected errors.As to extract *BridgeError")
	}
	if be.Op != "compositor.Subscribe" {
		t.Errorf("Op = %q", be.Op)
	}
}

func TestBridgeErrorMessage(t *testing.T) {
	withDetail := NewBridgeError("op", ErrConnectivity, "socket gone")
	if got := withDetail.Error(); got != "op: socket gone: source unreachable" {
		t.Errorf("Error() = %q", got)
	}

	noDetail := NewBridgeError("op", ErrClosed, "")
	if got := noDetail.Error(); got != "op: closed" {
		t.Errorf("Error() = %q", got)
	}
}

func TestWrapOp(t *testing.T) {
	if WrapOp("op", nil) != nil {
		t.Error("WrapOp(nil) should be nil")
	}

	wrapped := WrapOp("network.refresh", ErrConnectivity)
	if !errors.Is(wrapped, ErrConnectivity) {
		t.Error("expected wrapped error to match sentinel")
	}
}
