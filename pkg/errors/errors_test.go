package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		expected string
	}{
		{"plain message", "message", "[Snowball] message"},
		{"bracketed message", "[E1] Bad1", "[Snowball][E1] Bad1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New("name", tt.message)
			if err.Error() != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, err.Error())
			}
		})
	}
}

func TestMakeNested(t *testing.T) {
	e1 := New("err.e1", "[E1] Bad1")
	e2 := Make("err.e2", "[E2] Bad2", e1)
	if e2.Error() != "[Snowball][E2] Bad2: [E1] Bad1" {
		t.Errorf("unexpected message %q", e2.Error())
	}
	if e2.Name != "err.e2.err.e1" {
		t.Errorf("unexpected name %q", e2.Name)
	}

	e3 := Make("err.e3", "[E3] Bad3", e2)
	if e3.Error() != "[Snowball][E3] Bad3: [E2] Bad2: [E1] Bad1" {
		t.Errorf("unexpected message %q", e3.Error())
	}
	if e3.Name != "err.e3.err.e2.err.e1" {
		t.Errorf("unexpected name %q", e3.Name)
	}
}

func TestMakeWrapsOnceWithPlainMessages(t *testing.T) {
	inner := New("inner", "inner failed")
	outer := Make("outer", "outer failed", inner)
	if outer.Error() != "[Snowball] outer failed: inner failed" {
		t.Errorf("unexpected message %q", outer.Error())
	}
	if strings.Count(outer.Error(), Prefix) != 1 {
		t.Errorf("prefix should appear exactly once: %q", outer.Error())
	}
}

func TestMakeForeignCause(t *testing.T) {
	cause := errors.New("socket closed")
	err := Make("rpc.invoke", "Error invoking", cause)
	if err.Name != "rpc.invoke" {
		t.Errorf("unexpected name %q", err.Name)
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be preserved")
	}

	fromString := Make("x", "y", "no PKPs")
	if fromString.Unwrap() == nil || fromString.Unwrap().Error() != "no PKPs" {
		t.Errorf("string cause should become an error, got %v", fromString.Unwrap())
	}
}

func TestBuilder(t *testing.T) {
	makeError := Builder("LitAuth.getWallet", "Error getting wallet")

	err := makeError(1, "No PKPs found")
	if err.Name != "LitAuth.getWallet.1" {
		t.Errorf("unexpected name %q", err.Name)
	}
	if err.Error() != "[Snowball] Error getting wallet" {
		t.Errorf("unexpected message %q", err.Error())
	}

	inner := New("ceremony", "[Passkey] cancelled")
	wrapped := makeError(2, inner)
	if wrapped.Name != "LitAuth.getWallet.2.ceremony" {
		t.Errorf("unexpected name %q", wrapped.Name)
	}
	if wrapped.Error() != "[Snowball] Error getting wallet: [Passkey] cancelled" {
		t.Errorf("unexpected message %q", wrapped.Error())
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "a", "b") != nil {
		t.Error("wrapping nil should return nil")
	}
}

func TestChain(t *testing.T) {
	root := errors.New("root")
	err := Make("a", "outer", root)
	got := Chain(err)
	if got != "[Snowball] outer ::caused by:: root" {
		t.Errorf("unexpected chain %q", got)
	}
}

func TestStackTrace(t *testing.T) {
	err := New("x", "y")
	if len(err.Stack()) == 0 {
		t.Error("expected stack to be captured")
	}
	if !strings.Contains(err.StackTrace(), "TestStackTrace") {
		t.Errorf("stack trace should include caller, got %s", err.StackTrace())
	}
}
