package fault

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"input", Input("validate", "empty text"), ErrInput},
		{"consistency", Consistency("route", "width %d != %d", 3, 4), ErrConsistency},
		{"capability", Capability("vocoder", errors.New("boom")), ErrCapability},
		{"wrapped input", fmt.Errorf("synth: %w", Input("validate", "x")), ErrInput},
		{"plain", errors.New("plain"), nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.kind {
				t.Fatalf("KindOf = %v, want %v", got, tc.kind)
			}
		})
	}
}

func TestCapabilityKeepsExistingKind(t *testing.T) {
	in := Input("validate", "bad")
	if got := Capability("phonemize", in); !errors.Is(got, ErrInput) || errors.Is(got, ErrCapability) {
		t.Fatalf("Capability re-kinded an input error: %v", got)
	}
	if Capability("x", nil) != nil {
		t.Fatal("Capability(nil) should be nil")
	}
}

func TestCapabilityUnwrapsCause(t *testing.T) {
	err := Capability("generate", context.DeadlineExceeded)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("cause lost: %v", err)
	}
	if err.Error() != "generate: call failed: context deadline exceeded" {
		t.Fatalf("message = %q", err.Error())
	}
}
