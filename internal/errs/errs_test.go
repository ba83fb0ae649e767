package errs

import (
	"errors"
	"testing"
)

func TestNewAndErrorFormatting(t *testing.T) {
	err := New(NotFound, "task %s not found", "abc123")
	if err.Kind != NotFound {
		t.Errorf("expected kind NotFound, got %s", err.Kind)
	}
	if err.Error() == "" {
		t.Error("expected non-empty error string")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(Internal, cause, "write file")
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause via Unwrap")
	}
}

func TestIsMatchesKind(t *testing.T) {
	err := New(CycleDetected, "cycle")
	if !Is(err, CycleDetected) {
		t.Error("expected Is to match the same kind")
	}
	if Is(err, NotFound) {
		t.Error("expected Is to reject a different kind")
	}
	if Is(errors.New("plain"), NotFound) {
		t.Error("expected Is to reject a non-*Error")
	}
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	if KindOf(errors.New("plain")) != Internal {
		t.Error("expected KindOf to default to Internal for a non-*Error")
	}
	if KindOf(New(ValidationFailed, "x")) != ValidationFailed {
		t.Error("expected KindOf to extract the actual kind")
	}
}

func TestExitCodeIsStablePerKind(t *testing.T) {
	cases := map[Kind]int{
		InvalidInput:        2,
		NotFound:            3,
		DependencyViolation: 4,
		CycleDetected:       5,
		IllegalTransition:   6,
		ValidationFailed:    7,
		StoreBusy:           8,
		LockTimeout:         9,
		SchemaMismatch:      10,
		SizeExceeded:        11,
		Corrupt:             12,
	}
	for kind, want := range cases {
		if got := ExitCode(kind); got != want {
			t.Errorf("ExitCode(%s) = %d, want %d", kind, got, want)
		}
	}
	if ExitCode(Internal) != 1 {
		t.Errorf("expected Internal to exit 1, got %d", ExitCode(Internal))
	}
}
