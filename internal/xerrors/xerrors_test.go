package xerrors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"testing"
)

var errSentinel = errors.New("sentinel")

func stackContains(pcs []uintptr, substr string) bool {
	frames := runtime.CallersFrames(pcs)
	for {
		fr, more := frames.Next()
		if strings.Contains(fr.Function, substr) {
			return true
		}
		if !more {
			break
		}
	}
	return false
}

// New / Newf

func TestNew_ErrorMessage(t *testing.T) {
	err := New("something broke")
	if err.Error() != "something broke" {
		t.Fatalf("Error() = %q", err.Error())
	}
}

func TestNew_StackContainsCaller(t *testing.T) {
	err := New("test")

	var hs interface{ StackPCs() []uintptr }
	if !errors.As(err, &hs) {
		t.Fatal("New error should have StackPCs")
	}
	if !stackContains(hs.StackPCs(), "TestNew_StackContainsCaller") {
		t.Fatal("stack should contain calling function")
	}
}

func TestNewf_Formats(t *testing.T) {
	err := Newf("register %d of %s", 3, "abc")
	if err.Error() != "register 3 of abc" {
		t.Fatalf("Error() = %q", err.Error())
	}
}

// Wrap / Wrapf

func TestWrap_Nil(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Fatal("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "ctx %d", 1) != nil {
		t.Fatal("Wrapf(nil) should be nil")
	}
}

func TestWrap_MessageAndUnwrap(t *testing.T) {
	err := Wrap(errSentinel, "kv get")
	if err.Error() != "kv get: sentinel" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !errors.Is(err, errSentinel) {
		t.Fatal("wrapped error should match sentinel")
	}
}

func TestWrap_CarriesCallerPC(t *testing.T) {
	err := Wrapf(errSentinel, "op %s", "put")

	var hp interface{ PC() uintptr }
	if !errors.As(err, &hp) {
		t.Fatal("Wrapf error should expose PC")
	}
	fn := runtime.FuncForPC(hp.PC())
	if fn == nil || !strings.Contains(fn.Name(), "TestWrap_CarriesCallerPC") {
		t.Fatalf("PC should point at caller, got %v", fn)
	}
}

// EnsureTrace

func TestEnsureTrace_AddsOnce(t *testing.T) {
	base := errors.New("plain")
	once := EnsureTrace(base)
	twice := EnsureTrace(once)
	if once != twice {
		t.Fatal("EnsureTrace should not re-wrap an error that already has a stack")
	}
	if EnsureTrace(nil) != nil {
		t.Fatal("EnsureTrace(nil) should be nil")
	}
}

// Mark / KindOf

func TestMark_IsKind(t *testing.T) {
	err := Mark(errSentinel, ErrStorage)
	if !errors.Is(err, ErrStorage) {
		t.Fatal("marked error should match its kind")
	}
	if !errors.Is(err, errSentinel) {
		t.Fatal("marked error should still match the cause")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("marked error should not match other kinds")
	}
	if err.Error() != "sentinel" {
		t.Fatalf("Mark should not change the message, got %q", err.Error())
	}
}

func TestMark_SurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("handler: %w", Wrap(Mark(errSentinel, ErrNotFound), "register get"))
	if KindOf(err) != ErrNotFound {
		t.Fatalf("KindOf = %v, want ErrNotFound", KindOf(err))
	}
}

func TestMark_Nil(t *testing.T) {
	if Mark(nil, ErrStorage) != nil {
		t.Fatal("Mark(nil) should be nil")
	}
}

func TestKindOf_Unclassified(t *testing.T) {
	if KindOf(errSentinel) != nil {
		t.Fatal("unmarked error should have no kind")
	}
	if KindOf(nil) != nil {
		t.Fatal("nil error should have no kind")
	}
}

func TestValidation(t *testing.T) {
	err := Validation("url must be absolute")
	if !errors.Is(err, ErrValidation) {
		t.Fatal("Validation should produce ErrValidation")
	}
	if err.Error() != "url must be absolute" {
		t.Fatalf("Error() = %q", err.Error())
	}
	var hs interface{ StackPCs() []uintptr }
	if !errors.As(err, &hs) || len(hs.StackPCs()) == 0 {
		t.Fatal("Validation error should carry a stack")
	}
}
