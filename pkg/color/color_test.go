package color

import (
	"strings"
	"testing"
)

func restore(t *testing.T) {
	t.Helper()
	enabled, overridden := state.enabled.Load(), state.overridden.Load()
	t.Cleanup(func() {
		state.enabled.Store(enabled)
		state.overridden.Store(overridden)
	})
}

func TestEnableDisable(t *testing.T) {
	restore(t)

	Enable()
	if !Enabled() {
		t.Error("expected colors to be enabled after Enable()")
	}
	Disable()
	if Enabled() {
		t.Error("expected colors to be disabled after Disable()")
	}
}

func TestColorFuncs(t *testing.T) {
	restore(t)
	Enable()

	tests := []struct {
		name string
		fn   func(string) string
		code string
	}{
		{"Success", Success, Green},
		{"Error", Error, Red},
		{"Warning", Warning, Yellow},
		{"ID", ID, Cyan},
		{"Header", Header, Bold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.fn("x")
			if !strings.HasPrefix(got, tt.code) || !strings.HasSuffix(got, Reset) {
				t.Errorf("%s(x) = %q", tt.name, got)
			}
		})
	}
}

func TestColorFuncsDisabled(t *testing.T) {
	restore(t)
	Disable()

	if got := Errorf("chain %s", "broken"); got != "chain broken" {
		t.Errorf("expected plain text, got %q", got)
	}
}

func TestHashShortens(t *testing.T) {
	restore(t)
	Disable()

	if got := Hash("0123456789abcdef"); got != "0123456789ab" {
		t.Errorf("expected shortened hash, got %q", got)
	}
	if got := Hash("abc"); got != "abc" {
		t.Errorf("expected short hash unchanged, got %q", got)
	}
}
