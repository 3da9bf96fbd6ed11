package statemachine

import (
	"testing"

	"github.com/hospital/hospital/internal/platform/apperr"
)

type light string

const (
	red    light = "RED"
	green  light = "GREEN"
	yellow light = "YELLOW"
	broken light = "BROKEN"
)

func newLight() *Machine[light] {
	return New("light", red, map[light][]light{
		red:    {green, broken},
		green:  {yellow, broken},
		yellow: {red, broken},
	})
}

func TestMachine_Can(t *testing.T) {
	m := newLight()
	tests := []struct {
		from, to light
		want     bool
	}{
		{red, green, true},
		{green, yellow, true},
		{yellow, red, true},
		{red, yellow, false},
		{broken, red, false},
		{red, red, false},
	}
	for _, tt := range tests {
		if got := m.Can(tt.from, tt.to); got != tt.want {
			t.Errorf("Can(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestMachine_Terminal(t *testing.T) {
	m := newLight()
	if !m.Terminal(broken) {
		t.Error("BROKEN has no outgoing edges and should be terminal")
	}
	if m.Terminal(red) {
		t.Error("RED should not be terminal")
	}
	if m.Terminal("PURPLE") {
		t.Error("unknown states are not terminal")
	}
	if m.Initial() != red || m.Name() != "light" {
		t.Errorf("unexpected machine metadata: %s %s", m.Name(), m.Initial())
	}
}

func TestMachine_Check(t *testing.T) {
	m := newLight()
	if err := m.Check(red, green); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := m.Check(broken, red)
	if !apperr.IsKind(err, apperr.KindInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if d := apperr.From(err).Details; d["from"] != "BROKEN" || d["to"] != "RED" {
		t.Errorf("unexpected details: %v", d)
	}

	if err := m.Check(red, "PURPLE"); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("expected validation error for unknown state, got %v", err)
	}
}

func TestMachine_SingleStateIsTerminal(t *testing.T) {
	m := New[light]("submitted-only", red, nil)
	if !m.Known(red) || !m.Terminal(red) {
		t.Error("a machine with no edges has a single terminal initial state")
	}
}
