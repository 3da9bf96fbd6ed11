// Package statemachine holds the transition tables of the workflow entities.
// A machine only validates; callers persist the new state with an update
// conditioned on the state they read.
package statemachine

import (
	"github.com/hospital/hospital/internal/platform/apperr"
)

// Machine is a finite automaton over a string-typed state. States without
// outgoing edges are terminal.
type Machine[S ~string] struct {
	name    string
	initial S
	edges   map[S]map[S]bool
}

func New[S ~string](name string, initial S, edges map[S][]S) *Machine[S] {
	m := &Machine[S]{name: name, initial: initial, edges: make(map[S]map[S]bool, len(edges))}
	for from, tos := range edges {
		set := make(map[S]bool, len(tos))
		for _, to := range tos {
			set[to] = true
			if _, ok := m.edges[to]; !ok {
				m.edges[to] = nil
			}
		}
		if existing := m.edges[from]; existing != nil {
			for to := range existing {
				set[to] = true
			}
		}
		m.edges[from] = set
	}
	if _, ok := m.edges[initial]; !ok {
		m.edges[initial] = nil
	}
	return m
}

func (m *Machine[S]) Name() string { return m.name }

func (m *Machine[S]) Initial() S { return m.initial }

// Known reports whether s is a state of the machine.
func (m *Machine[S]) Known(s S) bool {
	_, ok := m.edges[s]
	return ok
}

func (m *Machine[S]) Terminal(s S) bool {
	return m.Known(s) && len(m.edges[s]) == 0
}

func (m *Machine[S]) Can(from, to S) bool {
	return m.edges[from][to]
}

// Check returns nil when from -> to is an edge, a validation error when to is
// not a state of the machine and InvalidTransition otherwise.
func (m *Machine[S]) Check(from, to S) error {
	if !m.Known(to) {
		return apperr.Validationf("unknown %s state: %s", m.name, to)
	}
	if !m.Can(from, to) {
		return apperr.InvalidTransition(m.name, string(from), string(to))
	}
	return nil
}
