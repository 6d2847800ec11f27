package incident

import (
	"fmt"
	"strings"
)

// State is an incident lifecycle state.
type State string

const (
	StateRegistered State = "registered"
	StateReviewed   State = "reviewed"
	StateApproved   State = "approved"
	StateSettled    State = "settled"
	StateRejected   State = "rejected"
)

var transitions = map[State][]State{
	StateRegistered: {StateReviewed, StateApproved, StateRejected},
	StateReviewed:   {StateApproved, StateRejected},
	StateApproved:   {StateSettled},
	StateRejected:   {StateRegistered},
}

// ParseState validates a state name.
func ParseState(value string) (State, error) {
	state := State(strings.ToLower(strings.TrimSpace(value)))
	if !state.Valid() {
		return "", fmt.Errorf("%w: unknown state %q", ErrValidation, value)
	}
	return state, nil
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateRegistered, StateReviewed, StateApproved, StateSettled, StateRejected:
		return true
	default:
		return false
	}
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrInvalidTransition for moves outside the table.
func CheckTransition(from, to State) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
