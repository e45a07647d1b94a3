package oi

import "context"

// State is the state of a Link.
type State int

// Link states, in the order a link moves through them.
const (
	StateUnopened State = iota
	StateOpening
	StateHandshaking
	StateReady
	StateClosed
)

var stateNames = [...]string{
	StateUnopened:    "unopened",
	StateOpening:     "opening",
	StateHandshaking: "handshaking",
	StateReady:       "ready",
	StateClosed:      "closed",
}

// String implements fmt.Stringer.
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// IsReady indicates typed I/O is allowed.
func (s State) IsReady() bool {
	return s == StateReady
}

// StateNotifier is called when the link state changed.
type StateNotifier interface {
	StateChanged(context.Context, *Link, State)
}

// StateChangedFunc is func type of StateNotifier.
type StateChangedFunc func(context.Context, *Link, State)

// StateChanged implements StateNotifier.
func (f StateChangedFunc) StateChanged(ctx context.Context, l *Link, state State) {
	f(ctx, l, state)
}
