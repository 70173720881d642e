package packet

import (
	"fmt"

	"go.uber.org/zap"
)

// SessionState is the protocol phase of a connection.
type SessionState int

const (
	StateAwaitingRequest SessionState = iota // connected, no PLAYER/REQUEST yet
	StateInWorld                             // announced to peers
	StateDisconnecting
)

func (s SessionState) String() string {
	switch s {
	case StateAwaitingRequest:
		return "AwaitingRequest"
	case StateInWorld:
		return "InWorld"
	case StateDisconnecting:
		return "Disconnecting"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// AnyState registers a handler for every session phase.
var AnyState = []SessionState{StateAwaitingRequest, StateInWorld, StateDisconnecting}

// HandlerFunc handles one validated message on behalf of C.
type HandlerFunc[C any] func(c C, m Message) error

type eventKey struct {
	domain Domain
	sub    uint8
}

type handlerEntry[C any] struct {
	fn            HandlerFunc[C]
	allowedStates map[SessionState]bool
}

// Registry maps (domain, subEvent) pairs to handlers with state-based access
// control.
type Registry[C any] struct {
	handlers map[eventKey]*handlerEntry[C]
	log      *zap.Logger
}

func NewRegistry[C any](log *zap.Logger) *Registry[C] {
	return &Registry[C]{
		handlers: make(map[eventKey]*handlerEntry[C]),
		log:      log,
	}
}

// Register maps an event to a handler, restricted to the given session states.
func (reg *Registry[C]) Register(d Domain, sub uint8, states []SessionState, fn HandlerFunc[C]) {
	allowed := make(map[SessionState]bool, len(states))
	for _, s := range states {
		allowed[s] = true
	}
	reg.handlers[eventKey{d, sub}] = &handlerEntry[C]{fn: fn, allowedStates: allowed}
}

// Dispatch validates m, finds its handler, checks the session state, and
// calls it. Validation failures are returned wrapped so callers can match
// ErrMalformedRecord / ErrTruncatedPayload / ErrUnknownEvent.
func (reg *Registry[C]) Dispatch(c C, state SessionState, m Message) error {
	if err := Validate(m); err != nil {
		return err
	}

	entry, ok := reg.handlers[eventKey{m.Domain, m.Sub}]
	if !ok {
		return fmt.Errorf("%s: no handler: %w", m.Name(), ErrUnknownEvent)
	}

	if !entry.allowedStates[state] {
		reg.log.Debug("event not allowed in this state",
			zap.String("event", m.Name()),
			zap.String("state", state.String()),
		)
		return fmt.Errorf("%s not allowed in state %s", m.Name(), state)
	}

	return reg.safeCall(entry.fn, c, m)
}

// safeCall executes a handler with panic recovery so a single bad frame
// cannot take down the tick loop.
func (reg *Registry[C]) safeCall(fn HandlerFunc[C], c C, m Message) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.log.Error("handler panic recovered",
				zap.String("event", m.Name()),
				zap.Uint16("sender", m.Sender),
				zap.Any("panic", rec),
			)
			err = fmt.Errorf("handler panic for %s: %v", m.Name(), rec)
		}
	}()
	return fn(c, m)
}
