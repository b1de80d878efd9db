package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"example.com/fittogether/internal/domain"
)

// EventType names an auth-state change.
type EventType string

const (
	EventSignedIn  EventType = "signed_in"
	EventSignedOut EventType = "signed_out"
)

// Event describes an auth-state change.
type Event struct {
	Type      EventType
	Identity  domain.Identity
	SessionID string
	At        time.Time
}

// Handler reacts to an auth-state change. Errors are logged by the notifier
// and never reach the caller that triggered the change.
type Handler func(ctx context.Context, e Event) error

type subscription struct {
	id      uint64
	handler Handler
}

// Notifier fans auth-state changes out to subscribers, synchronously and in
// subscription order.
type Notifier struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
	log    zerolog.Logger
}

// NewNotifier constructs a Notifier.
func NewNotifier(logger zerolog.Logger) *Notifier {
	return &Notifier{log: logger}
}

// Subscribe registers a handler and returns the function that removes it.
func (n *Notifier) Subscribe(h Handler) (unsubscribe func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID
	n.subs = append(n.subs, subscription{id: id, handler: h})
	n.log.Debug().Uint64("subscription", id).Int("total_handlers", len(n.subs)).Msg("auth handler subscribed")

	var once sync.Once
	return func() {
		once.Do(func() { n.remove(id) })
	}
}

func (n *Notifier) remove(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i, s := range n.subs {
		if s.id == id {
			n.subs = append(n.subs[:i:i], n.subs[i+1:]...)
			n.log.Debug().Uint64("subscription", id).Int("total_handlers", len(n.subs)).Msg("auth handler unsubscribed")
			return
		}
	}
}

// Publish delivers the event to every current subscriber. A failing or
// panicking handler is logged and does not stop delivery to the others.
func (n *Notifier) Publish(ctx context.Context, e Event) {
	n.mu.RLock()
	subs := make([]subscription, len(n.subs))
	copy(subs, n.subs)
	n.mu.RUnlock()

	for _, s := range subs {
		if err := n.deliver(ctx, s.handler, e); err != nil {
			n.log.Error().
				Err(err).
				Str("event_type", string(e.Type)).
				Str("user_id", e.Identity.UserID).
				Uint64("subscription", s.id).
				Msg("auth handler failed")
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, h Handler, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, e)
}

// Len returns the number of subscribers.
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}

// ProfileProvisioner ensures a profile exists for a signed-in identity.
type ProfileProvisioner interface {
	ProvisionProfile(ctx context.Context, id domain.Identity) error
}

// ProvisionOnSignIn returns a handler that provisions the user's profile on
// every sign-in.
func ProvisionOnSignIn(p ProfileProvisioner) Handler {
	return func(ctx context.Context, e Event) error {
		if e.Type != EventSignedIn {
			return nil
		}
		return p.ProvisionProfile(ctx, e.Identity)
	}
}
