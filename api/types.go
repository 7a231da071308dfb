package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"taskboard/domain"
	"taskboard/events"
)

// Authenticator issues session tokens and extracts the user ID from an
// Authorization header.
type Authenticator interface {
	Issue(userID string) (token string, expires time.Time, err error)
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents a retried request from being applied twice.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, scope, key string) (bool, error)
	// Remove deletes a previously added key, used when processing fails.
	Remove(ctx context.Context, scope, key string) error
}

// EventDispatcher accepts domain events for asynchronous delivery.
type EventDispatcher interface {
	Dispatch(ev events.Event)
}

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Deps carries everything the handlers need. Deduper, Events, Health and Done
// are optional.
type Deps struct {
	Auth        *domain.AuthService
	Departments *domain.DepartmentRegistry
	Board       *domain.Board
	Sessions    Authenticator
	Deduper     Deduper
	Events      EventDispatcher
	Health      HealthChecker
	Logger      *log.Logger
	// Done is closed when the server shuts down; open board streams end.
	Done <-chan struct{}

	broker *boardBroker
}

func (d *Deps) dispatch(ev events.Event) {
	if d.Events != nil {
		d.Events.Dispatch(ev)
	}
}
