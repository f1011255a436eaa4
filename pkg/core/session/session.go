// Package session tracks the sign-in lifecycle of each identity:
// unauthenticated -> loading_profile -> ready | error, with manual retry from
// error. Profile loading is delegated to a Bootstrapper.
package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/jakechorley/helpboard/pkg/core/model"
	"github.com/jakechorley/helpboard/pkg/core/permissions"
)

type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateLoadingProfile  State = "loading_profile"
	StateReady           State = "ready"
	StateError           State = "error"
)

var ErrInvalidTransition = errors.New("invalid session transition")

// Identity is an authenticated principal before its profile is known
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is a snapshot of one identity's lifecycle
type Session struct {
	Identity    Identity                 `json:"identity"`
	State       State                    `json:"state"`
	Profile     *model.Profile           `json:"profile,omitempty"`
	Permissions *permissions.Permissions `json:"permissions,omitempty"`
	Error       string                   `json:"error,omitempty"`
}

// Ready reports whether the session has a loaded profile
func (s Session) Ready() bool {
	return s.State == StateReady && s.Profile != nil
}

// Event is published on every state change
type Event struct {
	From    State
	To      State
	Session Session
}

// Bootstrapper loads or creates the profile for an identity
type Bootstrapper func(ctx context.Context, identity Identity) (*model.Profile, error)

type entry struct {
	session Session
	// closed when the in-flight profile load finishes
	done chan struct{}
}

const subscriberBuffer = 16

// Manager owns the sessions of all signed-in identities. It is safe for
// concurrent use.
type Manager struct {
	bootstrap Bootstrapper
	logger    *zap.Logger

	mu      sync.Mutex
	entries map[string]*entry
	subs    map[int]chan Event
	nextSub int
}

func NewManager(bootstrap Bootstrapper, logger *zap.Logger) *Manager {
	return &Manager{
		bootstrap: bootstrap,
		logger:    logger,
		entries:   make(map[string]*entry),
		subs:      make(map[int]chan Event),
	}
}

// SignedIn moves an identity into loading_profile and bootstraps its profile.
// Callers that arrive while a load is in flight wait for it rather than
// starting another. A ready session has its profile re-read so role changes
// made outside this process are picked up; a session in error is retried.
func (m *Manager) SignedIn(ctx context.Context, identity Identity) (Session, error) {
	m.mu.Lock()
	e, ok := m.entries[identity.ID]
	if ok {
		switch e.session.State {
		case StateReady:
			m.mu.Unlock()
			return m.refresh(ctx, e), nil
		case StateLoadingProfile:
			done := e.done
			m.mu.Unlock()
			return m.wait(ctx, identity.ID, done)
		case StateError:
			m.startLoad(e)
			m.mu.Unlock()
			return m.load(ctx, e), nil
		}
	}

	e = &entry{session: Session{Identity: identity, State: StateUnauthenticated}}
	m.entries[identity.ID] = e
	m.startLoad(e)
	m.mu.Unlock()

	return m.load(ctx, e), nil
}

// Retry re-runs the profile load for a session in the error state
func (m *Manager) Retry(ctx context.Context, identityID string) (Session, error) {
	m.mu.Lock()
	e, ok := m.entries[identityID]
	if !ok || e.session.State != StateError {
		m.mu.Unlock()
		return m.Get(identityID), ErrInvalidTransition
	}
	m.startLoad(e)
	m.mu.Unlock()

	return m.load(ctx, e), nil
}

// SignedOut discards the session. Signing out an unknown identity is an
// invalid transition.
func (m *Manager) SignedOut(identityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[identityID]
	if !ok {
		return ErrInvalidTransition
	}
	delete(m.entries, identityID)

	m.publish(e.session.State, Session{Identity: e.session.Identity, State: StateUnauthenticated})
	return nil
}

// ProfileChanged refreshes a ready session after its profile was updated
func (m *Manager) ProfileChanged(profile *model.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[profile.ID]
	if !ok || e.session.State != StateReady {
		return
	}
	e.session.Profile, e.session.Permissions = profileSnapshot(profile)
	m.publish(StateReady, e.session)
}

// Get returns the current session, unauthenticated if none exists
func (m *Manager) Get(identityID string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[identityID]; ok {
		return e.session
	}
	return Session{Identity: Identity{ID: identityID}, State: StateUnauthenticated}
}

// Subscribe returns a channel of session events and a cancel func that
// closes it. Events are dropped for subscribers that fall behind.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan Event, subscriberBuffer)
	m.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// startLoad must be called with m.mu held
func (m *Manager) startLoad(e *entry) {
	from := e.session.State
	e.session.State = StateLoadingProfile
	e.session.Error = ""
	e.session.Profile = nil
	e.session.Permissions = nil
	e.done = make(chan struct{})
	m.publish(from, e.session)
}

func (m *Manager) load(ctx context.Context, e *entry) Session {
	profile, err := m.bootstrap(ctx, e.session.Identity)

	m.mu.Lock()
	defer m.mu.Unlock()
	defer close(e.done)

	if current, ok := m.entries[e.session.Identity.ID]; !ok || current != e {
		// signed out while loading
		return Session{Identity: e.session.Identity, State: StateUnauthenticated}
	}

	if err != nil {
		m.logger.Warn("Profile bootstrap failed",
			zap.String("identity_id", e.session.Identity.ID),
			zap.Error(err))
		e.session.State = StateError
		e.session.Error = err.Error()
	} else {
		e.session.State = StateReady
		e.session.Profile, e.session.Permissions = profileSnapshot(profile)
	}

	m.publish(StateLoadingProfile, e.session)
	return e.session
}

// refresh re-reads the profile of a ready session without leaving the ready
// state. A failed read keeps the cached profile.
func (m *Manager) refresh(ctx context.Context, e *entry) Session {
	id := e.session.Identity.ID
	profile, err := m.bootstrap(ctx, e.session.Identity)

	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.entries[id]
	if !ok {
		return Session{Identity: e.session.Identity, State: StateUnauthenticated}
	}
	if current != e || e.session.State != StateReady {
		return current.session
	}

	if err != nil {
		m.logger.Warn("Profile refresh failed, keeping cached profile",
			zap.String("identity_id", id),
			zap.Error(err))
		return e.session
	}

	if *e.session.Profile != *profile {
		e.session.Profile, e.session.Permissions = profileSnapshot(profile)
		m.publish(StateReady, e.session)
	}
	return e.session
}

func (m *Manager) wait(ctx context.Context, identityID string, done <-chan struct{}) (Session, error) {
	select {
	case <-ctx.Done():
		return m.Get(identityID), ctx.Err()
	case <-done:
		return m.Get(identityID), nil
	}
}

// publish must be called with m.mu held
func (m *Manager) publish(from State, s Session) {
	ev := Event{From: from, To: s.State, Session: s}
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func profileSnapshot(profile *model.Profile) (*model.Profile, *permissions.Permissions) {
	p := *profile
	perms := permissions.For(p.Role)
	return &p, &perms
}
