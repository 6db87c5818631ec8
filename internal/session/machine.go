package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"tender-admin/internal/domain"
	"tender-admin/internal/observability"
)

const (
	msgCredentialsRequired = "Username and password are required."
	msgSaveFailed          = "Unable to save session. Please try again."
	msgLoginSuperseded     = "Login was cancelled."

	eventPublishTimeout = 2 * time.Second
)

// Status is the primary state of a session.
type Status string

const (
	StatusUnauthenticated Status = "unauthenticated"
	StatusLoading         Status = "loading"
	StatusAuthenticated   Status = "authenticated"
)

// State is a snapshot of a client's session. Error is orthogonal to the
// status and is cleared by the next login attempt.
type State struct {
	User            *domain.User `json:"user"`
	Token           Token        `json:"-"`
	IsAuthenticated bool         `json:"is_authenticated"`
	IsLoading       bool         `json:"is_loading"`
	Error           string       `json:"error,omitempty"`
}

func (s State) Status() Status {
	switch {
	case s.IsLoading:
		return StatusLoading
	case s.IsAuthenticated:
		return StatusAuthenticated
	default:
		return StatusUnauthenticated
	}
}

// HasValidSession is the check the route guard makes before rendering
// protected content.
func (s State) HasValidSession() bool {
	return s.IsAuthenticated && s.User != nil && !s.User.ID.IsZero() && s.User.Username != ""
}

func (s State) isZero() bool {
	return !s.IsAuthenticated && !s.IsLoading && s.User == nil && s.Error == "" && s.Token.Raw == ""
}

// Authenticator is the remote side of the credential exchange.
type Authenticator interface {
	Login(ctx context.Context, creds domain.Credentials) (*domain.LoginResult, error)
	Logout(ctx context.Context, token string) error
}

// EventSink receives session lifecycle events.
type EventSink interface {
	PublishSessionEvent(ctx context.Context, event *domain.SessionEvent) error
}

// MachineConfig wires a Machine. Events may be nil.
type MachineConfig struct {
	ClientID   string
	InstanceID string
	Store      *Store
	Auth       Authenticator
	Events     EventSink
	Clock      Clock
}

// Machine holds one client's session state and performs its transitions.
// Store writes always happen before the state they establish is published,
// so an observer that sees StatusAuthenticated can rely on the store.
type Machine struct {
	clientID   string
	instanceID string
	store      *Store
	auth       Authenticator
	events     EventSink
	clock      Clock

	mu         sync.Mutex
	state      State
	inflight   bool
	generation uint64
	subs       map[uint64]func(State)
	nextSub    uint64
}

// NewMachine creates a machine in the loading state, as at application boot.
func NewMachine(cfg MachineConfig) *Machine {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	return &Machine{
		clientID:   cfg.ClientID,
		instanceID: cfg.InstanceID,
		store:      cfg.Store,
		auth:       cfg.Auth,
		events:     cfg.Events,
		clock:      cfg.Clock,
		state:      State{IsLoading: true},
		subs:       make(map[uint64]func(State)),
	}
}

// State returns the current snapshot.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Busy reports whether an operation is in flight.
func (m *Machine) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inflight
}

// Subscribe registers fn to receive every new state. The returned function
// removes the subscription.
func (m *Machine) Subscribe(fn func(State)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// setLocked replaces the state and returns the subscribers to notify. Callers
// hold m.mu and call notify after releasing it.
func (m *Machine) setLocked(next State) []func(State) {
	prev := m.state
	m.state = next
	if prev.isZero() && next.isZero() {
		return nil
	}
	subs := make([]func(State), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	return subs
}

func notify(subs []func(State), st State) {
	for _, fn := range subs {
		fn(st)
	}
}

// begin marks an operation in flight and enters the loading state. It fails
// if another operation is already running.
func (m *Machine) begin() (uint64, bool) {
	m.mu.Lock()
	if m.inflight {
		m.mu.Unlock()
		return 0, false
	}
	m.inflight = true
	next := m.state
	next.IsLoading = true
	next.Error = ""
	subs := m.setLocked(next)
	gen := m.generation
	m.mu.Unlock()

	notify(subs, next)
	return gen, true
}

// Rehydrate rebuilds the state from the store. It is a no-op returning the
// current state when another operation is in flight.
func (m *Machine) Rehydrate(ctx context.Context) State {
	gen, ok := m.begin()
	if !ok {
		return m.State()
	}

	next := State{}
	rawToken, rawUser, found, err := m.store.Load(ctx)
	switch {
	case err != nil:
		slog.Error("failed to rehydrate session",
			slog.String("client_id", m.clientID),
			slog.String("error", err.Error()))
	case found:
		user, userErr := domain.ParseUser(rawUser)
		tok, tokErr := DecodeToken(rawToken)
		if userErr == nil && tokErr == nil {
			next = State{User: user, Token: tok, IsAuthenticated: true}
		}
	}

	m.mu.Lock()
	m.inflight = false
	if m.generation != gen {
		return m.settleSupersededLocked()
	}
	subs := m.setLocked(next)
	m.mu.Unlock()
	notify(subs, next)

	if next.IsAuthenticated {
		m.publish(ctx, domain.EventRehydrated, next.User.Username, "")
	}
	return next
}

// Login performs the credential exchange. On success the token and user are
// persisted before the machine reports authenticated. On failure the store is
// left untouched and the returned error is always a *domain.AuthError, or
// domain.ErrLoginInProgress when another operation is running.
func (m *Machine) Login(ctx context.Context, creds domain.Credentials) (State, error) {
	gen, ok := m.begin()
	if !ok {
		observability.LoginAttemptsTotal.WithLabelValues("in_progress").Inc()
		return m.State(), domain.ErrLoginInProgress
	}

	if strings.TrimSpace(creds.Username) == "" || creds.Password == "" {
		authErr := domain.NewAuthError(msgCredentialsRequired, nil)
		st := m.fail(ctx, creds.Username, authErr, "invalid_input")
		m.finish()
		return st, authErr
	}

	res, err := m.auth.Login(ctx, creds)
	if err == nil && (res == nil || res.User == nil || res.User.Check() != nil) {
		err = domain.NewAuthError("", errors.New("backend returned an incomplete user record"))
	}
	if err != nil {
		var authErr *domain.AuthError
		if !errors.As(err, &authErr) {
			authErr = domain.NewAuthError("", err)
		}
		m.finish()
		return m.fail(ctx, creds.Username, authErr, "rejected"), authErr
	}

	tok := OpaqueToken(res.Token)
	if res.Token == "" {
		tok = Fabricate(res.User.Username, m.clock.Now())
	}

	m.mu.Lock()
	m.inflight = false
	if m.generation != gen {
		observability.LoginAttemptsTotal.WithLabelValues("superseded").Inc()
		return m.settleSupersededLocked(), domain.NewAuthError(msgLoginSuperseded, nil)
	}
	if err := m.store.Save(ctx, tok, res.User); err != nil {
		next := State{Error: msgSaveFailed}
		subs := m.setLocked(next)
		m.mu.Unlock()
		notify(subs, next)

		slog.Error("failed to persist session",
			slog.String("client_id", m.clientID),
			slog.String("error", err.Error()))
		observability.LoginAttemptsTotal.WithLabelValues("save_failed").Inc()
		m.publish(ctx, domain.EventLoginFailed, creds.Username, "save_failed")
		return next, domain.NewAuthError(msgSaveFailed, err)
	}
	next := State{User: res.User, Token: tok, IsAuthenticated: true}
	subs := m.setLocked(next)
	m.mu.Unlock()
	notify(subs, next)

	slog.Info("login succeeded",
		slog.String("client_id", m.clientID),
		slog.String("username", res.User.Username),
		slog.String("token_kind", tok.Kind.String()))
	observability.LoginAttemptsTotal.WithLabelValues("success").Inc()
	m.publish(ctx, domain.EventLoginSucceeded, res.User.Username, tok.Kind.String())
	return next, nil
}

// settleSupersededLocked drops the loading flag left by a reset that happened
// while an operation was in flight. It releases m.mu.
func (m *Machine) settleSupersededLocked() State {
	next := m.state
	next.IsLoading = false
	subs := m.setLocked(next)
	m.mu.Unlock()

	notify(subs, next)
	return next
}

func (m *Machine) finish() {
	m.mu.Lock()
	m.inflight = false
	m.mu.Unlock()
}

// fail moves to unauthenticated with the error message. The store is not
// touched.
func (m *Machine) fail(ctx context.Context, username string, authErr *domain.AuthError, result string) State {
	next := State{Error: authErr.Message}

	m.mu.Lock()
	subs := m.setLocked(next)
	m.mu.Unlock()
	notify(subs, next)

	slog.Info("login failed",
		slog.String("client_id", m.clientID),
		slog.String("username", username),
		slog.String("message", authErr.Message))
	observability.LoginAttemptsTotal.WithLabelValues(result).Inc()
	m.publish(ctx, domain.EventLoginFailed, username, result)
	return next
}

// Logout tears the session down. The remote notification is best effort;
// the store is cleared and the state reset whatever it returns.
func (m *Machine) Logout(ctx context.Context) State {
	m.mu.Lock()
	tok := m.state.Token
	var username string
	if m.state.User != nil {
		username = m.state.User.Username
	}
	m.mu.Unlock()

	if tok.Raw != "" && m.auth != nil {
		if err := m.auth.Logout(ctx, tok.Raw); err != nil {
			slog.Warn("remote logout failed, clearing local session anyway",
				slog.String("client_id", m.clientID),
				slog.String("error", err.Error()))
		}
	}

	m.reset(ctx, "logout")
	m.publish(ctx, domain.EventLoggedOut, username, "")
	return State{}
}

// Invalidate clears the store and resets the state after invalid session data
// was detected elsewhere.
func (m *Machine) Invalidate(ctx context.Context, reason string) State {
	wasAuthenticated, username := m.reset(ctx, reason)
	if wasAuthenticated {
		m.publish(ctx, domain.EventInvalidated, username, reason)
	}
	return State{}
}

// reset clears the store, then the state, and supersedes any operation still
// in flight.
func (m *Machine) reset(ctx context.Context, reason string) (bool, string) {
	m.mu.Lock()
	m.generation++
	wasAuthenticated := m.state.IsAuthenticated
	var username string
	if m.state.User != nil {
		username = m.state.User.Username
	}
	if err := m.store.Clear(ctx); err != nil {
		slog.Error("failed to clear session store",
			slog.String("client_id", m.clientID),
			slog.String("reason", reason),
			slog.String("error", err.Error()))
	}
	next := State{}
	if m.inflight {
		next.IsLoading = true
	}
	subs := m.setLocked(next)
	m.mu.Unlock()

	notify(subs, next)
	return wasAuthenticated, username
}

// discardRemnants clears whatever the store still holds for a machine that
// is not signed in. The state, including any login error, is kept. Nothing is
// cleared while an operation is in flight since that operation owns the store.
func (m *Machine) discardRemnants(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inflight || m.state.IsAuthenticated {
		return
	}
	if err := m.store.Clear(ctx); err != nil {
		slog.Error("failed to clear session remnants",
			slog.String("client_id", m.clientID),
			slog.String("error", err.Error()))
	}
}

func (m *Machine) publish(ctx context.Context, typ domain.SessionEventType, username, reason string) {
	if m.events == nil {
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()

	event := &domain.SessionEvent{
		Type:       typ,
		ClientID:   m.clientID,
		Username:   username,
		InstanceID: m.instanceID,
		Reason:     reason,
		OccurredAt: m.clock.Now().UTC(),
	}
	if err := m.events.PublishSessionEvent(pubCtx, event); err != nil {
		slog.Warn("failed to publish session event",
			slog.String("type", string(typ)),
			slog.String("client_id", m.clientID),
			slog.String("error", err.Error()))
	}
}
