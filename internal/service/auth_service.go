package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tender-admin/internal/domain"
	"tender-admin/internal/observability"
	"tender-admin/internal/security"
	"tender-admin/internal/session"
)

var ErrUnknownClient = errors.New("unknown client")

// StateBroadcaster pushes a client's state changes to its live connections.
type StateBroadcaster interface {
	BroadcastState(clientID string, st session.State)
}

// Config holds the registry settings. Zero values fall back to defaults.
type Config struct {
	InstanceID      string
	MaxTokenAge     time.Duration
	RecheckInterval time.Duration
	IdleTTL         time.Duration
	LoginPath       string
	LandingPath     string
	Clock           session.Clock
}

const (
	DefaultLoginPath   = "/login"
	DefaultLandingPath = "/panel"
	DefaultIdleTTL     = 30 * time.Minute
)

// ClientSession is everything the gateway keeps in memory for one browser.
type ClientSession struct {
	ID        string
	Machine   *session.Machine
	Guard     *session.Guard
	CSRFToken string

	lastAccess  time.Time
	unsubscribe func()
}

// AuthService is the registry of client sessions. Each client gets its own
// state machine and route guard over a namespace of the shared store.
type AuthService struct {
	kv          domain.KeyValueStore
	auth        session.Authenticator
	events      session.EventSink
	broadcaster StateBroadcaster
	csrf        *security.TokenManager
	cfg         Config

	mu      sync.Mutex
	clients map[string]*ClientSession
}

// NewAuthService creates the registry. events and broadcaster may be nil.
func NewAuthService(kv domain.KeyValueStore, auth session.Authenticator, events session.EventSink, broadcaster StateBroadcaster, cfg Config) *AuthService {
	if cfg.Clock == nil {
		cfg.Clock = session.SystemClock()
	}
	if cfg.MaxTokenAge <= 0 {
		cfg.MaxTokenAge = session.MaxTokenAge
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = DefaultLoginPath
	}
	if cfg.LandingPath == "" {
		cfg.LandingPath = DefaultLandingPath
	}
	return &AuthService{
		kv:          kv,
		auth:        auth,
		events:      events,
		broadcaster: broadcaster,
		csrf:        security.NewTokenManager(),
		cfg:         cfg,
		clients:     make(map[string]*ClientSession),
	}
}

func (s *AuthService) LoginPath() string   { return s.cfg.LoginPath }
func (s *AuthService) LandingPath() string { return s.cfg.LandingPath }

// Session returns the client's session, creating it on first use.
func (s *AuthService) Session(clientID string) (*ClientSession, error) {
	if clientID == "" {
		return nil, ErrUnknownClient
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.cfg.Clock.Now()
	if cs, ok := s.clients[clientID]; ok {
		cs.lastAccess = now
		return cs, nil
	}

	csrfToken, err := s.csrf.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate csrf token: %w", err)
	}

	store := session.NewStore(s.kv, session.ClientNamespace(clientID))
	machine := session.NewMachine(session.MachineConfig{
		ClientID:   clientID,
		InstanceID: s.cfg.InstanceID,
		Store:      store,
		Auth:       s.auth,
		Events:     s.events,
		Clock:      s.cfg.Clock,
	})
	validator := session.NewValidator(store, s.cfg.Clock, s.cfg.MaxTokenAge)

	cs := &ClientSession{
		ID:         clientID,
		Machine:    machine,
		Guard:      session.NewGuard(machine, validator, s.cfg.Clock, s.cfg.RecheckInterval),
		CSRFToken:  csrfToken,
		lastAccess: now,
	}
	if s.broadcaster != nil {
		b := s.broadcaster
		cs.unsubscribe = machine.Subscribe(func(st session.State) {
			b.BroadcastState(clientID, st)
		})
	}

	s.clients[clientID] = cs
	observability.SessionClientsActive.Set(float64(len(s.clients)))
	return cs, nil
}

// VerifyCSRF checks a submitted token against the client's token.
func (s *AuthService) VerifyCSRF(clientID, submitted string) error {
	cs, err := s.Session(clientID)
	if err != nil {
		return err
	}
	return s.csrf.Verify(cs.CSRFToken, submitted)
}

// Login runs the credential exchange for the client and resolves where the
// browser goes next. The destination is the landing path when from is not a
// local path.
func (s *AuthService) Login(ctx context.Context, clientID string, creds domain.Credentials, from string) (domain.Destination, session.State, error) {
	cs, err := s.Session(clientID)
	if err != nil {
		return domain.Destination{}, session.State{}, err
	}

	dest := domain.NewDestination(from, s.cfg.LoginPath, s.cfg.LandingPath)
	st, err := cs.Machine.Login(ctx, creds)
	return dest, st, err
}

// Logout ends the client's session. It always succeeds and sends the
// browser to the login page.
func (s *AuthService) Logout(ctx context.Context, clientID string) domain.Destination {
	dest := domain.Destination{Path: s.cfg.LoginPath}

	cs, err := s.Session(clientID)
	if err != nil {
		return dest
	}
	cs.Machine.Logout(ctx)
	return dest
}

// State evaluates the client's guard and returns the resulting state, so a
// fresh client reports its persisted session rather than the boot state.
func (s *AuthService) State(ctx context.Context, clientID string) (session.State, error) {
	cs, err := s.Session(clientID)
	if err != nil {
		return session.State{}, err
	}
	return cs.Guard.Evaluate(ctx).State, nil
}

// Forget drops the client's in-memory state. The next request for the
// client starts from the store again. Live connections are told the client
// is signed out.
func (s *AuthService) Forget(clientID string) bool {
	s.mu.Lock()
	cs, ok := s.clients[clientID]
	if ok {
		delete(s.clients, clientID)
		observability.SessionClientsActive.Set(float64(len(s.clients)))
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	if cs.unsubscribe != nil {
		cs.unsubscribe()
	}
	if s.broadcaster != nil {
		s.broadcaster.BroadcastState(clientID, session.State{})
	}
	return true
}

// HandleSessionEvent forgets clients whose session another instance ended.
func (s *AuthService) HandleSessionEvent(ctx context.Context, event *domain.SessionEvent) {
	if event.InstanceID == s.cfg.InstanceID || !event.EndsSession() {
		return
	}
	if s.Forget(event.ClientID) {
		observability.FromContext(ctx).Info("forgot client after remote session end",
			slog.String("client_id", event.ClientID),
			slog.String("event", string(event.Type)),
			slog.String("instance_id", event.InstanceID),
		)
	}
}

// CleanupIdle evicts clients not seen for the idle TTL and returns how many
// were removed. Clients with an operation in flight are kept.
func (s *AuthService) CleanupIdle() int {
	cutoff := s.cfg.Clock.Now().Add(-s.cfg.IdleTTL)

	s.mu.Lock()
	var evicted []*ClientSession
	for id, cs := range s.clients {
		if cs.lastAccess.After(cutoff) {
			continue
		}
		if cs.Machine.Busy() {
			continue
		}
		delete(s.clients, id)
		evicted = append(evicted, cs)
	}
	observability.SessionClientsActive.Set(float64(len(s.clients)))
	s.mu.Unlock()

	for _, cs := range evicted {
		if cs.unsubscribe != nil {
			cs.unsubscribe()
		}
	}
	return len(evicted)
}

// StartCleanup runs CleanupIdle every interval until ctx is done.
func (s *AuthService) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.CleanupIdle(); n > 0 {
				slog.Debug("evicted idle clients", slog.Int("count", n))
			}
		}
	}
}

// ActiveClients reports how many clients are held in memory.
func (s *AuthService) ActiveClients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
