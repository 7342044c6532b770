package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"classroom-lock/client/internal/identity/domain"
	"classroom-lock/client/internal/mdm"
	sessiondomain "classroom-lock/client/internal/session/domain"
	"classroom-lock/client/internal/telemetry"
	telemetrydomain "classroom-lock/client/internal/telemetry/domain"
)

// Sentinel errors for the authentication manager.
var (
	ErrInvalidCredentials = errors.New("company, username and password are required")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrNoPendingLogout    = errors.New("no pending logout to restore or confirm")
)

// Defaults for the reachability wait before background validation.
const (
	DefaultValidationTimeout       = 30 * time.Second
	DefaultValidationRetryInterval = 2 * time.Second
)

// RemoteAuth is the subset of the MDM client used for authentication.
type RemoteAuth interface {
	AuthenticateTeacher(ctx context.Context, company, username, password string) (*mdm.AuthenticateResponse, error)
	ValidateToken(ctx context.Context, token string) (*mdm.MessageResponse, error)
}

// Connectivity gates background validation on the network being available.
type Connectivity interface {
	WaitForConnectivity(ctx context.Context, timeout, retryInterval time.Duration) bool
}

// SessionRepo is the minimal session store needed by the manager.
type SessionRepo interface {
	Save(s *sessiondomain.Session) error
	Load() (*sessiondomain.Session, error)
	Clear() error
}

// Options tunes a Manager. Zero values select the defaults.
type Options struct {
	ValidationTimeout       time.Duration
	ValidationRetryInterval time.Duration
	Emitter                 telemetry.EventEmitter
}

// Manager owns the single client session: login, cached-session restore with background
// validation, and forced or voluntary logout with an undo window.
type Manager struct {
	remote  RemoteAuth
	network Connectivity
	store   SessionRepo
	emitter telemetry.EventEmitter
	timeout time.Duration
	retry   time.Duration

	// storeMu serializes storage writes with the state change they belong to, so a
	// stale validation verdict cannot clear a session saved by a concurrent login.
	// Lock order: storeMu, then mu.
	storeMu sync.Mutex

	mu           sync.Mutex
	state        domain.AuthState
	session      *sessiondomain.Session
	validating   bool
	voluntary    bool
	pending      *sessiondomain.Session
	pendingState domain.AuthState
	watchers     map[int]func(domain.Status)
	nextWatcher  int
}

// NewManager returns a Manager in the unauthenticated state. Call Start to load the cached session.
func NewManager(remote RemoteAuth, network Connectivity, store SessionRepo, opts Options) *Manager {
	timeout := opts.ValidationTimeout
	if timeout <= 0 {
		timeout = DefaultValidationTimeout
	}
	retry := opts.ValidationRetryInterval
	if retry <= 0 {
		retry = DefaultValidationRetryInterval
	}
	return &Manager{
		remote:   remote,
		network:  network,
		store:    store,
		emitter:  opts.Emitter,
		timeout:  timeout,
		retry:    retry,
		state:    domain.StateUnauthenticated,
		watchers: make(map[int]func(domain.Status)),
	}
}

// Start loads the cached session synchronously. If one exists the manager is authenticated
// (unverified) on return, and the token is validated in the background once the network
// is reachable. The returned channel is closed when that validation has finished.
func (m *Manager) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	s, err := m.store.Load()
	if err != nil {
		log.Printf("identity: load cached session: %v", err)
	}
	if s == nil {
		close(done)
		return done
	}

	m.mu.Lock()
	if m.session != nil || m.validating {
		m.mu.Unlock()
		close(done)
		return done
	}
	m.session = s
	m.state = domain.StateAuthenticatedUnverified
	m.validating = true
	m.mu.Unlock()
	m.notify()

	go func() {
		defer close(done)
		m.validate(ctx, s.Token)
	}()
	return done
}

// Status returns the current snapshot.
func (m *Manager) Status() domain.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// IsAuthenticated reports whether a session is currently active.
func (m *Manager) IsAuthenticated() bool {
	return m.Status().IsAuthenticated()
}

// Session returns a copy of the active session, or nil.
func (m *Manager) Session() *sessiondomain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Clone()
}

// Watch registers fn to receive a snapshot after every transition. The returned func unregisters it.
func (m *Manager) Watch(fn func(domain.Status)) (cancel func()) {
	m.mu.Lock()
	id := m.nextWatcher
	m.nextWatcher++
	m.watchers[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
	}
}

// Authenticate logs in against the MDM API and persists the new session, superseding any
// pending voluntary logout. On failure the state is unchanged.
func (m *Manager) Authenticate(ctx context.Context, company, username, password string) (*sessiondomain.Session, error) {
	company = strings.TrimSpace(company)
	username = strings.TrimSpace(username)
	if company == "" || username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	resp, err := m.remote.AuthenticateTeacher(ctx, company, username, password)
	if err != nil {
		return nil, err
	}
	if resp == nil || resp.Token == "" {
		return nil, fmt.Errorf("%w: authentication response has no token", mdm.ErrInvalidResponse)
	}
	s := &sessiondomain.Session{Token: resp.Token, User: userFromResponse(resp.AuthenticatedAs)}
	m.storeMu.Lock()
	if err := m.store.Save(s); err != nil {
		m.storeMu.Unlock()
		return nil, err
	}
	m.mu.Lock()
	m.session = s
	m.state = domain.StateAuthenticatedVerified
	m.pending = nil
	m.pendingState = ""
	m.voluntary = false
	m.mu.Unlock()
	m.storeMu.Unlock()
	m.notify()

	m.emit(ctx, telemetrydomain.EventLogin, s)
	log.Printf("identity: authenticated user %d", s.User.ID)
	return s.Clone(), nil
}

// Logout ends the active session. A forced logout clears memory and storage. A voluntary
// logout keeps a snapshot for RestorePreviousAuth and leaves storage untouched; the
// voluntary flag is published before the session is cleared.
func (m *Manager) Logout(ctx context.Context, voluntary bool) error {
	if !voluntary {
		_, err := m.forceLogout(ctx, telemetrydomain.EventLogoutForced, "")
		return err
	}

	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return ErrNotAuthenticated
	}
	m.pending = m.session.Clone()
	m.pendingState = m.state
	m.voluntary = true
	m.mu.Unlock()
	m.notify()

	m.mu.Lock()
	s := m.session
	m.session = nil
	m.state = domain.StateUnauthenticated
	m.mu.Unlock()
	m.notify()

	m.emit(ctx, telemetrydomain.EventLogoutVoluntary, s)
	return nil
}

// RestorePreviousAuth cancels a pending voluntary logout and reinstates the snapshot.
func (m *Manager) RestorePreviousAuth() error {
	m.mu.Lock()
	if m.pending == nil {
		m.mu.Unlock()
		return ErrNoPendingLogout
	}
	m.session = m.pending
	m.state = m.pendingState
	if !m.state.IsAuthenticated() {
		m.state = domain.StateAuthenticatedUnverified
	}
	m.pending = nil
	m.pendingState = ""
	m.voluntary = false
	s := m.session
	m.mu.Unlock()
	m.notify()

	m.emit(context.Background(), telemetrydomain.EventLogoutRestored, s)
	return nil
}

// ConfirmLogout completes a pending voluntary logout: storage and snapshot are cleared.
func (m *Manager) ConfirmLogout() error {
	m.storeMu.Lock()
	m.mu.Lock()
	if m.pending == nil {
		m.mu.Unlock()
		m.storeMu.Unlock()
		return ErrNoPendingLogout
	}
	m.mu.Unlock()

	if err := m.store.Clear(); err != nil {
		m.storeMu.Unlock()
		return err
	}

	m.mu.Lock()
	m.pending = nil
	m.pendingState = ""
	m.voluntary = false
	m.mu.Unlock()
	m.storeMu.Unlock()
	m.notify()
	return nil
}

// forceLogout clears the session in memory and storage. A non-empty onlyToken restricts it
// to the session holding that token; it reports whether anything was cleared.
func (m *Manager) forceLogout(ctx context.Context, eventType, onlyToken string) (bool, error) {
	m.storeMu.Lock()
	m.mu.Lock()
	if onlyToken != "" && (m.session == nil || m.session.Token != onlyToken) {
		m.mu.Unlock()
		m.storeMu.Unlock()
		return false, nil
	}
	s := m.session
	m.session = nil
	m.pending = nil
	m.pendingState = ""
	m.voluntary = false
	if eventType == telemetrydomain.EventTokenInvalid {
		m.state = domain.StateInvalid
	} else {
		m.state = domain.StateUnauthenticated
	}
	m.mu.Unlock()

	err := m.store.Clear()
	m.storeMu.Unlock()
	if err != nil {
		log.Printf("identity: clear stored session: %v", err)
	}
	m.notify()
	m.emit(ctx, eventType, s)
	return true, err
}

// validation verdicts
type verdict int

const (
	verdictTrust verdict = iota
	verdictValid
	verdictInvalid
)

// classifyValidation maps a validation outcome to a verdict. Only an explicit rejection
// by the server invalidates the session; transport and server-side failures keep it.
func classifyValidation(resp *mdm.MessageResponse, err error) verdict {
	if err == nil {
		if mdm.IsValidToken(resp) {
			return verdictValid
		}
		return verdictInvalid
	}
	if errors.Is(err, mdm.ErrAuthenticationFailed) {
		return verdictInvalid
	}
	var se *mdm.ServerError
	if errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500 {
		return verdictInvalid
	}
	return verdictTrust
}

func (m *Manager) validate(ctx context.Context, token string) {
	defer func() {
		m.mu.Lock()
		m.validating = false
		m.mu.Unlock()
		m.notify()
	}()

	if !m.network.WaitForConnectivity(ctx, m.timeout, m.retry) {
		if ctx.Err() == nil {
			log.Printf("identity: network unavailable after %v; keeping cached session", m.timeout)
		}
		return
	}
	resp, err := m.remote.ValidateToken(ctx, token)
	if ctx.Err() != nil {
		return
	}

	switch classifyValidation(resp, err) {
	case verdictValid:
		m.mu.Lock()
		if m.session != nil && m.session.Token == token {
			m.state = domain.StateAuthenticatedVerified
		}
		m.mu.Unlock()
	case verdictInvalid:
		if cleared, _ := m.forceLogout(ctx, telemetrydomain.EventTokenInvalid, token); cleared {
			log.Printf("identity: cached token rejected by server; logged out")
		}
	default:
		log.Printf("identity: token validation inconclusive (%v); keeping cached session", err)
	}
}

func (m *Manager) statusLocked() domain.Status {
	return domain.Status{
		State:             m.state,
		Session:           m.session.Clone(),
		IsValidating:      m.validating,
		IsVoluntaryLogout: m.voluntary,
		HasPendingLogout:  m.pending != nil,
	}
}

func (m *Manager) notify() {
	m.mu.Lock()
	st := m.statusLocked()
	fns := make([]func(domain.Status), 0, len(m.watchers))
	for _, fn := range m.watchers {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

func (m *Manager) emit(ctx context.Context, eventType string, s *sessiondomain.Session) {
	if m.emitter == nil {
		return
	}
	userID := ""
	if s != nil {
		userID = strconv.FormatInt(s.User.ID, 10)
	}
	telemetry.EmitAsync(m.emitter, ctx, telemetrydomain.NewEvent(eventType, userID, "", nil))
}

func userFromResponse(as mdm.AuthenticatedAs) sessiondomain.AuthenticatedUser {
	display := strings.TrimSpace(as.Name)
	if display == "" {
		display = strings.TrimSpace(as.FirstName + " " + as.LastName)
	}
	return sessiondomain.AuthenticatedUser{
		ID:          as.ID,
		CompanyID:   as.CompanyID,
		Username:    as.Username,
		FirstName:   as.FirstName,
		LastName:    as.LastName,
		DisplayName: display,
	}
}
