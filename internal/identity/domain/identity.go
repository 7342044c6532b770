package domain

import sessiondomain "classroom-lock/client/internal/session/domain"

// AuthState is the authentication state of the client.
type AuthState string

const (
	// StateUnauthenticated: no session in memory (including a pending voluntary logout).
	StateUnauthenticated AuthState = "unauthenticated"
	// StateAuthenticatedUnverified: a cached session is trusted but not yet validated remotely.
	StateAuthenticatedUnverified AuthState = "authenticated_unverified"
	// StateAuthenticatedVerified: the session came from a fresh login or passed remote validation.
	StateAuthenticatedVerified AuthState = "authenticated_verified"
	// StateInvalid: the server rejected the cached token and the session was force-cleared.
	StateInvalid AuthState = "invalid"
)

// IsAuthenticated reports whether s carries a usable session.
func (s AuthState) IsAuthenticated() bool {
	return s == StateAuthenticatedUnverified || s == StateAuthenticatedVerified
}

// Status is a point-in-time snapshot of the authentication manager.
type Status struct {
	State             AuthState
	Session           *sessiondomain.Session // nil when unauthenticated; a copy
	IsValidating      bool
	IsVoluntaryLogout bool
	HasPendingLogout  bool
}

// IsAuthenticated reports whether the snapshot carries a usable session.
func (s Status) IsAuthenticated() bool {
	return s.State.IsAuthenticated()
}
