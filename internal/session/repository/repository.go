package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"classroom-lock/client/internal/keystore"
	"classroom-lock/client/internal/session/domain"
)

// Secure storage namespace for the cached session.
const (
	Service      = "com.classroomlock.session"
	AccountToken = "authToken"
	AccountUser  = "authenticatedUser"
)

// Repository persists the single cached session.
type Repository interface {
	Save(s *domain.Session) error
	Load() (*domain.Session, error)
	Clear() error
}

// SecureRepository stores the token and the JSON-encoded user as two keystore entries.
type SecureRepository struct {
	ks keystore.Keystore
}

// NewSecureRepository returns a Repository backed by ks.
func NewSecureRepository(ks keystore.Keystore) *SecureRepository {
	return &SecureRepository{ks: ks}
}

// Save overwrites both entries. Each entry is deleted before it is written.
func (r *SecureRepository) Save(s *domain.Session) error {
	if s == nil {
		return errors.New("session: nil session")
	}
	user, err := json.Marshal(s.User)
	if err != nil {
		return fmt.Errorf("session: encode user: %w", err)
	}
	if err := r.replace(AccountToken, s.Token); err != nil {
		return err
	}
	return r.replace(AccountUser, string(user))
}

func (r *SecureRepository) replace(account, value string) error {
	if err := r.ks.Delete(Service, account); err != nil {
		return fmt.Errorf("session: delete %s: %w", account, err)
	}
	if err := r.ks.Set(Service, account, value); err != nil {
		return fmt.Errorf("session: save %s: %w", account, err)
	}
	return nil
}

// Load returns the cached session, or nil when none is stored. A token without a
// readable user record (missing, undecodable, null, or without a user id) is treated as
// corrupt: both entries are cleared and nil is returned.
func (r *SecureRepository) Load() (*domain.Session, error) {
	token, err := r.ks.Get(Service, AccountToken)
	if errors.Is(err, keystore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: load token: %w", err)
	}
	raw, err := r.ks.Get(Service, AccountUser)
	if err != nil && !errors.Is(err, keystore.ErrNotFound) {
		return nil, fmt.Errorf("session: load user: %w", err)
	}
	var user *domain.AuthenticatedUser
	if err != nil || json.Unmarshal([]byte(raw), &user) != nil || user == nil || user.ID == 0 {
		log.Printf("session: stored user record missing or unreadable; clearing cached session")
		if cerr := r.Clear(); cerr != nil {
			return nil, cerr
		}
		return nil, nil
	}
	return &domain.Session{Token: token, User: *user}, nil
}

// Clear removes both entries. Clearing an empty store is not an error.
func (r *SecureRepository) Clear() error {
	if err := r.ks.Delete(Service, AccountToken); err != nil {
		return fmt.Errorf("session: clear token: %w", err)
	}
	if err := r.ks.Delete(Service, AccountUser); err != nil {
		return fmt.Errorf("session: clear user: %w", err)
	}
	return nil
}
