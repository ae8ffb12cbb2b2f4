package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"statuswise.org/internal/auth"
	"statuswise.org/internal/entitlement"
	"statuswise.org/internal/ids"
)

// Service owns the identity lifecycle: signup, credential checks, and
// the privileged admin/deactivation mutations. Self-service signup can
// never produce an admin; the flag is set only through PromoteToAdmin
// (admin caller, enforced at the HTTP layer) or BootstrapAdmin.
type Service struct {
	users        Store
	entitlements entitlement.Store
}

// NewService constructs the identity service.
func NewService(users Store, entitlements entitlement.Store) (*Service, error) {
	if users == nil {
		return nil, errors.New("identity store is required")
	}
	if entitlements == nil {
		return nil, errors.New("entitlement store is required")
	}
	return &Service{users: users, entitlements: entitlements}, nil
}

// Signup registers a new user and materializes the default FREE
// entitlement so authorization reads never miss.
func (s *Service) Signup(ctx context.Context, email, password string) (User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(password) == "" {
		return User{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return User{}, err
	}

	u := User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		IsAdmin:      false,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, &u); err != nil {
		return User{}, err
	}
	if err := s.entitlements.CreateDefault(ctx, u.ID); err != nil {
		return User{}, err
	}
	return u, nil
}

// Authenticate verifies credentials and returns the matching record.
// Inactive accounts authenticate like unknown ones so callers cannot
// probe deactivation state.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return User{}, ErrInvalidCredentials
	}
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	if !u.IsActive {
		return User{}, ErrInvalidCredentials
	}
	if err := auth.VerifyPassword(u.PasswordHash, password); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// Find returns a user by id.
func (s *Service) Find(ctx context.Context, id string) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.users.Find(ctx, id)
}

// List returns all identity records.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.users.List(ctx)
}

// PromoteToAdmin grants the admin flag. Callers must have passed an
// ADMIN_ACTION authorization check before reaching this.
func (s *Service) PromoteToAdmin(ctx context.Context, userID string) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if err := s.users.SetAdmin(ctx, userID, true); err != nil {
		return User{}, err
	}
	return s.users.Find(ctx, userID)
}

// Deactivate soft-disables the account. The record is kept so audit
// entries and resource ownership stay resolvable.
func (s *Service) Deactivate(ctx context.Context, userID string) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if err := s.users.SetActive(ctx, userID, false); err != nil {
		return User{}, err
	}
	return s.users.Find(ctx, userID)
}

// BootstrapAdmin promotes the user with the given email at startup.
// This is the only admin path that does not require an admin caller;
// a missing user is not an error so first boot works before signup.
func (s *Service) BootstrapAdmin(ctx context.Context, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil
	}
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if u.IsAdmin {
		return nil
	}
	return s.users.SetAdmin(ctx, u.ID, true)
}
