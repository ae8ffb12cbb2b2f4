package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"statuswise.org/internal/identity"
)

func (s *Store) Create(ctx context.Context, u *identity.User) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	if u == nil || strings.TrimSpace(u.ID) == "" || strings.TrimSpace(u.Email) == "" {
		return identity.ErrInvalidInput
	}
	err := s.db.QueryRowContext(ctx, `
		insert into users (id, email, password_hash, is_admin, is_active)
		values ($1, $2, $3, $4, $5)
		returning created_at, updated_at
	`, u.ID, u.Email, u.PasswordHash, u.IsAdmin, u.IsActive).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return identity.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) Find(ctx context.Context, id string) (identity.User, error) {
	return s.findUser(ctx, `where id = $1`, id)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (identity.User, error) {
	return s.findUser(ctx, `where email = $1`, email)
}

func (s *Store) findUser(ctx context.Context, where string, arg any) (identity.User, error) {
	if s.db == nil {
		return identity.User{}, errors.New("database connection unavailable")
	}
	var u identity.User
	err := s.db.QueryRowContext(ctx, `
		select id, email, password_hash, is_admin, is_active, created_at, updated_at
		from users
		`+where, arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsAdmin, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.User{}, identity.ErrNotFound
	}
	if err != nil {
		return identity.User{}, err
	}
	return u, nil
}

func (s *Store) List(ctx context.Context) ([]identity.User, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, email, password_hash, is_admin, is_active, created_at, updated_at
		from users
		order by id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []identity.User
	for rows.Next() {
		var u identity.User
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsAdmin, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) SetAdmin(ctx context.Context, id string, admin bool) error {
	return s.setFlag(ctx, `update users set is_admin = $2, updated_at = now() where id = $1`, id, admin)
}

func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	return s.setFlag(ctx, `update users set is_active = $2, updated_at = now() where id = $1`, id, active)
}

func (s *Store) setFlag(ctx context.Context, query, id string, value bool) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, query, id, value)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return identity.ErrNotFound
	}
	return nil
}
