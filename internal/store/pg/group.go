package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"statuswise.org/internal/group"
)

func (s *Store) CreateGroup(ctx context.Context, g *group.Group) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	if g == nil || strings.TrimSpace(g.ID) == "" || strings.TrimSpace(g.OwnerID) == "" {
		return group.ErrInvalidInput
	}
	err := s.db.QueryRowContext(ctx, `
		insert into groups (id, name, description, owner_id)
		values ($1, $2, nullif($3, ''), $4)
		returning created_at
	`, g.ID, g.Name, g.Description, g.OwnerID).Scan(&g.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return group.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) FindGroup(ctx context.Context, id string) (group.Group, error) {
	if s.db == nil {
		return group.Group{}, errors.New("database connection unavailable")
	}
	var g group.Group
	err := s.db.QueryRowContext(ctx, `
		select id, name, coalesce(description, ''), owner_id, created_at
		from groups
		where id = $1
	`, id).Scan(&g.ID, &g.Name, &g.Description, &g.OwnerID, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return group.Group{}, group.ErrNotFound
	}
	if err != nil {
		return group.Group{}, err
	}
	return g, nil
}

func (s *Store) ListGroupsForUser(ctx context.Context, userID string) ([]group.Group, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select g.id, g.name, coalesce(g.description, ''), g.owner_id, g.created_at
		from groups g
		join group_members m on m.group_id = g.id
		where m.user_id = $1
		order by g.id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []group.Group
	for rows.Next() {
		var g group.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.OwnerID, &g.CreatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groups, nil
}

func (s *Store) AddMember(ctx context.Context, m *group.Member) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	if m == nil || strings.TrimSpace(m.GroupID) == "" || strings.TrimSpace(m.UserID) == "" {
		return group.ErrInvalidInput
	}
	err := s.db.QueryRowContext(ctx, `
		insert into group_members (group_id, user_id, role)
		values ($1, $2, $3)
		returning joined_at
	`, m.GroupID, m.UserID, string(m.Role)).Scan(&m.JoinedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return group.ErrConflict
			case pgErrForeignKeyViolation:
				return group.ErrNotFound
			}
		}
		return err
	}
	return nil
}

func (s *Store) RemoveMember(ctx context.Context, groupID, userID string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		delete from group_members
		where group_id = $1 and user_id = $2
	`, groupID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return group.ErrNotFound
	}
	return nil
}

func (s *Store) FindMember(ctx context.Context, groupID, userID string) (group.Member, error) {
	if s.db == nil {
		return group.Member{}, errors.New("database connection unavailable")
	}
	var m group.Member
	var role string
	err := s.db.QueryRowContext(ctx, `
		select group_id, user_id, role, joined_at
		from group_members
		where group_id = $1 and user_id = $2
	`, groupID, userID).Scan(&m.GroupID, &m.UserID, &role, &m.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return group.Member{}, group.ErrNotFound
	}
	if err != nil {
		return group.Member{}, err
	}
	m.Role = group.Role(role)
	return m, nil
}

func (s *Store) ListMembers(ctx context.Context, groupID string) ([]group.Member, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select group_id, user_id, role, joined_at
		from group_members
		where group_id = $1
		order by user_id
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []group.Member
	for rows.Next() {
		var m group.Member
		var role string
		if err := rows.Scan(&m.GroupID, &m.UserID, &role, &m.JoinedAt); err != nil {
			return nil, err
		}
		m.Role = group.Role(role)
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return members, nil
}

func (s *Store) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	if s.db == nil {
		return false, errors.New("database connection unavailable")
	}
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists (
			select 1 from group_members
			where group_id = $1 and user_id = $2
		)
	`, groupID, userID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}
