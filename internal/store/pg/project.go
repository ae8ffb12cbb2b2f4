package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"statuswise.org/internal/project"
)

func (s *Store) CreateProject(ctx context.Context, p *project.Project) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	if p == nil || strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.OwnerID) == "" {
		return project.ErrInvalidInput
	}
	err := s.db.QueryRowContext(ctx, `
		insert into projects (id, name, owner_id, group_id, public)
		values ($1, $2, $3, nullif($4, ''), $5)
		returning created_at
	`, p.ID, p.Name, p.OwnerID, p.GroupID, p.Public).Scan(&p.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return project.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Store) FindProject(ctx context.Context, id string) (project.Project, error) {
	if s.db == nil {
		return project.Project{}, errors.New("database connection unavailable")
	}
	var p project.Project
	err := s.db.QueryRowContext(ctx, `
		select id, name, owner_id, coalesce(group_id, ''), public, created_at
		from projects
		where id = $1
	`, id).Scan(&p.ID, &p.Name, &p.OwnerID, &p.GroupID, &p.Public, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return project.Project{}, project.ErrNotFound
	}
	if err != nil {
		return project.Project{}, err
	}
	return p, nil
}

func (s *Store) ListProjectsByOwner(ctx context.Context, ownerID string) ([]project.Project, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, owner_id, coalesce(group_id, ''), public, created_at
		from projects
		where owner_id = $1
		order by id
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []project.Project
	for rows.Next() {
		var p project.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.OwnerID, &p.GroupID, &p.Public, &p.CreatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return projects, nil
}

func (s *Store) CountProjectsByOwner(ctx context.Context, ownerID string) (int, error) {
	return s.count(ctx, `select count(*) from projects where owner_id = $1`, ownerID)
}

func (s *Store) CreateIncident(ctx context.Context, in *project.Incident) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	if in == nil || strings.TrimSpace(in.ID) == "" || strings.TrimSpace(in.ProjectID) == "" {
		return project.ErrInvalidInput
	}
	err := s.db.QueryRowContext(ctx, `
		insert into incidents (id, project_id, title, description)
		values ($1, $2, $3, $4)
		returning created_at
	`, in.ID, in.ProjectID, in.Title, in.Description).Scan(&in.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return project.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Store) FindIncident(ctx context.Context, id string) (project.Incident, error) {
	if s.db == nil {
		return project.Incident{}, errors.New("database connection unavailable")
	}
	var in project.Incident
	err := s.db.QueryRowContext(ctx, `
		select id, project_id, title, coalesce(description, ''), resolved, resolved_at, created_at
		from incidents
		where id = $1
	`, id).Scan(&in.ID, &in.ProjectID, &in.Title, &in.Description, &in.Resolved, &in.ResolvedAt, &in.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return project.Incident{}, project.ErrNotFound
	}
	if err != nil {
		return project.Incident{}, err
	}
	return in, nil
}

func (s *Store) ListIncidentsByProject(ctx context.Context, projectID string) ([]project.Incident, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, project_id, title, coalesce(description, ''), resolved, resolved_at, created_at
		from incidents
		where project_id = $1
		order by id
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var incidents []project.Incident
	for rows.Next() {
		var in project.Incident
		if err := rows.Scan(&in.ID, &in.ProjectID, &in.Title, &in.Description, &in.Resolved, &in.ResolvedAt, &in.CreatedAt); err != nil {
			return nil, err
		}
		incidents = append(incidents, in)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return incidents, nil
}

func (s *Store) CountIncidentsByProject(ctx context.Context, projectID string) (int, error) {
	return s.count(ctx, `select count(*) from incidents where project_id = $1`, projectID)
}

func (s *Store) ResolveIncident(ctx context.Context, id string, at time.Time) (project.Incident, error) {
	if s.db == nil {
		return project.Incident{}, errors.New("database connection unavailable")
	}
	var in project.Incident
	err := s.db.QueryRowContext(ctx, `
		update incidents
		set resolved = true, resolved_at = $2
		where id = $1
		returning id, project_id, title, coalesce(description, ''), resolved, resolved_at, created_at
	`, id, at.UTC()).Scan(&in.ID, &in.ProjectID, &in.Title, &in.Description, &in.Resolved, &in.ResolvedAt, &in.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return project.Incident{}, project.ErrNotFound
	}
	if err != nil {
		return project.Incident{}, err
	}
	return in, nil
}

func (s *Store) count(ctx context.Context, query string, arg any) (int, error) {
	if s.db == nil {
		return 0, errors.New("database connection unavailable")
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, arg).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
