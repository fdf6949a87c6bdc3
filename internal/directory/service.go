// Package directory answers lookups against the surrounding business data:
// entity display names, notification addresses, portal-user registration and
// file attachments. The sharing workflow only sees its narrow interface.
package directory

import (
	"context"
	"database/sql"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/fileshare-gateway/internal/models"
)

type Service struct {
	db               *sql.DB
	driver           string
	allowPublicFiles bool
}

// NewService wires the directory against the shared database connection.
// When allowPublicFiles is false, only private attachments are listed as
// sharable.
func NewService(db *sql.DB, driver string, allowPublicFiles bool) *Service {
	return &Service{db: db, driver: driver, allowPublicFiles: allowPublicFiles}
}

func (s *Service) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
		} else {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// Initialize creates the directory tables.
func (s *Service) Initialize(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS directory_entities (
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (entity_type, entity_id)
		)`,
		`CREATE TABLE IF NOT EXISTS portal_users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			parent_type TEXT NOT NULL,
			parent_ref TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS attached_files (
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			file_url TEXT NOT NULL,
			file_type TEXT NOT NULL,
			is_private BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (entity_type, entity_id, file_url)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_portal_users_parent ON portal_users(parent_type, parent_ref)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("initialize directory schema: %w", err)
		}
	}
	return nil
}

// ResolveDisplayName returns the entity's display name, or "" when the
// entity is unknown.
func (s *Service) ResolveDisplayName(ctx context.Context, entityType, entityID string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT display_name FROM directory_entities WHERE entity_type = ? AND entity_id = ?`),
		entityType, entityID).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve display name: %w", err)
	}
	return name, nil
}

// ResolveEmail returns the entity's notification address, or "" when none is
// on file.
func (s *Service) ResolveEmail(ctx context.Context, entityType, entityID string) (string, error) {
	var email string
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT email FROM directory_entities WHERE entity_type = ? AND entity_id = ?`),
		entityType, entityID).Scan(&email)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve email: %w", err)
	}
	return email, nil
}

// IsRegisteredPortalUser reports whether the entity has a portal account
// registered under the given type.
func (s *Service) IsRegisteredPortalUser(ctx context.Context, entityType, entityID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT COUNT(*) FROM portal_users WHERE parent_type = ? AND parent_ref = ?`),
		entityType, entityID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check portal user: %w", err)
	}
	return n > 0, nil
}

// ListFilesAttached returns the entity's attachments matching the type
// filter, deduplicated by filename. When the same filename exists both
// public and private, the private copy wins.
func (s *Service) ListFilesAttached(ctx context.Context, entityType, entityID string, typeFilter []string) ([]models.AttachedFile, error) {
	query := `SELECT file_url, is_private FROM attached_files
		WHERE entity_type = ? AND entity_id = ?`
	args := []interface{}{entityType, entityID}
	if len(typeFilter) > 0 {
		query += ` AND file_type IN (?` + strings.Repeat(", ?", len(typeFilter)-1) + `)`
		for _, t := range typeFilter {
			args = append(args, t)
		}
	}
	if !s.allowPublicFiles {
		query += ` AND is_private`
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list attached files: %w", err)
	}
	defer rows.Close()

	unique := make(map[string]models.AttachedFile)
	var order []string
	for rows.Next() {
		var f models.AttachedFile
		if err := rows.Scan(&f.URL, &f.IsPrivate); err != nil {
			return nil, fmt.Errorf("scan attached file: %w", err)
		}
		name := path.Base(f.URL)
		existing, seen := unique[name]
		if !seen {
			order = append(order, name)
			unique[name] = f
			continue
		}
		if f.IsPrivate && !existing.IsPrivate {
			unique[name] = f
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	files := make([]models.AttachedFile, 0, len(order))
	for _, name := range order {
		files = append(files, unique[name])
	}
	return files, nil
}

// GetPortalUser loads a portal account by username.
func (s *Service) GetPortalUser(ctx context.Context, username string) (*models.PortalUser, error) {
	var u models.PortalUser
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, username, email, password_hash, parent_type, parent_ref, created_at
		 FROM portal_users WHERE username = ?`), username).Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.ParentType, &u.ParentRef, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load portal user: %w", err)
	}
	return &u, nil
}
