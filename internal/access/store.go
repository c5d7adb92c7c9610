// Package access keeps the allow-list of users permitted to talk to the bot
// and the admin-approval flow for newcomers.
package access

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// Role is the stored permission level of an allowed user.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
	RoleGuest Role = "guest"
)

// ParseRole accepts a role name in any case. An empty string means RoleUser.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case "", RoleUser:
		return RoleUser, nil
	case RoleGuest:
		return RoleGuest, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("access: unknown role %q", s)
	}
}

// Member is one row of the allow-list.
type Member struct {
	UserID  int64     `db:"user_id"`
	Role    Role      `db:"role"`
	AddedAt time.Time `db:"added_at"`
}

// Store persists the allow-list.
type Store interface {
	List(ctx context.Context) ([]Member, error)
	Upsert(ctx context.Context, userID int64, role Role) error
	Remove(ctx context.Context, userID int64) (bool, error)
}

// PostgresStore keeps the allow-list in the allowed_users table.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an open connection pool.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const (
	listMembersSQL  = `SELECT user_id, role, added_at FROM allowed_users ORDER BY added_at, user_id`
	upsertMemberSQL = `INSERT INTO allowed_users (user_id, role) VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE SET role = EXCLUDED.role, added_at = now()`
	removeMemberSQL = `DELETE FROM allowed_users WHERE user_id = $1`
)

// List returns every allowed user ordered by the time they were added.
func (s *PostgresStore) List(ctx context.Context) ([]Member, error) {
	var members []Member
	if err := s.db.SelectContext(ctx, &members, listMembersSQL); err != nil {
		return nil, fmt.Errorf("list allowed users: %w", err)
	}
	return members, nil
}

// Upsert inserts the user or updates the role, refreshing added_at.
func (s *PostgresStore) Upsert(ctx context.Context, userID int64, role Role) error {
	if _, err := s.db.ExecContext(ctx, upsertMemberSQL, userID, string(role)); err != nil {
		return fmt.Errorf("upsert allowed user %d: %w", userID, err)
	}
	return nil
}

// Remove deletes the user and reports whether a row existed.
func (s *PostgresStore) Remove(ctx context.Context, userID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, removeMemberSQL, userID)
	if err != nil {
		return false, fmt.Errorf("remove allowed user %d: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove allowed user %d: %w", userID, err)
	}
	return n > 0, nil
}
