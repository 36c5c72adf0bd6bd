// Package auth manages user accounts, bearer-token sessions and the
// request middleware that ties them to roles.
package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/finchat/internal/access"
	"github.com/ziadkadry99/finchat/internal/db"
)

// sessionTTL is how long a login stays valid.
const sessionTTL = 7 * 24 * time.Hour

// ErrInvalidCredentials is returned for any failed login attempt. It does
// not distinguish unknown emails from wrong passwords or deactivated
// accounts.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrUserNotFound is returned when a user ID does not exist.
var ErrUserNotFound = errors.New("user not found")

// ErrEmailTaken is returned when creating a user with an email that is
// already registered.
var ErrEmailTaken = errors.New("email already registered")

// User is an account that can log in and chat. The password hash never
// leaves the store.
type User struct {
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	Name      string      `json:"name"`
	Role      access.Role `json:"role"`
	Active    bool        `json:"active"`
	CreatedAt time.Time   `json:"created_at"`
}

// Session is one bearer-token login.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store persists users and sessions.
type Store struct {
	db *db.DB
}

func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// CreateUser registers an account. An empty password creates an SSO-only
// account that cannot log in with a password.
func (s *Store) CreateUser(ctx context.Context, email, name string, role access.Role, password string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role %q", role)
	}

	existing, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash := ""
	if password != "" {
		hash, err = HashPassword(password)
		if err != nil {
			return nil, err
		}
	}

	u := User{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      name,
		Role:      role,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, role, password_hash, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
		u.ID, u.Email, u.Name, string(u.Role), hash, u.CreatedAt, u.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting user: %w", err)
	}
	return &u, nil
}

// Authenticate checks an email/password pair and returns the account.
// Unknown emails, wrong passwords, SSO-only accounts and deactivated
// accounts all fail with ErrInvalidCredentials.
func (s *Store) Authenticate(ctx context.Context, email, password string) (*User, error) {
	var (
		u      User
		role   string
		active int
		hash   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, role, active, password_hash, created_at
		 FROM users WHERE email = ?`, normalizeEmail(email),
	).Scan(&u.ID, &u.Email, &u.Name, &role, &active, &hash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}
	if active == 0 || hash == "" || !CheckPassword(hash, password) {
		return nil, ErrInvalidCredentials
	}
	u.Role = access.Role(role)
	u.Active = true
	return &u, nil
}

// GetUser retrieves a user by ID, or nil if it does not exist.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	return s.getUser(ctx, `WHERE id = ?`, id)
}

// GetUserByEmail retrieves a user by email, or nil if it does not exist.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.getUser(ctx, `WHERE email = ?`, normalizeEmail(email))
}

func (s *Store) getUser(ctx context.Context, where string, arg any) (*User, error) {
	var (
		u      User
		role   string
		active int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, role, active, created_at FROM users `+where, arg,
	).Scan(&u.ID, &u.Email, &u.Name, &role, &active, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	u.Role = access.Role(role)
	u.Active = active != 0
	return &u, nil
}

// ListUsers returns every account, newest first.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, email, name, role, active, created_at
		 FROM users ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var (
			u      User
			role   string
			active int
		)
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &role, &active, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		u.Role = access.Role(role)
		u.Active = active != 0
		out = append(out, u)
	}
	return out, rows.Err()
}

// DeactivateUser disables an account. Existing sessions stop resolving on
// the next request.
func (s *Store) DeactivateUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET active = 0, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("deactivating user: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CreateSession issues a bearer token for a user.
func (s *Store) CreateSession(ctx context.Context, userID string) (*Session, error) {
	token, err := randomToken()
	if err != nil {
		return nil, err
	}
	sess := Session{
		Token:     token,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	sess.ExpiresAt = sess.CreatedAt.Add(sessionTTL)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, created_at, expires_at)
		 VALUES (?, ?, ?, ?)`,
		sess.Token, sess.UserID, sess.CreatedAt, sess.ExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting session: %w", err)
	}
	return &sess, nil
}

// UserForToken resolves a bearer token to its user. It returns nil for
// unknown or expired tokens and for deactivated accounts. The role is
// read fresh on every call, so role changes apply on the next request.
func (s *Store) UserForToken(ctx context.Context, token string) (*User, error) {
	var (
		u      User
		role   string
		active int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT u.id, u.email, u.name, u.role, u.active, u.created_at
		 FROM sessions s JOIN users u ON u.id = s.user_id
		 WHERE s.token = ? AND s.expires_at > ?`,
		token, time.Now().UTC(),
	).Scan(&u.ID, &u.Email, &u.Name, &role, &active, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolving session: %w", err)
	}
	if active == 0 {
		return nil, nil
	}
	u.Role = access.Role(role)
	u.Active = true
	return &u, nil
}

// DeleteSession revokes a bearer token.
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// PurgeExpiredSessions removes sessions past their expiry and reports how
// many were deleted.
func (s *Store) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= ?`, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("purging sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
