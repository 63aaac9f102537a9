package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"confreg.org/internal/auth"
)

type sessionStore struct {
	db *sql.DB
}

func (s *sessionStore) Create(ctx context.Context, sess *auth.Session) error {
	rolesJSON, err := json.Marshal(sess.Roles)
	if err != nil {
		return fmt.Errorf("marshal roles snapshot: %w", err)
	}
	permsJSON, err := json.Marshal(sess.Permissions)
	if err != nil {
		return fmt.Errorf("marshal permissions snapshot: %w", err)
	}
	var exchangeToken sql.NullString
	if sess.ExchangeToken != "" {
		exchangeToken = sql.NullString{String: sess.ExchangeToken, Valid: true}
	}
	var exchangeExpiry sql.NullTime
	if sess.ExchangeExpiresAt != nil {
		exchangeExpiry = sql.NullTime{Time: *sess.ExchangeExpiresAt, Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
		insert into sessions (session_token, identity_id, issued_at, expires_at,
			roles_snapshot, permissions_snapshot, last_activity_at,
			exchange_token, exchange_expires_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, sess.Token, sess.IdentityID, sess.IssuedAt, sess.ExpiresAt,
		rolesJSON, permsJSON, sess.LastActivityAt, exchangeToken, exchangeExpiry)
	return err
}

const sessionColumns = `session_token, identity_id, issued_at, expires_at, roles_snapshot, permissions_snapshot, last_activity_at`

func (s *sessionStore) FindByToken(ctx context.Context, token string) (*auth.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+sessionColumns+`
		from sessions
		where session_token = $1
	`, token)
	return scanSession(row)
}

// ConsumeExchange clears the exchange fields in the same conditional write
// that matches them, mirroring magic-link consumption. A cleared token and a
// never-issued token both classify as invalid on purpose.
func (s *sessionStore) ConsumeExchange(ctx context.Context, exchangeToken string, now time.Time) (*auth.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		update sessions
		set exchange_token = null, exchange_expires_at = null
		where exchange_token = $1 and exchange_expires_at > $2
		returning `+sessionColumns+`
	`, exchangeToken, now)
	sess, err := scanSession(row)
	if errors.Is(err, auth.ErrNotFound) {
		return nil, s.classifyExchange(ctx, exchangeToken, now)
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *sessionStore) classifyExchange(ctx context.Context, exchangeToken string, now time.Time) error {
	var expiresAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		select exchange_expires_at
		from sessions
		where exchange_token = $1
	`, exchangeToken).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.ErrInvalidToken
	}
	if err != nil {
		return err
	}
	if expiresAt.Valid && !now.Before(expiresAt.Time) {
		return auth.ErrExpiredToken
	}
	return auth.ErrInvalidToken
}

func (s *sessionStore) Delete(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `delete from sessions where session_token = $1`, token)
	return err
}

func (s *sessionStore) TouchActivity(ctx context.Context, token string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		update sessions set last_activity_at = $2 where session_token = $1
	`, token, at)
	return err
}

func scanSession(row *sql.Row) (*auth.Session, error) {
	var (
		sess      auth.Session
		rolesJSON []byte
		permsJSON []byte
	)
	err := row.Scan(
		&sess.Token, &sess.IdentityID, &sess.IssuedAt, &sess.ExpiresAt,
		&rolesJSON, &permsJSON, &sess.LastActivityAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(rolesJSON) > 0 {
		if err := json.Unmarshal(rolesJSON, &sess.Roles); err != nil {
			return nil, fmt.Errorf("decode roles snapshot: %w", err)
		}
	}
	sess.Permissions = make(auth.PermissionSet)
	if len(permsJSON) > 0 {
		if err := json.Unmarshal(permsJSON, &sess.Permissions); err != nil {
			return nil, fmt.Errorf("decode permissions snapshot: %w", err)
		}
	}
	return &sess, nil
}
