package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"confreg.org/internal/auth"
)

type magicLinkStore struct {
	db *sql.DB
}

func (s *magicLinkStore) Create(ctx context.Context, tok *auth.MagicLinkToken) error {
	_, err := s.db.ExecContext(ctx, `
		insert into magic_link_tokens (token, identity_id, issued_at, expires_at, consumed)
		values ($1, $2, $3, $4, false)
	`, tok.Token, tok.IdentityID, tok.IssuedAt, tok.ExpiresAt)
	return err
}

// Consume is the critical section of the login flow. The WHERE clause checks
// existence, non-consumption and non-expiry in the same statement that marks
// the token consumed; under concurrent redemption the row lock guarantees
// exactly one caller sees an affected row. Zero rows triggers a read-only
// classification pass so the failure can be logged precisely.
func (s *magicLinkStore) Consume(ctx context.Context, token string, now time.Time) (*auth.MagicLinkToken, error) {
	var rec auth.MagicLinkToken
	rec.Token = token
	rec.Consumed = true
	rec.ConsumedAt = &now
	err := s.db.QueryRowContext(ctx, `
		update magic_link_tokens
		set consumed = true, consumed_at = $2
		where token = $1 and consumed = false and expires_at > $2
		returning identity_id, issued_at, expires_at
	`, token, now).Scan(&rec.IdentityID, &rec.IssuedAt, &rec.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.classify(ctx, token, now)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *magicLinkStore) classify(ctx context.Context, token string, now time.Time) error {
	var (
		consumed  bool
		expiresAt time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		select consumed, expires_at
		from magic_link_tokens
		where token = $1
	`, token).Scan(&consumed, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.ErrInvalidToken
	}
	if err != nil {
		return err
	}
	if consumed {
		return auth.ErrAlreadyUsedToken
	}
	if !now.Before(expiresAt) {
		return auth.ErrExpiredToken
	}
	// The conditional update missed but the row now looks consumable: a
	// concurrent winner committed between the two statements.
	return auth.ErrAlreadyUsedToken
}
