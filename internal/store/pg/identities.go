package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"confreg.org/internal/auth"
)

type identityStore struct {
	db *sql.DB
}

const identityColumns = `id, email, display_name, email_verified, status, login_count, last_login_at, created_at, updated_at`

func (s *identityStore) Find(ctx context.Context, id string) (*auth.Identity, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+identityColumns+`
		from identities
		where id = $1
	`, id)
	return scanIdentity(row)
}

func (s *identityStore) FindByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+identityColumns+`
		from identities
		where lower(email) = lower($1)
	`, email)
	return scanIdentity(row)
}

func (s *identityStore) RecordLogin(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update identities
		set email_verified = true,
		    login_count = login_count + 1,
		    last_login_at = $2,
		    updated_at = $2
		where id = $1
	`, id, at)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func scanIdentity(row *sql.Row) (*auth.Identity, error) {
	var (
		identity  auth.Identity
		lastLogin sql.NullTime
	)
	err := row.Scan(
		&identity.ID, &identity.Email, &identity.DisplayName,
		&identity.EmailVerified, &identity.Status, &identity.LoginCount,
		&lastLogin, &identity.CreatedAt, &identity.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		identity.LastLoginAt = &t
	}
	return &identity, nil
}
