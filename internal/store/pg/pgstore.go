// Package pg implements auth.Store on PostgreSQL via database/sql and the
// pgx stdlib driver. The two single-use consumptions (magic link, exchange
// token) are conditional UPDATEs so that concurrent redemptions of the same
// token resolve deterministically to one winner without any in-process lock.
package pg

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"confreg.org/internal/auth"
)

type Store struct {
	db *sql.DB
}

var _ auth.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle. Used by tests (sqlmock) and the
// migration runner.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Identities() auth.IdentityStore  { return &identityStore{db: s.db} }
func (s *Store) MagicLinks() auth.MagicLinkStore { return &magicLinkStore{db: s.db} }
func (s *Store) Sessions() auth.SessionStore     { return &sessionStore{db: s.db} }
func (s *Store) RBAC() auth.RBACStore            { return &rbacStore{db: s.db} }
