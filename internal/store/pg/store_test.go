package pg

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"confreg.org/internal/auth"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		_ = db.Close()
	})
	return NewWithDB(db), mock
}

func TestConsumeMagicLinkWins(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	issued := now.Add(-time.Minute)
	expires := issued.Add(15 * time.Minute)

	mock.ExpectQuery("update magic_link_tokens").
		WithArgs("tok-1", now).
		WillReturnRows(sqlmock.NewRows([]string{"identity_id", "issued_at", "expires_at"}).
			AddRow("id-ada", issued, expires))

	rec, err := store.MagicLinks().Consume(context.Background(), "tok-1", now)
	if err != nil {
		t.Fatal(err)
	}
	if rec.IdentityID != "id-ada" || !rec.Consumed || rec.ConsumedAt == nil {
		t.Fatalf("consumed record = %+v", rec)
	}
}

func TestConsumeMagicLinkClassification(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		rows *sqlmock.Rows
		want error
	}{
		{"unknown token", nil, auth.ErrInvalidToken},
		{"already consumed", sqlmock.NewRows([]string{"consumed", "expires_at"}).AddRow(true, now.Add(time.Minute)), auth.ErrAlreadyUsedToken},
		{"expired", sqlmock.NewRows([]string{"consumed", "expires_at"}).AddRow(false, now.Add(-time.Minute)), auth.ErrExpiredToken},
		// Looks consumable on the re-read: a concurrent winner committed
		// between the two statements.
		{"lost race", sqlmock.NewRows([]string{"consumed", "expires_at"}).AddRow(false, now.Add(time.Minute)), auth.ErrAlreadyUsedToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			mock.ExpectQuery("update magic_link_tokens").
				WithArgs("tok-1", now).
				WillReturnRows(sqlmock.NewRows([]string{"identity_id", "issued_at", "expires_at"}))
			q := mock.ExpectQuery("select consumed, expires_at").WithArgs("tok-1")
			if tc.rows != nil {
				q.WillReturnRows(tc.rows)
			} else {
				q.WillReturnRows(sqlmock.NewRows([]string{"consumed", "expires_at"}))
			}

			_, err := store.MagicLinks().Consume(context.Background(), "tok-1", now)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestConsumeExchangeClearsFields(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 14, 9, 0, 30, 0, time.UTC)
	issued := now.Add(-30 * time.Second)

	roles, _ := json.Marshal([]auth.RoleSnapshot{auth.DefaultMemberRole})
	perms, _ := json.Marshal(auth.PermissionSet{"abstracts": {"submit": {"own"}}})

	mock.ExpectQuery("update sessions").
		WithArgs("xchg-1", now).
		WillReturnRows(sqlmock.NewRows([]string{
			"session_token", "identity_id", "issued_at", "expires_at",
			"roles_snapshot", "permissions_snapshot", "last_activity_at",
		}).AddRow("sess-1", "id-ada", issued, issued.Add(24*time.Hour), roles, perms, issued))

	sess, err := store.Sessions().ConsumeExchange(context.Background(), "xchg-1", now)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Token != "sess-1" || sess.ExchangeToken != "" || sess.ExchangeExpiresAt != nil {
		t.Fatalf("session = %+v", sess)
	}
	if sess.PrimaryRole().Name != "member" {
		t.Fatalf("roles snapshot not decoded: %+v", sess.Roles)
	}
	if scopes := sess.Permissions.Scopes(auth.PermissionKey{Resource: "abstracts", Action: "submit"}); len(scopes) != 1 {
		t.Fatalf("permissions snapshot not decoded: %+v", sess.Permissions)
	}
}

func TestConsumeExchangeClassification(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 1, 0, 0, time.UTC)

	cases := []struct {
		name string
		rows *sqlmock.Rows
		want error
	}{
		// A cleared exchange token and a never-issued one are
		// indistinguishable on purpose.
		{"unknown or cleared", sqlmock.NewRows([]string{"exchange_expires_at"}), auth.ErrInvalidToken},
		{"window elapsed", sqlmock.NewRows([]string{"exchange_expires_at"}).AddRow(now.Add(-time.Second)), auth.ErrExpiredToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			mock.ExpectQuery("update sessions").
				WithArgs("xchg-1", now).
				WillReturnRows(sqlmock.NewRows([]string{
					"session_token", "identity_id", "issued_at", "expires_at",
					"roles_snapshot", "permissions_snapshot", "last_activity_at",
				}))
			mock.ExpectQuery("select exchange_expires_at").WithArgs("xchg-1").WillReturnRows(tc.rows)

			_, err := store.Sessions().ConsumeExchange(context.Background(), "xchg-1", now)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestFindIdentityByEmail(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("select (.+) from identities").
		WithArgs("ada@example.org").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "display_name", "email_verified", "status",
			"login_count", "last_login_at", "created_at", "updated_at",
		}).AddRow("id-ada", "ada@example.org", "Ada", true, "active", 3, nil, created, created))

	identity, err := store.Identities().FindByEmail(context.Background(), "ada@example.org")
	if err != nil {
		t.Fatal(err)
	}
	if identity.ID != "id-ada" || identity.LastLoginAt != nil || identity.LoginCount != 3 {
		t.Fatalf("identity = %+v", identity)
	}
}

func TestFindIdentityNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("select (.+) from identities").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "display_name", "email_verified", "status",
			"login_count", "last_login_at", "created_at", "updated_at",
		}))

	if _, err := store.Identities().Find(context.Background(), "missing"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestRecordLoginMissingIdentity(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec("update identities").
		WithArgs("missing", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Identities().RecordLogin(context.Background(), "missing", at); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestActiveRolesDecoding(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("from role_assignments").
		WithArgs("id-ada", at).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "display_name", "permission_level", "category", "settings",
		}).
			AddRow("R_ADMIN", "admin", "Administrator", 100, "governance", []byte(`{"theme":"dark"}`)).
			AddRow("R_BOARD", "board_member", "Board member", 80, "governance", nil))

	roles, err := store.RBAC().ActiveRoles(context.Background(), "id-ada", at)
	if err != nil {
		t.Fatal(err)
	}
	if len(roles) != 2 || roles[0].Name != "admin" || roles[1].Name != "board_member" {
		t.Fatalf("roles = %+v", roles)
	}
	if roles[0].Settings["theme"] != "dark" {
		t.Fatalf("settings not decoded: %+v", roles[0].Settings)
	}
}

func TestGrantsForRoleOverride(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("from role_permissions").
		WithArgs("R_BOARD").
		WillReturnRows(sqlmock.NewRows([]string{"resource", "action", "scope", "scope_override"}).
			AddRow("abstracts", "review", "all", nil).
			AddRow("abstracts", "submit", "all", "own"))

	grants, err := store.RBAC().GrantsForRole(context.Background(), "R_BOARD")
	if err != nil {
		t.Fatal(err)
	}
	if len(grants) != 2 {
		t.Fatalf("grants = %+v", grants)
	}
	if grants[0].EffectiveScope() != "all" || grants[1].EffectiveScope() != "own" {
		t.Fatalf("effective scopes = %q, %q", grants[0].EffectiveScope(), grants[1].EffectiveScope())
	}
}

func TestCreateSessionEncodesSnapshots(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	exchangeExpiry := now.Add(60 * time.Second)

	mock.ExpectExec("insert into sessions").
		WithArgs("sess-1", "id-ada", now, now.Add(24*time.Hour),
			sqlmock.AnyArg(), sqlmock.AnyArg(), now, "xchg-1", exchangeExpiry).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.Sessions().Create(context.Background(), &auth.Session{
		Token:             "sess-1",
		IdentityID:        "id-ada",
		IssuedAt:          now,
		ExpiresAt:         now.Add(24 * time.Hour),
		Roles:             []auth.RoleSnapshot{auth.DefaultMemberRole},
		Permissions:       make(auth.PermissionSet),
		LastActivityAt:    now,
		ExchangeToken:     "xchg-1",
		ExchangeExpiresAt: &exchangeExpiry,
	})
	if err != nil {
		t.Fatal(err)
	}
}
