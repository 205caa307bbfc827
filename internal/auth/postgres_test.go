package auth

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func newMockStore(t *testing.T) (*PGStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	return NewPGStore(db), mock, func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	}
}

func userMockRow(id string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "business_id", "email", "firebase_uid", "first_name", "last_name",
		"status", "email_verified", "is_password_created", "metadata", "created_at", "updated_at",
	}).AddRow(id, "biz-1", "owner@example.com", "fb-1", "Ada", "Lovelace",
		"active", false, false, []byte(`{"tokenVersion":2}`), now, now)
}

func TestPGCreateBusinessAppliesDefaults(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	now := time.Now()
	mock.ExpectQuery(`insert into business\(`).
		WithArgs(sqlmock.AnyArg(), "Acme", "", "", "", "free", "active", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	b := &Business{Name: "Acme"}
	if err := store.CreateBusiness(context.Background(), b); err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}
	if b.ID == "" {
		t.Fatalf("id not generated")
	}
	if b.SubscriptionPlan != "free" || b.Status != "active" {
		t.Fatalf("defaults not applied: %+v", b)
	}
	if b.CreatedAt.IsZero() {
		t.Fatalf("created_at not scanned back")
	}
}

func TestPGCreateUserDuplicateEmail(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectQuery(`insert into business_user\(`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "business_user_email_key"})

	u := &User{BusinessID: "biz-1", Email: "owner@example.com"}
	if err := store.CreateUser(context.Background(), u); !errors.Is(err, ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
}

func TestPGGetOrCreateAdminRoleUpserts(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	now := time.Now()
	mock.ExpectQuery(`on conflict \(business_id, name\) do update`).
		WithArgs(sqlmock.AnyArg(), "biz-1", "Admin", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "business_id", "name", "description", "permissions", "created_at", "updated_at",
		}).AddRow("role-1", "biz-1", "Admin", "Full access to all features",
			[]byte(`{"users":{"create":true,"read":true,"update":true,"delete":true}}`), now, now))

	role, err := store.GetOrCreateAdminRole(context.Background(), "biz-1")
	if err != nil {
		t.Fatalf("GetOrCreateAdminRole: %v", err)
	}
	if role.ID != "role-1" || role.Name != "Admin" {
		t.Fatalf("role mismatch: %+v", role)
	}
	if !role.Permissions.Allows("users.create") {
		t.Fatalf("permissions not decoded: %+v", role.Permissions)
	}
}

func TestPGFindUserByEmail(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectQuery(`from business_user where email=\$1`).
		WithArgs("owner@example.com").
		WillReturnRows(userMockRow("usr-1"))

	u, err := store.FindUserByEmail(context.Background(), "owner@example.com")
	if err != nil {
		t.Fatalf("FindUserByEmail: %v", err)
	}
	if u.ID != "usr-1" || u.Metadata.TokenVersion != 2 {
		t.Fatalf("user or metadata not decoded: %+v", u)
	}

	mock.ExpectQuery(`from business_user where email=\$1`).
		WithArgs("missing@example.com").
		WillReturnError(sql.ErrNoRows)
	if _, err := store.FindUserByEmail(context.Background(), "missing@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestPGFindUserByResetTokenFiltersExpiry(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	// The expiry predicate lives in SQL so expired tokens never reach Go.
	mock.ExpectQuery(`metadata->>'resetToken' = \$1[\s\S]*resetTokenExpiry[\s\S]*> now\(\)`).
		WithArgs("somehash").
		WillReturnRows(userMockRow("usr-1"))

	if _, err := store.FindUserByResetToken(context.Background(), "somehash"); err != nil {
		t.Fatalf("FindUserByResetToken: %v", err)
	}
}

func TestPGSaveResetTokenWritesRFC3339Expiry(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	expiry := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(`jsonb_build_object\('resetToken', \$2::text, 'resetTokenExpiry', \$3::text\)`).
		WithArgs("usr-1", "somehash", "2026-03-01T12:00:00Z").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.SaveResetToken(context.Background(), "usr-1", "somehash", expiry); err != nil {
		t.Fatalf("SaveResetToken: %v", err)
	}
}

func TestPGIncrementTokenVersionIsSingleStatement(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectExec(`jsonb_set\(metadata, '\{tokenVersion\}', to_jsonb\(coalesce\(\(metadata->>'tokenVersion'\)::int, 0\) \+ 1\)\)`).
		WithArgs("usr-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.IncrementTokenVersion(context.Background(), "usr-1"); err != nil {
		t.Fatalf("IncrementTokenVersion: %v", err)
	}
}

func TestPGClearResetToken(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectExec(`metadata - 'resetToken' - 'resetTokenExpiry'`).
		WithArgs("usr-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.ClearResetToken(context.Background(), "usr-1"); err != nil {
		t.Fatalf("ClearResetToken: %v", err)
	}
}

func TestPGUserRoles(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	now := time.Now()
	mock.ExpectQuery(`join business_user_role ur on ur.role_id = r.id`).
		WithArgs("usr-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "business_id", "name", "description", "permissions", "created_at", "updated_at",
		}).
			AddRow("role-1", "biz-1", "Admin", "", []byte(`{"users":{"create":true}}`), now, now).
			AddRow("role-2", "biz-1", "Viewer", "", []byte(`{"users":{"read":true}}`), now, now))

	roles, err := store.UserRoles(context.Background(), "usr-1")
	if err != nil {
		t.Fatalf("UserRoles: %v", err)
	}
	if len(roles) != 2 || roles[0].Name != "Admin" || roles[1].Name != "Viewer" {
		t.Fatalf("roles mismatch: %+v", roles)
	}
	merged := ResolvePermissions(roles)
	if !merged.Allows("users.create") || !merged.Allows("users.read") {
		t.Fatalf("merge across roles failed: %v", merged)
	}
}

func TestPGWithinTxCommitsOnSuccess(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec(`insert into business_user_role`).
		WithArgs("usr-1", "role-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithinTx(context.Background(), func(tx Store) error {
		return tx.AssignRole(context.Background(), "usr-1", "role-1")
	})
	if err != nil {
		t.Fatalf("WithinTx: %v", err)
	}
}

func TestPGWithinTxRollsBackOnError(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := store.WithinTx(context.Background(), func(Store) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("want wrapped fn error, got %v", err)
	}
}

func TestPGWithinTxNestedReusesTransaction(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec(`insert into business_user_role`).
		WithArgs("usr-1", "role-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithinTx(context.Background(), func(tx Store) error {
		// A nested call must join the open transaction, not begin another.
		return tx.WithinTx(context.Background(), func(inner Store) error {
			return inner.AssignRole(context.Background(), "usr-1", "role-1")
		})
	})
	if err != nil {
		t.Fatalf("nested WithinTx: %v", err)
	}
}

func TestPGBlacklist(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	bl := NewPGBlacklist(db)
	ctx := context.Background()

	expiry := time.Now().Add(time.Hour)
	mock.ExpectExec(`insert into token_blacklist`).
		WithArgs("token-abc", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := bl.Revoke(ctx, "token-abc", expiry); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	mock.ExpectQuery(`select exists\(select 1 from token_blacklist where token=\$1 and expires_at > now\(\)\)`).
		WithArgs("token-abc").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	revoked, err := bl.IsRevoked(ctx, "token-abc")
	if err != nil || !revoked {
		t.Fatalf("IsRevoked = %v, %v", revoked, err)
	}

	mock.ExpectQuery(`select exists`).
		WithArgs("token-abc").
		WillReturnError(errors.New("connection refused"))
	if _, err := bl.IsRevoked(ctx, "token-abc"); !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("outage must fail closed with ErrServiceUnavailable, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
