package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"justping.io/internal/ids"
)

const pgUniqueViolation = "23505"

var _ Store = (*PGStore)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx so the same store code
// runs inside and outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
	q  querier
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db, q: db}
}

// OpenPG opens a pooled PostgreSQL connection through the pgx stdlib driver.
func OpenPG(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

func (s *PGStore) WithinTx(ctx context.Context, fn func(Store) error) error {
	if _, nested := s.q.(*sql.Tx); nested {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&PGStore{db: s.db, q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PGStore) CreateBusiness(ctx context.Context, b *Business) error {
	if b.ID == "" {
		b.ID = ids.New()
	}
	if b.SubscriptionPlan == "" {
		b.SubscriptionPlan = defaultSubscriptionPlan
	}
	if b.Status == "" {
		b.Status = defaultBusinessStatus
	}
	contact, _ := json.Marshal(b.ContactInfo)
	row := s.q.QueryRowContext(ctx,
		`insert into business(id, name, description, website, industry, subscription_plan, status, contact_info)
		 values($1,$2,$3,$4,$5,$6,$7,$8)
		 returning created_at, updated_at`,
		b.ID, b.Name, b.Description, b.Website, b.Industry, b.SubscriptionPlan, b.Status, contact,
	)
	if err := row.Scan(&b.CreatedAt, &b.UpdatedAt); err != nil {
		return wrapPGError(err)
	}
	return nil
}

func (s *PGStore) CreateUser(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	meta, err := json.Marshal(u.Metadata)
	if err != nil {
		return err
	}
	row := s.q.QueryRowContext(ctx,
		`insert into business_user(id, business_id, email, firebase_uid, first_name, last_name, status, email_verified, is_password_created, metadata)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		 returning created_at, updated_at`,
		u.ID, u.BusinessID, u.Email, u.FirebaseUID, u.FirstName, u.LastName,
		u.Status, u.EmailVerified, u.IsPasswordCreated, meta,
	)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: email already registered", ErrConflict)
		}
		return wrapPGError(err)
	}
	return nil
}

// GetOrCreateAdminRole upserts against the unique (business_id, name) key so
// a concurrent first call cannot create duplicate Admin rows.
func (s *PGStore) GetOrCreateAdminRole(ctx context.Context, businessID string) (*Role, error) {
	perms, err := json.Marshal(AdminPermissions())
	if err != nil {
		return nil, err
	}
	row := s.q.QueryRowContext(ctx,
		`insert into role(id, business_id, name, description, permissions)
		 values($1,$2,$3,$4,$5)
		 on conflict (business_id, name) do update set updated_at = now()
		 returning id, business_id, name, description, permissions, created_at, updated_at`,
		ids.New(), businessID, AdminRoleName, "Full access to all features", perms,
	)
	return scanRole(row)
}

func (s *PGStore) AssignRole(ctx context.Context, userID, roleID string) error {
	_, err := s.q.ExecContext(ctx,
		`insert into business_user_role(user_id, role_id) values($1,$2) on conflict do nothing`,
		userID, roleID,
	)
	return wrapPGError(err)
}

const userColumns = `id, business_id, email, firebase_uid, first_name, last_name, status, email_verified, is_password_created, metadata, created_at, updated_at`

func (s *PGStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.q.QueryRowContext(ctx,
		`select `+userColumns+` from business_user where email=$1`, email)
	return scanUser(row)
}

func (s *PGStore) FindUserByID(ctx context.Context, id string) (*User, error) {
	row := s.q.QueryRowContext(ctx,
		`select `+userColumns+` from business_user where id=$1`, id)
	return scanUser(row)
}

func (s *PGStore) FindUserByResetToken(ctx context.Context, tokenHash string) (*User, error) {
	row := s.q.QueryRowContext(ctx,
		`select `+userColumns+` from business_user
		 where metadata->>'resetToken' = $1
		   and (metadata->>'resetTokenExpiry')::timestamptz > now()`,
		tokenHash)
	return scanUser(row)
}

func (s *PGStore) UserRoles(ctx context.Context, userID string) ([]Role, error) {
	rows, err := s.q.QueryContext(ctx,
		`select r.id, r.business_id, r.name, r.description, r.permissions, r.created_at, r.updated_at
		 from role r
		 join business_user_role ur on ur.role_id = r.id
		 where ur.user_id = $1
		 order by r.created_at`,
		userID)
	if err != nil {
		return nil, wrapPGError(err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var (
			role  Role
			perms []byte
		)
		if err := rows.Scan(&role.ID, &role.BusinessID, &role.Name, &role.Description, &perms, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(perms, &role.Permissions); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (s *PGStore) SaveResetToken(ctx context.Context, userID, tokenHash string, expiry time.Time) error {
	_, err := s.q.ExecContext(ctx,
		`update business_user
		 set metadata = metadata || jsonb_build_object('resetToken', $2::text, 'resetTokenExpiry', $3::text),
		     updated_at = now()
		 where id = $1`,
		userID, tokenHash, expiry.UTC().Format(time.RFC3339),
	)
	return wrapPGError(err)
}

func (s *PGStore) ClearResetToken(ctx context.Context, userID string) error {
	_, err := s.q.ExecContext(ctx,
		`update business_user
		 set metadata = metadata - 'resetToken' - 'resetTokenExpiry', updated_at = now()
		 where id = $1`,
		userID,
	)
	return wrapPGError(err)
}

// IncrementTokenVersion performs current+1 inside the update statement so
// concurrent bumps never lose an increment.
func (s *PGStore) IncrementTokenVersion(ctx context.Context, userID string) error {
	_, err := s.q.ExecContext(ctx,
		`update business_user
		 set metadata = jsonb_set(metadata, '{tokenVersion}', to_jsonb(coalesce((metadata->>'tokenVersion')::int, 0) + 1)),
		     updated_at = now()
		 where id = $1`,
		userID,
	)
	return wrapPGError(err)
}

func (s *PGStore) MarkPasswordCreated(ctx context.Context, userID string) error {
	_, err := s.q.ExecContext(ctx,
		`update business_user set is_password_created = true, updated_at = now() where id = $1`,
		userID,
	)
	return wrapPGError(err)
}

func scanUser(row *sql.Row) (*User, error) {
	var (
		u    User
		meta []byte
	)
	err := row.Scan(&u.ID, &u.BusinessID, &u.Email, &u.FirebaseUID, &u.FirstName, &u.LastName,
		&u.Status, &u.EmailVerified, &u.IsPasswordCreated, &meta, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, wrapPGError(err)
	}
	if err := json.Unmarshal(meta, &u.Metadata); err != nil {
		return nil, err
	}
	return &u, nil
}

func scanRole(row *sql.Row) (*Role, error) {
	var (
		role  Role
		perms []byte
	)
	err := row.Scan(&role.ID, &role.BusinessID, &role.Name, &role.Description, &perms, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, wrapPGError(err)
	}
	if err := json.Unmarshal(perms, &role.Permissions); err != nil {
		return nil, err
	}
	return &role, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func wrapPGError(err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrConflict, constraintName(err))
	}
	return err
}

func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return "unique constraint violated"
}

// PGBlacklist implements Blacklist on the token_blacklist table.
type PGBlacklist struct {
	db *sql.DB
}

var _ Blacklist = (*PGBlacklist)(nil)

func NewPGBlacklist(db *sql.DB) *PGBlacklist {
	return &PGBlacklist{db: db}
}

func (b *PGBlacklist) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	_, err := b.db.ExecContext(ctx,
		`insert into token_blacklist(token, expires_at) values($1,$2) on conflict (token) do nothing`,
		token, expiresAt.UTC(),
	)
	return err
}

// IsRevoked is a point lookup; expired rows stop matching on their own and
// are never eagerly purged. Any datastore failure is surfaced as
// ErrServiceUnavailable so the caller rejects the request instead of
// honoring a possibly revoked token.
func (b *PGBlacklist) IsRevoked(ctx context.Context, token string) (bool, error) {
	var revoked bool
	err := b.db.QueryRowContext(ctx,
		`select exists(select 1 from token_blacklist where token=$1 and expires_at > now())`,
		token,
	).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("%w: blacklist lookup: %v", ErrServiceUnavailable, err)
	}
	return revoked, nil
}
