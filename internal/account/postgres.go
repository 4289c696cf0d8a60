package account

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PGStore implements Store using PostgreSQL. The on-conflict grant upsert is
// what makes concurrent authentications of the same login safe; this store is
// the sole serialization point.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

// Open connects to Postgres with pool settings tuned for the login path.
func Open(dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &PGStore{db: db}, nil
}

// NewPGStore wraps an existing connection, mainly for tests.
func NewPGStore(db *sql.DB) *PGStore { return &PGStore{db: db} }

func (s *PGStore) Close() error { return s.db.Close() }

func (s *PGStore) DB() *sql.DB { return s.db }

func (s *PGStore) GetByLogin(ctx context.Context, login string) (*Account, error) {
	return s.get(ctx, `select login, secret, email, alias, token, created_at, superuser from accounts where login=$1`, login)
}

func (s *PGStore) GetByToken(ctx context.Context, token string) (*Account, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return s.get(ctx, `select login, secret, email, alias, token, created_at, superuser from accounts where token=$1`, token)
}

func (s *PGStore) get(ctx context.Context, query, key string) (*Account, error) {
	row := s.db.QueryRowContext(ctx, query, key)
	var a Account
	if err := row.Scan(&a.Login, &a.CredentialSecret, &a.Email, &a.Alias, &a.SessionToken, &a.CreatedAt, &a.SuperUser); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	grants, err := s.grants(ctx, a.Login)
	if err != nil {
		return nil, err
	}
	a.Grants = grants
	return &a, nil
}

func (s *PGStore) grants(ctx context.Context, login string) ([]AccessGrant, error) {
	rows, err := s.db.QueryContext(ctx,
		`select login, resource_id, role, created_at from access where login=$1 order by resource_id`, login)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	defer rows.Close()

	var grants []AccessGrant
	for rows.Next() {
		var g AccessGrant
		if err := rows.Scan(&g.Login, &g.ResourceID, &g.Role, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return grants, nil
}

func (s *PGStore) Create(ctx context.Context, a *Account) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into accounts(login, secret, email, alias, token, created_at, superuser)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		a.Login, a.CredentialSecret, a.Email, a.Alias, a.SessionToken, a.CreatedAt, a.SuperUser,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	return nil
}

func (s *PGStore) SetSuperUser(ctx context.Context, login string, super bool) error {
	res, err := s.db.ExecContext(ctx,
		`update accounts set superuser=$2 where login=$1`, login, super)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) GrantAccess(ctx context.Context, login string, role Role, resourceIDs []string) error {
	for _, id := range resourceIDs {
		_, err := s.db.ExecContext(ctx,
			`insert into access(login, resource_id, role) values($1,$2,$3) on conflict do nothing`,
			login, id, role,
		)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStore, err)
		}
	}
	return nil
}

func (s *PGStore) ListAccessForResource(ctx context.Context, resourceID string) (map[string]Role, error) {
	rows, err := s.db.QueryContext(ctx,
		`select login, role from access where resource_id=$1`, resourceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	defer rows.Close()

	out := make(map[string]Role)
	for rows.Next() {
		var login string
		var role Role
		if err := rows.Scan(&login, &role); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		out[login] = role
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return out, nil
}
