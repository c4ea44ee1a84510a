package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres creates a new PostgreSQL store and runs migrations.
func NewPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &PostgresStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *PostgresStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			agent TEXT NOT NULL DEFAULT '',
			username TEXT UNIQUE NOT NULL,
			full_name TEXT NOT NULL DEFAULT '',
			extension TEXT NOT NULL DEFAULT '',
			manager BOOLEAN NOT NULL DEFAULT FALSE,
			eavesdrop_extension TEXT NOT NULL DEFAULT '',
			registration_server TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'user',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		// Admin-only accounts carry no agent name; uniqueness applies to real ones.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_agent ON accounts(agent) WHERE agent <> ''`,
		`CREATE TABLE IF NOT EXISTS visibility_grants (
			account_id TEXT NOT NULL REFERENCES accounts(id),
			extension TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (account_id, extension)
		)`,
		`CREATE TABLE IF NOT EXISTS call_records (
			id TEXT PRIMARY KEY,
			agent TEXT NOT NULL,
			caller_number TEXT NOT NULL DEFAULT '',
			callee_number TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_call_records_agent_created ON call_records(agent, created_at)`,
		`CREATE TABLE IF NOT EXISTS status_log (
			id TEXT PRIMARY KEY,
			agent TEXT NOT NULL,
			new_status TEXT NOT NULL DEFAULT '',
			new_state TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_status_log_agent_created ON status_log(agent, created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n  SQL: %s", err, m)
		}
	}
	return nil
}

func (s *PostgresStore) CreateAccount(ctx context.Context, acct *Account) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, agent, username, full_name, extension, manager,
			eavesdrop_extension, registration_server, password_hash, role, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		acct.ID, acct.Agent, acct.Username, acct.FullName, acct.Extension, acct.Manager,
		acct.EavesdropExtension, acct.RegistrationServer, acct.PasswordHash, acct.Role, acct.CreatedAt)
	return err
}

func (s *PostgresStore) getAccount(ctx context.Context, where string, arg any) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE `+where, arg)
	var a Account
	err := row.Scan(&a.ID, &a.Agent, &a.Username, &a.FullName, &a.Extension, &a.Manager,
		&a.EavesdropExtension, &a.RegistrationServer, &a.PasswordHash, &a.Role, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) GetAccountByAgent(ctx context.Context, agent string) (*Account, error) {
	return s.getAccount(ctx, "agent = $1", agent)
}

func (s *PostgresStore) GetAccountByUsername(ctx context.Context, username string) (*Account, error) {
	return s.getAccount(ctx, "username = $1", username)
}

func (s *PostgresStore) GetAccountByName(ctx context.Context, fullName string) (*Account, error) {
	return s.getAccount(ctx, "full_name = $1", fullName)
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY agent`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Agent, &a.Username, &a.FullName, &a.Extension, &a.Manager,
			&a.EavesdropExtension, &a.RegistrationServer, &a.PasswordHash, &a.Role, &a.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *PostgresStore) GrantView(ctx context.Context, accountID, extension string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO visibility_grants (account_id, extension) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`, accountID, extension)
	return err
}

func (s *PostgresStore) RevokeView(ctx context.Context, accountID, extension string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM visibility_grants WHERE account_id = $1 AND extension = $2`,
		accountID, extension)
	return err
}

func (s *PostgresStore) ListViewable(ctx context.Context, accountID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT extension FROM visibility_grants WHERE account_id = $1 ORDER BY extension`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var extensions []string
	for rows.Next() {
		var ext string
		if err := rows.Scan(&ext); err != nil {
			return nil, err
		}
		extensions = append(extensions, ext)
	}
	return extensions, rows.Err()
}

func (s *PostgresStore) AppendCallRecord(ctx context.Context, rec *CallRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO call_records (id, agent, caller_number, callee_number, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.Agent, rec.CallerNumber, rec.CalleeNumber, rec.CreatedAt)
	return err
}

func (s *PostgresStore) LastCallRecord(ctx context.Context, agent string) (*CallRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, agent, caller_number, callee_number, created_at
		 FROM call_records WHERE agent = $1 ORDER BY created_at DESC LIMIT 1`, agent)
	var r CallRecord
	err := row.Scan(&r.ID, &r.Agent, &r.CallerNumber, &r.CalleeNumber, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) AppendStatusLog(ctx context.Context, entry *StatusEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO status_log (id, agent, new_status, new_state, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.Agent, entry.NewStatus, entry.NewState, entry.CreatedAt)
	return err
}

func (s *PostgresStore) StatusLogRange(ctx context.Context, agent string, after, before time.Time) ([]StatusEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent, new_status, new_state, created_at
		 FROM status_log
		 WHERE agent = $1 AND created_at > $2 AND created_at < $3
		 ORDER BY created_at`, agent, after, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []StatusEntry
	for rows.Next() {
		var e StatusEntry
		if err := rows.Scan(&e.ID, &e.Agent, &e.NewStatus, &e.NewState, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
