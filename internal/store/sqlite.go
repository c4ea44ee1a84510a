package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite store and runs migrations.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	// For in-memory databases, use shared cache so all connections in the pool
	// see the same data. Without this, each pooled connection gets a separate
	// empty database.
	if dsn == ":memory:" {
		dsn = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Enable WAL mode for better concurrent read/write.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			agent TEXT NOT NULL DEFAULT '',
			username TEXT UNIQUE NOT NULL,
			full_name TEXT NOT NULL DEFAULT '',
			extension TEXT NOT NULL DEFAULT '',
			manager INTEGER NOT NULL DEFAULT 0,
			eavesdrop_extension TEXT NOT NULL DEFAULT '',
			registration_server TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'user',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		// Admin-only accounts carry no agent name; uniqueness applies to real ones.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_agent ON accounts(agent) WHERE agent != ''`,
		`CREATE TABLE IF NOT EXISTS visibility_grants (
			account_id TEXT NOT NULL REFERENCES accounts(id),
			extension TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (account_id, extension)
		)`,
		`CREATE TABLE IF NOT EXISTS call_records (
			id TEXT PRIMARY KEY,
			agent TEXT NOT NULL,
			caller_number TEXT NOT NULL DEFAULT '',
			callee_number TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_call_records_agent_created ON call_records(agent, created_at)`,
		`CREATE TABLE IF NOT EXISTS status_log (
			id TEXT PRIMARY KEY,
			agent TEXT NOT NULL,
			new_status TEXT NOT NULL DEFAULT '',
			new_state TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
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

func (s *SQLiteStore) CreateAccount(ctx context.Context, acct *Account) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, agent, username, full_name, extension, manager,
			eavesdrop_extension, registration_server, password_hash, role, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		acct.ID, acct.Agent, acct.Username, acct.FullName, acct.Extension, acct.Manager,
		acct.EavesdropExtension, acct.RegistrationServer, acct.PasswordHash, acct.Role, acct.CreatedAt)
	return err
}

const accountColumns = `id, agent, username, full_name, extension, manager,
	eavesdrop_extension, registration_server, password_hash, role, created_at`

func (s *SQLiteStore) getAccount(ctx context.Context, where string, arg any) (*Account, error) {
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

func (s *SQLiteStore) GetAccountByAgent(ctx context.Context, agent string) (*Account, error) {
	return s.getAccount(ctx, "agent = ?", agent)
}

func (s *SQLiteStore) GetAccountByUsername(ctx context.Context, username string) (*Account, error) {
	return s.getAccount(ctx, "username = ?", username)
}

func (s *SQLiteStore) GetAccountByName(ctx context.Context, fullName string) (*Account, error) {
	return s.getAccount(ctx, "full_name = ?", fullName)
}

func (s *SQLiteStore) ListAccounts(ctx context.Context) ([]Account, error) {
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

func (s *SQLiteStore) GrantView(ctx context.Context, accountID, extension string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO visibility_grants (account_id, extension) VALUES (?, ?)`,
		accountID, extension)
	return err
}

func (s *SQLiteStore) RevokeView(ctx context.Context, accountID, extension string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM visibility_grants WHERE account_id = ? AND extension = ?`,
		accountID, extension)
	return err
}

func (s *SQLiteStore) ListViewable(ctx context.Context, accountID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT extension FROM visibility_grants WHERE account_id = ? ORDER BY extension`, accountID)
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

func (s *SQLiteStore) AppendCallRecord(ctx context.Context, rec *CallRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO call_records (id, agent, caller_number, callee_number, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Agent, rec.CallerNumber, rec.CalleeNumber, rec.CreatedAt)
	return err
}

func (s *SQLiteStore) LastCallRecord(ctx context.Context, agent string) (*CallRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, agent, caller_number, callee_number, created_at
		 FROM call_records WHERE agent = ? ORDER BY created_at DESC LIMIT 1`, agent)
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

func (s *SQLiteStore) AppendStatusLog(ctx context.Context, entry *StatusEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO status_log (id, agent, new_status, new_state, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.Agent, entry.NewStatus, entry.NewState, entry.CreatedAt)
	return err
}

// StatusLogRange returns entries with created_at strictly between after and
// before, oldest first.
func (s *SQLiteStore) StatusLogRange(ctx context.Context, agent string, after, before time.Time) ([]StatusEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent, new_status, new_state, created_at
		 FROM status_log
		 WHERE agent = ? AND created_at > ? AND created_at < ?
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

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
