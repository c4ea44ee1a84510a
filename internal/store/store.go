// Package store defines the persistence interface for the account directory
// and the call/status history logs, with SQLite and PostgreSQL implementations.
package store

import (
	"context"
	"time"
)

// Store is the persistence interface for callwatch.
type Store interface {
	// Accounts (directory)
	CreateAccount(ctx context.Context, acct *Account) error
	GetAccountByAgent(ctx context.Context, agent string) (*Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*Account, error)
	GetAccountByName(ctx context.Context, fullName string) (*Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)

	// Visibility grants (manager -> viewable extension)
	GrantView(ctx context.Context, accountID, extension string) error
	RevokeView(ctx context.Context, accountID, extension string) error
	ListViewable(ctx context.Context, accountID string) ([]string, error)

	// Call records
	AppendCallRecord(ctx context.Context, rec *CallRecord) error
	LastCallRecord(ctx context.Context, agent string) (*CallRecord, error)

	// Status log (append-only time series; status and state share the table)
	AppendStatusLog(ctx context.Context, entry *StatusEntry) error
	StatusLogRange(ctx context.Context, agent string, after, before time.Time) ([]StatusEntry, error)

	// Health
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// Account is a directory record for an agent or manager.
type Account struct {
	ID                 string    `json:"id"`
	Agent              string    `json:"agent"` // call-center agent name, e.g. "1000-Jane_Doe"
	Username           string    `json:"username"`
	FullName           string    `json:"full_name"`
	Extension          string    `json:"extension"`
	Manager            bool      `json:"manager"`
	EavesdropExtension string    `json:"eavesdrop_extension,omitempty"`
	RegistrationServer string    `json:"registration_server,omitempty"`
	PasswordHash       string    `json:"-"`
	Role               string    `json:"role"` // "admin" or "user"
	CreatedAt          time.Time `json:"created_at"`
}

// CallRecord is one completed call attributed to an agent.
type CallRecord struct {
	ID           string    `json:"id"`
	Agent        string    `json:"agent"`
	CallerNumber string    `json:"caller_number"`
	CalleeNumber string    `json:"callee_number"`
	CreatedAt    time.Time `json:"created_at"`
}

// StatusEntry is one row of the status/state log.
type StatusEntry struct {
	ID        string    `json:"id"`
	Agent     string    `json:"agent"`
	NewStatus string    `json:"new_status,omitempty"`
	NewState  string    `json:"new_state,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
