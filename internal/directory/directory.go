// Package directory resolves call-center agent identifiers to identity and
// permission records backed by the account store.
package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/callwatch/callwatch/internal/store"
)

// Identity is a resolved account together with its visibility grants.
type Identity struct {
	ID                 string
	Agent              string
	Username           string
	FullName           string
	Extension          string
	Manager            bool
	EavesdropExtension string
	RegistrationServer string

	viewable map[string]bool
}

// CanView reports whether this identity is permitted to view the given
// extension. An identity always views its own extension.
func (id *Identity) CanView(extension string) bool {
	if extension == "" {
		return false
	}
	if extension == id.Extension {
		return true
	}
	return id.viewable[extension]
}

// AuthorizedToListen reports whether a manager may tap a call between the
// given extension and remote number. Non-managers are never authorized.
func (id *Identity) AuthorizedToListen(extension, phoneNumber string) bool {
	if !id.Manager {
		return false
	}
	return id.CanView(extension) || id.CanView(phoneNumber)
}

// Resolver looks up identities. All methods return (nil, nil) when no
// matching account exists.
type Resolver interface {
	Resolve(ctx context.Context, agent string) (*Identity, error)
	ResolveByUsername(ctx context.Context, username string) (*Identity, error)
	ResolveByName(ctx context.Context, fullName string) (*Identity, error)
}

// Service is the store-backed Resolver.
type Service struct {
	store store.Store
}

// NewService creates a directory service on top of the account store.
func NewService(s store.Store) *Service {
	return &Service{store: s}
}

func (s *Service) Resolve(ctx context.Context, agent string) (*Identity, error) {
	acct, err := s.store.GetAccountByAgent(ctx, agent)
	if err != nil {
		return nil, fmt.Errorf("resolve agent %q: %w", agent, err)
	}
	return s.identity(ctx, acct)
}

func (s *Service) ResolveByUsername(ctx context.Context, username string) (*Identity, error) {
	acct, err := s.store.GetAccountByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("resolve username %q: %w", username, err)
	}
	return s.identity(ctx, acct)
}

func (s *Service) ResolveByName(ctx context.Context, fullName string) (*Identity, error) {
	acct, err := s.store.GetAccountByName(ctx, fullName)
	if err != nil {
		return nil, fmt.Errorf("resolve name %q: %w", fullName, err)
	}
	return s.identity(ctx, acct)
}

func (s *Service) identity(ctx context.Context, acct *store.Account) (*Identity, error) {
	if acct == nil {
		return nil, nil
	}

	id := &Identity{
		ID:                 acct.ID,
		Agent:              acct.Agent,
		Username:           acct.Username,
		FullName:           acct.FullName,
		Extension:          acct.Extension,
		Manager:            acct.Manager,
		EavesdropExtension: acct.EavesdropExtension,
		RegistrationServer: acct.RegistrationServer,
		viewable:           map[string]bool{},
	}

	if acct.Manager {
		grants, err := s.store.ListViewable(ctx, acct.ID)
		if err != nil {
			return nil, fmt.Errorf("load grants for %q: %w", acct.Agent, err)
		}
		for _, ext := range grants {
			id.viewable[ext] = true
		}
	}

	return id, nil
}

// NewIdentity builds an Identity directly from fields; used by tests and by
// callers that already hold the grant set.
func NewIdentity(acct store.Account, viewable []string) *Identity {
	id := &Identity{
		ID:                 acct.ID,
		Agent:              acct.Agent,
		Username:           acct.Username,
		FullName:           acct.FullName,
		Extension:          acct.Extension,
		Manager:            acct.Manager,
		EavesdropExtension: acct.EavesdropExtension,
		RegistrationServer: acct.RegistrationServer,
		viewable:           map[string]bool{},
	}
	for _, ext := range viewable {
		id.viewable[ext] = true
	}
	return id
}

// Call-center agent names follow "<extension>-<Full_Name>", e.g.
// "1000-Jane_Doe". The helpers below derive the pieces without a store
// round-trip, matching how the rest of the protocol treats agent names.

// AgentExtension returns the extension part of a call-center agent name.
func AgentExtension(agent string) string {
	ext, _, _ := strings.Cut(agent, "-")
	return ext
}

// AgentUsername returns the name part of a call-center agent name, with
// underscores preserved (the login username).
func AgentUsername(agent string) string {
	_, name, ok := strings.Cut(agent, "-")
	if !ok {
		return agent
	}
	return name
}

// AgentFullName returns the display name of a call-center agent name, with
// underscores replaced by spaces.
func AgentFullName(agent string) string {
	return strings.ReplaceAll(AgentUsername(agent), "_", " ")
}
