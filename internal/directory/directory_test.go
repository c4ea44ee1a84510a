package directory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/callwatch/callwatch/internal/store"
)

func TestAgentNameHelpers(t *testing.T) {
	cases := []struct {
		agent    string
		ext      string
		username string
		fullName string
	}{
		{"1000-Jane_Doe", "1000", "Jane_Doe", "Jane Doe"},
		{"2000-Bob", "2000", "Bob", "Bob"},
		{"NoExtension", "NoExtension", "NoExtension", "NoExtension"},
		{"", "", "", ""},
	}

	for _, c := range cases {
		if got := AgentExtension(c.agent); got != c.ext {
			t.Errorf("AgentExtension(%q) = %q, want %q", c.agent, got, c.ext)
		}
		if got := AgentUsername(c.agent); got != c.username {
			t.Errorf("AgentUsername(%q) = %q, want %q", c.agent, got, c.username)
		}
		if got := AgentFullName(c.agent); got != c.fullName {
			t.Errorf("AgentFullName(%q) = %q, want %q", c.agent, got, c.fullName)
		}
	}
}

func TestIdentity_CanView(t *testing.T) {
	id := NewIdentity(store.Account{
		Agent:     "1000-Dir_View",
		Extension: "1000",
		Manager:   true,
	}, []string{"2000", "2001"})

	if !id.CanView("1000") {
		t.Error("own extension must always be viewable")
	}
	if !id.CanView("2000") || !id.CanView("2001") {
		t.Error("granted extensions must be viewable")
	}
	if id.CanView("3000") {
		t.Error("ungranted extension must not be viewable")
	}
	if id.CanView("") {
		t.Error("empty extension must never be viewable")
	}
}

func TestIdentity_AuthorizedToListen(t *testing.T) {
	manager := NewIdentity(store.Account{
		Agent:     "1100-Dir_Mgr",
		Extension: "1100",
		Manager:   true,
	}, []string{"2100"})

	if !manager.AuthorizedToListen("2100", "5550000") {
		t.Error("granted extension should authorize")
	}
	if !manager.AuthorizedToListen("9999", "2100") {
		t.Error("granted remote number should authorize")
	}
	if manager.AuthorizedToListen("9999", "5550000") {
		t.Error("no grant on either leg should deny")
	}

	agent := NewIdentity(store.Account{
		Agent:     "1200-Dir_Agent",
		Extension: "1200",
	}, []string{"2100"})
	if agent.AuthorizedToListen("2100", "5550000") {
		t.Error("non-managers are never authorized")
	}
}

func setupService(t *testing.T) (*Service, store.Store) {
	t.Helper()
	s, err := store.NewSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return NewService(s), s
}

func seedAccount(t *testing.T, s store.Store, acct store.Account) *store.Account {
	t.Helper()
	acct.ID = uuid.New().String()
	acct.CreatedAt = time.Now()
	if acct.Role == "" {
		acct.Role = "user"
	}
	if err := s.CreateAccount(context.Background(), &acct); err != nil {
		t.Fatal(err)
	}
	return &acct
}

func TestService_ResolveLoadsManagerGrants(t *testing.T) {
	svc, s := setupService(t)
	ctx := context.Background()

	acct := seedAccount(t, s, store.Account{
		Agent: "3100-Dir_Res", Username: "Dir_Res", FullName: "Dir Res",
		Extension: "3100", Manager: true,
		EavesdropExtension: "89003100", RegistrationServer: "sw1.test",
	})
	if err := s.GrantView(ctx, acct.ID, "3200"); err != nil {
		t.Fatal(err)
	}

	id, err := svc.Resolve(ctx, "3100-Dir_Res")
	if err != nil {
		t.Fatal(err)
	}
	if id == nil {
		t.Fatal("known agent resolved to nil")
	}
	if id.Extension != "3100" || id.EavesdropExtension != "89003100" || id.RegistrationServer != "sw1.test" {
		t.Errorf("identity fields: %+v", id)
	}
	if !id.CanView("3200") {
		t.Error("manager grant not loaded")
	}

	byUsername, err := svc.ResolveByUsername(ctx, "Dir_Res")
	if err != nil {
		t.Fatal(err)
	}
	if byUsername == nil || byUsername.ID != acct.ID {
		t.Errorf("ResolveByUsername = %+v", byUsername)
	}

	byName, err := svc.ResolveByName(ctx, "Dir Res")
	if err != nil {
		t.Fatal(err)
	}
	if byName == nil || byName.ID != acct.ID {
		t.Errorf("ResolveByName = %+v", byName)
	}
}

func TestService_NonManagerSkipsGrants(t *testing.T) {
	svc, s := setupService(t)
	ctx := context.Background()

	acct := seedAccount(t, s, store.Account{
		Agent: "3300-Dir_NonMgr", Username: "Dir_NonMgr", FullName: "Dir NonMgr",
		Extension: "3300",
	})
	// A grant row for a non-manager is inert.
	if err := s.GrantView(ctx, acct.ID, "3400"); err != nil {
		t.Fatal(err)
	}

	id, err := svc.Resolve(ctx, "3300-Dir_NonMgr")
	if err != nil {
		t.Fatal(err)
	}
	if id.CanView("3400") {
		t.Error("non-manager should not pick up grants")
	}
	if !id.CanView("3300") {
		t.Error("own extension still viewable")
	}
}

func TestService_UnknownIsNilNil(t *testing.T) {
	svc, _ := setupService(t)

	id, err := svc.Resolve(context.Background(), "0000-Dir_Nobody")
	if err != nil {
		t.Fatal(err)
	}
	if id != nil {
		t.Errorf("unknown agent resolved to %+v", id)
	}
}
