// Package authz decides per-subscriber visibility over broadcast events and
// agent records.
package authz

import (
	"log/slog"
	"strings"

	"github.com/callwatch/callwatch/internal/broadcast"
	"github.com/callwatch/callwatch/internal/directory"
)

// Subscriber is the view of a connection the engine evaluates. Identity must
// resolve lazily from the currently bound agent so that re-subscribing takes
// effect on the next event.
type Subscriber interface {
	AgentID() string
	Identity() *directory.Identity
}

// Engine is the visibility predicate. It holds no per-subscriber state;
// every call re-evaluates against the subscriber's live binding.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{logger: logger.With("component", "authz")}
}

// CanView reports whether the subscriber may see the candidate, which is
// either a broadcast event or an agent record rendered as an event payload.
//
// When the candidate names no explicit target and mentions at most one
// phone number, access is granted. That fail-open default for
// low-specificity events is inherited behavior the UI depends on; tightening
// it needs sign-off from whoever owns the wallboard. Do not change silently.
func (e *Engine) CanView(sub Subscriber, candidate broadcast.Event) bool {
	agent := sub.AgentID()
	if agent == "" {
		return false
	}

	user := sub.Identity()
	if user == nil || user.Extension == "" {
		return false
	}

	if cc := candidate.Agent(); cc != "" {
		if cc == agent {
			return true
		}
		extension := directory.AgentExtension(cc)
		return user.Extension == extension || user.CanView(extension)
	}

	numbers := PossibleNumbers(candidate)
	if len(numbers) <= 1 {
		e.logger.Warn("granting access to low-specificity event", "agent", agent, "method", candidate.Method())
		return true
	}

	for _, number := range numbers {
		if len(number) == 4 && user.CanView(number) {
			return true
		}
	}

	e.logger.Debug("denied access", "agent", agent, "numbers", numbers)
	return false
}

// PossibleNumbers collects the distinct phone numbers mentioned anywhere in
// the candidate's payload: any all-digit string value of plausible length.
func PossibleNumbers(candidate broadcast.Event) []string {
	seen := make(map[string]bool)
	var numbers []string
	for _, v := range candidate {
		s, ok := v.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if !isDigits(s) || len(s) < 2 || len(s) > 15 {
			continue
		}
		if !seen[s] {
			seen[s] = true
			numbers = append(numbers, s)
		}
	}
	return numbers
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
