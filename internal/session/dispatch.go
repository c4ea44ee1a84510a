package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/callwatch/callwatch/internal/authz"
	"github.com/callwatch/callwatch/internal/broadcast"
	"github.com/callwatch/callwatch/internal/directory"
	"github.com/callwatch/callwatch/internal/eavesdrop"
	"github.com/callwatch/callwatch/internal/esl"
	"github.com/callwatch/callwatch/internal/store"
	"github.com/callwatch/callwatch/pkg/protocol"
)

// Deps are the collaborators a dispatcher hands to its handlers.
type Deps struct {
	Hub       *broadcast.Hub
	Directory directory.Resolver
	Commander esl.Commander
	Store     store.Store
	Authz     *authz.Engine
	Logger    *slog.Logger

	// Now is the clock; nil means time.Now. Tests pin it.
	Now func() time.Time
}

type handlerFunc func(*Session, *protocol.Command)

// Dispatcher routes inbound frames to handlers by method tag. The handler
// set is fixed at construction; there is no reflection or dynamic lookup,
// so an unknown method can never reach arbitrary code.
type Dispatcher struct {
	deps     Deps
	logger   *slog.Logger
	handlers map[string]handlerFunc
}

// NewDispatcher wires the handler table.
func NewDispatcher(deps Deps) *Dispatcher {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	d := &Dispatcher{
		deps:   deps,
		logger: deps.Logger.With("component", "dispatch"),
	}
	d.handlers = map[string]handlerFunc{
		protocol.MethodSubscribe:          d.handleSubscribe,
		protocol.MethodStatusOf:           d.handleStatusOf,
		protocol.MethodStateOf:            d.handleStateOf,
		protocol.MethodAgentsOf:           d.handleAgentsOf,
		protocol.MethodCallTap:            d.handleCallTap,
		protocol.MethodCallTapToo:         d.handleCallTapToo,
		protocol.MethodAgentStatusHistory: d.handleStatusHistory,
		protocol.MethodAgentStateHistory:  d.handleStateHistory,

		// Accepted but not yet served; the UI sends them speculatively.
		protocol.MethodAgentCallHistory:        d.handleNoop,
		protocol.MethodAgentDispositionHistory: d.handleNoop,
	}
	return d
}

// Dispatch decodes one frame and runs its handler. Malformed JSON and
// unknown methods are logged and dropped; the connection stays open.
func (d *Dispatcher) Dispatch(s *Session, raw []byte) {
	var cmd protocol.Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		d.logger.Error("malformed frame", "session", s.ID(), "error", err)
		return
	}

	h, ok := d.handlers[cmd.Method]
	if !ok {
		d.logger.Warn("unknown method", "session", s.ID(), "method", cmd.Method)
		return
	}
	h(s, &cmd)
}

// handleSubscribe binds the connection to an agent and pushes the initial
// agent listing and queue roster. Re-subscribing rebinds; the hub filter
// reads the new binding on the next event.
func (d *Dispatcher) handleSubscribe(s *Session, cmd *protocol.Command) {
	if cmd.Agent == "" {
		d.logger.Warn("subscribe without agent", "session", s.ID())
		return
	}

	s.bind(cmd.Agent)
	d.logger.Info("agent subscribed", "agent", cmd.Agent, "session", s.ID())

	user := s.Identity()
	if user == nil {
		d.logger.Warn("subscribed agent has no account", "agent", cmd.Agent)
		return
	}

	d.sendAgentListing(s, user)
	d.sendQueues(s)
}

// handleStatusOf translates the UI status code, broadcasts the change, and
// appends it to the status log.
func (d *Dispatcher) handleStatusOf(s *Session, cmd *protocol.Command) {
	mapped, ok := protocol.StatusMapping[cmd.Status]
	if !ok {
		d.logger.Warn("unmapped status", "agent", cmd.Agent, "status", cmd.Status)
		return
	}

	d.deps.Hub.Publish(broadcast.Event{
		"method":   protocol.MethodStatusOf,
		"cc_agent": cmd.Agent,
		"status":   mapped,
	})
	d.appendLog(&store.StatusEntry{Agent: cmd.Agent, NewStatus: mapped})
}

// handleStateOf broadcasts a raw state change and appends it to the log.
func (d *Dispatcher) handleStateOf(s *Session, cmd *protocol.Command) {
	d.deps.Hub.Publish(broadcast.Event{
		"method":   protocol.MethodStateOf,
		"cc_agent": cmd.Agent,
		"state":    cmd.State,
	})
	d.appendLog(&store.StatusEntry{Agent: cmd.Agent, NewState: cmd.State})
}

func (d *Dispatcher) appendLog(entry *store.StatusEntry) {
	entry.ID = uuid.New().String()
	entry.CreatedAt = d.deps.Now()
	if err := d.deps.Store.AppendStatusLog(context.Background(), entry); err != nil {
		d.logger.Warn("status log append failed", "agent", entry.Agent, "error", err)
	}
}

// handleAgentsOf replies with the tier membership of each requested queue,
// filtered down to the agents the subscriber may see.
func (d *Dispatcher) handleAgentsOf(s *Session, cmd *protocol.Command) {
	ctx := context.Background()
	for _, queue := range cmd.QueueNames() {
		tiers, err := d.deps.Commander.ListTiers(ctx, queue)
		if err != nil {
			d.logger.Warn("tier listing failed", "queue", queue, "error", err)
			continue
		}

		visible := make([]map[string]any, 0, len(tiers))
		for _, tier := range tiers {
			if d.deps.Authz.CanView(s, broadcast.Event{"cc_agent": tier.Agent}) {
				visible = append(visible, tier.Fields())
			}
		}

		if err := s.send(protocol.Reply{
			"method": protocol.TagAgentsOf,
			"queue":  queue,
			"agents": visible,
		}); err != nil {
			d.logger.Debug("reply failed", "session", s.ID(), "error", err)
		}
	}
}

// handleCallTap taps whatever the subject agent is currently bridged to,
// looked up through the per-server spy map.
func (d *Dispatcher) handleCallTap(s *Session, cmd *protocol.Command) {
	ctx := context.Background()

	subject, err := d.deps.Directory.ResolveByUsername(ctx, directory.AgentUsername(cmd.Agent))
	if err != nil || subject == nil {
		d.logger.Warn("calltap subject unknown", "agent", cmd.Agent, "error", err)
		return
	}
	tapper, err := d.deps.Directory.ResolveByUsername(ctx, directory.AgentUsername(cmd.Tapper))
	if err != nil || tapper == nil {
		d.logger.Warn("calltap tapper unknown", "tapper", cmd.Tapper, "error", err)
		return
	}
	if !tapper.Manager {
		d.logger.Warn("calltap denied for non-manager", "tapper", cmd.Tapper, "subject", cmd.Agent)
		return
	}

	lookup := fmt.Sprintf("hash select/%s-spymap/%s", subject.RegistrationServer, subject.Extension)
	targetUUID, err := d.deps.Commander.Raw(ctx, subject.RegistrationServer, lookup)
	if err != nil {
		d.logger.Warn("spymap lookup failed", "subject", cmd.Agent, "error", err)
		return
	}
	targetUUID = trimUUID(targetUUID)
	if targetUUID == "" {
		d.logger.Info("no active call to tap", "subject", cmd.Agent)
		return
	}

	d.tap(ctx, s, targetUUID, subject, tapper)
}

// handleCallTapToo taps a specific call leg by UUID after checking the
// manager may listen to that extension or remote number.
func (d *Dispatcher) handleCallTapToo(s *Session, cmd *protocol.Command) {
	ctx := context.Background()

	manager, err := d.deps.Directory.Resolve(ctx, cmd.Tapper)
	if err != nil || manager == nil {
		d.logger.Warn("calltap_too tapper unknown", "tapper", cmd.Tapper, "error", err)
		return
	}
	subject, err := d.deps.Directory.ResolveByName(ctx, cmd.Name)
	if err != nil || subject == nil {
		d.logger.Warn("calltap_too subject unknown", "name", cmd.Name, "error", err)
		return
	}
	if !manager.AuthorizedToListen(cmd.Extension, cmd.PhoneNumber) {
		d.logger.Warn("calltap_too denied",
			"tapper", cmd.Tapper, "extension", cmd.Extension, "number", cmd.PhoneNumber)
		return
	}

	d.tap(ctx, s, cmd.UUID, subject, manager)
}

func (d *Dispatcher) tap(ctx context.Context, s *Session, targetUUID string, subject, tapper *directory.Identity) {
	org, err := eavesdrop.Resolve(targetUUID, subject, tapper)
	if err != nil {
		d.logger.Warn("tap resolution failed", "subject", subject.Agent, "error", err)
		return
	}

	d.logger.Info("originating tap",
		"tapper", tapper.Agent, "subject", subject.Agent,
		"server", org.Server, "target", org.Target, "uuid", targetUUID)

	if _, err := d.deps.Commander.Originate(ctx, org.Server, org.Target, org.Endpoint); err != nil {
		d.logger.Warn("tap originate failed", "server", org.Server, "target", org.Target, "error", err)
	}
}

func (d *Dispatcher) handleStatusHistory(s *Session, cmd *protocol.Command) {
	d.sendHistory(s, cmd.Agent, protocol.MethodAgentStatusHistory, func(e store.StatusEntry) string {
		return e.NewStatus
	})
}

func (d *Dispatcher) handleStateHistory(s *Session, cmd *protocol.Command) {
	d.sendHistory(s, cmd.Agent, protocol.MethodAgentStateHistory, func(e store.StatusEntry) string {
		return e.NewState
	})
}

// sendHistory replies with yesterday-through-today log entries for one agent,
// projected through value. The window is exclusive on both ends: strictly
// after yesterday 00:00 and strictly before tomorrow 00:00, local time.
func (d *Dispatcher) sendHistory(s *Session, agent, action string, value func(store.StatusEntry) string) {
	now := d.deps.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	after := dayStart.AddDate(0, 0, -1)
	before := dayStart.AddDate(0, 0, 1)

	entries, err := d.deps.Store.StatusLogRange(context.Background(), agent, after, before)
	if err != nil {
		d.logger.Warn("history query failed", "agent", agent, "error", err)
		return
	}

	history := make([][]any, 0, len(entries))
	for _, e := range entries {
		history = append(history, []any{value(e), e.CreatedAt})
	}

	if err := s.send(protocol.Reply{
		"tiny_action": action,
		"cc_agent":    agent,
		"history":     history,
	}); err != nil {
		d.logger.Debug("reply failed", "session", s.ID(), "error", err)
	}
}

func (d *Dispatcher) handleNoop(s *Session, cmd *protocol.Command) {
	d.logger.Debug("method accepted but unimplemented", "method", cmd.Method, "agent", cmd.Agent)
}

// trimUUID normalizes a spymap lookup result. The switch answers "-ERR ..."
// when the key is absent; treat that as no active call.
func trimUUID(body string) string {
	body = strings.TrimSpace(body)
	if body == "" || strings.HasPrefix(body, "-ERR") {
		return ""
	}
	return body
}
