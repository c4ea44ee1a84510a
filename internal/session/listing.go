package session

import (
	"context"
	"time"

	"github.com/callwatch/callwatch/internal/directory"
	"github.com/callwatch/callwatch/internal/esl"
	"github.com/callwatch/callwatch/pkg/protocol"
)

// sendAgentListing pushes the initial roster to a freshly subscribed
// connection: the switch's agent list narrowed to what the subscriber may
// see, enriched with live channel state and normalized timestamps.
func (d *Dispatcher) sendAgentListing(s *Session, user *directory.Identity) {
	ctx := context.Background()

	agents, err := d.deps.Commander.ListAgents(ctx)
	if err != nil {
		d.logger.Warn("agent listing failed", "agent", s.AgentID(), "error", err)
		return
	}

	if user.Manager {
		visible := agents[:0]
		for _, a := range agents {
			if user.CanView(directory.AgentExtension(a.Name)) {
				visible = append(visible, a)
			}
		}
		agents = visible
		d.logger.Info("manager listing", "agent", user.Agent, "count", len(agents))
	} else {
		var self []esl.Agent
		for _, a := range agents {
			if a.Name == user.Agent {
				self = append(self, a)
			}
		}
		agents = self
		d.logger.Info("not a manager, listing self only", "agent", user.Agent)
	}

	channels := d.channelsByServer(ctx, agents)

	records := make([]map[string]any, 0, len(agents))
	for _, a := range agents {
		records = append(records, d.agentRecord(ctx, a, channels[a.RegistrationServer()]))
	}

	if err := s.send(protocol.Reply{
		"method": protocol.TagAgentList,
		"args":   []any{records},
	}); err != nil {
		d.logger.Debug("reply failed", "session", s.ID(), "error", err)
	}
}

// channelsByServer fetches live channels per registration server named in the
// listing. A server that refuses the connection is logged and skipped; its
// agents show without call state rather than failing the whole listing.
func (d *Dispatcher) channelsByServer(ctx context.Context, agents []esl.Agent) map[string][]esl.Channel {
	channels := make(map[string][]esl.Channel)
	for _, a := range agents {
		server := a.RegistrationServer()
		if server == "" {
			continue
		}
		if _, done := channels[server]; done {
			continue
		}
		chs, err := d.deps.Commander.ListChannels(ctx, server)
		if err != nil {
			d.logger.Error("registration server unreachable", "server", server, "error", err)
			channels[server] = nil
			continue
		}
		channels[server] = chs
	}
	return channels
}

// utime fields the switch reports as epoch seconds; the UI wants RFC 2822.
var utimeFields = []string{
	"last_bridge_start",
	"last_offered_call",
	"last_bridge_end",
	"last_status_change",
}

func (d *Dispatcher) agentRecord(ctx context.Context, a esl.Agent, channels []esl.Channel) map[string]any {
	ext := directory.AgentExtension(a.Name)

	fields := a.Fields()
	fields["extension"] = ext
	fields["username"] = directory.AgentUsername(a.Name)

	onCall, talkingTo := callState(ext, channels)
	fields["on_call"] = onCall
	fields["talking_to"] = talkingTo

	for _, key := range utimeFields {
		if secs, ok := fields[key].(int64); ok {
			fields[key] = formatEpoch(secs)
		}
	}

	fields["last_call_time"] = d.lastCallTime(ctx, a).Format(time.RFC1123Z)
	return fields
}

// callState scans live channels for a leg involving the extension.
func callState(ext string, channels []esl.Channel) (bool, string) {
	if ext == "" {
		return false, ""
	}
	for _, ch := range channels {
		switch ext {
		case ch.CIDNum:
			return true, ch.Dest
		case ch.Dest:
			return true, ch.CIDNum
		}
	}
	return false, ""
}

// lastCallTime is the latest of the stored call record, the switch's last
// bridge end, and today 08:00 local. The 08:00 floor keeps agents who have
// not taken a call today from sorting by stale multi-day-old times.
func (d *Dispatcher) lastCallTime(ctx context.Context, a esl.Agent) time.Time {
	now := d.deps.Now()
	last := time.Date(now.Year(), now.Month(), now.Day(), 8, 0, 0, 0, now.Location())

	if rec, err := d.deps.Store.LastCallRecord(ctx, a.Name); err != nil {
		d.logger.Warn("call record lookup failed", "agent", a.Name, "error", err)
	} else if rec != nil && rec.CreatedAt.After(last) {
		last = rec.CreatedAt
	}

	if a.LastBridgeEnd > 0 {
		if end := time.Unix(a.LastBridgeEnd, 0); end.After(last) {
			last = end
		}
	}

	return last
}

func formatEpoch(secs int64) string {
	if secs <= 0 {
		return ""
	}
	return time.Unix(secs, 0).Format(time.RFC1123Z)
}

// sendQueues replies with the queue roster from the default server.
func (d *Dispatcher) sendQueues(s *Session) {
	queues, err := d.deps.Commander.ListQueues(context.Background())
	if err != nil {
		d.logger.Warn("queue listing failed", "error", err)
		return
	}

	if err := s.send(protocol.Reply{
		"method": protocol.TagQueues,
		"args":   []any{queues},
	}); err != nil {
		d.logger.Debug("reply failed", "session", s.ID(), "error", err)
	}
}
