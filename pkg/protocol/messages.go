// Package protocol defines the wire protocol exchanged between the callwatch
// hub and monitoring clients over WebSocket.
//
// All messages are JSON-encoded. Inbound frames carry a "method" field that
// selects the handler; outbound frames are tagged with the responding method
// (or "tiny_action" for history replies, kept for UI compatibility).
package protocol

// Command is an inbound client frame. Only Method is always present; the
// remaining fields are method-specific.
type Command struct {
	Method      string   `json:"method"`
	Agent       string   `json:"agent,omitempty"`
	Status      string   `json:"status,omitempty"`
	State       string   `json:"state,omitempty"`
	Queue       string   `json:"queue,omitempty"`
	Queues      []string `json:"queues,omitempty"`
	Extension   string   `json:"extension,omitempty"`
	Name        string   `json:"name,omitempty"`
	Tapper      string   `json:"tapper,omitempty"`
	UUID        string   `json:"uuid,omitempty"`
	PhoneNumber string   `json:"phoneNumber,omitempty"`
}

// QueueNames merges the singular and plural queue fields, dropping blanks.
func (c *Command) QueueNames() []string {
	names := make([]string, 0, len(c.Queues)+1)
	if c.Queue != "" {
		names = append(names, c.Queue)
	}
	for _, q := range c.Queues {
		if q != "" {
			names = append(names, q)
		}
	}
	return names
}

// Reply is an outbound frame, delivered only to the originating connection.
// Replies are loose maps: the browser UI consumes heterogeneous payloads and
// several replies merge switch-provided fields with computed ones.
type Reply map[string]any

// Method tags recognized by the dispatcher.
const (
	MethodSubscribe               = "subscribe"
	MethodStatusOf                = "status_of"
	MethodStateOf                 = "state_of"
	MethodAgentsOf                = "agents_of"
	MethodCallTap                 = "calltap"
	MethodCallTapToo              = "calltap_too"
	MethodAgentStatusHistory      = "agent_status_history"
	MethodAgentStateHistory       = "agent_state_history"
	MethodAgentCallHistory        = "agent_call_history"
	MethodAgentDispositionHistory = "agent_disposition_history"
)

// Reply tags.
const (
	TagAgentList = "agent_list"
	TagQueues    = "queues"
	TagAgentsOf  = "agents_of"
)

// StatusMapping translates the short status codes sent by the UI into the
// canonical callcenter status strings understood by the switch.
var StatusMapping = map[string]string{
	"available":           "Available",
	"available_on_demand": "Available (On Demand)",
	"on_break":            "On Break",
	"logged_out":          "Logged Out",
}
