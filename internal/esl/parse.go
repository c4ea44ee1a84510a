package esl

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Agent is one callcenter agent row from "callcenter_config agent list".
type Agent struct {
	Name             string
	Type             string
	Contact          string
	Status           string
	State            string
	LastBridgeStart  int64
	LastBridgeEnd    int64
	LastOfferedCall  int64
	LastStatusChange int64
	NoAnswerCount    int
	CallsAnswered    int
	TalkTime         int64
	ReadyTime        int64
}

// RegistrationServer extracts the server part of the agent's contact
// (e.g. "user/1000@sw1.example.com" -> "sw1.example.com").
func (a Agent) RegistrationServer() string {
	_, server, _ := strings.Cut(a.Contact, "@")
	return server
}

// Fields renders the switch-provided columns as a reply payload fragment.
func (a Agent) Fields() map[string]any {
	return map[string]any{
		"name":               a.Name,
		"type":               a.Type,
		"contact":            a.Contact,
		"status":             a.Status,
		"state":              a.State,
		"last_bridge_start":  a.LastBridgeStart,
		"last_bridge_end":    a.LastBridgeEnd,
		"last_offered_call":  a.LastOfferedCall,
		"last_status_change": a.LastStatusChange,
		"no_answer_count":    a.NoAnswerCount,
		"calls_answered":     a.CallsAnswered,
		"talk_time":          a.TalkTime,
		"ready_time":         a.ReadyTime,
	}
}

// Queue is one row from "callcenter_config queue list".
type Queue struct {
	Name     string `json:"name"`
	Strategy string `json:"strategy"`
}

// Tier links an agent to a queue with a level and position.
type Tier struct {
	Queue    string `json:"queue"`
	Agent    string `json:"agent"`
	Level    int    `json:"level"`
	Position int    `json:"position"`
	State    string `json:"state"`
}

// Fields renders the tier as a reply payload fragment.
func (t Tier) Fields() map[string]any {
	return map[string]any{
		"queue":    t.Queue,
		"agent":    t.Agent,
		"level":    t.Level,
		"position": t.Position,
		"state":    t.State,
	}
}

// Channel is one row of "show channels as json".
type Channel struct {
	UUID      string `json:"uuid"`
	Direction string `json:"direction"`
	Created   string `json:"created"`
	CIDNum    string `json:"cid_num"`
	Dest      string `json:"dest"`
	Callstate string `json:"callstate"`
	State     string `json:"state"`
}

// parseTable decodes the pipe-delimited tables emitted by callcenter_config:
// a header row naming columns, data rows, and a terminating "+OK" line.
func parseTable(body string) []map[string]string {
	lines := strings.Split(strings.TrimSpace(body), "\n")
	if len(lines) == 0 {
		return nil
	}

	header := strings.Split(strings.TrimSpace(lines[0]), "|")
	var rows []map[string]string
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "+OK") || strings.HasPrefix(line, "-ERR") {
			continue
		}
		cells := strings.Split(line, "|")
		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(cells) {
				row[strings.TrimSpace(name)] = strings.TrimSpace(cells[i])
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func parseAgents(body string) []Agent {
	var agents []Agent
	for _, row := range parseTable(body) {
		agents = append(agents, Agent{
			Name:             row["name"],
			Type:             row["type"],
			Contact:          row["contact"],
			Status:           row["status"],
			State:            row["state"],
			LastBridgeStart:  atoi64(row["last_bridge_start"]),
			LastBridgeEnd:    atoi64(row["last_bridge_end"]),
			LastOfferedCall:  atoi64(row["last_offered_call"]),
			LastStatusChange: atoi64(row["last_status_change"]),
			NoAnswerCount:    int(atoi64(row["no_answer_count"])),
			CallsAnswered:    int(atoi64(row["calls_answered"])),
			TalkTime:         atoi64(row["talk_time"]),
			ReadyTime:        atoi64(row["ready_time"]),
		})
	}
	return agents
}

func parseQueues(body string) []Queue {
	var queues []Queue
	for _, row := range parseTable(body) {
		queues = append(queues, Queue{
			Name:     row["name"],
			Strategy: row["strategy"],
		})
	}
	return queues
}

func parseTiers(body string) []Tier {
	var tiers []Tier
	for _, row := range parseTable(body) {
		tiers = append(tiers, Tier{
			Queue:    row["queue"],
			Agent:    row["agent"],
			Level:    int(atoi64(row["level"])),
			Position: int(atoi64(row["position"])),
			State:    row["state"],
		})
	}
	return tiers
}

func parseChannels(body string) ([]Channel, error) {
	var result struct {
		RowCount int       `json:"row_count"`
		Rows     []Channel `json:"rows"`
	}
	body = strings.TrimSpace(body)
	if body == "" || body == "0 total." {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		return nil, fmt.Errorf("parse channels: %w", err)
	}
	return result.Rows, nil
}

func atoi64(s string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n
}
