package dashboard

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"github.com/callwatch/callwatch/pkg/protocol"
)

const redialDelay = 3 * time.Second

// Run connects to the hub's monitoring WebSocket, subscribes as the given
// agent, and displays the wallboard until the user quits. The feed redials
// on disconnect; the header shows the connection state.
func Run(wsURL, agent string) error {
	m := NewModel(wsURL, agent)
	p := tea.NewProgram(m, tea.WithAltScreen())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go feed(ctx, p, wsURL, agent)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

func feed(ctx context.Context, p *tea.Program, wsURL, agent string) {
	for {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			p.Send(ConnStateMsg{Connected: false})
			if !sleepOrDone(ctx, redialDelay) {
				return
			}
			continue
		}

		p.Send(ConnStateMsg{Connected: true})
		_ = conn.WriteJSON(protocol.Command{Method: protocol.MethodSubscribe, Agent: agent})

		for {
			var frame map[string]any
			if err := conn.ReadJSON(&frame); err != nil {
				break
			}
			p.Send(classify(frame))
		}

		_ = conn.Close()
		p.Send(ConnStateMsg{Connected: false})
		if !sleepOrDone(ctx, redialDelay) {
			return
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// classify turns a raw frame into the message the model expects.
func classify(frame map[string]any) tea.Msg {
	switch str(frame["method"]) {
	case protocol.TagAgentList:
		return AgentListMsg{Agents: argRecords(frame)}
	case protocol.TagQueues:
		return QueuesMsg{Queues: argRecords(frame)}
	default:
		return EventMsg{Frame: frame}
	}
}

// argRecords unwraps the reply convention of a single args entry holding a
// list of records.
func argRecords(frame map[string]any) []map[string]any {
	args, _ := frame["args"].([]any)
	if len(args) == 0 {
		return nil
	}
	items, _ := args[0].([]any)
	records := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if rec, ok := item.(map[string]any); ok {
			records = append(records, rec)
		}
	}
	return records
}
