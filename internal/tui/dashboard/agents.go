package dashboard

import (
	"fmt"
	"sort"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/callwatch/callwatch/internal/tui"
)

type agentRow struct {
	Name      string
	Extension string
	Status    string
	State     string
	OnCall    bool
	TalkingTo string
}

type agentsModel struct {
	rows   []agentRow
	index  map[string]int // agent name -> rows position
	cursor int
}

func newAgents() agentsModel {
	return agentsModel{index: make(map[string]int)}
}

func (a *agentsModel) setRoster(records []map[string]any) {
	a.rows = a.rows[:0]
	a.index = make(map[string]int, len(records))

	for _, rec := range records {
		row := agentRow{
			Name:      str(rec["name"]),
			Extension: str(rec["extension"]),
			Status:    str(rec["status"]),
			State:     str(rec["state"]),
			TalkingTo: str(rec["talking_to"]),
		}
		row.OnCall, _ = rec["on_call"].(bool)
		a.rows = append(a.rows, row)
	}

	sort.Slice(a.rows, func(i, j int) bool { return a.rows[i].Name < a.rows[j].Name })
	for i, row := range a.rows {
		a.index[row.Name] = i
	}
	if a.cursor >= len(a.rows) {
		a.cursor = max(0, len(a.rows)-1)
	}
}

// applyEvent folds a status_of/state_of broadcast into the roster.
func (a *agentsModel) applyEvent(frame map[string]any) {
	agent := str(frame["cc_agent"])
	if agent == "" {
		return
	}
	i, ok := a.index[agent]
	if !ok {
		return
	}
	if status := str(frame["status"]); status != "" {
		a.rows[i].Status = status
	}
	if state := str(frame["state"]); state != "" {
		a.rows[i].State = state
	}
}

func (a agentsModel) Update(msg tea.Msg) (agentsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "j", "down":
			if a.cursor < len(a.rows)-1 {
				a.cursor++
			}
		case "k", "up":
			if a.cursor > 0 {
				a.cursor--
			}
		case "G":
			a.cursor = max(0, len(a.rows)-1)
		case "g":
			a.cursor = 0
		}
	}
	return a, nil
}

func (a agentsModel) View() string {
	if len(a.rows) == 0 {
		return tui.Dimmed.Render("  No visible agents")
	}

	headerStyle := lipgloss.NewStyle().Foreground(tui.ColorSubtle).Bold(true)
	out := headerStyle.Render(fmt.Sprintf("  %-24s %-8s %-22s %-18s %s",
		"AGENT", "EXT", "STATUS", "STATE", "TALKING TO")) + "\n"

	for i, row := range a.rows {
		marker := "  "
		nameStyle := lipgloss.NewStyle().Foreground(tui.ColorText)
		if i == a.cursor {
			marker = lipgloss.NewStyle().Foreground(tui.ColorPrimary).Render("> ")
			nameStyle = nameStyle.Bold(true)
		}

		talking := ""
		if row.OnCall {
			talking = row.TalkingTo
		}

		out += fmt.Sprintf("%s%s %s %s %s %s\n",
			marker,
			nameStyle.Render(fmt.Sprintf("%-24s", row.Name)),
			tui.Dimmed.Render(fmt.Sprintf("%-8s", row.Extension)),
			tui.StatusStyle(row.Status).Render(fmt.Sprintf("%-22s", row.Status)),
			tui.StateStyle(row.State).Render(fmt.Sprintf("%-18s", row.State)),
			tui.Description.Render(talking),
		)
	}
	return out
}

func (a agentsModel) height() int {
	return len(a.rows) + 1
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
