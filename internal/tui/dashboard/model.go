// Package dashboard implements the terminal wallboard: a live view of agent
// status fed by the hub's monitoring WebSocket.
package dashboard

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/callwatch/callwatch/internal/tui"
)

// Panel identifies which dashboard panel is focused.
type Panel int

const (
	PanelAgents Panel = iota
	PanelEvents
)

// Model is the root wallboard model.
type Model struct {
	header headerModel
	agents agentsModel
	events eventsModel
	help   helpModel

	activePanel Panel
	width       int
	height      int
	quitting    bool
}

// NewModel creates a wallboard model.
func NewModel(hubURL, agent string) Model {
	return Model{
		header: newHeader(hubURL, agent),
		agents: newAgents(),
		events: newEvents(),
		help:   newHelp(),
	}
}

// ConnStateMsg signals the WebSocket connected or dropped.
type ConnStateMsg struct {
	Connected bool
}

// AgentListMsg carries the initial roster from an agent_list reply.
type AgentListMsg struct {
	Agents []map[string]any
}

// QueuesMsg carries the queue roster.
type QueuesMsg struct {
	Queues []map[string]any
}

// EventMsg wraps one raw frame from the hub.
type EventMsg struct {
	Frame map[string]any
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.events.SetSize(msg.Width-4, m.eventsHeight())
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, key.NewBinding(key.WithKeys("ctrl+c", "q"))):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, key.NewBinding(key.WithKeys("tab"))):
			if m.activePanel == PanelAgents {
				m.activePanel = PanelEvents
			} else {
				m.activePanel = PanelAgents
			}
			return m, nil
		case key.Matches(msg, key.NewBinding(key.WithKeys("?"))):
			m.help.toggle()
			return m, nil
		}

	case ConnStateMsg:
		m.header.setConnected(msg.Connected)
		return m, nil

	case AgentListMsg:
		m.agents.setRoster(msg.Agents)
		m.header.setAgentCount(len(msg.Agents))
		return m, nil

	case QueuesMsg:
		m.header.setQueueCount(len(msg.Queues))
		return m, nil

	case EventMsg:
		m.agents.applyEvent(msg.Frame)
		m.events.addFrame(msg.Frame)
		return m, nil
	}

	// Delegate to active panel.
	var cmd tea.Cmd
	switch m.activePanel {
	case PanelAgents:
		m.agents, cmd = m.agents.Update(msg)
	case PanelEvents:
		m.events, cmd = m.events.Update(msg)
	}
	return m, cmd
}

func (m Model) View() string {
	if m.help.visible {
		return m.help.View()
	}

	headerView := m.header.View(m.width)

	agentsStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(tui.ColorMuted).
		Width(m.width - 2)
	eventsStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(tui.ColorMuted).
		Width(m.width - 2)

	if m.activePanel == PanelAgents {
		agentsStyle = agentsStyle.BorderForeground(tui.ColorPrimary)
	} else {
		eventsStyle = eventsStyle.BorderForeground(tui.ColorPrimary)
	}

	agentsView := agentsStyle.Render(
		tui.Subtitle.Render(" Agents") + "\n" + m.agents.View(),
	)
	eventsView := eventsStyle.Render(
		tui.Subtitle.Render(" Events") + "\n" + m.events.View(),
	)

	return lipgloss.JoinVertical(lipgloss.Left,
		headerView,
		agentsView,
		eventsView,
		m.help.bar(),
	)
}

// Quitting returns true if the user quit.
func (m Model) Quitting() bool { return m.quitting }

func (m Model) eventsHeight() int {
	// Reserve space for header, agents panel, help bar, borders.
	used := 5 + m.agents.height() + 4
	h := m.height - used
	if h < 5 {
		h = 5
	}
	return h
}
