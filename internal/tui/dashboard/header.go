package dashboard

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/callwatch/callwatch/internal/tui"
)

type headerModel struct {
	hubURL     string
	agent      string
	connected  bool
	agentCount int
	queueCount int
}

func newHeader(hubURL, agent string) headerModel {
	return headerModel{hubURL: hubURL, agent: agent}
}

func (h *headerModel) setConnected(connected bool) { h.connected = connected }
func (h *headerModel) setAgentCount(n int)         { h.agentCount = n }
func (h *headerModel) setQueueCount(n int)         { h.queueCount = n }

func (h headerModel) View(width int) string {
	left := tui.Title.Render("callwatch")

	label := tui.Dimmed.Render("disconnected")
	if h.connected {
		label = lipgloss.NewStyle().Foreground(tui.ColorSuccess).Render("connected")
	}
	right := fmt.Sprintf("%s  %s %s", h.hubURL, tui.StatusDot(h.connected), label)

	info := fmt.Sprintf("  Viewer: %s   Agents: %d   Queues: %d", h.agent, h.agentCount, h.queueCount)

	headerStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(tui.ColorPrimary).
		Width(width - 2).
		Padding(0, 1)

	firstRow := lipgloss.JoinHorizontal(lipgloss.Top,
		left,
		lipgloss.NewStyle().Width(width-lipgloss.Width(left)-lipgloss.Width(right)-6).Render(""),
		right,
	)

	return headerStyle.Render(firstRow + "\n" + tui.Description.Render(info))
}
