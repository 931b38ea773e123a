package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"slate-core/internal/domain"
	"slate-core/internal/kernel"
)

const (
	refreshInterval = 2 * time.Second
	maxEventEntries = 200
)

// Ensure *Model satisfies tea.Model.
var _ tea.Model = (*Model)(nil)

type tickMsg time.Time

// lifecycleMsg carries a bus event into the Bubble Tea loop.
type lifecycleMsg struct {
	Event domain.LifecycleEvent
}

// Model is the root Bubble Tea model for the live status view: an agent
// table on top, a lifecycle event stream below.
type Model struct {
	reg *kernel.Registry

	summary domain.Summary
	events  []domain.LifecycleEvent

	stream viewport.Model
	ready  bool
	width  int
	height int

	programSend func(tea.Msg)
	unsubscribe func()
}

// New creates the status view over a registry.
func New(reg *kernel.Registry) *Model {
	return &Model{reg: reg, summary: reg.Status()}
}

// Run drives the view until the user quits.
func Run(reg *kernel.Registry) error {
	m := New(reg)
	p := tea.NewProgram(m, tea.WithAltScreen())
	m.programSend = p.Send
	_, err := p.Run()
	return err
}

// Init subscribes to the lifecycle bus and starts the refresh ticker.
func (m *Model) Init() tea.Cmd {
	if m.programSend != nil {
		m.unsubscribe = m.reg.OnLifecycle(func(ev domain.LifecycleEvent) {
			m.programSend(lifecycleMsg{Event: ev})
		})
	}
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.unsubscribe != nil {
				m.unsubscribe()
			}
			return m, tea.Quit
		case "r":
			m.summary = m.reg.Status()
			return m, nil
		}

	case tickMsg:
		m.summary = m.reg.Status()
		return m, tick()

	case lifecycleMsg:
		m.events = append(m.events, msg.Event)
		if len(m.events) > maxEventEntries {
			m.events = m.events[len(m.events)-maxEventEntries:]
		}
		m.summary = m.reg.Status()
		m.refreshStream()
		return m, nil
	}

	if m.ready {
		var cmd tea.Cmd
		m.stream, cmd = m.stream.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) layout() {
	tableHeight := len(m.summary.Agents) + 4
	streamHeight := m.height - tableHeight - 6
	if streamHeight < 3 {
		streamHeight = 3
	}
	if !m.ready {
		m.stream = viewport.New(m.width-4, streamHeight)
		m.stream.MouseWheelEnabled = true
		m.ready = true
	} else {
		m.stream.Width = m.width - 4
		m.stream.Height = streamHeight
	}
	m.refreshStream()
}

// View renders the full screen.
func (m *Model) View() string {
	if m.width == 0 {
		return "loading..."
	}

	var b strings.Builder
	b.WriteString(styleTitle.Render("slate top"))
	b.WriteString(styleMuted.Render(fmt.Sprintf("  %d agents  ", m.summary.TotalAgents)))
	b.WriteString(m.stateCounts())
	b.WriteString("\n\n")
	b.WriteString(stylePane.Width(m.width - 2).Render(m.agentTable()))
	b.WriteString("\n")
	if m.ready {
		b.WriteString(stylePane.Width(m.width - 2).Render(m.stream.View()))
	}
	b.WriteString("\n")
	b.WriteString(styleDim.Render("  q quit  r refresh  ↑/↓ scroll events"))
	return b.String()
}

func (m *Model) stateCounts() string {
	parts := make([]string, 0, 4)
	for _, st := range []domain.AgentState{
		domain.StateActive, domain.StateDegraded, domain.StateError, domain.StateUnloaded,
	} {
		if n := m.summary.AgentsByState[st]; n > 0 {
			parts = append(parts, stateStyle(st).Render(fmt.Sprintf("%d %s", n, st)))
		}
	}
	return strings.Join(parts, styleMuted.Render("  "))
}

func (m *Model) agentTable() string {
	var b strings.Builder
	b.WriteString(styleHeader.Render(fmt.Sprintf("%-12s %-10s %-8s %9s %7s  %s",
		"AGENT", "STATE", "DRIVER", "PROCESSED", "FAILED", "DETAIL")))
	b.WriteString("\n")

	for _, a := range m.summary.Agents {
		detail := a.LoadError
		if detail == "" {
			if fb, ok := m.summary.FallbackRoutes[a.ID]; ok {
				detail = "fallback: " + fb
			}
		}
		line := fmt.Sprintf("%-12s %s %-8s %9d %7d  %s",
			a.ID,
			stateStyle(a.State).Render(fmt.Sprintf("%-10s", a.State)),
			a.Ref.Driver,
			a.TasksProcessed,
			a.TasksFailed,
			styleMuted.Render(truncate(detail, m.width-56)),
		)
		b.WriteString(line)
		b.WriteString("\n")
	}
	if len(m.summary.Agents) == 0 {
		b.WriteString(styleMuted.Render("  no agents registered"))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) refreshStream() {
	if !m.ready {
		return
	}
	if len(m.events) == 0 {
		m.stream.SetContent(styleMuted.Render("  waiting for lifecycle events..."))
		return
	}

	var b strings.Builder
	for _, ev := range m.events {
		reason := ""
		if ev.Reason != "" {
			reason = "  " + styleMuted.Render(ev.Reason)
		}
		b.WriteString(fmt.Sprintf("  %s  %-12s %s %s %s%s\n",
			styleDim.Render(ev.At.Format("15:04:05")),
			ev.AgentID,
			stateStyle(ev.From).Render(string(ev.From)),
			styleMuted.Render("→"),
			stateStyle(ev.To).Render(string(ev.To)),
			reason,
		))
	}
	atBottom := m.stream.AtBottom()
	m.stream.SetContent(strings.TrimRight(b.String(), "\n"))
	if atBottom {
		m.stream.GotoBottom()
	}
}

func stateStyle(st domain.AgentState) lipgloss.Style {
	switch st {
	case domain.StateActive:
		return styleActive
	case domain.StateDegraded:
		return styleDegraded
	case domain.StateError:
		return styleError
	default:
		return styleMuted
	}
}

func truncate(s string, max int) string {
	if max < 4 || len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
