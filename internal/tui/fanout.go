// Package tui renders a live dashboard over a bounded-parallelism
// fan-out across clusters, grounded on the teacher's internal/tui
// package (spinner.Model + lipgloss styling driven from a
// bubbletea.Program, generalized here from a single backup's progress
// callbacks to one Event per cluster in a multi-cluster operation).
package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true)

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A8A8A8"))

	detailStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			MarginLeft(2).
			Italic(true)
)

// ClusterEvent is the TUI's view of a fan-out result for one cluster,
// decoupled from internal/server so this package never imports it.
type ClusterEvent struct {
	ClusterID string
	Err       error
}

// clusterState tracks one cluster's row in the dashboard.
type clusterState struct {
	id     string
	done   bool
	failed bool
	detail string
}

// FanOutModel is a bubbletea.Model that renders one row per cluster,
// transitioning each row from pending to ok/failed as events arrive on
// Events. The fan-out operation itself runs on the caller's goroutine;
// this model only observes it.
type FanOutModel struct {
	operation string
	order     []string
	states    map[string]*clusterState
	events    <-chan ClusterEvent
	spinner   spinner.Model
	completed int
	total     int
	quitting  bool
}

// NewFanOutModel constructs a dashboard for operation across
// clusterIDs, fed by events. The caller must close events once every
// cluster has reported, so the program can quit.
func NewFanOutModel(operation string, clusterIDs []string, events <-chan ClusterEvent) FanOutModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD93D"))

	states := make(map[string]*clusterState, len(clusterIDs))
	order := make([]string, len(clusterIDs))
	for i, id := range clusterIDs {
		states[id] = &clusterState{id: id}
		order[i] = id
	}
	sort.Strings(order)

	return FanOutModel{
		operation: operation,
		order:     order,
		states:    states,
		events:    events,
		spinner:   s,
		total:     len(clusterIDs),
	}
}

type clusterEventMsg ClusterEvent
type eventsClosedMsg struct{}

func waitForEvent(events <-chan ClusterEvent) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return clusterEventMsg(e)
	}
}

func (m FanOutModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

func (m FanOutModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case clusterEventMsg:
		if st, ok := m.states[msg.ClusterID]; ok {
			st.done = true
			st.failed = msg.Err != nil
			if msg.Err != nil {
				st.detail = msg.Err.Error()
			}
			m.completed++
		}
		return m, waitForEvent(m.events)

	case eventsClosedMsg:
		m.quitting = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

func (m FanOutModel) View() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render(fmt.Sprintf(" %s: %d/%d clusters ", m.operation, m.completed, m.total)))
	s.WriteString("\n\n")

	for _, id := range m.order {
		st := m.states[id]
		switch {
		case !st.done:
			s.WriteString(fmt.Sprintf("%s %s\n", m.spinner.View(), id))
		case st.failed:
			s.WriteString(fmt.Sprintf("%s %s\n", errorStyle.Render("✗"), id))
			s.WriteString(detailStyle.Render(st.detail) + "\n")
		default:
			s.WriteString(fmt.Sprintf("%s %s\n", successStyle.Render("✓"), id))
		}
	}

	if m.quitting {
		s.WriteString(pendingStyle.Render(fmt.Sprintf("\ndone in %s\n", time.Now().Format("15:04:05"))))
	}
	return s.String()
}
