// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"ephys/internal/host"
)

// DefaultRefresh is the monitor redraw interval.
const DefaultRefresh = 250 * time.Millisecond

// MonitorActions connect the monitor to a running host. Nil actions are
// disabled.
type MonitorActions struct {
	Stats           func() host.Stats
	Reload          func() error
	ToggleRecording func() error
}

type monitorKeys struct {
	Reload key.Binding
	Record key.Binding
	Quit   key.Binding
}

func (k monitorKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Reload, k.Record, k.Quit}
}

func (k monitorKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var defaultMonitorKeys = monitorKeys{
	Reload: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload processor")),
	Record: key.NewBinding(key.WithKeys(" ", "space"), key.WithHelp("space", "start/stop recording")),
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type tickMsg time.Time

type actionMsg struct {
	what string
	err  error
}

// MonitorModel displays live host statistics.
type MonitorModel struct {
	actions  MonitorActions
	refresh  time.Duration
	keys     monitorKeys
	help     help.Model
	stats    host.Stats
	last     time.Time
	lastSamp uint64
	rate     float64
	status   string
	err      error
}

// NewMonitorModel creates a monitor polling actions.Stats every refresh.
func NewMonitorModel(actions MonitorActions, refresh time.Duration) MonitorModel {
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	return MonitorModel{
		actions: actions,
		refresh: refresh,
		keys:    defaultMonitorKeys,
		help:    help.New(),
	}
}

func (m MonitorModel) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init starts polling.
func (m MonitorModel) Init() tea.Cmd {
	return m.tick()
}

func runAction(what string, fn func() error) tea.Cmd {
	if fn == nil {
		return nil
	}
	return func() tea.Msg {
		return actionMsg{what: what, err: fn()}
	}
}

func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		now := time.Time(msg)
		if m.actions.Stats != nil {
			m.observe(m.actions.Stats(), now)
		}
		return m, m.tick()

	case actionMsg:
		m.err = msg.err
		if msg.err == nil {
			m.status = msg.what
		} else {
			m.status = ""
		}

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Reload):
			return m, runAction("processor reloaded", m.actions.Reload)
		case key.Matches(msg, m.keys.Record):
			return m, runAction("recording toggled", m.actions.ToggleRecording)
		}
	}
	return m, nil
}

// observe records a stats sample and updates the sample rate estimate.
func (m *MonitorModel) observe(s host.Stats, now time.Time) {
	if !m.last.IsZero() && s.Samples >= m.lastSamp {
		if dt := now.Sub(m.last).Seconds(); dt > 0 {
			m.rate = float64(s.Samples-m.lastSamp) / dt
		}
	}
	m.stats = s
	m.last = now
	m.lastSamp = s.Samples
}

func yesNo(b bool) string {
	if b {
		return highlightStyle.Render("yes")
	}
	return "no"
}

func row(sb *strings.Builder, label, value string) {
	sb.WriteString(labelStyle.Render(label))
	sb.WriteString(value)
	sb.WriteString("\n")
}

// View renders the statistics table.
func (m MonitorModel) View() string {
	s := m.stats
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Processor Host"))
	sb.WriteString("\n\n")

	ready := yesNo(s.Ready)
	if !s.Ready && s.Processor != "" {
		ready = errorStyle.Render("no")
	}
	row(&sb, "Processor", fmt.Sprintf("%s (epoch %d)", s.Processor, s.Epoch))
	row(&sb, "Ready", ready)
	row(&sb, "Layout", fmt.Sprintf("%d channels @ %.0f Hz", s.Channels, s.SampleRate))
	row(&sb, "Acquiring", yesNo(s.Acquiring))
	rec := yesNo(s.Recording)
	if s.Recording {
		rec += " " + infoStyle.Render(s.RecordingDir)
	}
	row(&sb, "Recording", rec)
	row(&sb, "Blocks", fmt.Sprintf("%d", s.Blocks))
	row(&sb, "Samples", fmt.Sprintf("%d (%.0f/s)", s.Samples, m.rate))
	row(&sb, "Events", fmt.Sprintf("%d ttl, %d spike", s.TTLEvents, s.SpikeEvents))
	row(&sb, "Errors", fmt.Sprintf("%d", s.Errors))
	if s.LastError != "" {
		row(&sb, "Last error", errorStyle.Render(s.LastError))
	}

	sb.WriteString("\n")
	switch {
	case m.err != nil:
		sb.WriteString(errorStyle.Render(m.err.Error()))
	case m.status != "":
		sb.WriteString(infoStyle.Render(m.status))
	}
	sb.WriteString("\n")
	sb.WriteString(m.help.View(m.keys))
	return sb.String()
}

// RunMonitor shows the monitor until the user quits.
func RunMonitor(actions MonitorActions) error {
	_, err := tea.NewProgram(NewMonitorModel(actions, DefaultRefresh), tea.WithAltScreen()).Run()
	return err
}
