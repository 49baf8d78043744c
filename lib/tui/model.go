// Package tui is a terminal view of a running roam machine: the session table
// from periodic snapshots and a scrolling log of notifications.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-i2p/logger"

	"github.com/go-wlan/go-wlan/lib/notify"
	"github.com/go-wlan/go-wlan/lib/roam"
	"github.com/go-wlan/go-wlan/lib/session"
)

var log = logger.GetGoI2PLogger()

// Source reports the current sessions. *roam.Machine implements it.
type Source interface {
	Snapshot() ([]session.Info, roam.Stats, error)
}

type (
	notificationMsg notify.Notification
	eventsClosedMsg struct{}
	tickMsg         time.Time
	snapshotMsg     struct {
		sessions []session.Info
		stats    roam.Stats
		err      error
	}
)

// Option configures a Model.
type Option func(*Model)

// WithRefresh sets the snapshot interval.
func WithRefresh(d time.Duration) Option { return func(m *Model) { m.refresh = d } }

// WithHistory sets how many notifications the log keeps.
func WithHistory(n int) Option { return func(m *Model) { m.history = n } }

// WithTitle replaces the header text.
func WithTitle(s string) Option { return func(m *Model) { m.title = s } }

// Model is the bubbletea model of the watcher.
type Model struct {
	src     Source
	events  <-chan notify.Notification
	refresh time.Duration
	history int
	title   string

	sessions []session.Info
	stats    roam.Stats
	log      []notify.Notification
	selected int
	err      error
	closed   bool

	width  int
	height int
}

// New creates a watcher. events may be nil when only snapshots are shown.
func New(src Source, events <-chan notify.Notification, opts ...Option) Model {
	m := Model{
		src:     src,
		events:  events,
		refresh: time.Second,
		history: 200,
		title:   "go-wlan",
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Init starts the event reader, the first snapshot and the refresh ticker.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForEvent(), m.snapshot(), m.tick())
}

func (m Model) waitForEvent() tea.Cmd {
	if m.events == nil {
		return nil
	}
	ch := m.events
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return notificationMsg(n)
	}
}

func (m Model) snapshot() tea.Cmd {
	if m.src == nil {
		return nil
	}
	src := m.src
	return func() tea.Msg {
		sessions, stats, err := src.Snapshot()
		return snapshotMsg{sessions: sessions, stats: stats, err: err}
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case notificationMsg:
		m.log = append(m.log, notify.Notification(msg))
		if over := len(m.log) - m.history; over > 0 {
			m.log = m.log[over:]
		}
		// a notification usually means a session changed
		return m, tea.Batch(m.waitForEvent(), m.snapshot())

	case eventsClosedMsg:
		m.closed = true
		log.WithField("at", "tui.Model.Update").Debug("event_channel_closed")
		return m, nil

	case snapshotMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.sessions, m.stats = msg.sessions, msg.stats
		if m.selected >= len(m.sessions) {
			m.selected = max(len(m.sessions)-1, 0)
		}
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.snapshot(), m.tick())
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "down", "j":
		if len(m.sessions) > 0 {
			m.selected = (m.selected + 1) % len(m.sessions)
		}
	case "up", "k":
		if len(m.sessions) > 0 {
			m.selected = (m.selected - 1 + len(m.sessions)) % len(m.sessions)
		}
	case "c":
		m.log = nil
	}
	return m, nil
}

// Selected returns the highlighted session, if any.
func (m Model) Selected() (session.Info, bool) {
	if m.selected < len(m.sessions) {
		return m.sessions[m.selected], true
	}
	return session.Info{}, false
}

// View renders the sessions, the queue stats and the event log.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")
	b.WriteString(m.viewSessions())
	b.WriteString("\n")
	b.WriteString(m.viewStats())
	b.WriteString("\n\n")
	b.WriteString(m.viewLog())
	b.WriteString("\n")
	help := "↑/↓ select • c clear log • q quit"
	if m.closed {
		help = "event feed ended • " + help
	}
	b.WriteString(dimStyle.Render(help))
	return b.String()
}

const sessionRow = "%-6s %-10s %-16s %-17s %4s %-6s %s"

func (m Model) viewSessions() string {
	if len(m.sessions) == 0 {
		return dimStyle.Render("no open sessions")
	}
	rows := []string{headerStyle.Render(fmt.Sprintf(sessionRow, "ID", "STATE", "SSID", "BSSID", "CH", "KEYS", "ROAM"))}
	for i, s := range m.sessions {
		bssid, ch := "-", "-"
		if !s.BSSID.IsZero() {
			bssid = s.BSSID.String()
			ch = fmt.Sprint(s.Channel)
		}
		roamCol := ""
		if s.Roaming {
			roamCol = fmt.Sprintf("%s #%d", s.RoamReason, s.RoamID)
		}
		ssid := s.SSID
		if ssid == "" {
			ssid = "-"
		}
		line := fmt.Sprintf(sessionRow, s.ID, stateStyle(s.Kind).Render(fmt.Sprintf("%-10s", s.Kind)), ssid, bssid, ch, fmt.Sprint(s.Keys), roamCol)
		if i == m.selected {
			line = selectedStyle.Render(line)
		}
		rows = append(rows, line)
	}
	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m Model) viewStats() string {
	if m.err != nil {
		return errStyle.Render("snapshot: " + m.err.Error())
	}
	active := m.stats.Active
	if active == "" {
		active = "idle"
	}
	s := fmt.Sprintf("queue: %s • pending %d • pool %d", active, m.stats.Pending, m.stats.PoolInUse)
	if m.stats.PowerWait {
		s += " • " + warnStyle.Render("waiting for full power")
	}
	return s
}

// logLines is how many notifications fit below the table.
func (m Model) logLines() int {
	if m.height <= 0 {
		return 15
	}
	return max(m.height-len(m.sessions)-10, 3)
}

func (m Model) viewLog() string {
	if len(m.log) == 0 {
		return dimStyle.Render("waiting for notifications")
	}
	entries := m.log
	if n := m.logLines(); len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	lines := make([]string, 0, len(entries))
	for _, n := range entries {
		line := fmt.Sprintf("%s %-5s %-20s %s",
			dimStyle.Render(n.Time.Format("15:04:05.000")),
			n.Session, n.Event, resultStyle(n.Result).Render(n.Result.String()))
		if !n.Info.BSSID.IsZero() {
			line += " " + n.Info.BSSID.String()
		}
		if n.RoamID != 0 {
			line += dimStyle.Render(fmt.Sprintf(" roam=%d", n.RoamID))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// Run shows the watcher until the user quits.
func Run(src Source, events <-chan notify.Notification, opts ...Option) error {
	p := tea.NewProgram(New(src, events, opts...), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
