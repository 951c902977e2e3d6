// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/protoframe/pkg/protoframe"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive TUI for exchanging commands",
	Long: `Monitor traffic and send commands from an interactive terminal UI.

The engine runs inside the UI loop: received commands, acknowledgements,
resends and abandoned commands appear in the event log, and commands typed at
the prompt are sent with the configured region as their source.

Prompt commands:
  ` + strings.ReplaceAll(commandUsage, "\n", "\n  ") + `

Press Esc or Ctrl+C to quit. PgUp/PgDn scroll the event log.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	events := &eventLog{max: 500}
	logCommand := func(c protoframe.Command) {
		events.add("RX "+protoframe.FormatCommand(c), eventInfo)
	}

	s, err := openSession(cmd.Context(), sessionOptions{
		handlers: map[protoframe.PayloadKind]protoframe.Handler{
			protoframe.KindLed:   logCommand,
			protoframe.KindMove:  logCommand,
			protoframe.KindSound: logCommand,
		},
		onDrop: func(c protoframe.Command) {
			events.add(fmt.Sprintf("DROPPED id=%d, no acknowledgement", c.ID), eventError)
		},
	})
	if err != nil {
		return err
	}
	defer s.close()

	p := tea.NewProgram(newMonitorModel(s, events, cfg.Engine.TickInterval), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

type eventLevel int

const (
	eventInfo eventLevel = iota
	eventSent
	eventError
)

type logEntry struct {
	timestamp time.Time
	message   string
	level     eventLevel
}

// eventLog is shared between the model and the engine callbacks, which run
// inside Update
type eventLog struct {
	entries []logEntry
	max     int
	dirty   bool
}

func (l *eventLog) add(message string, level eventLevel) {
	l.entries = append(l.entries, logEntry{timestamp: time.Now(), message: message, level: level})
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
	l.dirty = true
}

type engineTickMsg time.Time

type monitorModel struct {
	session  *session
	events   *eventLog
	interval time.Duration

	log   viewport.Model
	input textinput.Model
	stats protoframe.Statistics

	pending  int
	lastErr  error
	width    int
	height   int
	quitting bool
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	statsLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	statsValueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	sentStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	infoStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func newMonitorModel(s *session, events *eventLog, interval time.Duration) monitorModel {
	input := textinput.New()
	input.Placeholder = "led dome 1 2 10"
	input.Prompt = "> "
	input.CharLimit = 120
	input.Focus()

	return monitorModel{
		session:  s,
		events:   events,
		interval: interval,
		log:      viewport.New(76, 10),
		input:    input,
		width:    80,
		height:   24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(m.tick(), textinput.Blink)
}

func (m monitorModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return engineTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			m.submit(strings.Fields(m.input.Value()))
			m.input.SetValue("")
			m.refreshLog()
			return m, nil
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.log, cmd = m.log.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.log.Width = max(msg.Width-4, 20)
		m.log.Height = max(msg.Height-12, 5)
		m.events.dirty = true
		m.refreshLog()

	case engineTickMsg:
		m.session.with(func(e *protoframe.Engine) {
			e.Tick()
			m.stats = e.Stats()
			m.pending = e.PendingCount()
			if err := e.LastError(); err != nil && err != m.lastErr {
				m.lastErr = err
				m.events.add(err.Error(), eventError)
			}
		})
		if err := m.session.connErr(); err != nil {
			m.events.add("connection lost: "+err.Error(), eventError)
			m.refreshLog()
			return m, nil
		}
		m.refreshLog()
		return m, m.tick()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// submit parses and sends one prompt line
func (m *monitorModel) submit(words []string) {
	if len(words) == 0 {
		return
	}

	var (
		command protoframe.Command
		err     error
	)
	m.session.with(func(e *protoframe.Engine) {
		command, err = parseCommand(e, words)
		if err == nil {
			err = e.Send(command)
		}
	})
	if err != nil {
		m.events.add(err.Error(), eventError)
		return
	}
	m.events.add("TX "+protoframe.FormatCommand(command), eventSent)
}

func (m *monitorModel) refreshLog() {
	if !m.events.dirty {
		return
	}
	m.events.dirty = false

	atBottom := m.log.AtBottom()
	var b strings.Builder
	for _, entry := range m.events.entries {
		ts := headerStyle.Render(entry.timestamp.Format("15:04:05.000"))
		switch entry.level {
		case eventError:
			b.WriteString(ts + " " + errorStyle.Render("✗ "+entry.message))
		case eventSent:
			b.WriteString(ts + " " + sentStyle.Render("→ "+entry.message))
		default:
			b.WriteString(ts + " " + infoStyle.Render("ℹ "+entry.message))
		}
		b.WriteString("\n")
	}
	m.log.SetContent(b.String())
	if atBottom {
		m.log.GotoBottom()
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("PROTOFRAME - MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Region: %s | Esc to quit",
		m.session.connInfo, protoframe.FormatRegion(m.session.engine.Region()))))
	s.WriteString("\n\n")

	st := m.stats
	errCount := st.Errors()
	errValue := statsValueStyle.Render(fmt.Sprintf("%d", errCount))
	if errCount > 0 {
		errValue = errorStyle.Render(fmt.Sprintf("%d", errCount))
	}

	var stats strings.Builder
	fmt.Fprintf(&stats, "%s %s   %s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Frames In:"), statsValueStyle.Render(fmt.Sprintf("%d", st.FramesReceived)),
		statsLabelStyle.Render("Out:"), statsValueStyle.Render(fmt.Sprintf("%d", st.FramesSent)),
		statsLabelStyle.Render("Pending:"), statsValueStyle.Render(fmt.Sprintf("%d", m.pending)),
		statsLabelStyle.Render("Errors:"), errValue,
	)
	fmt.Fprintf(&stats, "%s %s   %s %s   %s %s   %s %s",
		statsLabelStyle.Render("Acks In/Out:"), statsValueStyle.Render(fmt.Sprintf("%d/%d", st.AcksReceived, st.AcksSent)),
		statsLabelStyle.Render("Resends:"), statsValueStyle.Render(fmt.Sprintf("%d", st.Resends)),
		statsLabelStyle.Render("Duplicates:"), statsValueStyle.Render(fmt.Sprintf("%d", st.Duplicates)),
		statsLabelStyle.Render("Dropped:"), statsValueStyle.Render(fmt.Sprintf("%d", st.Dropped)),
	)
	s.WriteString(boxStyle.Render(stats.String()))
	s.WriteString("\n")

	s.WriteString(statsLabelStyle.Render("Events:"))
	s.WriteString("\n")
	if len(m.events.entries) == 0 {
		s.WriteString(boxStyle.Width(m.width - 4).Render(headerStyle.Render("  (no events yet)")))
	} else {
		s.WriteString(boxStyle.Render(m.log.View()))
	}
	s.WriteString("\n")
	s.WriteString(m.input.View())

	return s.String()
}
