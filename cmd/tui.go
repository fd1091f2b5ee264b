// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/poolstat/pkg/pentair"
)

// Error log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for warnings
}

// poolState is the most recent decoded reading per device
type poolState struct {
	status     *pentair.ControllerStatus
	statusAt   time.Time
	pumps      map[uint8]*pentair.PumpStatus
	chlorine   *pentair.ChlorinatorStatus
	saltOutput int
	hasOutput  bool
	chem       *pentair.IntelliChemStatus
}

// TUI model
type model struct {
	connInfo      string
	statsInterval int
	showAll       bool
	started       time.Time
	stats         *pentair.Statistics
	errorLog      []errorLogEntry
	maxLogEntries int
	synchronized  bool
	skippedBytes  uint64
	linkErr       error
	width         int
	height        int
	quitting      bool
	pool          poolState
}

// Messages
type tickMsg time.Time
type frameMsg struct {
	frame            pentair.WireFrame
	validationErrors []pentair.ValidationError
}
type rejectMsg struct {
	reject pentair.Reject
}
type syncMsg struct {
	skipped uint64
}
type linkErrMsg struct {
	err error
}

// formatUptime formats a duration as a human-friendly string
func formatUptime(d time.Duration) string {
	seconds := int64(d / time.Second)
	if seconds <= 0 {
		return "0 seconds"
	}

	units := []struct {
		name string
		size int64
	}{
		{"day", 86400},
		{"hour", 3600},
		{"minute", 60},
		{"second", 1},
	}

	parts := []string{}
	for _, u := range units {
		n := seconds / u.size
		seconds %= u.size
		switch {
		case n == 1:
			parts = append(parts, "1 "+u.name)
		case n > 1:
			parts = append(parts, fmt.Sprintf("%d %ss", n, u.name))
		}
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func initialModel(connInfo string, statsInterval int, showAll bool) model {
	return model{
		connInfo:      connInfo,
		statsInterval: statsInterval,
		showAll:       showAll,
		started:       time.Now(),
		stats:         pentair.NewStatistics(),
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
		pool:          poolState{pumps: make(map[uint8]*pentair.PumpStatus)},
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case syncMsg:
		m.synchronized = true
		m.skippedBytes = msg.skipped
		if msg.skipped > 0 {
			m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d bytes", msg.skipped), false)
		} else {
			m.addLogEntry("Synchronized", false)
		}

	case rejectMsg:
		m.stats.Reject(msg.reject)
		m.addLogEntry(fmt.Sprintf("%s REJECTED: %v", msg.reject.Kind, msg.reject.Reason), true)

	case linkErrMsg:
		m.linkErr = msg.err
		m.addLogEntry(fmt.Sprintf("Connection lost: %v", msg.err), true)

	case frameMsg:
		m.stats.Update(msg.frame, msg.validationErrors)
		name := frameName(msg.frame)

		if len(msg.validationErrors) > 0 {
			for _, err := range msg.validationErrors {
				m.addLogEntry(fmt.Sprintf("%s: %s", name, err.Message), true)
			}
		} else {
			m.trackPool(msg.frame)
			if m.showAll {
				m.addLogEntry(fmt.Sprintf("%s (valid)", name), false)
			}
		}
	}

	return m, nil
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	// Keep only last N entries
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

// trackPool keeps the latest reading of every device seen on the bus
func (m *model) trackPool(f pentair.WireFrame) {
	rec, err := pentair.Decode(f)
	if err != nil {
		return
	}

	switch r := rec.(type) {
	case *pentair.ControllerStatus:
		m.pool.status = r
		m.pool.statusAt = f.Timestamp()
	case *pentair.PumpStatus:
		if c, ok := f.(*pentair.Frame); ok {
			m.pool.pumps[c.Source()] = r
		}
	case *pentair.ChlorinatorStatus:
		m.pool.chlorine = r
	case *pentair.ChlorinatorSaltOutput:
		m.pool.saltOutput = r.Percent
		m.pool.hasOutput = true
	case *pentair.IntelliChemStatus:
		m.pool.chem = r
	}
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("POOLSTAT - ERROR DETECTION"))
	s.WriteString("\n")
	mode := "Errors only"
	if m.showAll {
		mode = "All frames"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | Up: %s | Press 'q' to quit",
		m.connInfo, mode, formatUptime(time.Since(m.started)))))
	s.WriteString("\n\n")

	// Sync status
	switch {
	case m.linkErr != nil:
		s.WriteString(errorStyle.Render(fmt.Sprintf("✗ Connection lost: %v", m.linkErr)))
	case !m.synchronized:
		s.WriteString(warningStyle.Render("⏳ Waiting for synchronization..."))
	default:
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		if m.skippedBytes > 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (skipped %d bytes)", m.skippedBytes)))
		}
	}
	s.WriteString("\n\n")

	// Statistics
	m.stats.CalculateRates()
	totalErrors := m.stats.ChecksumErrors + m.stats.UnknownActions + m.stats.MalformedFrames + m.stats.AnomalousValues
	var validPercent, errorPercent float64
	if m.stats.TotalFrames > 0 {
		validPercent = float64(m.stats.ValidFrames) * 100.0 / float64(m.stats.TotalFrames)
		errorPercent = float64(totalErrors) * 100.0 / float64(m.stats.TotalFrames)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.TotalFrames)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", m.stats.ValidFrames, validPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", totalErrors, errorPercent)),
	))
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
		statsLabelStyle.Render("Controller:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.ControllerFrames)),
		statsLabelStyle.Render("Chlorinator:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.ChlorinatorFrames)),
	))

	if m.stats.ChecksumErrors > 0 || m.stats.UnknownActions > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			statsLabelStyle.Render("Checksum Errors:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.ChecksumErrors)),
			statsLabelStyle.Render("Unknown Actions:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.UnknownActions)),
		))
	}

	if m.stats.MalformedFrames > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s (%s: %d, %s: %d)\n",
			statsLabelStyle.Render("Malformed:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.MalformedFrames)),
			headerStyle.Render("length mismatches"), m.stats.LengthMismatches,
			headerStyle.Render("decode errors"), m.stats.DecodeErrors,
		))
	}

	if m.stats.AnomalousValues > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s (%s: %d, %s: %d, %s: %d)\n",
			statsLabelStyle.Render("Anomalous:"), warningStyle.Render(fmt.Sprintf("%d", m.stats.AnomalousValues)),
			headerStyle.Render("high RPM"), m.stats.HighRPM,
			headerStyle.Render("invalid temp"), m.stats.InvalidTemp,
			headerStyle.Render("unknown codes"), m.stats.UnknownCodes,
		))
	}

	errorRate := statsValueStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
	if m.stats.ErrorRate > 0 {
		errorRate = errorStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
	}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frames/s", m.stats.FrameRate)),
		statsLabelStyle.Render("Error Rate:"), errorRate,
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Pool section (only shown once something was decoded)
	if pool := m.poolView(statsLabelStyle, statsValueStyle, warningStyle); pool != "" {
		s.WriteString(statsLabelStyle.Render("Equipment:"))
		s.WriteString("\n")
		s.WriteString(boxStyle.Render(pool))
		s.WriteString("\n\n")
	}

	// Error log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 20
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.errorLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.errorLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}

// poolView renders the equipment panel, or "" before any reading
func (m model) poolView(label, value, warn lipgloss.Style) string {
	var b strings.Builder
	p := m.pool

	if st := p.status; st != nil {
		var on []string
		for i, v := range st.Circuits {
			if v {
				on = append(on, fmt.Sprint(i+1))
			}
		}
		circuits := "none"
		if len(on) > 0 {
			circuits = strings.Join(on, ",")
		}
		b.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			label.Render("Clock:"), value.Render(fmt.Sprintf("%02d:%02d", st.Hour, st.Minute)),
			label.Render("Circuits on:"), value.Render(circuits),
		))
		b.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			label.Render("Pool:"), value.Render(fmt.Sprintf("%d°%s", st.PoolTemp, st.Unit())),
			label.Render("Spa:"), value.Render(fmt.Sprintf("%d°%s", st.SpaTemp, st.Unit())),
			label.Render("Air:"), value.Render(fmt.Sprintf("%d°%s", st.AirTemp, st.Unit())),
		))
		if st.HeaterOn || st.SolarOn || st.ServiceMode || st.HeaterDelay {
			var flags []string
			for _, f := range []struct {
				on   bool
				name string
			}{{st.HeaterOn, "heater"}, {st.SolarOn, "solar"}, {st.ServiceMode, "service"}, {st.HeaterDelay, "delay"}} {
				if f.on {
					flags = append(flags, f.name)
				}
			}
			b.WriteString(fmt.Sprintf("%s %s\n", label.Render("Active:"), warn.Render(strings.Join(flags, ", "))))
		}
	}

	ids := make([]int, 0, len(p.pumps))
	for id := range p.pumps {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	for _, id := range ids {
		ps := p.pumps[uint8(id)]
		state := "stopped"
		if ps.Run {
			state = fmt.Sprintf("%d RPM", ps.RPM)
		}
		b.WriteString(fmt.Sprintf("%s %s (%dW, %d GPM)\n",
			label.Render(fmt.Sprintf("Pump 0x%02X:", id)), value.Render(state), ps.Power, ps.GPM))
	}

	if p.chlorine != nil || p.hasOutput {
		line := fmt.Sprintf("%s ", label.Render("Chlorinator:"))
		if p.hasOutput {
			line += value.Render(fmt.Sprintf("%d%% output", p.saltOutput))
		}
		if c := p.chlorine; c != nil {
			line += fmt.Sprintf(" %s", value.Render(fmt.Sprintf("%d ppm", c.Salinity)))
			if alarms := c.Alarms(); len(alarms) > 0 {
				line += " " + warn.Render(strings.Join(alarms, ", "))
			}
		}
		b.WriteString(line + "\n")
	}

	if c := p.chem; c != nil {
		b.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			label.Render("pH:"), value.Render(fmt.Sprintf("%.2f (set %.2f)", c.PHReading, c.PHSetpoint)),
			label.Render("ORP:"), value.Render(fmt.Sprintf("%d mV (set %d)", c.ORPReading, c.ORPSetpoint)),
		))
	}

	return strings.TrimRight(b.String(), "\n")
}
