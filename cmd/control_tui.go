// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/poolstat/pkg/equipment"
	"github.com/Thermoquad/poolstat/pkg/pentair"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const commandTimeout = 10 * time.Second

// Focus states
const (
	focusDeviceList = iota
	focusValueInput
	focusButton
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// deviceItem is one managed device in the list
type deviceItem struct {
	id      uint8
	kind    equipment.Kind
	summary string
}

// Implement list.Item interface
func (d deviceItem) Title() string {
	switch d.kind {
	case equipment.KindController:
		return fmt.Sprintf("Controller 0x%02X", d.id)
	case equipment.KindPump:
		return fmt.Sprintf("Pump 0x%02X", d.id)
	case equipment.KindChlorinator:
		return "Chlorinator"
	case equipment.KindIntelliChem:
		return fmt.Sprintf("IntelliChem 0x%02X", d.id)
	}
	return fmt.Sprintf("0x%02X", d.id)
}
func (d deviceItem) Description() string { return d.summary }
func (d deviceItem) FilterValue() string { return d.Title() }

// deviceControl describes the single control a device kind offers
type deviceControl struct {
	label       string
	placeholder string
	button      string
}

var deviceControls = map[equipment.Kind]deviceControl{
	equipment.KindController:  {"Circuit:", "6", "[ Toggle Circuit ]"},
	equipment.KindPump:        {"RPM:", "1500", "[ Set Speed ]"},
	equipment.KindChlorinator: {"Output %:", "50", "[ Set Output ]"},
}

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	stack    *stack
	store    *equipment.Store
	commands equipment.Commander
	connInfo string

	devices    []deviceItem
	deviceList list.Model

	state         equipment.State
	events        uint64
	errorLog      []errorLogEntry
	maxLogEntries int

	valueInput   textinput.Model
	focusedField int
	pending      int

	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type controlBatchMsg struct {
	events []equipment.Event
	states []equipment.State
	found  []equipment.Found
}

type commandResultMsg struct {
	what string
	ok   bool
	err  error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(s *stack, store *equipment.Store, connInfo string) controlModel {
	ti := textinput.New()
	ti.CharLimit = 5
	ti.Width = 10

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	deviceList := list.New([]list.Item{}, delegate, 30, 10)
	deviceList.Title = "Equipment"
	deviceList.SetShowStatusBar(false)
	deviceList.SetShowHelp(false)
	deviceList.SetFilteringEnabled(false)

	m := controlModel{
		stack:         s,
		store:         store,
		commands:      s.registry,
		connInfo:      connInfo,
		deviceList:    deviceList,
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		valueInput:    ti,
		focusedField:  focusDeviceList,
		width:         80,
		height:        24,
	}
	m.refreshDevices()
	return m
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return controlTickCmd()
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.MouseMsg:
		if msg.Action == tea.MouseActionRelease && msg.Button == tea.MouseButtonLeft {
			m.deviceList, _ = m.deviceList.Update(msg)
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case controlTickMsg:
		m.refreshDevices()
		return m, controlTickCmd()

	case controlBatchMsg:
		for _, s := range msg.states {
			m.state = s
			isError := s == equipment.StateDisconnected || s == equipment.StateConfigError
			m.addLogEntry(fmt.Sprintf("Connection %s", s), isError)
		}
		for _, d := range msg.found {
			m.addLogEntry(fmt.Sprintf("Discovered %s 0x%02X", d.Kind, d.ID), false)
		}
		for _, e := range msg.events {
			m.events++
			m.logEvent(e)
		}
		if len(msg.found) > 0 || len(msg.events) > 0 {
			m.refreshDevices()
		}

	case commandResultMsg:
		m.pending--
		switch {
		case msg.err != nil:
			m.addLogEntry(fmt.Sprintf("%s failed: %v", msg.what, msg.err), true)
		case !msg.ok:
			m.addLogEntry(fmt.Sprintf("%s not acknowledged", msg.what), true)
		default:
			m.addLogEntry(fmt.Sprintf("%s acknowledged", msg.what), false)
		}
	}

	var cmd tea.Cmd
	if m.focusedField == focusValueInput {
		m.valueInput, cmd = m.valueInput.Update(msg)
		cmds = append(cmds, cmd)
	}
	if m.focusedField == focusDeviceList {
		m.deviceList, cmd = m.deviceList.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.focusedField != focusValueInput || msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}

	case "tab":
		m.cycleFocus(1)
		return m, nil

	case "shift+tab":
		m.cycleFocus(-1)
		return m, nil

	case "enter":
		if m.focusedField != focusDeviceList {
			return m.handleEnter()
		}

	case "up", "k", "down", "j":
		if m.focusedField == focusDeviceList {
			m.deviceList, _ = m.deviceList.Update(msg)
			m.syncPlaceholder()
			return m, nil
		}
	}

	if m.focusedField == focusValueInput {
		var cmd tea.Cmd
		m.valueInput, cmd = m.valueInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *controlModel) cycleFocus(delta int) {
	selected := m.getSelectedDevice()
	if selected == nil {
		m.focusedField = focusDeviceList
		return
	}
	if _, ok := deviceControls[selected.kind]; !ok {
		// read-only device
		m.focusedField = focusDeviceList
		m.valueInput.Blur()
		return
	}

	m.focusedField = (m.focusedField + delta + focusButton + 1) % (focusButton + 1)
	if m.focusedField == focusValueInput {
		m.valueInput.Focus()
	} else {
		m.valueInput.Blur()
	}
}

func (m controlModel) handleEnter() (tea.Model, tea.Cmd) {
	if m.state != equipment.StateConnected {
		m.addLogEntry("Cannot send command: not connected", true)
		return m, nil
	}
	selected := m.getSelectedDevice()
	if selected == nil {
		return m, nil
	}

	raw := m.valueInput.Value()
	if raw == "" {
		raw = m.valueInput.Placeholder
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		m.addLogEntry(fmt.Sprintf("Invalid value: %s", raw), true)
		return m, nil
	}

	var (
		what string
		run  func(ctx context.Context) (bool, error)
	)
	switch selected.kind {
	case equipment.KindController:
		on := true
		if rec, ok := m.store.Latest(selected.id, "controller_status"); ok {
			on = !rec.(*pentair.ControllerStatus).Circuit(value)
		}
		what = fmt.Sprintf("Circuit %d %s", value, onOff(on))
		run = func(ctx context.Context) (bool, error) { return m.commands.SetCircuit(ctx, value, on) }
	case equipment.KindPump:
		id := selected.id
		what = fmt.Sprintf("Pump 0x%02X to %d rpm", id, value)
		run = func(ctx context.Context) (bool, error) { return m.commands.SetPumpRPM(ctx, id, value) }
	case equipment.KindChlorinator:
		what = fmt.Sprintf("Salt output %d%%", value)
		run = func(ctx context.Context) (bool, error) { return m.commands.SetSaltOutput(ctx, value) }
	default:
		return m, nil
	}

	m.pending++
	m.addLogEntry(fmt.Sprintf("Sending: %s", what), false)
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		ok, err := run(ctx)
		return commandResultMsg{what: what, ok: ok, err: err}
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

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

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	buttonStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 2)

	focusedButtonStyle := buttonStyle.
		Background(lipgloss.Color("10"))

	// Header
	s.WriteString(titleStyle.Render("POOLSTAT CONTROL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.state != equipment.StateConnected {
		connStatus = warningStyle.Render(m.state.String())
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit Tab=switch", connStatus)))
	s.WriteString("\n\n")

	// Layout: left panel (devices) | right panel (control)
	leftWidth := 30
	rightWidth := m.width - leftWidth - 6

	listStyle := boxStyle.Width(leftWidth)
	if m.focusedField == focusDeviceList {
		listStyle = focusedBoxStyle.Width(leftWidth)
	}
	devicePanel := listStyle.Render(m.deviceList.View())

	controlContent := m.renderControlPanel(statsLabelStyle, statsValueStyle, headerStyle, buttonStyle, focusedButtonStyle)
	controlPanel := boxStyle.Width(rightWidth).Render(controlContent)

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, devicePanel, " ", controlPanel))
	s.WriteString("\n\n")

	s.WriteString(m.renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle))
	s.WriteString("\n\n")

	if selected := m.getSelectedDevice(); selected != nil {
		s.WriteString(m.renderReadings(selected.id, statsLabelStyle, headerStyle, boxStyle))
		s.WriteString("\n\n")
	}

	s.WriteString(m.renderEventLog(statsLabelStyle, warningStyle, boxStyle))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m controlModel) renderControlPanel(statsLabelStyle, statsValueStyle, headerStyle, buttonStyle, focusedButtonStyle lipgloss.Style) string {
	var s strings.Builder

	selected := m.getSelectedDevice()
	if selected == nil {
		s.WriteString(headerStyle.Render("No equipment yet"))
		return s.String()
	}

	s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Selected:"), selected.Title()))
	if selected.summary != "" {
		s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Now:"), statsValueStyle.Render(selected.summary)))
	}
	s.WriteString("\n")

	ctl, ok := deviceControls[selected.kind]
	if !ok {
		s.WriteString(headerStyle.Render("Read only (no controls available)"))
		return s.String()
	}

	s.WriteString(statsLabelStyle.Render(ctl.label + " "))
	if m.focusedField == focusValueInput {
		s.WriteString(m.valueInput.View())
	} else {
		val := m.valueInput.Value()
		if val == "" {
			val = ctl.placeholder
		}
		s.WriteString(fmt.Sprintf("[%s]", val))
	}
	s.WriteString("\n\n")

	if m.focusedField == focusButton {
		s.WriteString(focusedButtonStyle.Render(ctl.button))
	} else {
		s.WriteString(buttonStyle.Render(ctl.button))
	}
	if m.pending > 0 {
		s.WriteString(headerStyle.Render(fmt.Sprintf("  %d pending", m.pending)))
	}

	return s.String()
}

func (m controlModel) renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle lipgloss.Style) string {
	stats := m.stack.bus.Stats()
	checksum := statsValueStyle.Render("0")
	if stats.ChecksumErrors > 0 {
		checksum = errorStyle.Render(fmt.Sprintf("%d", stats.ChecksumErrors))
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("Frames:"), statsValueStyle.Render(fmt.Sprintf("%d", stats.Frames+stats.ChlorinatorFrames)),
		statsLabelStyle.Render("Skipped:"), statsValueStyle.Render(fmt.Sprintf("%d B", stats.BytesSkipped)),
		statsLabelStyle.Render("Checksum:"), checksum,
		statsLabelStyle.Render("Events:"), statsValueStyle.Render(fmt.Sprintf("%d", m.events)),
	)

	return boxStyle.Width(m.width - 4).Render(content)
}

func (m controlModel) renderReadings(id uint8, statsLabelStyle, headerStyle, boxStyle lipgloss.Style) string {
	var content strings.Builder
	content.WriteString(statsLabelStyle.Render("READINGS"))
	content.WriteString("\n")

	var snap *equipment.Snapshot
	for _, sn := range m.store.Snapshot() {
		if sn.ID == id {
			snap = &sn
			break
		}
	}
	if snap == nil {
		content.WriteString(headerStyle.Render("No readings yet"))
		return boxStyle.Width(m.width - 4).Render(content.String())
	}

	names := make([]string, 0, len(snap.Records))
	for name := range snap.Records {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		e := snap.Records[name]
		content.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(e.Time.Format("15:04:05")), name))
		content.WriteString(pentair.FormatRecord(e.Record))
		for k, v := range e.Derived {
			content.WriteString(fmt.Sprintf("  %s: %.2f\n", k, v))
		}
	}

	return boxStyle.Width(m.width - 4).Render(strings.TrimRight(content.String(), "\n"))
}

func (m controlModel) renderEventLog(statsLabelStyle, warningStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("EVENTS"))
	s.WriteString("\n")

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyleLocal := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	logHeight := 8
	if len(m.errorLog) < logHeight {
		logHeight = len(m.errorLog)
	}
	startIdx := len(m.errorLog) - logHeight

	if len(m.errorLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyleLocal
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(timestamp),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

// logEvent notes the events worth a log line; routine telemetry is only
// shown in the readings panel.
func (m *controlModel) logEvent(e equipment.Event) {
	switch r := e.Record.(type) {
	case *pentair.SoftwareVersion:
		m.addLogEntry(fmt.Sprintf("Controller firmware %s", r), false)
	case *pentair.ChlorinatorStatus:
		if alarms := r.Alarms(); len(alarms) > 0 {
			m.addLogEntry(fmt.Sprintf("Chlorinator alarms: %s", strings.Join(alarms, ", ")), true)
		}
	case *pentair.IntelliChemStatus:
		if r.WaterFlowAlarm {
			m.addLogEntry(fmt.Sprintf("IntelliChem 0x%02X: water flow alarm", e.Device), true)
		}
	}
}

// summarize is the one line description shown in the device list
func (m controlModel) summarize(d equipment.Device) string {
	switch d.Kind() {
	case equipment.KindController:
		if rec, ok := m.store.Latest(d.ID(), "controller_status"); ok {
			st := rec.(*pentair.ControllerStatus)
			return fmt.Sprintf("%02d:%02d pool %d°%s", st.Hour, st.Minute, st.PoolTemp, st.Unit())
		}
	case equipment.KindPump:
		if rec, ok := m.store.Latest(d.ID(), "pump_status"); ok {
			ps := rec.(*pentair.PumpStatus)
			if !ps.Run {
				return "stopped"
			}
			return fmt.Sprintf("%d rpm %dW", ps.RPM, ps.Power)
		}
	case equipment.KindChlorinator:
		if rec, ok := m.store.Latest(d.ID(), "chlorinator_salt_output"); ok {
			return fmt.Sprintf("output %d%%", rec.(*pentair.ChlorinatorSaltOutput).Percent)
		}
	case equipment.KindIntelliChem:
		if rec, ok := m.store.Latest(d.ID(), "intellichem_status"); ok {
			return fmt.Sprintf("pH %.2f ORP %d", rec.(*pentair.IntelliChemStatus).PHReading, rec.(*pentair.IntelliChemStatus).ORPReading)
		}
	}
	return "waiting"
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *controlModel) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

func (m *controlModel) getSelectedDevice() *deviceItem {
	if len(m.devices) == 0 {
		return nil
	}
	idx := m.deviceList.Index()
	if idx < 0 || idx >= len(m.devices) {
		return nil
	}
	return &m.devices[idx]
}

// refreshDevices rebuilds the list from the registry
func (m *controlModel) refreshDevices() {
	devs := m.stack.registry.Devices()
	m.devices = make([]deviceItem, 0, len(devs))
	items := make([]list.Item, 0, len(devs))
	for _, d := range devs {
		item := deviceItem{id: d.ID(), kind: d.Kind(), summary: m.summarize(d)}
		m.devices = append(m.devices, item)
		items = append(items, item)
	}
	m.deviceList.SetItems(items)
	m.syncPlaceholder()
}

func (m *controlModel) syncPlaceholder() {
	if selected := m.getSelectedDevice(); selected != nil {
		m.valueInput.Placeholder = deviceControls[selected.kind].placeholder
	}
}

func (m *controlModel) updateListSize() {
	listHeight := m.height / 3
	if listHeight < 5 {
		listHeight = 5
	}
	m.deviceList.SetSize(28, listHeight)
}
