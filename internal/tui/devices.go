// SPDX-License-Identifier: MIT
//
// Package tui holds the terminal output-device picker.
package tui

import (
	"fmt"
	"strings"

	"peakbeat/internal/audio"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)
)

var (
	quitKeys   = key.NewBinding(key.WithKeys("q", "ctrl+c"))
	upKeys     = key.NewBinding(key.WithKeys("up", "k"))
	downKeys   = key.NewBinding(key.WithKeys("down", "j"))
	enterKeys  = key.NewBinding(key.WithKeys("enter"))
	escapeKeys = key.NewBinding(key.WithKeys("esc"))
)

// ScreenType defines which screen is currently active.
type ScreenType int

const (
	ListScreen ScreenType = iota
	DetailScreen
)

// DeviceFetcher lists the devices to choose from.
type DeviceFetcher func() ([]audio.DeviceInfo, error)

// DevicePicker is the Bubble Tea model listing output devices. Enter opens a
// device's details, a second Enter selects it and quits.
type DevicePicker struct {
	fetch         DeviceFetcher
	devices       []audio.DeviceInfo
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
	activeScreen  ScreenType

	chosen    int
	hasChoice bool
}

type devicesMsg struct {
	devices []audio.DeviceInfo
}

type errMsg struct {
	err error
}

// NewDevicePicker creates a picker over the devices returned by fetch.
func NewDevicePicker(fetch DeviceFetcher) DevicePicker {
	return DevicePicker{
		fetch:        fetch,
		activeScreen: ListScreen,
		chosen:       audio.DefaultDeviceID,
	}
}

// Init fetches the devices.
func (m DevicePicker) Init() tea.Cmd {
	fetch := m.fetch
	return func() tea.Msg {
		devices, err := fetch()
		if err != nil {
			return errMsg{err}
		}
		return devicesMsg{devices}
	}
}

// Update handles input and updates the model.
func (m DevicePicker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.viewport.Style = lipgloss.NewStyle()
			m.ready = true
			m.refresh()
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}

	case devicesMsg:
		m.devices = msg.devices
		for i, d := range m.devices {
			if d.IsDefaultOutput {
				m.selectedIndex = i
				break
			}
		}
		m.refresh()

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if key.Matches(msg, quitKeys) {
			return m, tea.Quit
		}
		if m.err != nil {
			return m, tea.Quit
		}

		switch m.activeScreen {
		case ListScreen:
			switch {
			case key.Matches(msg, upKeys):
				if m.selectedIndex > 0 {
					m.selectedIndex--
					m.refresh()
				}
			case key.Matches(msg, downKeys):
				if m.selectedIndex < len(m.devices)-1 {
					m.selectedIndex++
					m.refresh()
				}
			case key.Matches(msg, enterKeys):
				if len(m.devices) > 0 {
					m.activeScreen = DetailScreen
					m.refresh()
				}
			}

		case DetailScreen:
			switch {
			case key.Matches(msg, escapeKeys):
				m.activeScreen = ListScreen
				m.refresh()
			case key.Matches(msg, enterKeys):
				m.chosen = m.devices[m.selectedIndex].ID
				m.hasChoice = true
				return m, tea.Quit
			}
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// Selected returns the chosen device ID, if the user made a choice.
func (m DevicePicker) Selected() (int, bool) {
	return m.chosen, m.hasChoice
}

func (m *DevicePicker) refresh() {
	if !m.ready {
		return
	}
	if m.activeScreen == DetailScreen {
		m.viewport.SetContent(m.renderDetails())
	} else {
		m.viewport.SetContent(m.renderDevices())
	}
}

// View renders the UI.
func (m DevicePicker) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress any key to exit.", m.err)
	}
	if !m.ready {
		return "Initializing..."
	}

	var title, help string
	if m.activeScreen == ListScreen {
		title = titleStyle.Render("Output Devices")
		help = infoStyle.Render("↑/↓: Navigate • Enter: Details • q: Quit")
	} else {
		title = titleStyle.Render("Output Device")
		help = infoStyle.Render("Enter: Use this device • Esc: Back • q: Quit")
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

func (m DevicePicker) renderDevices() string {
	if len(m.devices) == 0 {
		return "No output devices found."
	}

	var sb strings.Builder
	for i, device := range m.devices {
		marker := ""
		if device.IsDefaultOutput {
			marker = " [default]"
		}
		line := fmt.Sprintf("[%d] %s%s\n", device.ID, device.Name, marker)
		if i == m.selectedIndex {
			line = highlightStyle.Render("▶ " + line)
		} else {
			line = "  " + line
		}
		sb.WriteString(line)
	}
	return sb.String()
}

func (m DevicePicker) renderDetails() string {
	device := m.devices[m.selectedIndex]

	var sb strings.Builder
	sb.WriteString(highlightStyle.Render(device.Name))
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "  ID:                  %d\n", device.ID)
	if device.HostAPI != "" {
		fmt.Fprintf(&sb, "  Host API:            %s\n", device.HostAPI)
	}
	fmt.Fprintf(&sb, "  Output channels:     %d\n", device.MaxOutputChannels)
	fmt.Fprintf(&sb, "  Default sample rate: %.0f Hz\n", device.DefaultSampleRate)
	if device.IsDefaultOutput {
		sb.WriteString("  System default\n")
	}
	return sb.String()
}

// PickOutputDevice runs the picker full screen over the host's output
// devices. ok is false when the user quit without choosing.
func PickOutputDevice() (id int, ok bool, err error) {
	p := tea.NewProgram(NewDevicePicker(audio.OutputDevices), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return audio.DefaultDeviceID, false, err
	}
	id, ok = final.(DevicePicker).Selected()
	return id, ok, nil
}
