// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 oltaco

package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/oltaco/nrf-dfu/pkg/dfu"
)

var pickerStyle = lipgloss.NewStyle().Margin(1, 2)

// deviceItem adapts an advertisement to the list component.
type deviceItem struct {
	adv dfu.Advertisement
}

func (d deviceItem) Title() string {
	if d.adv.Name == "" {
		return "(unnamed)"
	}
	return d.adv.Name
}

func (d deviceItem) Description() string {
	if d.adv.HasService(dfu.ServiceUUID) {
		return d.adv.Address + "  [DFU]"
	}
	return d.adv.Address
}

func (d deviceItem) FilterValue() string {
	return d.adv.Name + " " + d.adv.Address
}

type pickerModel struct {
	list   list.Model
	chosen *dfu.Advertisement
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "enter":
			if item, ok := m.list.SelectedItem().(deviceItem); ok {
				adv := item.adv
				m.chosen = &adv
			}
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		h, v := pickerStyle.GetFrameSize()
		m.list.SetSize(msg.Width-h, msg.Height-v)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m pickerModel) View() string {
	return pickerStyle.Render(m.list.View())
}

// pickDevice shows the interactive device picker and returns the selection.
func pickDevice(devices []dfu.Advertisement) (dfu.Advertisement, error) {
	items := make([]list.Item, len(devices))
	for i, adv := range devices {
		items[i] = deviceItem{adv: adv}
	}

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true

	l := list.New(items, delegate, 40, 14)
	l.Title = "Select a device"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)

	// The picker renders on stderr so the chosen address on stdout stays
	// pipeable.
	p := tea.NewProgram(pickerModel{list: l}, tea.WithOutput(os.Stderr))
	final, err := p.Run()
	if err != nil {
		return dfu.Advertisement{}, fmt.Errorf("picker: %w", err)
	}

	m, ok := final.(pickerModel)
	if !ok || m.chosen == nil {
		return dfu.Advertisement{}, fmt.Errorf("no device selected")
	}
	return *m.chosen, nil
}
