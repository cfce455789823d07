// Package tui is the optional interactive progress display for mtkflash,
// shown when -i/--interactive-ui is passed. It is purely observational: it
// renders ProgressEvents emitted by the core and never drives the protocol.
package tui

import (
	"fmt"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	psmem "github.com/shirou/gopsutil/v3/mem"

	"github.com/unknown321/mediatek-flash-tool/internal/mtk"
)

var (
	phaseStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	footerStyle = lipgloss.NewStyle().Faint(true)
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

// ProgressMsg wraps an mtk.ProgressEvent as a bubbletea message. The caller
// feeds these into the program via Program.Send from the goroutine actually
// running the orchestrator.
type ProgressMsg mtk.ProgressEvent

// DoneMsg signals the orchestrator run finished, successfully or not.
type DoneMsg struct{ Err error }

// Model is the bubbletea model for the interactive progress display.
type Model struct {
	bar      progress.Model
	phase    string
	offset   uint64
	total    uint64
	opIndex  int
	opCount  int
	identity string
	err      error
	done     bool

	lastCopy time.Time
}

// NewModel builds the initial Model. identity is a short device-identity
// string (e.g. "hw=0x8590 hw_ver=2 sw_ver=1") shown in the footer and
// available for clipboard export.
func NewModel(identity string) Model {
	return Model{
		bar:      progress.New(progress.WithDefaultGradient()),
		identity: identity,
	}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "c":
			if time.Since(m.lastCopy) < copyCooldown {
				return m, nil
			}
			m.lastCopy = time.Now()
			_ = clipboard.WriteAll(m.identity)
			return m, nil
		}
	case ProgressMsg:
		m.phase = msg.Phase
		m.offset = msg.Offset
		m.total = msg.Total
		m.opIndex = msg.OperationIndex
		m.opCount = msg.OperationCount
		return m, nil
	case DoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("error: %v\n", m.err))
	}
	if m.done {
		return "done.\n"
	}

	header := phaseStyle.Render(fmt.Sprintf("phase: %s", m.phase))
	if m.opCount > 0 {
		header += fmt.Sprintf("  (operation %d/%d)", m.opIndex+1, m.opCount)
	}

	var barView string
	if m.total > 0 {
		barView = m.bar.ViewAs(float64(m.offset) / float64(m.total))
	} else {
		barView = m.bar.ViewAs(0)
	}

	footer := footerStyle.Render(m.resourceFooter())

	return fmt.Sprintf("%s\n%s\n%s\n", header, barView, footer)
}

// resourceFooter reports host free memory and the current device identity
// for c/copy-id.
func (m Model) resourceFooter() string {
	vm, err := psmem.VirtualMemory()
	if err != nil {
		return fmt.Sprintf("%s | mem: unavailable | [c] copy device id", m.identity)
	}
	return fmt.Sprintf("%s | mem free: %d MiB | [c] copy device id", m.identity, vm.Available/(1024*1024))
}

// copyCooldown prevents accidental double-writes to the clipboard from a
// held keypress.
const copyCooldown = 500 * time.Millisecond
