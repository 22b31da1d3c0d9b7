package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"murmur/capture"
	"murmur/pipeline"
)

// TUI message types
type stageMsg pipeline.Status
type levelMsg float64
type silenceMsg capture.SilenceEvent
type transcriptMsg struct {
	Text     string
	Injected int
}
type modeLineMsg string
type deviceLineMsg string
type hotkeyLineMsg string
type tickMsg time.Time

var (
	tuiProgram   *tea.Program
	tuiMu        sync.Mutex
	tuiReady     = make(chan struct{})
	tuiReadyOnce sync.Once
)

var (
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("99")).Bold(true)
	recStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	busyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	textStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	meterOnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
)

type tuiModel struct {
	stage        pipeline.Stage
	detail       string
	captureStart time.Time
	elapsed      float64
	level        float64
	silenceWarn  bool

	lastText     string
	lastInjected int
	runCount     int

	modeLine   string
	deviceLine string
	hotkeyLine string

	width, height int
}

func NewTUIProgram() *tea.Program {
	m := tuiModel{stage: pipeline.StageIdle}
	return tea.NewProgram(m, tea.WithAltScreen())
}

func tuiSend(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func tuiTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	tuiReadyOnce.Do(func() { close(tuiReady) })
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}

	case tickMsg:
		if m.stage == pipeline.StageCapturing {
			m.elapsed = time.Since(m.captureStart).Seconds()
		}
		return m, tuiTick()

	case stageMsg:
		m.stage = msg.Stage
		m.detail = msg.Detail
		switch msg.Stage {
		case pipeline.StageCapturing:
			m.captureStart = msg.Time
			m.elapsed = 0
			m.level = 0
			m.silenceWarn = false
		case pipeline.StageIdle, pipeline.StageFailed:
			m.level = 0
			m.silenceWarn = false
		}

	case levelMsg:
		if m.stage == pipeline.StageCapturing {
			// light smoothing so the meter does not flicker
			m.level = m.level*0.6 + float64(msg)*0.4
		}

	case silenceMsg:
		switch capture.SilenceEvent(msg) {
		case capture.SilenceWarn, capture.SilenceRepeat:
			m.silenceWarn = true
		case capture.SilenceWarnClear:
			m.silenceWarn = false
		}

	case transcriptMsg:
		m.runCount++
		m.lastText = msg.Text
		m.lastInjected = msg.Injected

	case modeLineMsg:
		m.modeLine = string(msg)

	case deviceLineMsg:
		m.deviceLine = string(msg)

	case hotkeyLineMsg:
		m.hotkeyLine = string(msg)
	}
	return m, nil
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("murmur "+version) + "\n\n")

	switch m.stage {
	case pipeline.StageCapturing:
		b.WriteString(recStyle.Render(fmt.Sprintf("● REC %.1fs", m.elapsed)))
		b.WriteString("  " + levelMeter(m.level) + "\n")
		if m.silenceWarn {
			b.WriteString(warnStyle.Render("  ⚠ no voice detected") + "\n")
		}
	case pipeline.StageTranscribing:
		b.WriteString(busyStyle.Render("… transcribing") + "\n")
	case pipeline.StageInjecting:
		b.WriteString(busyStyle.Render("⌨ typing") + "\n")
	case pipeline.StageFailed:
		b.WriteString(failStyle.Render("✗ failed: "+m.detail) + "\n")
	default:
		b.WriteString(idleStyle.Render("○ standby") + "\n")
	}
	b.WriteString("\n")

	if m.modeLine != "" {
		b.WriteString(dimStyle.Render(m.modeLine) + "\n")
	}
	if m.deviceLine != "" {
		b.WriteString(dimStyle.Render(m.deviceLine) + "\n")
	}
	b.WriteString("\n")

	if m.lastText != "" {
		title := dimStyle.Render(fmt.Sprintf("Last dictation (#%d, %d chars typed)", m.runCount, m.lastInjected))
		b.WriteString(title + "\n")
		wrapWidth := m.width - 2
		if wrapWidth < 10 {
			wrapWidth = 10
		}
		for _, line := range wrapText(m.lastText, wrapWidth) {
			b.WriteString(textStyle.Render(line) + "\n")
		}
	} else {
		b.WriteString(dimStyle.Render("No dictations yet") + "\n")
	}
	b.WriteString("\n")

	if m.hotkeyLine != "" {
		b.WriteString(helpStyle.Render(m.hotkeyLine+" · ctrl+c quits") + "\n")
	}

	return lipgloss.NewStyle().Padding(1, 2).Render(b.String())
}

// levelMeter renders the smoothed RMS as a fixed-width bar. Speech RMS
// rarely exceeds 0.3, so the scale saturates well before full amplitude.
func levelMeter(level float64) string {
	const cells = 24
	filled := int(level * 4 * cells)
	if filled > cells {
		filled = cells
	}
	bar := meterOnStyle.Render(strings.Repeat("█", filled)) +
		dimStyle.Render(strings.Repeat("░", cells-filled))
	return bar
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for len(text) > width {
		splitAt := width
		for i := width; i > 0; i-- {
			if text[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], " ")
	}
	if len(text) > 0 {
		lines = append(lines, text)
	}
	return lines
}
