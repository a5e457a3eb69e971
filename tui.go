package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"vox/log"
	"vox/usage"
)

type tickMsg time.Time

type transcriptLine struct {
	id      int
	speaker string
	text    string
	removed bool
}

type tuiModel struct {
	active    bool // conversation toggled on
	listening bool // remote acknowledged setup
	frame     int

	audioLevel float64
	noVoice    bool

	lines []transcriptLine
	index map[int]int // line id -> lines slice index

	lastCost    usage.Record
	haveCost    bool
	sessionCost float64
	turnCount   int

	deviceLine string
	status     string
	copiedAt   int

	width, height int

	lastReply func() string
}

var (
	styleLive    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleIdle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleUser    = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	styleModel   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleSpeaker = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
	styleWarn    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	styleCost    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	styleMeter   = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	styleHelp    = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	styleHelpKey = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	styleCopied  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

func NewTUIProgram(lastReply func() string) *tea.Program {
	m := tuiModel{
		index:     make(map[int]int),
		lastReply: lastReply,
	}
	return tea.NewProgram(m, tea.WithAltScreen())
}

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
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
		case "c":
			if text := m.lastReply(); text != "" {
				if err := clipboard.WriteAll(text); err != nil {
					log.Warnf("clipboard copy failed: %v", err)
				} else {
					m.copiedAt = m.frame
				}
			}
		}

	case tickMsg:
		m.frame++
		if m.active {
			// Decay the meter between device callbacks.
			m.audioLevel *= 0.9
		}
		return m, tuiTick()

	case ConversationStartMsg:
		m.active = true
		m.listening = false
		m.noVoice = false
		m.audioLevel = 0
		m.deviceLine = msg.Device
		m.status = ""

	case ConversationEndMsg:
		m.active = false
		m.listening = false
		m.noVoice = false
		m.audioLevel = 0

	case ListeningMsg:
		m.listening = true

	case AudioLevelMsg:
		if m.active {
			m.audioLevel = m.audioLevel*0.6 + msg.Level*0.4
		}

	case TranscriptLineMsg:
		m.index[msg.ID] = len(m.lines)
		m.lines = append(m.lines, transcriptLine{id: msg.ID, speaker: msg.Speaker})

	case TranscriptAppendMsg:
		if i, ok := m.index[msg.ID]; ok {
			m.lines[i].text += msg.Text
		}

	case TranscriptRemoveMsg:
		if i, ok := m.index[msg.ID]; ok {
			m.lines[i].removed = true
		}

	case TurnCostMsg:
		m.lastCost = msg.Rec
		m.haveCost = true
		m.sessionCost += msg.Rec.TotalCost
		m.turnCount++

	case NoVoiceWarningMsg:
		m.noVoice = true

	case VoiceClearedMsg:
		m.noVoice = false

	case StatusMsg:
		m.status = msg.Text
	}
	return m, nil
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var b strings.Builder

	// Status line
	switch {
	case m.active && m.listening:
		b.WriteString(styleLive.Render("● LIVE") + styleIdle.Render("  listening"))
	case m.active:
		b.WriteString(styleLive.Render("● LIVE") + styleIdle.Render("  connecting..."))
	default:
		b.WriteString(styleIdle.Render("○ IDLE"))
	}
	b.WriteString("\n")

	if m.deviceLine != "" {
		b.WriteString(styleIdle.Render("mic: "+m.deviceLine) + "\n")
	}
	if m.status != "" {
		b.WriteString(styleWarn.Render(m.status) + "\n")
	}
	b.WriteString("\n")

	// Transcript pane: most recent lines that still fit.
	wrapWidth := m.width - 8
	if wrapWidth < 10 {
		wrapWidth = 10
	}
	paneHeight := m.height - 10
	if paneHeight < 3 {
		paneHeight = 3
	}
	var rendered []string
	for _, line := range m.lines {
		if line.removed || line.text == "" {
			continue
		}
		speaker := "you"
		style := styleUser
		if line.speaker == "model" {
			speaker = " ai"
			style = styleModel
		}
		wrapped := wrapText(line.text, wrapWidth)
		for i, w := range wrapped {
			prefix := "     "
			if i == 0 {
				prefix = styleSpeaker.Render(speaker+": ")
			}
			rendered = append(rendered, prefix+style.Render(w))
		}
	}
	if len(rendered) > paneHeight {
		rendered = rendered[len(rendered)-paneHeight:]
	}
	for _, line := range rendered {
		b.WriteString(line + "\n")
	}
	for i := len(rendered); i < paneHeight; i++ {
		b.WriteString("\n")
	}
	b.WriteString("\n")

	// Level meter
	if m.active {
		const meterWidth = 30
		filled := int(m.audioLevel * 4 * meterWidth)
		if filled > meterWidth {
			filled = meterWidth
		}
		meter := strings.Repeat("█", filled) + strings.Repeat("░", meterWidth-filled)
		b.WriteString(styleMeter.Render(meter))
		if m.noVoice {
			b.WriteString(styleWarn.Render("  ⚠ no voice detected"))
		}
		b.WriteString("\n")
	} else {
		b.WriteString("\n")
	}

	// Cost line
	if m.haveCost {
		costLine := fmt.Sprintf("turn $%.4f  |  session $%.4f (%d turns)",
			m.lastCost.TotalCost, m.sessionCost, m.turnCount)
		b.WriteString(styleCost.Render(costLine))
	}
	if m.copiedAt > 0 && m.frame-m.copiedAt < 25 {
		b.WriteString(styleCopied.Render("  [✓ copied]"))
	}
	b.WriteString("\n\n")

	// Help line
	b.WriteString(styleHelpKey.Render("Ctrl+Shift+Space") + styleHelp.Render(" talk  ") +
		styleHelpKey.Render("c") + styleHelp.Render(" copy reply  ") +
		styleHelpKey.Render("q") + styleHelp.Render(" quit"))

	return b.String()
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
		// Find last space within width
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
