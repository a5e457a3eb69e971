package main

import (
	"sync"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"vox/history"
	"vox/log"
	"vox/turn"
	"vox/usage"
)

// TUI message types
type ListeningMsg struct{}
type ConversationStartMsg struct{ Device string }
type ConversationEndMsg struct{}
type AudioLevelMsg struct{ Level float64 }
type TranscriptLineMsg struct {
	ID      int
	Speaker string
}
type TranscriptAppendMsg struct {
	ID   int
	Text string
}
type TranscriptRemoveMsg struct{ ID int }
type TurnCostMsg struct{ Rec usage.Record }
type NoVoiceWarningMsg struct{}
type VoiceClearedMsg struct{}
type StatusMsg struct{ Text string }
type CopiedMsg struct{}

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
)

func tuiSend(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// tuiSink bridges the turn engine to the TUI. Line references are plain
// counters; the model keeps the id-to-line mapping.
type tuiSink struct {
	nextID atomic.Int64
}

func (s *tuiSink) Listening() {
	tuiSend(ListeningMsg{})
}

func (s *tuiSink) NewLine(speaker string) turn.LineRef {
	id := int(s.nextID.Add(1))
	tuiSend(TranscriptLineMsg{ID: id, Speaker: speaker})
	return turn.LineRef(id)
}

func (s *tuiSink) Append(ref turn.LineRef, text string) {
	tuiSend(TranscriptAppendMsg{ID: int(ref), Text: text})
}

func (s *tuiSink) Remove(ref turn.LineRef) {
	tuiSend(TranscriptRemoveMsg{ID: int(ref)})
}

// sessionRecorder persists each turn's priced record and mirrors it to
// the cost line in the TUI.
type sessionRecorder struct {
	store *history.Store
}

func (r *sessionRecorder) Record(rec *usage.Record) {
	if rec == nil {
		return
	}
	if r.store != nil {
		if err := r.store.Append(rec); err != nil {
			log.Errorf("persisting turn record: %v", err)
		}
	}
	tuiSend(TurnCostMsg{Rec: *rec})
}
