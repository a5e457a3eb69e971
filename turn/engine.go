// Package turn tracks conversational state across inbound session
// messages: who is speaking, what has accumulated on each side, and
// when the user has interrupted the model. Each side is a small
// idle/accumulating machine; the interruption transition cuts the model
// side back to idle whenever new user speech arrives on top of it.
package turn

import (
	"context"
	"strings"
	"sync"

	"vox/gemini"
	"vox/log"
	"vox/usage"
)

// Player schedules model speech. Live reports how many scheduled chunks
// have not finished playing.
type Player interface {
	Play(b64 string) error
	Stop()
	Live() int
}

// Reconnector replaces the session transport wholesale.
type Reconnector interface {
	Reconnect(ctx context.Context) error
}

// LineRef identifies one transcript line held by a Sink.
type LineRef int

// Sink is the transcript display surface. Lines grow by appending and
// stay visible after their reference is dropped; Remove withdraws a
// line that should never have been shown.
type Sink interface {
	Listening()
	NewLine(speaker string) LineRef
	Append(ref LineRef, text string)
	Remove(ref LineRef)
}

// Recorder persists and displays one priced record per completed turn.
type Recorder interface {
	Record(rec *usage.Record)
}

type Engine struct {
	player  Player
	session Reconnector
	sink    Sink
	rec     Recorder

	mu           sync.Mutex
	inputText    strings.Builder
	outputText   strings.Builder
	audioData    []string
	userLine     LineRef
	modelLine    LineRef
	hasUserLine  bool
	hasModelLine bool
	lastReply    string
	turns        int
}

func NewEngine(player Player, session Reconnector, sink Sink, rec Recorder) *Engine {
	return &Engine{player: player, session: session, sink: sink, rec: rec}
}

// Handle applies one inbound message. It is called from the session's
// read goroutine, one message at a time, in arrival order. Messages
// that match no recognized shape have no effect.
func (e *Engine) Handle(msg *gemini.ServerMessage) {
	if msg == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if msg.SetupComplete != nil {
		log.Info("session setup acknowledged")
		e.sink.Listening()
	}

	if sc := msg.ServerContent; sc != nil {
		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
			e.handleInputText(sc.InputTranscription.Text)
		}
		if sc.ModelTurn != nil && e.inputText.Len() > 0 {
			// The model answering marks the user's utterance boundary.
			log.ConversationLine("user", e.inputText.String())
			e.inputText.Reset()
			e.hasUserLine = false
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			e.outputText.WriteString(sc.OutputTranscription.Text)
			if !e.hasModelLine {
				e.modelLine = e.sink.NewLine("model")
				e.hasModelLine = true
			}
			e.sink.Append(e.modelLine, sc.OutputTranscription.Text)
		}
		if sc.GenerationComplete {
			if e.outputText.Len() > 0 {
				e.lastReply = e.outputText.String()
				log.ConversationLine("model", e.lastReply)
			}
			e.outputText.Reset()
			e.hasModelLine = false
		}
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				d := part.InlineData
				if d == nil || !strings.HasPrefix(d.MimeType, "audio/pcm") {
					continue
				}
				e.audioData = append(e.audioData, d.Data)
				if err := e.player.Play(d.Data); err != nil {
					log.Errorf("scheduling audio chunk: %v", err)
				}
			}
		}
		if sc.TurnComplete {
			e.turns++
			if r := usage.Compute(msg.UsageMetadata); r != nil {
				log.TurnCost(r.InputTokens, r.OutputTokens, r.InputCost, r.OutputCost, r.TotalCost)
				e.rec.Record(r)
			}
		}
	}
}

// handleInputText runs with e.mu held. New user speech on top of live
// model activity is an interruption and is resolved before the text is
// accumulated.
func (e *Engine) handleInputText(text string) {
	if e.hasModelLine || e.outputText.Len() > 0 || e.player.Live() > 0 {
		e.interrupt()
	}
	e.inputText.WriteString(text)
	if !e.hasUserLine {
		e.userLine = e.sink.NewLine("user")
		e.hasUserLine = true
	}
	e.sink.Append(e.userLine, text)
}

// interrupt cuts the model's utterance: playback halts, the transport
// is replaced, and everything accumulated on the model side is thrown
// away. The input transcript is kept; the new speech belongs to the
// turn in progress.
func (e *Engine) interrupt() {
	log.Interruption(e.player.Live(), e.outputText.Len())
	e.player.Stop()
	go func() {
		if err := e.session.Reconnect(context.Background()); err != nil {
			log.Errorf("reconnect after interruption: %v", err)
		}
	}()
	if e.hasModelLine {
		e.sink.Remove(e.modelLine)
		e.hasModelLine = false
	}
	e.outputText.Reset()
	e.audioData = nil
}

// LastReply returns the most recent completed model utterance.
func (e *Engine) LastReply() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastReply
}

// Turns reports how many turns have completed this session.
func (e *Engine) Turns() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.turns
}
