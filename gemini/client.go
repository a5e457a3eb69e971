// Package gemini speaks the Live API's bidirectional websocket protocol:
// one setup message on open, realtime media chunks outbound, structured
// JSON messages inbound. Reconnection tears the transport down wholesale
// and dials again with the same configuration.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"nhooyr.io/websocket"

	"vox/log"
)

const (
	// DefaultModel is the native-audio Live model the client targets.
	DefaultModel = "gemini-2.5-flash-native-audio-preview-12-2025"

	// DefaultVoice is used when the caller does not pick one.
	DefaultVoice = "Puck"

	liveEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateContent"
)

// ErrTransportFailure wraps connection-open and handshake failures.
// Recovery is only via an explicit Reconnect.
var ErrTransportFailure = errors.New("transport failure")

// Handler receives every well-formed inbound message, in arrival order,
// on the client's read goroutine.
type Handler func(msg *ServerMessage)

type Client struct {
	apiKey   string
	model    string
	endpoint string

	mu      sync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	readCtx context.Context

	// Last-provided session configuration, reused by Reconnect.
	handler  Handler
	roleText string
	voice    string

	writeMu sync.Mutex
}

func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:   apiKey,
		model:    DefaultModel,
		endpoint: liveEndpoint,
	}
}

// Connect dials the Live endpoint, sends the one-time setup message and
// starts the read loop. It returns once the setup message has been
// written; it does not wait for the server's acknowledgment.
func (c *Client) Connect(ctx context.Context, onMessage Handler, roleText, voiceID string) error {
	if voiceID == "" {
		voiceID = DefaultVoice
	}

	c.mu.Lock()
	c.handler = onMessage
	c.roleText = roleText
	c.voice = voiceID
	c.mu.Unlock()

	conn, _, err := websocket.Dial(ctx, c.endpoint+"?key="+c.apiKey, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransportFailure, err)
	}

	setup := setupMessage{
		Setup: setupPayload{
			Model: "models/" + c.model,
			SystemInstruction: instructionBlock{
				Parts: []textPart{{Text: systemInstruction(roleText)}},
			},
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"AUDIO"},
				SpeechConfig: speechConfig{
					VoiceConfig: voiceConfig{
						PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: voiceID},
					},
				},
			},
		},
	}
	data, err := json.Marshal(setup)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "")
		return fmt.Errorf("encoding setup: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		conn.Close(websocket.StatusInternalError, "")
		return fmt.Errorf("%w: sending setup: %v", ErrTransportFailure, err)
	}

	readCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.conn = conn
	c.readCtx = readCtx
	c.cancel = cancel
	c.mu.Unlock()

	go c.readLoop(readCtx, conn, onMessage)
	return nil
}

// readLoop parses inbound frames and forwards them to the handler.
// Malformed payloads are logged and dropped; a transport error ends the
// loop without tearing anything else down.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, handler Handler) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var msg ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warnf("dropping malformed message: %v", err)
			continue
		}
		handler(&msg)
	}
}

// SendAudioChunk forwards one base64 input chunk as a realtime media
// message. When the connection is not open the chunk is silently
// discarded; chunks are never queued or retried.
func (c *Client) SendAudioChunk(b64 string) {
	c.mu.Lock()
	conn := c.conn
	ctx := c.readCtx
	c.mu.Unlock()
	if conn == nil {
		return
	}

	msg := realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []mediaChunk{{Data: b64, MimeType: "audio/pcm"}},
		},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		// Drop: a chunk in flight at close time is not guaranteed to arrive.
		log.Warnf("audio chunk dropped: %v", err)
	}
}

// Close terminates the transport. Safe to call repeatedly or before
// Connect.
func (c *Client) Close() {
	c.mu.Lock()
	conn := c.conn
	cancel := c.cancel
	c.conn = nil
	c.cancel = nil
	c.readCtx = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "")
	}
}

// Reconnect replaces the transport wholesale, reusing the last-provided
// handler, role text and voice. The old connection is discarded, not
// drained.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	handler := c.handler
	role := c.roleText
	voice := c.voice
	c.mu.Unlock()

	c.Close()
	return c.Connect(ctx, handler, role, voice)
}

// Connected reports whether a transport is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}
