package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

// liveStub is an in-process stand-in for the Live endpoint. Every
// client frame lands on inbound; frames written to outbound are pushed
// to the client.
type liveStub struct {
	srv      *httptest.Server
	inbound  chan []byte
	outbound chan []byte
	conns    atomic.Int32
}

func newLiveStub(t *testing.T) *liveStub {
	t.Helper()
	s := &liveStub{
		inbound:  make(chan []byte, 64),
		outbound: make(chan []byte, 64),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		s.conns.Add(1)
		ctx := r.Context()

		go func() {
			for {
				select {
				case data := <-s.outbound:
					if conn.Write(ctx, websocket.MessageText, data) != nil {
						s.outbound <- data // hand off to the live connection
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}()

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			s.inbound <- data
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *liveStub) wsURL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *liveStub) recv(t *testing.T) map[string]any {
	t.Helper()
	select {
	case data := <-s.inbound:
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("client sent invalid JSON: %v", err)
		}
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client frame")
		return nil
	}
}

func (s *liveStub) send(t *testing.T, raw string) {
	t.Helper()
	select {
	case s.outbound <- []byte(raw):
	case <-time.After(time.Second):
		t.Fatal("stub outbound queue full")
	}
}

func newTestClient(s *liveStub, onMessage Handler, role, voice string) (*Client, error) {
	c := NewClient("test-key")
	c.endpoint = s.wsURL()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := c.Connect(ctx, onMessage, role, voice)
	return c, err
}

func dig(t *testing.T, m map[string]any, path ...string) any {
	t.Helper()
	var cur any = m
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			t.Fatalf("path %v: %T is not an object", path, cur)
		}
		cur, ok = obj[key]
		if !ok {
			t.Fatalf("path %v: key %q missing", path, key)
		}
	}
	return cur
}

func TestSetupMessageShape(t *testing.T) {
	stub := newLiveStub(t)
	c, err := newTestClient(stub, func(*ServerMessage) {}, "", "Puck")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	setup := stub.recv(t)

	if got := dig(t, setup, "setup", "model"); got != "models/"+DefaultModel {
		t.Errorf("model = %v", got)
	}
	voice := dig(t, setup, "setup", "generation_config", "speech_config",
		"voice_config", "prebuilt_voice_config", "voice_name")
	if voice != "Puck" {
		t.Errorf("voice_name = %v, want Puck", voice)
	}
	mods := dig(t, setup, "setup", "generation_config", "response_modalities").([]any)
	if len(mods) != 1 || mods[0] != "AUDIO" {
		t.Errorf("response_modalities = %v, want [AUDIO]", mods)
	}
	parts := dig(t, setup, "setup", "system_instruction", "parts").([]any)
	text := parts[0].(map[string]any)["text"].(string)
	if text != defaultPersona {
		t.Errorf("empty role must select the built-in persona verbatim")
	}
	if _, ok := setup["setup"].(map[string]any)["inputAudioTranscription"]; !ok {
		t.Error("setup missing inputAudioTranscription flag")
	}
	if _, ok := setup["setup"].(map[string]any)["outputAudioTranscription"]; !ok {
		t.Error("setup missing outputAudioTranscription flag")
	}
}

func TestSetupMessageCustomRole(t *testing.T) {
	stub := newLiveStub(t)
	c, err := newTestClient(stub, func(*ServerMessage) {}, "You are a pirate.", "Kore")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	setup := stub.recv(t)
	parts := dig(t, setup, "setup", "system_instruction", "parts").([]any)
	text := parts[0].(map[string]any)["text"].(string)
	if !strings.HasPrefix(text, "You are a pirate.") {
		t.Errorf("custom role not used: %q", text)
	}
	if !strings.Contains(text, "Important guidelines:") {
		t.Errorf("custom role missing guideline suffix: %q", text)
	}
}

func TestSendAudioChunk(t *testing.T) {
	stub := newLiveStub(t)
	c, err := newTestClient(stub, func(*ServerMessage) {}, "", "")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	stub.recv(t) // setup

	c.SendAudioChunk("AAEC")

	msg := stub.recv(t)
	chunks := dig(t, msg, "realtime_input", "media_chunks").([]any)
	chunk := chunks[0].(map[string]any)
	if chunk["data"] != "AAEC" {
		t.Errorf("data = %v", chunk["data"])
	}
	if chunk["mime_type"] != "audio/pcm" {
		t.Errorf("mime_type = %v", chunk["mime_type"])
	}
}

func TestSendAudioChunkNoopWhenClosed(t *testing.T) {
	c := NewClient("test-key")
	c.SendAudioChunk("AAEC") // never connected: silent no-op

	stub := newLiveStub(t)
	c2, err := newTestClient(stub, func(*ServerMessage) {}, "", "")
	if err != nil {
		t.Fatal(err)
	}
	stub.recv(t)
	c2.Close()
	c2.SendAudioChunk("AAEC") // after close: silent no-op
}

func TestInboundDispatchAndMalformedDrop(t *testing.T) {
	stub := newLiveStub(t)
	got := make(chan *ServerMessage, 8)
	c, err := newTestClient(stub, func(m *ServerMessage) { got <- m }, "", "")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	stub.recv(t)

	stub.send(t, `this is not json`)
	stub.send(t, `{"serverContent":{"inputTranscription":{"text":"hello"}}}`)

	select {
	case m := <-got:
		if m.ServerContent == nil || m.ServerContent.InputTranscription == nil {
			t.Fatalf("unexpected message: %+v", m)
		}
		if m.ServerContent.InputTranscription.Text != "hello" {
			t.Errorf("text = %q", m.ServerContent.InputTranscription.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("valid message never dispatched (malformed frame killed the loop?)")
	}

	select {
	case m := <-got:
		t.Fatalf("malformed frame reached the handler: %+v", m)
	default:
	}
}

func TestCloseIdempotent(t *testing.T) {
	c := NewClient("test-key")
	c.Close() // before any connect
	c.Close()

	stub := newLiveStub(t)
	c2, err := newTestClient(stub, func(*ServerMessage) {}, "", "")
	if err != nil {
		t.Fatal(err)
	}
	c2.Close()
	c2.Close()
}

func TestReconnectReusesConfiguration(t *testing.T) {
	stub := newLiveStub(t)
	got := make(chan *ServerMessage, 8)
	c, err := newTestClient(stub, func(m *ServerMessage) { got <- m }, "Be terse.", "Kore")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	first := stub.recv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Reconnect(ctx); err != nil {
		t.Fatal(err)
	}
	second := stub.recv(t)

	if stub.conns.Load() != 2 {
		t.Fatalf("connection count = %d, want 2", stub.conns.Load())
	}
	fv := dig(t, first, "setup", "generation_config", "speech_config",
		"voice_config", "prebuilt_voice_config", "voice_name")
	sv := dig(t, second, "setup", "generation_config", "speech_config",
		"voice_config", "prebuilt_voice_config", "voice_name")
	if fv != sv {
		t.Errorf("voice changed across reconnect: %v -> %v", fv, sv)
	}

	// Handler must survive the reconnect too.
	stub.send(t, `{"setupComplete":{}}`)
	select {
	case m := <-got:
		if m.SetupComplete == nil {
			t.Fatalf("unexpected message after reconnect: %+v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler lost across reconnect")
	}
}

func TestConnectFailsAgainstDeadEndpoint(t *testing.T) {
	c := NewClient("test-key")
	c.endpoint = "ws://127.0.0.1:1" // nothing listens here
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := c.Connect(ctx, func(*ServerMessage) {}, "", "")
	if err == nil {
		t.Fatal("expected dial failure")
	}
	if c.Connected() {
		t.Fatal("client reports connected after failed dial")
	}
}
