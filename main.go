package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"vox/audio"
	"vox/capture"
	"vox/config"
	"vox/gemini"
	"vox/history"
	"vox/hotkey"
	"vox/log"
	"vox/playback"
	"vox/shutdown"
	"vox/turn"
)

var version = "dev"

type app struct {
	actx   audio.Context
	device *audio.DeviceInfo
	cfg    *config.Config
	store  *history.Store

	conv       *conversation
	totalTurns int

	replyMu   sync.Mutex
	lastReply string
}

// LastReply survives the end of a conversation so the copy key keeps
// working between sessions.
func (a *app) LastReply() string {
	a.replyMu.Lock()
	defer a.replyMu.Unlock()
	if conv := a.conv; conv != nil {
		if r := conv.turns.LastReply(); r != "" {
			return r
		}
	}
	return a.lastReply
}

// conversation bundles the resources of one live session: speaker,
// transport, microphone, and the state engine tying them together.
type conversation struct {
	engine *playback.Engine
	client *gemini.Client
	pipe   *capture.Pipeline
	turns  *turn.Engine
	vp     *vadProcessor
	stop   chan struct{}
}

// autoEndChan carries the silence monitor's decision back to the event
// loop, where it is handled like a hotkey toggle.
var autoEndChan = make(chan struct{}, 1)

var shutdownOnce sync.Once

func gracefulShutdown(a *app) {
	shutdownOnce.Do(func() {
		if a.conv != nil {
			a.endConversation()
		}
		if a.totalTurns > 0 {
			log.SessionEnd(a.totalTurns)
		}
		if a.store != nil {
			a.store.Close()
		}
		log.Close()
		tuiMu.Lock()
		p := tuiProgram
		tuiMu.Unlock()
		if p != nil {
			p.Quit()
		}
		os.Exit(0)
	})
}

// startConversation acquires speaker, transport, and microphone in that
// order. Any failure releases everything acquired so far; a failed
// start leaves the app exactly as it was.
func (a *app) startConversation() error {
	vp, err := newVADProcessor()
	if err != nil {
		return fmt.Errorf("voice detector init: %w", err)
	}

	speed := a.cfg.Speed
	if speed == 0 {
		speed = playback.DefaultSpeed
	}
	engine, err := playback.NewEngine(a.actx, speed)
	if err != nil {
		return err
	}

	client := gemini.NewClient(a.cfg.APIKey)
	eng := turn.NewEngine(engine, client, &tuiSink{}, &sessionRecorder{store: a.store})

	if err := client.Connect(context.Background(), eng.Handle, a.cfg.Role, a.cfg.Voice); err != nil {
		engine.Close()
		return err
	}

	pipe, err := capture.Start(a.actx, a.device, client.SendAudioChunk, capture.Taps{
		Level: func(level float64) { tuiSend(AudioLevelMsg{Level: level}) },
		Frame: vp.Process,
	})
	if err != nil {
		client.Close()
		engine.Close()
		return err
	}

	conv := &conversation{
		engine: engine,
		client: client,
		pipe:   pipe,
		turns:  eng,
		vp:     vp,
		stop:   make(chan struct{}),
	}
	go monitorSilence(conv)

	a.conv = conv
	log.Info("conversation_start: " + pipe.DeviceName())
	tuiSend(ConversationStartMsg{Device: pipe.DeviceName()})
	return nil
}

func (a *app) endConversation() {
	conv := a.conv
	if conv == nil {
		return
	}
	a.replyMu.Lock()
	if r := conv.turns.LastReply(); r != "" {
		a.lastReply = r
	}
	a.conv = nil
	a.replyMu.Unlock()
	close(conv.stop)
	conv.pipe.Stop()
	conv.client.Close()
	conv.engine.Close()
	a.totalTurns += conv.turns.Turns()
	log.Info("conversation_end")
	tuiSend(ConversationEndMsg{})
}

func (a *app) toggleConversation() {
	if a.conv != nil {
		a.endConversation()
		return
	}
	if err := a.startConversation(); err != nil {
		log.Errorf("conversation start failed: %v", err)
		tuiSend(StatusMsg{Text: startFailureMessage(err)})
	}
}

// startFailureMessage maps a start error to the single categorized line
// shown to the user.
func startFailureMessage(err error) string {
	switch {
	case errors.Is(err, config.ErrInvalidConfiguration):
		return "credential problem: check GEMINI_API_KEY"
	case errors.Is(err, audio.ErrDeviceUnavailable):
		return "audio device problem: check microphone permissions"
	case errors.Is(err, gemini.ErrTransportFailure):
		return "connection problem: could not reach the service"
	default:
		return fmt.Sprintf("could not start: %v", err)
	}
}

// monitorSilence ticks the VAD-backed monitor while a conversation is
// live. A conversation nobody talks to warns, then ends itself.
func monitorSilence(conv *conversation) {
	mon := newSilenceMonitor()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-conv.stop:
			return
		case <-ticker.C:
			switch mon.Tick(conv.vp.HasSpeechTick() || conv.engine.Live() > 0) {
			case SilenceWarn:
				log.Info("no_voice_warning")
				tuiSend(NoVoiceWarningMsg{})
			case SilenceWarnClear:
				tuiSend(VoiceClearedMsg{})
			case SilenceRepeat:
				log.Info("silence_during_warning")
				tuiSend(NoVoiceWarningMsg{})
			case SilenceAutoEnd:
				log.Info("silence_auto_end")
				select {
				case autoEndChan <- struct{}{}:
				default:
				}
				return
			}
		}
	}
}

func run() {
	voiceFlag := flag.String("voice", "", "Voice for spoken replies (default: "+gemini.DefaultVoice+")")
	speedFlag := flag.Float64("speed", 0, "Playback speed multiplier (default 1.5)")
	roleFlag := flag.String("role", "", "Custom persona text (default: built-in companion)")
	setupFlag := flag.Bool("setup", false, "Select microphone device (otherwise uses system default)")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	historyFlag := flag.Bool("history", false, "Print cost history summary and exit")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	crashFlag := flag.Bool("crash", false, "Trigger synthetic panic for testing crash logging")
	profileFlag := flag.String("profile", "", "Enable pprof profiling server (e.g., :6060 or localhost:6060)")
	testFlag := flag.Bool("test", false, "Test mode (headless, stdin-driven)")
	flag.Parse()

	// Resolve log directory early
	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)

	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if *profileFlag != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", *profileFlag)
			if err := http.ListenAndServe(*profileFlag, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	if *crashFlag {
		panic("TEST CRASH: synthetic panic to verify crash logging")
	}

	if *versionFlag {
		fmt.Printf("vox %s\n", version)
		os.Exit(0)
	}

	if *historyFlag {
		records, err := history.Load(log.Dir())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading history: %v\n", err)
			os.Exit(1)
		}
		s := history.Summarize(records)
		if s.Turns == 0 {
			fmt.Println("No recorded turns yet.")
			os.Exit(0)
		}
		fmt.Printf("%d turns, %d input / %d output tokens, $%.4f total\n",
			s.Turns, s.InputTokens, s.OutputTokens, s.TotalCost)
		fmt.Printf("from %s to %s\n",
			s.First.Format("2006-01-02 15:04"), s.Last.Format("2006-01-02 15:04"))
		os.Exit(0)
	}

	// Configuration: file, then environment, then flags. Validation
	// happens before any device or network resource is touched.
	cfgPath, err := config.DefaultPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot resolve config path: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *voiceFlag != "" {
		cfg.Voice = *voiceFlag
	}
	if *speedFlag != 0 {
		cfg.Speed = *speedFlag
	}
	if *roleFlag != "" {
		cfg.Role = *roleFlag
	}
	if *deviceFlag != "" {
		cfg.Device = *deviceFlag
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", startFailureMessage(err))
		os.Exit(1)
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	speed := cfg.Speed
	if speed == 0 {
		speed = playback.DefaultSpeed
	}
	voice := cfg.Voice
	if voice == "" {
		voice = gemini.DefaultVoice
	}
	log.SessionStart(gemini.DefaultModel, voice, speed)

	store, err := history.Open(log.Dir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cost history disabled: %v\n", err)
		store = nil
	}

	if *testFlag {
		args := flag.Args()
		if len(args) == 0 {
			fmt.Fprintln(os.Stderr, "Usage: vox -test <wav-file>")
			os.Exit(1)
		}
		runTestMode(cfg, store, args[0])
		return
	}

	actx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Fprintf(os.Stderr, "Error initializing audio context: %v\n", err)
		os.Exit(1)
	}
	defer actx.Close()

	var selectedDevice *audio.DeviceInfo
	if cfg.Device != "" {
		if devices, err := actx.Devices(); err == nil {
			for i := range devices {
				if devices[i].Name == cfg.Device {
					selectedDevice = &devices[i]
					break
				}
			}
		}
		if selectedDevice == nil {
			log.Warnf("device not found, using default: %s", cfg.Device)
		}
	} else if *setupFlag {
		selectedDevice, err = audio.SelectDevice(actx)
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Printf("Warning: device selection failed: %v\n", err)
			fmt.Println("Falling back to default device")
			selectedDevice = nil
		}
		if selectedDevice != nil {
			cfg.Device = selectedDevice.Name
			if err := config.Save(cfgPath, cfg); err != nil {
				log.Warnf("saving device preference: %v", err)
			}
		}
	}

	a := &app{actx: actx, device: selectedDevice, cfg: cfg, store: store}

	tuiMu.Lock()
	tuiProgram = NewTUIProgram(a.LastReply)
	p := tuiProgram
	tuiMu.Unlock()

	go func() {
		if _, err := p.Run(); err != nil {
			log.Errorf("TUI error: %v", err)
			os.Exit(1)
		}
		gracefulShutdown(a)
	}()

	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		<-sigChan
		gracefulShutdown(a)
	}()

	hk := hotkey.New()
	if err := hk.Register(); err != nil {
		log.Errorf("hotkey register error: %v", err)
		fmt.Printf("Error registering hotkey: %v\n", err)
		os.Exit(1)
	}
	defer hk.Unregister()

	if selectedDevice != nil && audio.IsBluetooth(selectedDevice.Name) {
		tuiSend(StatusMsg{Text: "⚠ bluetooth mic: capture quality may be reduced"})
	}

	for {
		select {
		case <-hk.Toggled():
			a.toggleConversation()
		case <-autoEndChan:
			if a.conv != nil {
				tuiSend(StatusMsg{Text: "conversation ended after 30s of silence"})
				a.endConversation()
			}
		}
	}
}
