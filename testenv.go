package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"vox/audio"
	"vox/config"
	"vox/history"
	"vox/hotkey"
	"vox/log"
)

// runTestMode drives a real session headlessly: capture replays a WAV
// file through the fake audio backend and stdin commands stand in for
// the hotkey.
func runTestMode(cfg *config.Config, store *history.Store, wavPath string) {
	fakeCtx, err := audio.NewFakeContext(wavPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
		os.Exit(1)
	}

	a := &app{actx: fakeCtx, cfg: cfg, store: store}
	hk := hotkey.NewFake()

	// The fake output only advances when pumped; tick it at roughly
	// realtime so scheduled playback drains.
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for range ticker.C {
			if out := fakeCtx.LastOutput(); out != nil && out.Started() {
				out.Pump(audio.PlaybackRate / 20)
			}
		}
	}()

	// Stdin driver -- sends toggle events, handles waits and QUIT.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			cmd := strings.TrimSpace(scanner.Text())
			switch cmd {
			case "TOGGLE":
				hk.SimToggle()
			case "WAIT_AUDIO_DONE":
				if c := fakeCtx.LastCapture(); c != nil {
					<-c.AudioDone()
				}
			case "QUIT":
				gracefulShutdown(a)
			default:
				if strings.HasPrefix(cmd, "SLEEP ") {
					if ms, err := strconv.Atoi(cmd[6:]); err == nil {
						time.Sleep(time.Duration(ms) * time.Millisecond)
					}
				}
			}
		}
		gracefulShutdown(a)
	}()

	// Event loop -- same pattern as run()
	for {
		select {
		case <-hk.Toggled():
			a.toggleConversation()
			if a.conv == nil {
				if records, err := history.Load(log.Dir()); err == nil {
					fmt.Printf("turns recorded: %d\n", history.Summarize(records).Turns)
				}
			}
		case <-autoEndChan:
			if a.conv != nil {
				a.endConversation()
			}
		}
	}
}
