package playback

import (
	"testing"

	"vox/audio"
)

func newTestEngine(t *testing.T, speed float64) (*Engine, *audio.FakeOutput) {
	t.Helper()
	ctx := audio.NewSilentFakeContext()
	e, err := NewEngine(ctx, speed)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(e.Close)
	return e, ctx.LastOutput()
}

// chunk builds a base64 chunk of n samples with the given constant level.
func chunk(n int, level float32) string {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = level
	}
	return audio.EncodeChunk(audio.FloatToPCM(samples))
}

// lastStart reads the most recently scheduled handle's start frame.
func lastStart(e *Engine) int64 {
	return e.handles[e.nextID].start
}

func TestCursorMonotonic(t *testing.T) {
	e, out := newTestEngine(t, 1.0)

	var prev int64 = -1
	for i := 0; i < 5; i++ {
		clockAt := e.rendered
		if err := e.Play(chunk(240, 0.1)); err != nil {
			t.Fatal(err)
		}
		start := lastStart(e)
		if start < prev {
			t.Fatalf("start %d < previous start %d", start, prev)
		}
		if start < clockAt {
			t.Fatalf("start %d < device clock %d at schedule time", start, clockAt)
		}
		prev = start
		out.Pump(100) // arrival jitter
	}
}

func TestGaplessBackToBack(t *testing.T) {
	e, out := newTestEngine(t, 1.0)

	if err := e.Play(chunk(240, 0.1)); err != nil {
		t.Fatal(err)
	}
	first := lastStart(e)

	// Device renders less than the first chunk before the second arrives.
	out.Pump(60)

	if err := e.Play(chunk(480, 0.1)); err != nil {
		t.Fatal(err)
	}
	second := lastStart(e)

	if second != first+240 {
		t.Fatalf("second start = %d, want %d (first %d + 240)", second, first+240, first)
	}
}

func TestDriftAheadStartsImmediately(t *testing.T) {
	e, out := newTestEngine(t, 1.0)

	if err := e.Play(chunk(100, 0.1)); err != nil {
		t.Fatal(err)
	}
	// Device clock runs past the cursor.
	out.Pump(500)

	if err := e.Play(chunk(100, 0.1)); err != nil {
		t.Fatal(err)
	}
	if got := lastStart(e); got != 500 {
		t.Fatalf("start = %d, want 500 (current device clock)", got)
	}
}

func TestRateShortensDuration(t *testing.T) {
	e, _ := newTestEngine(t, 2.0)

	if err := e.Play(chunk(480, 0.1)); err != nil {
		t.Fatal(err)
	}
	h := e.handles[e.nextID]
	if len(h.samples) != 240 {
		t.Fatalf("adjusted length = %d, want 240 at 2x", len(h.samples))
	}
	if e.cursor != h.start+240 {
		t.Fatalf("cursor = %d, want %d", e.cursor, h.start+240)
	}
}

func TestSpeedChangeOnlyAffectsFutureChunks(t *testing.T) {
	e, _ := newTestEngine(t, 1.0)

	if err := e.Play(chunk(480, 0.1)); err != nil {
		t.Fatal(err)
	}
	inflight := e.handles[e.nextID]

	e.SetSpeed(2.0)

	if len(inflight.samples) != 480 {
		t.Fatalf("in-flight chunk resized to %d after SetSpeed", len(inflight.samples))
	}
	if err := e.Play(chunk(480, 0.1)); err != nil {
		t.Fatal(err)
	}
	if got := len(e.handles[e.nextID].samples); got != 240 {
		t.Fatalf("new chunk length = %d, want 240 at 2x", got)
	}
}

func TestStopClearsState(t *testing.T) {
	e, out := newTestEngine(t, 1.0)

	for i := 0; i < 3; i++ {
		if err := e.Play(chunk(240, 0.1)); err != nil {
			t.Fatal(err)
		}
	}
	out.Pump(100)
	e.Stop()

	if e.Live() != 0 {
		t.Fatalf("live handles after stop = %d, want 0", e.Live())
	}
	if e.cursor != e.rendered {
		t.Fatalf("cursor = %d, want device clock %d", e.cursor, e.rendered)
	}

	if err := e.Play(chunk(240, 0.1)); err != nil {
		t.Fatal(err)
	}
	if got := lastStart(e); got < 100 {
		t.Fatalf("post-stop start = %d, want >= 100", got)
	}
}

func TestStopOnEmptyEngine(t *testing.T) {
	e, _ := newTestEngine(t, 1.0)
	e.Stop() // nothing scheduled; must not panic
	if e.Live() != 0 {
		t.Fatal("expected no live handles")
	}
}

func TestRenderRetiresFinishedHandles(t *testing.T) {
	e, out := newTestEngine(t, 1.0)

	if err := e.Play(chunk(100, 0.5)); err != nil {
		t.Fatal(err)
	}
	buf := out.Pump(200)

	if e.Live() != 0 {
		t.Fatalf("live handles after full render = %d, want 0", e.Live())
	}
	if buf[0] < 16000 || buf[0] > 16500 {
		t.Errorf("rendered sample = %d, want ~16383 for 0.5", buf[0])
	}
	if buf[150] != 0 {
		t.Errorf("sample past chunk end = %d, want silence", buf[150])
	}
}

func TestRenderPlacesChunkAtScheduledOffset(t *testing.T) {
	e, out := newTestEngine(t, 1.0)

	out.Pump(50)
	if err := e.Play(chunk(10, 0.5)); err != nil {
		t.Fatal(err)
	}
	out.Pump(25) // clock 50 -> 75, chunk occupies frames 50..60
	buf := out.Pump(25)

	// All chunk audio was rendered in the previous pump; this one is silent.
	for i, s := range buf {
		if s != 0 {
			t.Fatalf("frame %d = %d, want silence", 75+i, s)
		}
	}
}

func TestCloseIdempotent(t *testing.T) {
	ctx := audio.NewSilentFakeContext()
	e, err := NewEngine(ctx, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	e.Close()
	e.Close() // must not panic

	if err := e.Play(chunk(10, 0.1)); err == nil {
		t.Fatal("expected error playing on closed engine")
	}
}

func TestPlayRejectsBadBase64(t *testing.T) {
	e, _ := newTestEngine(t, 1.0)
	if err := e.Play("%%%not-base64%%%"); err == nil {
		t.Fatal("expected decode error")
	}
	if e.Live() != 0 {
		t.Fatal("bad chunk must not be scheduled")
	}
}

func TestDefaultSpeedApplied(t *testing.T) {
	e, _ := newTestEngine(t, 0)
	if e.Speed() != DefaultSpeed {
		t.Fatalf("speed = %f, want %f", e.Speed(), DefaultSpeed)
	}
}

func TestResampleIdentity(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3, 0.4}
	out := resample(in, 1.0)
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("sample %d changed: %f != %f", i, out[i], in[i])
		}
	}
}
