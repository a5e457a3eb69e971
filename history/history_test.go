package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"vox/usage"
)

func TestAppendAndLoad(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}

	r1 := &usage.Record{InputTokens: 1000, OutputTokens: 700, InputCost: 0.0005, OutputCost: 0.0064, TotalCost: 0.0069}
	r2 := &usage.Record{InputTokens: 10, OutputTokens: 20, TotalCost: 0.001,
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	if err := s.Append(r1); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(r2); err != nil {
		t.Fatal(err)
	}
	s.Close()

	records, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("loaded %d records, want 2", len(records))
	}
	if records[0].TotalCost != 0.0069 {
		t.Errorf("record 0 total = %v", records[0].TotalCost)
	}
	if records[0].Timestamp.IsZero() {
		t.Error("zero timestamp was not stamped on append")
	}
	if !records[1].Timestamp.Equal(r2.Timestamp) {
		t.Errorf("explicit timestamp rewritten: %v", records[1].Timestamp)
	}
}

func TestAppendNilRecord(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Append(nil); err != nil {
		t.Fatal(err)
	}
	records, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Fatalf("nil record produced %d entries", len(records))
	}
}

func TestLoadMissingFile(t *testing.T) {
	records, err := Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if records != nil {
		t.Fatalf("missing file should load as empty, got %v", records)
	}
}

func TestLoadSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	content := `{"inputTokens":1,"totalCost":0.5,"timestamp":"2026-01-01T00:00:00Z"}
this line is garbage
{"inputTokens":2,"totalCost":0.25,"timestamp":"2026-01-02T00:00:00Z"}
`
	if err := os.WriteFile(filepath.Join(dir, fileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	records, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("loaded %d records, want 2 (garbage skipped)", len(records))
	}
}

func TestAppendAfterClose(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	s.Close()
	s.Close() // idempotent
	if err := s.Append(&usage.Record{TotalCost: 1}); err == nil {
		t.Fatal("append after close must fail")
	}
}

func TestSummarize(t *testing.T) {
	early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	records := []usage.Record{
		{InputTokens: 100, OutputTokens: 50, TotalCost: 0.01, Timestamp: late},
		{InputTokens: 200, OutputTokens: 150, TotalCost: 0.02, Timestamp: early},
	}
	s := Summarize(records)
	if s.Turns != 2 || s.InputTokens != 300 || s.OutputTokens != 200 {
		t.Errorf("summary = %+v", s)
	}
	if s.TotalCost != 0.03 {
		t.Errorf("total cost = %v", s.TotalCost)
	}
	if !s.First.Equal(early) || !s.Last.Equal(late) {
		t.Errorf("time range = %v .. %v", s.First, s.Last)
	}

	if z := Summarize(nil); z.Turns != 0 {
		t.Errorf("empty history summary = %+v", z)
	}
}
