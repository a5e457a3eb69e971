package usage

import (
	"math"
	"testing"

	"vox/gemini"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-12
}

func TestComputeWorkedExample(t *testing.T) {
	meta := &gemini.UsageMetadata{
		PromptTokensDetails:   []gemini.TokenDetail{{Modality: "TEXT", TokenCount: 1000}},
		ResponseTokensDetails: []gemini.TokenDetail{{Modality: "AUDIO", TokenCount: 500}},
		ThoughtsTokenCount:    200,
	}
	r := Compute(meta)
	if r == nil {
		t.Fatal("expected a record")
	}
	if !approx(r.InputCost, 0.0005) {
		t.Errorf("input cost = %v, want 0.0005", r.InputCost)
	}
	if !approx(r.OutputCost, 0.0064) {
		t.Errorf("output cost = %v, want 0.0064", r.OutputCost)
	}
	if !approx(r.TotalCost, 0.0069) {
		t.Errorf("total cost = %v, want 0.0069", r.TotalCost)
	}
	if r.InputTokens != 1000 {
		t.Errorf("input tokens = %d, want 1000", r.InputTokens)
	}
	if r.OutputTokens != 700 {
		t.Errorf("output tokens = %d, want 700 (thoughts count as output)", r.OutputTokens)
	}
}

func TestComputeNilMetadata(t *testing.T) {
	if r := Compute(nil); r != nil {
		t.Fatalf("nil metadata must yield no record, got %+v", r)
	}
}

func TestComputeMediaInputRates(t *testing.T) {
	meta := &gemini.UsageMetadata{
		PromptTokensDetails: []gemini.TokenDetail{
			{Modality: "AUDIO", TokenCount: 1000},
			{Modality: "IMAGE", TokenCount: 1000},
			{Modality: "VIDEO", TokenCount: 1000},
		},
	}
	r := Compute(meta)
	if !approx(r.InputCost, 0.009) {
		t.Errorf("input cost = %v, want 0.009 (3 x 1000 tokens at 3.00/1M)", r.InputCost)
	}
	if r.TotalCost != r.InputCost {
		t.Errorf("total = %v, want input-only %v", r.TotalCost, r.InputCost)
	}
}

func TestComputeUnknownModalityFree(t *testing.T) {
	meta := &gemini.UsageMetadata{
		PromptTokensDetails: []gemini.TokenDetail{{Modality: "SMELL", TokenCount: 1000}},
	}
	r := Compute(meta)
	if r.InputCost != 0 {
		t.Errorf("unknown modality priced at %v", r.InputCost)
	}
	if r.InputTokens != 1000 {
		t.Errorf("tokens still counted: %d", r.InputTokens)
	}
}

func TestComputeEmptyMetadata(t *testing.T) {
	r := Compute(&gemini.UsageMetadata{})
	if r == nil {
		t.Fatal("empty metadata still yields a zero record")
	}
	if r.TotalCost != 0 || r.InputTokens != 0 || r.OutputTokens != 0 {
		t.Errorf("zero record expected, got %+v", r)
	}
}
