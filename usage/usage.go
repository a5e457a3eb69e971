// Package usage prices the token counts reported at the end of each
// turn. Stateless; rates are fixed per million tokens and keyed by
// direction and modality.
package usage

import (
	"time"

	"vox/gemini"
)

// Per-million-token rates in USD. Thoughts are billed at the text
// output rate and counted as output tokens.
const (
	rateInputText   = 0.50
	rateInputMedia  = 3.00 // AUDIO, IMAGE and VIDEO input
	rateOutputText  = 2.00
	rateOutputAudio = 12.00
)

const perMillion = 1_000_000

// Record is the priced result for one completed turn. Created once per
// turn-complete event and never mutated afterwards.
type Record struct {
	InputTokens  int       `json:"inputTokens"`
	InputCost    float64   `json:"inputCost"`
	OutputTokens int       `json:"outputTokens"`
	OutputCost   float64   `json:"outputCost"`
	TotalCost    float64   `json:"totalCost"`
	Timestamp    time.Time `json:"timestamp"`
}

func inputRate(modality string) float64 {
	switch modality {
	case "TEXT":
		return rateInputText
	case "AUDIO", "IMAGE", "VIDEO":
		return rateInputMedia
	}
	return 0
}

func outputRate(modality string) float64 {
	switch modality {
	case "TEXT":
		return rateOutputText
	case "AUDIO":
		return rateOutputAudio
	}
	return 0
}

// Compute prices one usage-metadata message. A nil message yields no
// record.
func Compute(meta *gemini.UsageMetadata) *Record {
	if meta == nil {
		return nil
	}

	var r Record
	for _, d := range meta.PromptTokensDetails {
		r.InputTokens += d.TokenCount
		r.InputCost += float64(d.TokenCount) / perMillion * inputRate(d.Modality)
	}
	for _, d := range meta.ResponseTokensDetails {
		r.OutputTokens += d.TokenCount
		r.OutputCost += float64(d.TokenCount) / perMillion * outputRate(d.Modality)
	}
	if meta.ThoughtsTokenCount > 0 {
		r.OutputTokens += meta.ThoughtsTokenCount
		r.OutputCost += float64(meta.ThoughtsTokenCount) / perMillion * rateOutputText
	}
	r.TotalCost = r.InputCost + r.OutputCost
	return &r
}
