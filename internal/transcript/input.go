package transcript

import (
	"math"

	"github.com/auralis-ai/auralis/pkg/stt"
)

// InputKind selects the accumulator path an input takes.
type InputKind int

const (
	// InputPartial rebuilds the current best-guess tail.
	InputPartial InputKind = iota

	// InputFinal feeds the held-word/watermark promotion path.
	InputFinal

	// InputCorrection rewrites an already-finalised range in place.
	InputCorrection
)

// Input is one unit of work for the accumulator: a word list plus the path
// it should take.
type Input struct {
	Kind  InputKind
	Words []RawWord
}

// FromStreamResponse converts a normalised provider response into an Input.
// Returns false for responses that carry nothing for the accumulator
// (non-transcript events, empty word lists).
//
// A final marked cloud-corrected by the provider becomes a correction: the
// words revise an already-delivered range instead of extending the tail.
func FromStreamResponse(r *stt.StreamResponse) (Input, bool) {
	if r.Type != stt.ResponseTranscript {
		return Input{}, false
	}
	words := r.Words()
	if len(words) == 0 {
		return Input{}, false
	}

	channel := r.PrimaryChannel()
	raw := make([]RawWord, 0, len(words))
	for _, w := range words {
		text := w.PunctuatedWord
		if text == "" {
			text = w.Word
		}
		raw = append(raw, RawWord{
			Text:    text,
			StartMS: msFromSeconds(w.Start),
			EndMS:   msFromSeconds(w.End),
			Channel: channel,
			Speaker: w.Speaker,
		})
	}

	kind := InputPartial
	switch {
	case r.CloudCorrected():
		kind = InputCorrection
	case r.IsFinal:
		kind = InputFinal
	}
	return Input{Kind: kind, Words: raw}, true
}

func msFromSeconds(s float64) int64 {
	return int64(math.Round(s * 1000))
}
