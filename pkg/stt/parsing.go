package stt

import "strings"

// SpanOf computes the (start, duration) covered by a word list. Words without
// timing contribute nothing; an untimed list yields (0, 0).
func SpanOf(words []Word) (start, duration float64) {
	first := true
	var end float64
	for _, w := range words {
		if w.Start == 0 && w.End == 0 {
			continue
		}
		if first || w.Start < start {
			start = w.Start
		}
		if w.End > end {
			end = w.End
		}
		first = false
	}
	if first {
		return 0, 0
	}
	return start, end - start
}

// SyntheticWords splits a plain transcript into untimed words for providers
// that deliver text without word-level detail. Each word keeps a leading
// space so that joining the list reproduces the transcript spacing.
func SyntheticWords(transcript string) []Word {
	fields := strings.Fields(transcript)
	words := make([]Word, 0, len(fields))
	for _, f := range fields {
		words = append(words, Word{
			Word:           " " + f,
			Confidence:     1.0,
			PunctuatedWord: " " + f,
		})
	}
	return words
}

// TranscriptResponse assembles a single-alternative transcript response from
// a word list. Convenience for adapters that synthesise the canonical shape.
func TranscriptResponse(transcript string, words []Word, isFinal, speechFinal bool) StreamResponse {
	start, duration := SpanOf(words)
	return StreamResponse{
		Type:        ResponseTranscript,
		IsFinal:     isFinal,
		SpeechFinal: speechFinal,
		Start:       start,
		Duration:    duration,
		Channel: Channel{
			Alternatives: []Alternative{{
				Transcript: transcript,
				Confidence: 1.0,
				Words:      words,
			}},
		},
		ChannelIndex: []int{0},
	}
}

// ErrorResponse assembles a provider error event.
func ErrorResponse(provider, message string, code *int) StreamResponse {
	return StreamResponse{
		Type:         ResponseError,
		ErrorCode:    code,
		ErrorMessage: message,
		Provider:     provider,
	}
}
