package stt

// ResponseType tags the variants of [StreamResponse]. The wire names follow
// the Deepgram-style event vocabulary, which is also the canonical JSON form
// spoken by the relay adapter.
type ResponseType string

const (
	// ResponseTranscript carries a partial or final recognition result.
	ResponseTranscript ResponseType = "Results"

	// ResponseError carries a provider-reported stream error.
	ResponseError ResponseType = "Error"

	// ResponseSpeechStarted signals detected speech onset.
	ResponseSpeechStarted ResponseType = "SpeechStarted"

	// ResponseUtteranceEnd signals the end of an utterance.
	ResponseUtteranceEnd ResponseType = "UtteranceEnd"

	// ResponseTerminal is the provider's end-of-session summary, emitted in
	// reply to the finalize frame.
	ResponseTerminal ResponseType = "Metadata"
)

// Word is one recognised word with provider timing in seconds from session
// start.
type Word struct {
	Word           string  `json:"word"`
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
	Confidence     float64 `json:"confidence"`
	Speaker        *int    `json:"speaker,omitempty"`
	PunctuatedWord string  `json:"punctuated_word,omitempty"`
	Language       string  `json:"language,omitempty"`
}

// Alternative is one recognition hypothesis.
type Alternative struct {
	Transcript string   `json:"transcript"`
	Confidence float64  `json:"confidence"`
	Words      []Word   `json:"words"`
	Languages  []string `json:"languages,omitempty"`
}

// Channel wraps the hypotheses for one audio channel.
type Channel struct {
	Alternatives []Alternative `json:"alternatives"`
}

// Metadata carries provider-specific response annotations. Extra holds
// markers such as the cloud-correction flag used by the transcript layer.
type Metadata struct {
	RequestID string         `json:"request_id,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// StreamResponse is the adapter-normalised event model. Type selects the
// variant; the other fields are meaningful only for their variant.
type StreamResponse struct {
	Type ResponseType `json:"type"`

	// Transcript fields.
	IsFinal      bool      `json:"is_final,omitempty"`
	SpeechFinal  bool      `json:"speech_final,omitempty"`
	FromFinalize bool      `json:"from_finalize,omitempty"`
	Start        float64   `json:"start,omitempty"`
	Duration     float64   `json:"duration,omitempty"`
	Channel      Channel   `json:"channel"`
	ChannelIndex []int     `json:"channel_index,omitempty"`
	Metadata     *Metadata `json:"metadata,omitempty"`

	// Error fields.
	ErrorCode    *int   `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	Provider     string `json:"provider,omitempty"`

	// SpeechStarted / UtteranceEnd fields.
	Timestamp   float64 `json:"timestamp,omitempty"`
	LastWordEnd float64 `json:"last_word_end,omitempty"`

	// Terminal fields.
	TotalDuration float64 `json:"total_duration,omitempty"`
	Channels      int     `json:"channels,omitempty"`
}

// RemapChannelIndex rewrites the channel index of a transcript response to
// [primary, marker]. Mono-mode sessions use it to pin single-stream arrivals
// onto the engine's canonical channel numbering (0 = mic, 1 = speaker) with
// the trailing either-channel marker expected by hosts.
func (r *StreamResponse) RemapChannelIndex(primary, marker int) {
	if r.Type != ResponseTranscript {
		return
	}
	r.ChannelIndex = []int{primary, marker}
}

// PrimaryChannel reports the first channel index of a transcript response,
// defaulting to 0 when the provider attached none.
func (r *StreamResponse) PrimaryChannel() int {
	if len(r.ChannelIndex) > 0 {
		return r.ChannelIndex[0]
	}
	return 0
}

// Words returns the word list of the best hypothesis, or nil.
func (r *StreamResponse) Words() []Word {
	if len(r.Channel.Alternatives) == 0 {
		return nil
	}
	return r.Channel.Alternatives[0].Words
}

// Transcript returns the text of the best hypothesis, or empty.
func (r *StreamResponse) Transcript() string {
	if len(r.Channel.Alternatives) == 0 {
		return ""
	}
	return r.Channel.Alternatives[0].Transcript
}

// CloudCorrected reports whether the provider marked this final as a
// post-hoc correction of already-delivered words.
func (r *StreamResponse) CloudCorrected() bool {
	if r.Metadata == nil {
		return false
	}
	v, ok := r.Metadata.Extra["cloud_corrected"].(bool)
	return ok && v
}
