package transcript

import "sort"

const (
	// StitchMaxGapMS is the largest backward overlap between the last
	// promoted word and the next held word that gets clamped away instead of
	// rendered as overlapping time ranges. Empirically chosen against current
	// providers; exercised by recorded-fixture tests.
	StitchMaxGapMS = 50

	// StabilityMin is the number of consecutive partial frames a word must
	// survive unchanged before a drain-all flush promotes it. Single-shot
	// partials are dropped as noise.
	StabilityMin = 3
)

// FlushMode selects how much of the not-yet-promoted state a flush commits.
type FlushMode int

const (
	// FlushPromotableOnly promotes only the held words.
	FlushPromotableOnly FlushMode = iota

	// FlushDrainAll promotes held words plus every partial observed at least
	// [StabilityMin] consecutive times. Used at session end.
	FlushDrainAll
)

// Update is the delta produced by one accumulator step.
type Update struct {
	NewFinalWords []Word
	SpeakerHints  []SpeakerHint
}

func (u *Update) empty() bool {
	return len(u.NewFinalWords) == 0 && len(u.SpeakerHints) == 0
}

// channelState is the per-channel promotion state.
type channelState struct {
	held        *RawWord
	watermarkMS int64
	partials    []RawWord
	stability   map[string]int
}

// Accumulator reconciles per-channel partial/final streams into promoted
// words. Holding the most recent final word until the next one arrives
// prevents the rendered tail from oscillating when a provider revises its
// last-emitted word.
//
// Not safe for concurrent use; callers serialise Process/Flush with reads.
type Accumulator struct {
	idGen    IDGenerator
	channels map[int]*channelState
}

// NewAccumulator creates an accumulator issuing IDs from gen.
func NewAccumulator(gen IDGenerator) *Accumulator {
	return &Accumulator{
		idGen:    gen,
		channels: make(map[int]*channelState),
	}
}

func (a *Accumulator) channel(ch int) *channelState {
	st, ok := a.channels[ch]
	if !ok {
		st = &channelState{stability: make(map[string]int)}
		a.channels[ch] = st
	}
	return st
}

// Process feeds one final or partial input. Correction inputs are handled a
// level up by the view. Returns the promotion delta and whether anything
// changed (new promotions, a new held word, or a rebuilt partial tail).
func (a *Accumulator) Process(in Input) (Update, bool) {
	switch in.Kind {
	case InputFinal:
		return a.processFinal(in.Words)
	case InputPartial:
		a.processPartial(in.Words)
		return Update{}, len(in.Words) > 0
	default:
		return Update{}, false
	}
}

func (a *Accumulator) processFinal(words []RawWord) (Update, bool) {
	var update Update
	changed := false

	for _, w := range words {
		st := a.channel(w.Channel)

		// Dedup: anything at or behind the watermark was already promoted.
		if w.EndMS <= st.watermarkMS {
			continue
		}
		changed = true

		if st.held != nil {
			a.promote(st, &update)
		}
		held := w
		st.held = &held

		// The final supersedes this channel's partial hypothesis.
		st.partials = nil
		st.stability = make(map[string]int)
	}

	return update, changed
}

func (a *Accumulator) processPartial(words []RawWord) {
	// Rebuild per-channel partial tails; stability counts how many
	// consecutive frames carried the same word text.
	byChannel := make(map[int][]RawWord)
	for _, w := range words {
		byChannel[w.Channel] = append(byChannel[w.Channel], w)
	}

	for ch, chWords := range byChannel {
		st := a.channel(ch)
		next := make(map[string]int, len(chWords))
		for _, w := range chWords {
			if prev, ok := st.stability[w.Text]; ok {
				next[w.Text] = prev + 1
			} else {
				next[w.Text] = 1
			}
		}
		st.partials = chWords
		st.stability = next
	}
}

// promote issues an ID for the held word, appends it to the update, and
// raises the watermark. The stitch clamp removes small backward overlaps
// against the previous promoted word on the same channel.
func (a *Accumulator) promote(st *channelState, update *Update) {
	held := *st.held
	st.held = nil

	if held.StartMS < st.watermarkMS && st.watermarkMS-held.StartMS <= StitchMaxGapMS {
		held.StartMS = st.watermarkMS
	}

	word := Word{
		ID:      a.idGen.NewID(),
		Text:    held.Text,
		StartMS: held.StartMS,
		EndMS:   held.EndMS,
		Channel: held.Channel,
	}
	update.NewFinalWords = append(update.NewFinalWords, word)
	if held.Speaker != nil {
		update.SpeakerHints = append(update.SpeakerHints, SpeakerHint{
			WordID:  word.ID,
			Speaker: *held.Speaker,
		})
	}

	if held.EndMS > st.watermarkMS {
		st.watermarkMS = held.EndMS
	}
}

// Flush drains not-yet-promoted state per mode and returns the delta.
func (a *Accumulator) Flush(mode FlushMode) Update {
	var update Update

	for _, ch := range a.sortedChannels() {
		st := a.channels[ch]
		if st.held != nil {
			a.promote(st, &update)
		}
		if mode != FlushDrainAll {
			continue
		}
		for _, p := range st.partials {
			if st.stability[p.Text] < StabilityMin {
				continue
			}
			if p.EndMS <= st.watermarkMS {
				continue
			}
			held := p
			st.held = &held
			a.promote(st, &update)
		}
		st.partials = nil
		st.stability = make(map[string]int)
	}

	return update
}

// AllPartials returns the current partial tail across channels, ordered by
// start time then channel.
func (a *Accumulator) AllPartials() []RawWord {
	var out []RawWord
	for _, ch := range a.sortedChannels() {
		out = append(out, a.channels[ch].partials...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartMS != out[j].StartMS {
			return out[i].StartMS < out[j].StartMS
		}
		return out[i].Channel < out[j].Channel
	})
	return out
}

// PartialStability reports each in-flight partial word with its consecutive
// confirmation count. Debug surface only.
func (a *Accumulator) PartialStability() []PartialStability {
	var out []PartialStability
	for _, ch := range a.sortedChannels() {
		st := a.channels[ch]
		for _, p := range st.partials {
			out = append(out, PartialStability{Text: p.Text, Count: st.stability[p.Text]})
		}
	}
	return out
}

// HeldWords reports the word currently held by the stitch stage per channel.
// Debug surface only.
func (a *Accumulator) HeldWords() []HeldWord {
	var out []HeldWord
	for _, ch := range a.sortedChannels() {
		if st := a.channels[ch]; st.held != nil {
			out = append(out, HeldWord{Channel: ch, Text: st.held.Text})
		}
	}
	return out
}

// Watermarks reports the dedup watermark per channel. Debug surface only.
func (a *Accumulator) Watermarks() []Watermark {
	var out []Watermark
	for _, ch := range a.sortedChannels() {
		out = append(out, Watermark{Channel: ch, MS: a.channels[ch].watermarkMS})
	}
	return out
}

func (a *Accumulator) sortedChannels() []int {
	chs := make([]int, 0, len(a.channels))
	for ch := range a.channels {
		chs = append(chs, ch)
	}
	sort.Ints(chs)
	return chs
}

// PartialStability pairs an in-flight partial word with its confirmation
// count.
type PartialStability struct {
	Text  string
	Count int
}

// HeldWord identifies the held word of one channel.
type HeldWord struct {
	Channel int
	Text    string
}

// Watermark is the per-channel dedup watermark.
type Watermark struct {
	Channel int
	MS      int64
}
