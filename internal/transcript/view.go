package transcript

import "slices"

// ProcessOutcome describes what one [View.Process] call changed.
type ProcessOutcome int

const (
	// OutcomeUnchanged means the input produced no visible change.
	OutcomeUnchanged ProcessOutcome = iota

	// OutcomeUpdated means finals were promoted or the partial tail moved.
	OutcomeUpdated

	// OutcomeCorrected means an already-finalised range was rewritten; the
	// accompanying [PostProcessUpdate] describes the rewrite.
	OutcomeCorrected
)

// DebugFrame is a snapshot of accumulator internals for tooling and
// visualisation. Not part of the stable rendering contract.
type DebugFrame struct {
	PartialStability   []PartialStability
	PostProcessApplied int
	HeldWords          []HeldWord
	Watermarks         []Watermark
}

// View is the stateful driver that accumulates responses and exposes a
// complete [Frame] snapshot on every update. It owns all word IDs it issues.
//
// Callers must serialise Process/Flush/ApplyPostProcess with Frame; two
// separately taken snapshots are each self-consistent.
type View struct {
	acc                *Accumulator
	finalWords         []Word
	speakerHints       []SpeakerHint
	postprocessApplied int
}

// NewView creates a view with UUID word IDs.
func NewView() *View {
	return NewViewWithIDs(UUIDGen{})
}

// NewViewWithIDs creates a view issuing IDs from gen (deterministic tests).
func NewViewWithIDs(gen IDGenerator) *View {
	return &View{acc: NewAccumulator(gen)}
}

// Process feeds one input. For corrections the returned update describes the
// rewrite; for other inputs it is nil.
func (v *View) Process(in Input) (ProcessOutcome, *PostProcessUpdate) {
	if in.Kind == InputCorrection {
		return v.applyCorrection(in.Words)
	}

	update, changed := v.acc.Process(in)
	v.finalWords = append(v.finalWords, update.NewFinalWords...)
	v.speakerHints = append(v.speakerHints, update.SpeakerHints...)
	if !changed && update.empty() {
		return OutcomeUnchanged, nil
	}
	return OutcomeUpdated, nil
}

// Flush drains held and (for [FlushDrainAll]) stable partial words into the
// final history. Session end uses FlushDrainAll.
func (v *View) Flush(mode FlushMode) {
	update := v.acc.Flush(mode)
	v.finalWords = append(v.finalWords, update.NewFinalWords...)
	v.speakerHints = append(v.speakerHints, update.SpeakerHints...)
}

// Frame returns the complete snapshot needed to render the current
// transcript. The returned slices are clones; the caller may hold them across
// further processing.
func (v *View) Frame() Frame {
	return Frame{
		FinalWords:   slices.Clone(v.finalWords),
		PartialWords: v.acc.AllPartials(),
		SpeakerHints: slices.Clone(v.speakerHints),
	}
}

// Debug returns a snapshot of internal pipeline state for tooling.
func (v *View) Debug() DebugFrame {
	return DebugFrame{
		PartialStability:   v.acc.PartialStability(),
		PostProcessApplied: v.postprocessApplied,
		HeldWords:          v.acc.HeldWords(),
		Watermarks:         v.acc.Watermarks(),
	}
}

// applyCorrection replaces the contiguous slice of finalised words whose
// channel matches and whose time range lies fully inside the correction
// span. IDs are preserved positionally; when the correction carries more
// words than it replaces, the extras get fresh IDs. No matching slice leaves
// the transcript unchanged.
func (v *View) applyCorrection(words []RawWord) (ProcessOutcome, *PostProcessUpdate) {
	if len(words) == 0 {
		return OutcomeUnchanged, nil
	}

	corrStart, corrEnd := words[0].StartMS, words[0].EndMS
	for _, w := range words[1:] {
		corrStart = min(corrStart, w.StartMS)
		corrEnd = max(corrEnd, w.EndMS)
	}
	corrChannel := words[0].Channel

	var matched []int
	for i, w := range v.finalWords {
		if w.Channel == corrChannel && w.StartMS >= corrStart && w.EndMS <= corrEnd {
			matched = append(matched, i)
		}
	}
	if len(matched) == 0 {
		return OutcomeUnchanged, nil
	}
	for i := 1; i < len(matched); i++ {
		if matched[i] != matched[i-1]+1 {
			return OutcomeUnchanged, nil
		}
	}

	replacedIDs := make([]string, len(matched))
	for i, idx := range matched {
		replacedIDs[i] = v.finalWords[idx].ID
	}

	var updated []Word
	if len(matched) == len(words) {
		for i, idx := range matched {
			cw := words[i]
			v.finalWords[idx].Text = cw.Text
			v.finalWords[idx].StartMS = cw.StartMS
			v.finalWords[idx].EndMS = cw.EndMS
			updated = append(updated, v.finalWords[idx])
		}
	} else {
		newWords := make([]Word, len(words))
		for i, cw := range words {
			id := ""
			if i < len(replacedIDs) {
				id = replacedIDs[i]
			} else {
				id = v.acc.idGen.NewID()
			}
			newWords[i] = Word{
				ID:      id,
				Text:    cw.Text,
				StartMS: cw.StartMS,
				EndMS:   cw.EndMS,
				Channel: cw.Channel,
			}
		}
		updated = slices.Clone(newWords)
		first := matched[0]
		v.finalWords = slices.Concat(
			v.finalWords[:first],
			newWords,
			v.finalWords[first+len(matched):],
		)
	}

	v.postprocessApplied++
	return OutcomeCorrected, &PostProcessUpdate{
		Updated:     updated,
		ReplacedIDs: replacedIDs,
	}
}

// ApplyPostProcess patches already-finalised words by ID: an external
// collaborator may resubmit a subset of finals (casing or punctuation
// touch-ups). Unknown IDs are ignored silently — the session may have been
// reset between the snapshot and the apply.
func (v *View) ApplyPostProcess(words []Word) PostProcessUpdate {
	var update PostProcessUpdate

	for _, word := range words {
		for i := range v.finalWords {
			if v.finalWords[i].ID == word.ID {
				update.ReplacedIDs = append(update.ReplacedIDs, word.ID)
				v.finalWords[i] = word
				update.Updated = append(update.Updated, word)
				break
			}
		}
	}

	if len(update.Updated) > 0 {
		v.postprocessApplied++
	}
	return update
}
