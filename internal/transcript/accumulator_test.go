package transcript

import "testing"

func raw(text string, start, end int64, channel int) RawWord {
	return RawWord{Text: text, StartMS: start, EndMS: end, Channel: channel}
}

func finalInput(words ...RawWord) Input   { return Input{Kind: InputFinal, Words: words} }
func partialInput(words ...RawWord) Input { return Input{Kind: InputPartial, Words: words} }

func newTestView() *View {
	return NewViewWithIDs(&SequentialGen{})
}

func texts(words []Word) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = w.Text
	}
	return out
}

func assertTexts(t *testing.T, words []Word, want ...string) {
	t.Helper()
	got := texts(words)
	if len(got) != len(want) {
		t.Fatalf("final words = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("final words = %v, want %v", got, want)
		}
	}
}

// Two partial-only updates, then a final covering the first word: the final
// is held back and the partial tail is superseded.
func TestPartialsThenFinalHoldsWord(t *testing.T) {
	v := newTestView()

	v.Process(partialInput(raw(" hi", 100, 300, 0)))
	v.Process(partialInput(raw(" hi", 100, 300, 0), raw(" there", 320, 600, 0)))
	v.Process(finalInput(raw(" hi", 100, 300, 0)))

	frame := v.Frame()
	if len(frame.FinalWords) != 0 {
		t.Errorf("final words = %v, want none (held)", texts(frame.FinalWords))
	}
	if len(frame.PartialWords) != 0 {
		t.Errorf("partial words = %+v, want none after final", frame.PartialWords)
	}

	v.Flush(FlushDrainAll)
	assertTexts(t, v.Frame().FinalWords, " hi")
}

// A late partial behind an already-held final does not disturb the held word.
func TestFinalThenLatePartial(t *testing.T) {
	v := newTestView()

	v.Process(finalInput(raw(" one", 0, 400, 0)))
	v.Process(partialInput(raw(" oh", 0, 200, 0)))

	frame := v.Frame()
	if len(frame.FinalWords) != 0 {
		t.Fatalf("final words = %v, want none", texts(frame.FinalWords))
	}
	if len(frame.PartialWords) != 1 || frame.PartialWords[0].Text != " oh" {
		t.Fatalf("partial words = %+v, want [\" oh\"]", frame.PartialWords)
	}

	v.Flush(FlushPromotableOnly)
	assertTexts(t, v.Frame().FinalWords, " one")
}

// Finals promote in order: holding the newest word releases its predecessor.
func TestHeldWordPromotionChain(t *testing.T) {
	v := newTestView()

	v.Process(finalInput(raw(" a", 0, 300, 0)))
	v.Process(finalInput(raw(" b", 320, 600, 0)))
	assertTexts(t, v.Frame().FinalWords, " a")

	v.Process(finalInput(raw(" c", 620, 900, 0)))
	assertTexts(t, v.Frame().FinalWords, " a", " b")

	v.Flush(FlushPromotableOnly)
	assertTexts(t, v.Frame().FinalWords, " a", " b", " c")
}

// Dedup: a final word wholly behind the watermark is dropped.
func TestWatermarkDedup(t *testing.T) {
	v := newTestView()

	v.Process(finalInput(raw(" a", 0, 300, 0)))
	v.Process(finalInput(raw(" b", 320, 600, 0))) // promotes " a", watermark 300→600 on flush chain
	v.Flush(FlushPromotableOnly)                  // promotes " b", watermark 600

	// A repeated final entirely behind the watermark must vanish.
	v.Process(finalInput(raw(" b", 320, 600, 0)))
	v.Flush(FlushPromotableOnly)
	assertTexts(t, v.Frame().FinalWords, " a", " b")
}

// Monotonic finals: the history only grows, and IDs never rebind.
func TestMonotonicFinalsAndStableIDs(t *testing.T) {
	v := newTestView()

	v.Process(finalInput(raw(" a", 0, 300, 0)))
	v.Process(finalInput(raw(" b", 320, 600, 0)))

	first := v.Frame()
	v.Process(finalInput(raw(" c", 620, 900, 0)))
	second := v.Frame()

	if len(second.FinalWords) < len(first.FinalWords) {
		t.Fatal("final history shrank")
	}
	for i, w := range first.FinalWords {
		if second.FinalWords[i].ID != w.ID ||
			second.FinalWords[i].StartMS != w.StartMS ||
			second.FinalWords[i].Channel != w.Channel {
			t.Fatalf("word %d rebound: %+v vs %+v", i, w, second.FinalWords[i])
		}
	}
}

// Watermark dominance: every promoted word's end is at or below the channel
// watermark, and each promotion raised it.
func TestWatermarkDominance(t *testing.T) {
	v := newTestView()

	v.Process(finalInput(raw(" a", 0, 300, 0)))
	v.Process(finalInput(raw(" b", 320, 600, 0)))
	v.Flush(FlushPromotableOnly)

	marks := v.Debug().Watermarks
	if len(marks) != 1 || marks[0].MS != 600 {
		t.Fatalf("watermarks = %+v, want channel 0 at 600", marks)
	}
	for _, w := range v.Frame().FinalWords {
		if w.EndMS > marks[0].MS {
			t.Errorf("word %q ends at %d, beyond watermark %d", w.Text, w.EndMS, marks[0].MS)
		}
	}
}

// Stitch: a small backward overlap against the previous final is clamped
// away at promotion.
func TestStitchClampsBackwardOverlap(t *testing.T) {
	v := newTestView()

	v.Process(finalInput(raw(" a", 0, 400, 0)))
	v.Process(finalInput(raw(" b", 380, 800, 0))) // promotes " a"; holds " b"
	v.Flush(FlushPromotableOnly)

	words := v.Frame().FinalWords
	assertTexts(t, words, " a", " b")
	if words[1].StartMS != 400 {
		t.Errorf("stitched start = %d, want clamped to 400", words[1].StartMS)
	}
}

// A gap wider than the stitch threshold is left alone.
func TestStitchLeavesWideOverlapAlone(t *testing.T) {
	v := newTestView()

	v.Process(finalInput(raw(" a", 0, 400, 0)))
	v.Process(finalInput(raw(" b", 300, 800, 0)))
	v.Flush(FlushPromotableOnly)

	words := v.Frame().FinalWords
	if words[1].StartMS != 300 {
		t.Errorf("start = %d, want untouched 300", words[1].StartMS)
	}
}

// Stability-gated flush: a partial seen three consecutive frames is promoted
// by a drain-all flush; a single-shot partial is dropped as noise.
func TestStabilityGatedFlush(t *testing.T) {
	v := newTestView()

	for range 3 {
		v.Process(partialInput(raw(" uh", 100, 250, 0)))
	}
	v.Process(partialInput(raw(" uh", 100, 250, 0), raw(" blip", 260, 300, 0)))

	v.Flush(FlushDrainAll)
	assertTexts(t, v.Frame().FinalWords, " uh")
}

// Channels accumulate independently: held words and watermarks do not leak.
func TestChannelsIndependent(t *testing.T) {
	v := newTestView()

	v.Process(finalInput(raw(" mic", 0, 300, 0)))
	v.Process(finalInput(raw(" spk", 0, 280, 1)))
	v.Process(finalInput(raw(" mic2", 320, 600, 0)))

	assertTexts(t, v.Frame().FinalWords, " mic")

	v.Flush(FlushPromotableOnly)
	frame := v.Frame()
	if len(frame.FinalWords) != 3 {
		t.Fatalf("final words = %v, want 3 across channels", texts(frame.FinalWords))
	}
}

// Speaker hints are issued at promotion and keyed by word ID.
func TestSpeakerHints(t *testing.T) {
	v := newTestView()
	speaker := 1

	w := raw(" hey", 0, 300, 0)
	w.Speaker = &speaker
	v.Process(finalInput(w))
	v.Flush(FlushPromotableOnly)

	frame := v.Frame()
	if len(frame.SpeakerHints) != 1 {
		t.Fatalf("speaker hints = %+v, want 1", frame.SpeakerHints)
	}
	if frame.SpeakerHints[0].WordID != frame.FinalWords[0].ID {
		t.Error("hint does not reference the promoted word's ID")
	}
	if frame.SpeakerHints[0].Speaker != 1 {
		t.Errorf("speaker = %d, want 1", frame.SpeakerHints[0].Speaker)
	}
}

// Empty-session roundtrip: start → flush → frame yields empty state.
func TestEmptySessionRoundtrip(t *testing.T) {
	v := newTestView()
	v.Flush(FlushDrainAll)
	frame := v.Frame()
	if len(frame.FinalWords) != 0 || len(frame.PartialWords) != 0 || len(frame.SpeakerHints) != 0 {
		t.Errorf("empty session frame not empty: %+v", frame)
	}
}

// Debug snapshot reflects held words and partial stability counts.
func TestDebugSnapshot(t *testing.T) {
	v := newTestView()

	v.Process(partialInput(raw(" maybe", 0, 200, 0)))
	v.Process(partialInput(raw(" maybe", 0, 200, 0)))
	v.Process(finalInput(raw(" sure", 0, 250, 1)))

	debug := v.Debug()
	if len(debug.HeldWords) != 1 || debug.HeldWords[0].Text != " sure" {
		t.Errorf("held words = %+v, want [\" sure\" on channel 1]", debug.HeldWords)
	}
	if len(debug.PartialStability) != 1 || debug.PartialStability[0].Count != 2 {
		t.Errorf("stability = %+v, want [\" maybe\" ×2]", debug.PartialStability)
	}
}
