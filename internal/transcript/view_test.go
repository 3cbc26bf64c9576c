package transcript

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/auralis-ai/auralis/pkg/stt"
)

func finalizedView(t *testing.T, words ...RawWord) *View {
	t.Helper()
	v := newTestView()
	v.Process(finalInput(words...))
	v.Flush(FlushPromotableOnly)
	return v
}

func correction(words ...RawWord) Input {
	return Input{Kind: InputCorrection, Words: words}
}

func TestCorrectionReplacesMatchingRange(t *testing.T) {
	v := finalizedView(t,
		raw(" Hello", 0, 500, 0),
		raw(" world", 520, 900, 0),
	)
	before := v.Frame().FinalWords
	require.Len(t, before, 2)

	outcome, update := v.Process(correction(
		raw(" Hola", 0, 500, 0),
		raw(" mundo", 520, 900, 0),
	))
	require.Equal(t, OutcomeCorrected, outcome)
	require.NotNil(t, update)

	after := v.Frame().FinalWords
	require.Equal(t, []string{" Hola", " mundo"}, texts(after))
	// IDs are preserved when the counts match.
	require.Equal(t, before[0].ID, after[0].ID)
	require.Equal(t, before[1].ID, after[1].ID)
	require.Equal(t, []string{before[0].ID, before[1].ID}, update.ReplacedIDs)
}

func TestCorrectionCountMismatchSplices(t *testing.T) {
	v := finalizedView(t,
		raw(" Hello", 0, 500, 0),
		raw(" world", 520, 900, 0),
	)
	before := v.Frame().FinalWords

	outcome, _ := v.Process(correction(
		raw(" Hola", 0, 400, 0),
		raw(" querido", 400, 700, 0),
		raw(" mundo", 700, 900, 0),
	))
	require.Equal(t, OutcomeCorrected, outcome)

	after := v.Frame().FinalWords
	require.Equal(t, []string{" Hola", " querido", " mundo"}, texts(after))
	// Leading IDs are preserved; the extra word gets a fresh ID.
	require.Equal(t, before[0].ID, after[0].ID)
	require.Equal(t, before[1].ID, after[1].ID)
	require.NotEqual(t, before[0].ID, after[2].ID)
	require.NotEqual(t, before[1].ID, after[2].ID)
}

func TestCorrectionNoMatchIsUnchanged(t *testing.T) {
	v := finalizedView(t, raw(" Hello", 0, 500, 0))

	outcome, update := v.Process(correction(raw(" nope", 5000, 6000, 0)))
	require.Equal(t, OutcomeUnchanged, outcome)
	require.Nil(t, update)
	require.Equal(t, []string{" Hello"}, texts(v.Frame().FinalWords))
}

func TestCorrectionWrongChannelIsUnchanged(t *testing.T) {
	v := finalizedView(t, raw(" Hello", 0, 500, 0))

	outcome, _ := v.Process(correction(raw(" Hallo", 0, 500, 1)))
	require.Equal(t, OutcomeUnchanged, outcome)
}

func TestApplyPostProcessPatchesByID(t *testing.T) {
	v := finalizedView(t,
		raw(" hello", 0, 500, 0),
		raw(" world", 520, 900, 0),
	)
	frame := v.Frame()

	patched := frame.FinalWords[0]
	patched.Text = " Hello,"
	update := v.ApplyPostProcess([]Word{patched})

	require.Len(t, update.Updated, 1)
	require.Equal(t, []string{frame.FinalWords[0].ID}, update.ReplacedIDs)
	require.Equal(t, " Hello,", v.Frame().FinalWords[0].Text)
}

func TestApplyPostProcessIgnoresUnknownIDs(t *testing.T) {
	v := finalizedView(t, raw(" hello", 0, 500, 0))

	update := v.ApplyPostProcess([]Word{{
		ID:      "nonexistent",
		Text:    " x",
		StartMS: 0,
		EndMS:   100,
	}})
	require.Empty(t, update.Updated)
	require.Empty(t, update.ReplacedIDs)
	require.Equal(t, " hello", v.Frame().FinalWords[0].Text)
}

func TestFrameSnapshotsAreIndependent(t *testing.T) {
	v := finalizedView(t, raw(" hello", 0, 500, 0))

	first := v.Frame()
	v.Process(finalInput(raw(" again", 520, 900, 0)))
	v.Flush(FlushPromotableOnly)
	second := v.Frame()

	require.Len(t, first.FinalWords, 1)
	require.Len(t, second.FinalWords, 2)

	// Mutating one snapshot must not leak into the other.
	first.FinalWords[0].Text = "mutated"
	require.Equal(t, " hello", second.FinalWords[0].Text)
}

// ---- stream response conversion ----

func transcriptResponse(isFinal bool, channelIndex []int, words ...stt.Word) *stt.StreamResponse {
	return &stt.StreamResponse{
		Type:         stt.ResponseTranscript,
		IsFinal:      isFinal,
		ChannelIndex: channelIndex,
		Channel: stt.Channel{
			Alternatives: []stt.Alternative{{Words: words, Confidence: 1.0}},
		},
	}
}

func TestFromStreamResponse_Final(t *testing.T) {
	resp := transcriptResponse(true, []int{1, 2},
		stt.Word{Word: "hi", Start: 0.1, End: 0.45, PunctuatedWord: " Hi"},
	)
	in, ok := FromStreamResponse(resp)
	require.True(t, ok)
	require.Equal(t, InputFinal, in.Kind)
	require.Len(t, in.Words, 1)
	require.Equal(t, " Hi", in.Words[0].Text)
	require.Equal(t, int64(100), in.Words[0].StartMS)
	require.Equal(t, int64(450), in.Words[0].EndMS)
	require.Equal(t, 1, in.Words[0].Channel)
}

func TestFromStreamResponse_Partial(t *testing.T) {
	resp := transcriptResponse(false, []int{0},
		stt.Word{Word: " he", Start: 0.1, End: 0.2},
	)
	in, ok := FromStreamResponse(resp)
	require.True(t, ok)
	require.Equal(t, InputPartial, in.Kind)
	// No punctuated form: the raw word text is used.
	require.Equal(t, " he", in.Words[0].Text)
}

func TestFromStreamResponse_CloudCorrected(t *testing.T) {
	resp := transcriptResponse(true, []int{0},
		stt.Word{Word: " Hola", Start: 0.0, End: 0.5},
	)
	resp.FromFinalize = true
	resp.Metadata = &stt.Metadata{Extra: map[string]any{"cloud_corrected": true}}

	in, ok := FromStreamResponse(resp)
	require.True(t, ok)
	require.Equal(t, InputCorrection, in.Kind)
}

func TestFromStreamResponse_SkipsNonTranscript(t *testing.T) {
	_, ok := FromStreamResponse(&stt.StreamResponse{Type: stt.ResponseTerminal})
	require.False(t, ok)

	_, ok = FromStreamResponse(transcriptResponse(true, []int{0}))
	require.False(t, ok, "empty word list carries nothing")
}
