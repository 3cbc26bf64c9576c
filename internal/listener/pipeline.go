package listener

import (
	"log/slog"
	"math"
	"time"

	"github.com/auralis-ai/auralis/internal/aec"
	"github.com/auralis-ai/auralis/internal/vad"
	"github.com/auralis-ai/auralis/pkg/audio"
)

const (
	// maxQueueSize bounds each joiner channel queue; the oldest chunk is
	// dropped on overflow.
	maxQueueSize = 30

	// maxLag is how many chunks one channel may run ahead of an empty peer in
	// dual mode before the peer is padded with silence.
	maxLag = 4

	// maxBufferChunks bounds the audio buffer that absorbs listener outages.
	maxBufferChunks = 150

	// Backlog drain pacing: the quota grows per live flush and each buffered
	// frame costs one, so history catches up without starving live audio.
	backlogQuotaIncrement = 0.25
	maxBacklogQuota       = 2.0

	// amplitudeThrottle is the minimum spacing between amplitude events.
	amplitudeThrottle = 100 * time.Millisecond
)

// pipeline converts raw capture into listener-bound and recorder-bound frames:
// joiner pairing, echo cancellation, VAD masking, amplitude metering, and
// buffering across listener outages. The whole hot path runs synchronously
// inside the source actor's handler so chunks cannot reorder.
type pipeline struct {
	joiner    *joiner
	canceller *aec.Canceller
	mask      *vad.Mask
	amplitude *amplitudeEmitter

	listener *Listener
	recorder *Recorder

	buffer       *audioBuffer
	backlogQuota float64
}

func newPipeline(sink EventSink, sessionID string) *pipeline {
	return &pipeline{
		joiner:    newJoiner(),
		canceller: aec.New(),
		mask:      vad.NewMask(),
		amplitude: newAmplitudeEmitter(sink, sessionID),
		buffer:    newAudioBuffer(maxBufferChunks),
	}
}

// reset clears all stream state; used when the source restarts.
func (p *pipeline) reset() {
	p.joiner.reset()
	p.canceller.Reset()
	p.mask.Reset()
	p.amplitude.reset()
	p.buffer.clear()
	p.backlogQuota = 0
}

func (p *pipeline) setListener(l *Listener) {
	p.listener = l
}

func (p *pipeline) setRecorder(r *Recorder) {
	p.recorder = r
}

func (p *pipeline) ingestMic(chunk []float32) {
	p.joiner.pushMic(chunk)
}

func (p *pipeline) ingestSpeaker(chunk []float32) {
	p.joiner.pushSpk(chunk)
}

// flush drains every emittable pair out of the joiner.
func (p *pipeline) flush(mode ChannelMode) {
	for {
		mic, spk, ok := p.joiner.popPair(mode)
		if !ok {
			return
		}
		p.dispatch(mic, spk, mode)
	}
}

func (p *pipeline) dispatch(mic, spk []float32, mode ChannelMode) {
	processedMic, err := p.canceller.Process(mic, spk)
	if err != nil {
		slog.Warn("aec failed, passing mic through", "err", err)
		processedMic = mic
	}

	p.mask.Process(processedMic)

	p.amplitude.observeMic(processedMic)
	p.amplitude.observeSpk(spk)

	if p.recorder != nil {
		switch mode {
		case MicOnly:
			p.recorder.trySend(recorderFrame{mic: processedMic})
		case SpeakerOnly:
			p.recorder.trySend(recorderFrame{mic: spk})
		case MicAndSpeaker:
			p.recorder.trySend(recorderFrame{mic: processedMic, spk: spk, dual: true})
		}
	}

	if p.listener == nil {
		p.buffer.push(processedMic, spk, mode)
		slog.Debug("listener unavailable, buffering audio", "buffered", p.buffer.len())
		return
	}

	p.drainBacklog(mode)
	p.sendToListener(processedMic, spk, mode)
}

// drainBacklog interleaves buffered frames with live ones under a floating
// quota so historical audio catches up without overwhelming the adapter.
// Buffered frames whose mode no longer matches are skipped.
func (p *pipeline) drainBacklog(mode ChannelMode) {
	if p.buffer.empty() {
		return
	}
	p.backlogQuota = math.Min(p.backlogQuota+backlogQuotaIncrement, maxBacklogQuota)

	for p.backlogQuota >= 1.0 {
		mic, spk, bufferedMode, ok := p.buffer.pop()
		if !ok {
			return
		}
		if bufferedMode != mode {
			continue
		}
		p.sendToListener(mic, spk, mode)
		p.backlogQuota -= 1.0
	}
}

func (p *pipeline) sendToListener(mic, spk []float32, mode ChannelMode) {
	switch mode {
	case MicOnly:
		p.listener.trySendSingle(audio.F32ToS16LE(mic))
	case SpeakerOnly:
		p.listener.trySendSingle(audio.F32ToS16LE(spk))
	case MicAndSpeaker:
		p.listener.trySendDual(audio.F32ToS16LE(mic), audio.F32ToS16LE(spk))
	}
}

// ---- audio buffer ----

type bufferedAudio struct {
	mic  []float32
	spk  []float32
	mode ChannelMode
}

// audioBuffer holds listener-bound frames while no listener is registered
// (slow connect, post-restart gap). Overflow evicts the oldest frame with a
// one-shot warning.
type audioBuffer struct {
	frames      []bufferedAudio
	maxSize     int
	overflowing bool
}

func newAudioBuffer(maxSize int) *audioBuffer {
	return &audioBuffer{maxSize: maxSize}
}

func (b *audioBuffer) push(mic, spk []float32, mode ChannelMode) {
	if len(b.frames) >= b.maxSize {
		b.frames = b.frames[1:]
		if !b.overflowing {
			b.overflowing = true
			slog.Warn("audio buffer overflow while listener unavailable")
		}
	}
	b.frames = append(b.frames, bufferedAudio{mic: mic, spk: spk, mode: mode})
}

func (b *audioBuffer) pop() (mic, spk []float32, mode ChannelMode, ok bool) {
	if len(b.frames) == 0 {
		return nil, nil, 0, false
	}
	f := b.frames[0]
	b.frames = b.frames[1:]
	if b.overflowing && len(b.frames) < b.maxSize {
		b.overflowing = false
	}
	return f.mic, f.spk, f.mode, true
}

func (b *audioBuffer) len() int    { return len(b.frames) }
func (b *audioBuffer) empty() bool { return len(b.frames) == 0 }
func (b *audioBuffer) clear()      { b.frames = nil; b.overflowing = false }

// ---- joiner ----

// joiner pairs mic and speaker chunks into atomic (mic, spk) emissions.
// Bounded per-channel queues drop the oldest chunk on overflow; silence
// buffers are cached by length to avoid per-frame allocation.
type joiner struct {
	mic          [][]float32
	spk          [][]float32
	silenceCache map[int][]float32
}

func newJoiner() *joiner {
	return &joiner{silenceCache: make(map[int][]float32)}
}

func (j *joiner) reset() {
	j.mic = nil
	j.spk = nil
}

func (j *joiner) silence(n int) []float32 {
	cached, ok := j.silenceCache[n]
	if !ok {
		cached = make([]float32, n)
		j.silenceCache[n] = cached
	}
	out := make([]float32, n)
	copy(out, cached)
	return out
}

func (j *joiner) pushMic(chunk []float32) {
	j.mic = append(j.mic, chunk)
	if len(j.mic) > maxQueueSize {
		slog.Warn("mic queue overflow")
		j.mic = j.mic[1:]
	}
}

func (j *joiner) pushSpk(chunk []float32) {
	j.spk = append(j.spk, chunk)
	if len(j.spk) > maxQueueSize {
		slog.Warn("speaker queue overflow")
		j.spk = j.spk[1:]
	}
}

// popPair emits the next (mic, spk) pair:
//  1. both queues non-empty — pop one from each;
//  2. mono modes — pop the present channel, synthesise silence for the other;
//  3. dual mode — pad the missing side with silence only once the present
//     side has more than maxLag chunks waiting, so one stalled stream cannot
//     block the other indefinitely.
func (j *joiner) popPair(mode ChannelMode) (mic, spk []float32, ok bool) {
	if len(j.mic) > 0 && len(j.spk) > 0 {
		mic, spk = j.mic[0], j.spk[0]
		j.mic, j.spk = j.mic[1:], j.spk[1:]
		return mic, spk, true
	}

	switch mode {
	case MicOnly:
		if len(j.mic) > 0 {
			mic = j.mic[0]
			j.mic = j.mic[1:]
			return mic, j.silence(len(mic)), true
		}
	case SpeakerOnly:
		if len(j.spk) > 0 {
			spk = j.spk[0]
			j.spk = j.spk[1:]
			return j.silence(len(spk)), spk, true
		}
	case MicAndSpeaker:
		if len(j.mic) > maxLag && len(j.spk) == 0 {
			mic = j.mic[0]
			j.mic = j.mic[1:]
			return mic, j.silence(len(mic)), true
		}
		if len(j.spk) > maxLag && len(j.mic) == 0 {
			spk = j.spk[0]
			j.spk = j.spk[1:]
			return j.silence(len(spk)), spk, true
		}
	}
	return nil, nil, false
}

// ---- amplitude emitter ----

const (
	amplitudeAlpha = 0.7
	amplitudeMinDB = -60.0
	amplitudeMaxDB = 0.0
)

// amplitudeEmitter meters both channels and publishes throttled
// AudioAmplitude events: RMS per chunk, mapped to [-60 dB, 0 dB], linearised
// to [0, 1], exponentially smoothed, scaled to u16 thousandths.
type amplitudeEmitter struct {
	sink      EventSink
	sessionID string

	micSmoothed float64
	spkSmoothed float64
	lastEmit    time.Time
}

func newAmplitudeEmitter(sink EventSink, sessionID string) *amplitudeEmitter {
	return &amplitudeEmitter{
		sink:      sink,
		sessionID: sessionID,
		lastEmit:  time.Now().Add(-amplitudeThrottle),
	}
}

func (e *amplitudeEmitter) reset() {
	e.micSmoothed = 0
	e.spkSmoothed = 0
	e.lastEmit = time.Now().Add(-amplitudeThrottle)
}

func (e *amplitudeEmitter) observeMic(chunk []float32) {
	e.micSmoothed = (1-amplitudeAlpha)*e.micSmoothed + amplitudeAlpha*normalizedAmplitude(chunk)
	e.emitIfReady()
}

func (e *amplitudeEmitter) observeSpk(chunk []float32) {
	e.spkSmoothed = (1-amplitudeAlpha)*e.spkSmoothed + amplitudeAlpha*normalizedAmplitude(chunk)
	e.emitIfReady()
}

func (e *amplitudeEmitter) emitIfReady() {
	if time.Since(e.lastEmit) < amplitudeThrottle {
		return
	}
	e.sink.Emit(DataEvent{
		SessionID: e.sessionID,
		Kind:      DataAudioAmplitude,
		Mic:       uint16(e.micSmoothed * 1000),
		Speaker:   uint16(e.spkSmoothed * 1000),
	})
	e.lastEmit = time.Now()
}

func normalizedAmplitude(chunk []float32) float64 {
	rms := float64(audio.RMS(chunk))
	db := amplitudeMinDB
	if rms > 0 {
		db = 20 * math.Log10(rms)
	}
	norm := (db - amplitudeMinDB) / (amplitudeMaxDB - amplitudeMinDB)
	return math.Min(math.Max(norm, 0), 1)
}
