package live

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vaani-ai/vaani/pkg/core"
	"github.com/vaani-ai/vaani/pkg/core/audio"
	"github.com/vaani-ai/vaani/pkg/core/dialogue"
	"github.com/vaani-ai/vaani/pkg/core/types"
	"github.com/vaani-ai/vaani/pkg/core/voice/stt"
	"github.com/vaani-ai/vaani/pkg/core/voice/tts"
)

// ErrSessionEnded is returned by inputs arriving after the session ended.
var ErrSessionEnded = errors.New("live: session ended")

// Transcriber converts one utterance of audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, r io.Reader, opts stt.TranscribeOptions) (*stt.Transcript, error)
}

// LanguageDetector analyzes a transcript for its language mix. The hint is
// the transcription-level language, used as a fallback when analysis fails.
type LanguageDetector interface {
	Detect(ctx context.Context, text string, hint types.Language) (types.Analysis, error)
}

// Responder generates the assistant's reply from the conversation so far.
type Responder interface {
	Respond(ctx context.Context, profile types.LanguageProfile, history []types.Turn, analysis types.Analysis) (string, error)
	EnhanceForSpeech(ctx context.Context, text string, profile types.LanguageProfile) string
}

// Synthesizer renders reply text to streaming audio.
type Synthesizer interface {
	SynthesizeStream(ctx context.Context, text string, opts tts.SynthesizeOptions) (*tts.SynthesisStream, error)
}

// Sink is the playback side of the session. Write blocks until the chunk
// is accepted or ctx is cancelled; Flush discards anything buffered but
// not yet played. Implementations must tolerate Flush concurrent with
// Write: barge-in flushes from the session loop while a cancelled turn is
// still unwinding.
type Sink interface {
	Write(ctx context.Context, pcm []byte) error
	Flush()
	Close() error
}

// UtteranceArchiver optionally persists committed utterance audio and
// returns a reference stored on the user turn. Archive failures must not
// fail the turn.
type UtteranceArchiver interface {
	ArchiveUtterance(ctx context.Context, sessionID string, seq int, pcm []byte) (string, error)
}

// Deps are the injected collaborators of a session. Transcriber,
// Responder, Synthesizer, and Sink are required; Detector, Archiver, and
// Logger are optional.
type Deps struct {
	Transcriber Transcriber
	Detector    LanguageDetector
	Responder   Responder
	Synthesizer Synthesizer
	Sink        Sink
	Archiver    UtteranceArchiver
	Logger      *slog.Logger
}

// Session orchestrates one voice conversation: segmentation,
// transcription, language tracking, response generation, and playback.
//
// Exactly one turn pipeline is in flight at a time. A new utterance
// committed while a pipeline runs cancels it (barge-in) and takes
// priority. History appends happen at completion time, preserving
// completion order.
type Session struct {
	cfg SessionConfig

	transcriber Transcriber
	detector    LanguageDetector
	responder   Responder
	synthesizer Synthesizer
	sink        Sink
	archiver    UtteranceArchiver
	logger      *slog.Logger

	id        string
	history   *History
	switcher  *dialogue.Switcher
	segmenter *Segmenter

	mu         sync.RWMutex
	state      SessionState
	profile    types.LanguageProfile
	turnID     int
	turnCancel context.CancelFunc
	startedAt  time.Time
	endedAt    time.Time

	frames   chan []byte
	controls chan control
	events   chan Event

	ctx       context.Context
	cancel    context.CancelFunc
	finishing chan struct{}
	done      chan struct{}
	closed    atomic.Bool

	turnWG sync.WaitGroup
}

type controlKind int

const (
	controlStop controlKind = iota
	controlEndInput
	controlDeviceFailure
)

type control struct {
	kind controlKind
	err  error
}

// NewSession creates a session. Missing required dependencies are an error.
func NewSession(cfg SessionConfig, deps Deps) (*Session, error) {
	if deps.Transcriber == nil {
		return nil, fmt.Errorf("live: transcriber is required")
	}
	if deps.Responder == nil {
		return nil, fmt.Errorf("live: responder is required")
	}
	if deps.Synthesizer == nil {
		return nil, fmt.Errorf("live: synthesizer is required")
	}
	if deps.Sink == nil {
		return nil, fmt.Errorf("live: sink is required")
	}

	cfg = cfg.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		cfg:         cfg,
		transcriber: deps.Transcriber,
		detector:    deps.Detector,
		responder:   deps.Responder,
		synthesizer: deps.Synthesizer,
		sink:        deps.Sink,
		archiver:    deps.Archiver,
		logger:      logger,
		id:          uuid.NewString(),
		history:     NewHistory(),
		switcher:    dialogue.NewSwitcher(cfg.SwitchThreshold),
		segmenter:   NewSegmenter(cfg.Segmenter, cfg.Audio),
		state:       StateIdle,
		profile:     cfg.Profile,
		frames:      make(chan []byte, 100),
		controls:    make(chan control, 4),
		events:      make(chan Event, 100),
		finishing:   make(chan struct{}),
		done:        make(chan struct{}),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Profile returns the session's current language profile.
func (s *Session) Profile() types.LanguageProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// History returns a copy of the committed turns so far.
func (s *Session) History() []types.Turn {
	return s.history.All()
}

// Record returns the persistable snapshot of the session.
func (s *Session) Record() types.SessionRecord {
	s.mu.RLock()
	profile := s.profile
	startedAt := s.startedAt
	endedAt := s.endedAt
	s.mu.RUnlock()
	return types.SessionRecord{
		ID:        s.id,
		StartedAt: startedAt,
		EndedAt:   endedAt,
		Profile:   profile,
		Turns:     s.history.All(),
	}
}

// Events returns the channel of session events. It is closed after the
// final SessionEndedEvent.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Done is closed when the session has fully ended.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Start begins the session loop and transitions Idle to Listening.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return fmt.Errorf("live: session already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.state = StateListening
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.emit(&SessionCreatedEvent{
		SessionID:  s.id,
		SampleRate: s.cfg.Audio.SampleRate,
		Channels:   s.cfg.Audio.Channels,
	})
	s.emit(&StateChangedEvent{From: StateIdle, To: StateListening})

	if s.cfg.Greeting {
		s.mu.Lock()
		s.turnID++
		id := s.turnID
		tctx, cancel := context.WithCancel(s.ctx)
		s.turnCancel = cancel
		s.mu.Unlock()

		s.turnWG.Add(1)
		go func() {
			defer s.turnWG.Done()
			s.runGreeting(tctx, id)
		}()
	}

	go s.run()
	return nil
}

// PushAudio feeds one captured PCM frame into the session. Ownership of
// the frame passes to the session. Frames are dropped when the session
// cannot keep up.
func (s *Session) PushAudio(frame []byte) error {
	if s.closed.Load() {
		return ErrSessionEnded
	}
	select {
	case s.frames <- frame:
		return nil
	case <-s.done:
		return ErrSessionEnded
	default:
		return nil
	}
}

// EndInput signals that the capture stream finished. A partial utterance
// still in the segmenter is committed as truncated. The session stays
// alive for Stop or the idle timeout.
func (s *Session) EndInput() {
	s.sendControl(control{kind: controlEndInput})
}

// Stop ends the session. Safe to call more than once.
func (s *Session) Stop() {
	s.sendControl(control{kind: controlStop})
}

// ReportDeviceFailure ends the session gracefully after a capture or
// playback device failure.
func (s *Session) ReportDeviceFailure(err error) {
	s.sendControl(control{kind: controlDeviceFailure, err: err})
}

func (s *Session) sendControl(c control) {
	select {
	case s.controls <- c:
	case <-s.finishing:
	}
}

// run is the session loop. All state transitions and turn starts flow
// through here; remote work happens in the per-turn pipeline goroutine.
func (s *Session) run() {
	var idle *time.Timer
	var idleC <-chan time.Time
	if s.cfg.IdleTimeout > 0 {
		idle = time.NewTimer(s.cfg.IdleTimeout)
		defer idle.Stop()
		idleC = idle.C
	}

	for {
		select {
		case <-s.ctx.Done():
			s.finish("cancelled")
			return
		case frame := <-s.frames:
			if utt, ok := s.segmenter.Feed(frame); ok {
				s.resetIdle(idle)
				s.startUtteranceTurn(utt)
			}
		case ctl := <-s.controls:
			switch ctl.kind {
			case controlStop:
				s.finish("stopped")
				return
			case controlEndInput:
				if utt, ok := s.segmenter.Flush(); ok {
					s.resetIdle(idle)
					s.startUtteranceTurn(utt)
				}
			case controlDeviceFailure:
				if ctl.err != nil {
					s.emit(&ErrorEvent{Code: "device_failure", Message: ctl.err.Error()})
				}
				s.finish("device_failure")
				return
			}
		case <-idleC:
			s.finish("idle_timeout")
			return
		}
	}
}

func (s *Session) resetIdle(idle *time.Timer) {
	if idle == nil {
		return
	}
	if !idle.Stop() {
		select {
		case <-idle.C:
		default:
		}
	}
	idle.Reset(s.cfg.IdleTimeout)
}

// startUtteranceTurn cancels any in-flight turn and starts a pipeline for
// the new utterance. An utterance during Speaking is a barge-in: playback
// is flushed immediately rather than drained.
func (s *Session) startUtteranceTurn(utt *Utterance) {
	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		return
	}
	prev := s.state
	if s.turnCancel != nil {
		s.turnCancel()
	}
	s.turnID++
	id := s.turnID
	ctx, cancel := context.WithCancel(s.ctx)
	s.turnCancel = cancel
	s.state = StateThinking
	s.mu.Unlock()

	if prev == StateSpeaking {
		s.sink.Flush()
		s.emit(&PlaybackInterruptedEvent{Reason: "barge_in"})
		s.emit(&StateChangedEvent{From: StateSpeaking, To: StateListening})
		prev = StateListening
	}
	s.emit(&UtteranceCommittedEvent{
		DurationMs: s.cfg.Audio.DurationMs(len(utt.PCM)),
		Truncated:  utt.Truncated,
	})
	if prev != StateThinking {
		s.emit(&StateChangedEvent{From: prev, To: StateThinking})
	}

	s.turnWG.Add(1)
	go func() {
		defer s.turnWG.Done()
		s.runTurn(ctx, id, utt)
	}()
}

// runTurn is the per-utterance pipeline: transcribe (with retries), detect
// language, commit the user turn, generate and commit the reply, speak it.
func (s *Session) runTurn(ctx context.Context, id int, utt *Utterance) {
	profile := s.Profile()

	tr, err := s.transcribeUtterance(ctx, utt)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("transcription failed after retries",
			"session_id", s.id, "error", err)
		s.emit(&ErrorEvent{Code: "transcription_failed", Message: err.Error()})
		s.speakCanned(ctx, id, dialogue.Apology(profile.Primary), profile.Primary.Code(), profile)
		return
	}

	text := strings.TrimSpace(tr.Text)
	if text == "" {
		s.transition(id, StateListening)
		return
	}

	hint, _ := types.ParseLanguage(tr.Language)
	s.emit(&TranscriptEvent{Text: text, Language: hint, Confidence: tr.Confidence})

	analysis := s.analyze(ctx, text, hint)
	if ctx.Err() != nil {
		return
	}

	ref := ""
	if s.archiver != nil {
		r, archErr := s.archiver.ArchiveUtterance(ctx, s.id, id, utt.PCM)
		if archErr != nil {
			s.logger.Warn("utterance archive failed", "session_id", s.id, "error", archErr)
		} else {
			ref = r
		}
	}

	userTurn := s.history.Append(types.Turn{
		Speaker:  types.SpeakerUser,
		Text:     text,
		Language: analysis.Tag(),
		AudioRef: ref,
	})
	s.emit(&TurnCommittedEvent{Turn: userTurn})

	s.observeLanguage(analysis)
	profile = s.Profile()

	reply, genErr := s.responder.Respond(ctx, profile, s.history.Window(s.cfg.HistoryWindow), analysis)
	if ctx.Err() != nil {
		return
	}

	var assistant types.Turn
	if genErr != nil {
		s.logger.Warn("generation failed", "session_id", s.id, "error", genErr)
		s.emit(&ErrorEvent{Code: "generation_failed", Message: genErr.Error()})
		assistant = s.history.Append(types.Turn{
			Speaker:  types.SpeakerSystem,
			Text:     dialogue.FallbackReply,
			Language: types.LanguageEnglish.Code(),
		})
	} else {
		assistant = s.history.Append(types.Turn{
			Speaker:  types.SpeakerSystem,
			Text:     reply,
			Language: analysis.Tag(),
		})
	}
	s.emit(&TurnCommittedEvent{Turn: assistant})

	s.speak(ctx, id, assistant.Text, profile)
	s.transition(id, StateListening)
}

// runGreeting speaks the configured opening greeting as a normal turn.
func (s *Session) runGreeting(ctx context.Context, id int) {
	profile := s.Profile()
	text := dialogue.Greeting(profile.Primary)
	tag := types.MixTag(profile.Primary, types.LanguageEnglish)
	s.speakCanned(ctx, id, text, tag, profile)
}

// speakCanned commits a canned assistant turn and speaks it.
func (s *Session) speakCanned(ctx context.Context, id int, text, tag string, profile types.LanguageProfile) {
	turn := s.history.Append(types.Turn{
		Speaker:  types.SpeakerSystem,
		Text:     text,
		Language: tag,
	})
	s.emit(&TurnCommittedEvent{Turn: turn})
	s.speak(ctx, id, text, profile)
	s.transition(id, StateListening)
}

// transcribeUtterance wraps the utterance in a WAV container and
// transcribes it, retrying transient failures on the configured backoff
// schedule.
func (s *Session) transcribeUtterance(ctx context.Context, utt *Utterance) (*stt.Transcript, error) {
	wav := audio.EncodeWAV(s.cfg.Audio, utt.PCM)
	opts := stt.TranscribeOptions{
		Model:      s.cfg.STTModel,
		Format:     "wav",
		SampleRate: s.cfg.Audio.SampleRate,
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		tr, err := s.transcriber.Transcribe(ctx, bytes.NewReader(wav), opts)
		if err == nil {
			return tr, nil
		}
		lastErr = err
		if ctx.Err() != nil || attempt >= len(s.cfg.RetryBackoff) || !retryable(err) {
			return nil, lastErr
		}
		select {
		case <-ctx.Done():
			return nil, lastErr
		case <-time.After(s.cfg.RetryBackoff[attempt]):
		}
	}
}

// retryable reports whether a transcription error is worth retrying.
// Typed errors decide for themselves; untyped errors are assumed to be
// transport problems and retried.
func retryable(err error) bool {
	var ce *core.Error
	if errors.As(err, &ce) {
		return ce.IsRetryable()
	}
	return true
}

// analyze runs language detection, falling back to the transcription-level
// hint. The fallback's low confidence keeps it from moving the profile.
func (s *Session) analyze(ctx context.Context, text string, hint types.Language) types.Analysis {
	if s.detector == nil {
		a := types.Analysis{Primary: hint, Confidence: 0.5}
		if !a.Primary.Valid() || a.Primary == types.LanguageMixed {
			a.Primary = types.LanguageEnglish
		}
		return a
	}
	a, _ := s.detector.Detect(ctx, text, hint)
	return a
}

// observeLanguage feeds the detection into the switch hysteresis and
// updates the profile when the threshold is crossed.
func (s *Session) observeLanguage(a types.Analysis) {
	s.mu.Lock()
	from := s.profile.Primary
	next, switched := s.switcher.Observe(from, a)
	if switched {
		s.profile.Primary = next
		if v, ok := s.cfg.Voices[next]; ok && v != "" {
			s.profile.Voice = v
		}
	}
	s.mu.Unlock()

	if switched {
		s.logger.Info("language switched", "session_id", s.id, "from", from.String(), "to", next.String())
		s.emit(&LanguageSwitchedEvent{From: from, To: next})
	}
}

// speak synthesizes text and streams it to the sink. Synthesis failure
// leaves the already-committed turn text-only. Playback failure reports a
// device failure, which ends the session.
func (s *Session) speak(ctx context.Context, id int, text string, profile types.LanguageProfile) {
	if !s.transition(id, StateSpeaking) {
		return
	}

	speech := text
	if s.cfg.EnhanceSpeech {
		speech = s.responder.EnhanceForSpeech(ctx, text, profile)
	}
	if ctx.Err() != nil {
		return
	}

	opts := tts.SynthesizeOptions{
		Model:      s.cfg.TTSModel,
		Voice:      s.voiceFor(profile),
		Speed:      s.cfg.SpeechSpeed,
		Language:   profile.Primary.Code(),
		Format:     "pcm",
		SampleRate: s.cfg.Audio.SampleRate,
	}
	stream, err := s.synthesizer.SynthesizeStream(ctx, speech, opts)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("synthesis failed, turn stays text-only", "session_id", s.id, "error", err)
		s.emit(&ErrorEvent{Code: "synthesis_failed", Message: err.Error()})
		return
	}
	defer stream.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-stream.Chunks():
			if !ok {
				// Err blocks until the stream is closed; close first so a
				// producer that only finished sending cannot wedge the turn.
				stream.Close()
				if serr := stream.Err(); serr != nil && ctx.Err() == nil {
					s.emit(&ErrorEvent{Code: "synthesis_failed", Message: serr.Error()})
				}
				return
			}
			if ctx.Err() != nil {
				return
			}
			if werr := s.sink.Write(ctx, chunk); werr != nil {
				if ctx.Err() != nil {
					return
				}
				s.ReportDeviceFailure(core.NewDeviceError("playback write failed", werr))
				return
			}
			s.emit(&AudioDeltaEvent{Data: chunk, Format: "pcm_s16le"})
		}
	}
}

func (s *Session) voiceFor(profile types.LanguageProfile) string {
	if v, ok := s.cfg.Voices[profile.Primary]; ok && v != "" {
		return v
	}
	return profile.Voice
}

// transition moves to the given state if the turn is still current.
// Pipelines of cancelled turns fail the check and go quiet.
func (s *Session) transition(id int, to SessionState) bool {
	s.mu.Lock()
	if s.turnID != id || s.state == StateEnded {
		s.mu.Unlock()
		return false
	}
	from := s.state
	s.state = to
	s.mu.Unlock()

	if from != to {
		s.emit(&StateChangedEvent{From: from, To: to})
	}
	return true
}

// finish runs the end sequence exactly once: cancel in-flight work, wait
// for the pipeline to unwind, release the sink, and emit the final events.
// Only the session loop calls it, immediately before returning. Closing
// finishing first keeps a pipeline stuck in sendControl from deadlocking
// the turnWG wait.
func (s *Session) finish(reason string) {
	close(s.finishing)
	s.mu.Lock()
	if s.turnCancel != nil {
		s.turnCancel()
		s.turnCancel = nil
	}
	s.mu.Unlock()
	s.cancel()
	s.turnWG.Wait()

	s.sink.Flush()
	if err := s.sink.Close(); err != nil {
		s.logger.Warn("sink close failed", "session_id", s.id, "error", err)
	}

	s.mu.Lock()
	prev := s.state
	s.state = StateEnded
	s.endedAt = time.Now()
	s.mu.Unlock()

	if prev != StateEnded {
		s.emit(&StateChangedEvent{From: prev, To: StateEnded})
	}
	s.emit(&SessionEndedEvent{Reason: reason})
	s.closed.Store(true)
	close(s.done)
	close(s.events)
}

// emit sends an event without blocking the loop; events are dropped when
// the consumer falls behind.
func (s *Session) emit(event Event) {
	select {
	case s.events <- event:
	default:
	}
}
