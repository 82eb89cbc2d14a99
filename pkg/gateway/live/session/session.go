// Package session bridges one websocket connection to one live voice
// session. Inbound frames are decoded and fed to the pipeline through a
// rate limiter; pipeline events and synthesized audio flow back out as
// protocol frames through a single writer goroutine.
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vaani-ai/vaani/pkg/core/live"
	"github.com/vaani-ai/vaani/pkg/core/types"
	"github.com/vaani-ai/vaani/pkg/gateway/live/protocol"
	"github.com/vaani-ai/vaani/pkg/gateway/metrics"
)

// Config carries the connection-level knobs. Zero values fall back to
// safe defaults; rate caps of zero disable limiting.
type Config struct {
	MaxAudioFrameBytes  int
	MaxAudioFPS         int
	MaxAudioBPS         int64
	InboundBurstSeconds int
	PingInterval        time.Duration
	WriteTimeout        time.Duration
	ReadTimeout         time.Duration
	OutboundQueueSize   int
}

// Dependencies wires one upgraded connection to the pipeline. Conn is
// required; the sink slot of SessionDeps is filled here, pointing the
// pipeline's audio output at the socket.
type Dependencies struct {
	Conn    *websocket.Conn
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Config  Config

	SessionConfig live.SessionConfig
	SessionDeps   live.Deps
}

// Session runs one live connection end to end.
type Session struct {
	conn    *websocket.Conn
	logger  *slog.Logger
	metrics *metrics.Metrics
	cfg     Config

	core    *live.Session
	out     *outbound
	writer  *socketWriter
	limiter *inboundLimiter
}

// New builds a session around an upgraded connection. The pipeline's
// sink is pointed at the socket; the caller's remaining deps pass
// through untouched.
func New(deps Dependencies) (*Session, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("session: websocket connection is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	out := newOutbound(deps.Config.OutboundQueueSize)
	writer := newSocketWriter(deps.Conn, out, deps.Config.PingInterval, deps.Config.WriteTimeout)

	sessionDeps := deps.SessionDeps
	sessionDeps.Sink = &wsOutput{out: out, writerDone: writer.Done(), format: protocol.EncodingPCM16}
	if sessionDeps.Logger == nil {
		sessionDeps.Logger = logger
	}

	core, err := live.NewSession(deps.SessionConfig, sessionDeps)
	if err != nil {
		return nil, err
	}

	s := &Session{
		conn:    deps.Conn,
		logger:  logger,
		metrics: deps.Metrics,
		cfg:     deps.Config,
		core:    core,
		out:     out,
		writer:  writer,
		limiter: newInboundLimiter(time.Now, deps.Config.MaxAudioFPS, deps.Config.MaxAudioBPS, deps.Config.InboundBurstSeconds),
	}
	writer.recordAudio = s.recordAudioOut
	return s, nil
}

// ID returns the pipeline session identifier.
func (s *Session) ID() string {
	return s.core.ID()
}

// Record returns the persistable snapshot of the conversation.
func (s *Session) Record() types.SessionRecord {
	return s.core.Record()
}

// Cancel asks the session to end. It never blocks; the session winds
// down through its normal shutdown path.
func (s *Session) Cancel() {
	s.core.Stop()
}

// Warn pushes a warning frame to the client. It fails only when the
// socket writer has already stopped.
func (s *Session) Warn(code, message string) error {
	payload, err := json.Marshal(protocol.ServerWarning{Type: "warning", Code: code, Message: message})
	if err != nil {
		return err
	}
	if !s.enqueueControl(payload) {
		return errors.New("session: socket writer stopped")
	}
	return nil
}

// Run drives the connection until the session ends or the socket dies.
// It blocks; the caller owns persistence of the final Record.
func (s *Session) Run(ctx context.Context) error {
	startedAt := time.Now()
	if err := s.core.Start(ctx); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordSessionStart()
	}

	writerErr := make(chan error, 1)
	go func() { writerErr <- s.writer.Run() }()

	// A dead writer must take the pipeline down with it, or the session
	// would keep synthesizing into a socket nobody writes to.
	go func() {
		<-s.writer.Done()
		s.core.Stop()
	}()

	go s.readLoop()

	s.pumpEvents(startedAt)

	s.writer.Shutdown()
	err := <-writerErr
	_ = s.conn.Close()
	return err
}

// readLoop decodes inbound frames until the socket or the session ends.
func (s *Session) readLoop() {
	rateWarned := false
	for {
		if s.cfg.ReadTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.core.Stop()
			return
		}

		msg, err := protocol.DecodeClientMessage(data)
		if err != nil {
			s.warnDecode(err)
			continue
		}

		switch m := msg.(type) {
		case protocol.ClientAudioFrame:
			pcm, err := base64.StdEncoding.DecodeString(m.DataB64)
			if err != nil {
				_ = s.Warn("bad_audio", "audio_frame.data_b64 is not valid base64")
				continue
			}
			if s.cfg.MaxAudioFrameBytes > 0 && len(pcm) > s.cfg.MaxAudioFrameBytes {
				_ = s.Warn("frame_too_large", fmt.Sprintf("audio frame of %d bytes exceeds the %d byte limit", len(pcm), s.cfg.MaxAudioFrameBytes))
				continue
			}
			if !s.limiter.Allow(len(pcm)) {
				if !rateWarned {
					rateWarned = true
					_ = s.Warn("rate_limited", "inbound audio exceeds the negotiated rate; dropping frames")
				}
				continue
			}
			if err := s.core.PushAudio(pcm); err != nil {
				return
			}
			if s.metrics != nil {
				s.metrics.RecordAudio("in", len(pcm))
			}
		case protocol.ClientControl:
			switch m.Op {
			case "stop":
				s.core.Stop()
			case "end_input":
				s.core.EndInput()
			}
		case protocol.ClientHello:
			_ = s.Warn("unexpected_hello", "hello is only valid as the first frame")
		}
	}
}

// pumpEvents forwards pipeline events as protocol frames until the event
// channel closes. Audio deltas are skipped here; the sink already put
// that audio on the wire.
func (s *Session) pumpEvents(startedAt time.Time) {
	for ev := range s.core.Events() {
		switch ev := ev.(type) {
		case *live.SessionCreatedEvent:
			// The ready frame already carried the session id.
		case *live.StateChangedEvent:
			s.sendJSON(protocol.ServerState{Type: "state", From: ev.From.String(), To: ev.To.String()})
		case *live.UtteranceCommittedEvent:
			s.sendJSON(protocol.ServerUtterance{Type: "utterance", DurationMS: ev.DurationMs, Truncated: ev.Truncated})
		case *live.TranscriptEvent:
			s.sendJSON(protocol.ServerTranscript{Type: "transcript", Text: ev.Text, Language: string(ev.Language), Confidence: ev.Confidence})
		case *live.TurnCommittedEvent:
			if s.metrics != nil {
				s.metrics.RecordTurn(string(ev.Turn.Speaker))
			}
			s.sendJSON(protocol.ServerTurn{Type: "turn", Turn: protocol.Turn{
				ID:          ev.Turn.ID,
				Speaker:     string(ev.Turn.Speaker),
				Text:        ev.Turn.Text,
				Language:    ev.Turn.Language,
				TimestampMS: ev.Turn.Timestamp.UnixMilli(),
				AudioRef:    ev.Turn.AudioRef,
			}})
		case *live.LanguageSwitchedEvent:
			if s.metrics != nil {
				s.metrics.RecordLanguageSwitch(string(ev.From), string(ev.To))
			}
			s.sendJSON(protocol.ServerLanguageSwitched{Type: "language_switched", From: string(ev.From), To: string(ev.To)})
		case *live.AudioDeltaEvent:
			// Skipped, see above.
		case *live.PlaybackInterruptedEvent:
			s.sendJSON(protocol.ServerPlaybackInterrupted{Type: "playback_interrupted", Reason: ev.Reason})
		case *live.ErrorEvent:
			if s.metrics != nil {
				s.metrics.RecordStageFailure(strings.TrimSuffix(ev.Code, "_failed"))
			}
			s.sendJSON(protocol.ServerError{Type: "error", Code: ev.Code, Message: ev.Message})
		case *live.SessionEndedEvent:
			if s.metrics != nil {
				s.metrics.RecordSessionEnd(ev.Reason, time.Since(startedAt))
			}
			s.sendJSON(protocol.ServerSessionEnded{Type: "session_ended", Reason: ev.Reason})
		}
	}
}

func (s *Session) warnDecode(err error) {
	var de *protocol.DecodeError
	if errors.As(err, &de) {
		_ = s.Warn(de.Code, de.Error())
		return
	}
	_ = s.Warn("bad_request", err.Error())
}

func (s *Session) sendJSON(frame any) {
	payload, err := json.Marshal(frame)
	if err != nil {
		s.logger.Warn("live: dropping unmarshalable frame", "error", err)
		return
	}
	s.enqueueControl(payload)
}

// enqueueControl queues a non-audio frame for the writer. It reports
// false once the writer has exited; frames are never dropped while the
// writer lives because the queue is drained with priority.
func (s *Session) enqueueControl(payload []byte) bool {
	select {
	case s.out.control <- payload:
		return true
	case <-s.writer.Done():
		return false
	}
}

func (s *Session) recordAudioOut(bytes int) {
	if s.metrics != nil {
		s.metrics.RecordAudio("out", bytes)
	}
}
