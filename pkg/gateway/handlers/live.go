package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vaani-ai/vaani/pkg/core"
	"github.com/vaani-ai/vaani/pkg/core/live"
	"github.com/vaani-ai/vaani/pkg/core/types"
	"github.com/vaani-ai/vaani/pkg/gateway/config"
	"github.com/vaani-ai/vaani/pkg/gateway/live/protocol"
	"github.com/vaani-ai/vaani/pkg/gateway/live/session"
	"github.com/vaani-ai/vaani/pkg/gateway/live/sessions"
	"github.com/vaani-ai/vaani/pkg/gateway/metrics"
	"github.com/vaani-ai/vaani/pkg/gateway/mw"
)

// SessionStore persists finished conversation records.
type SessionStore interface {
	SaveSession(ctx context.Context, rec types.SessionRecord) error
}

// LiveHandler terminates /v1/live websockets. It upgrades the connection,
// negotiates the hello, builds a voice session around the gateway's pipeline
// stages and hands the socket to a session bridge for the rest of the call.
type LiveHandler struct {
	Config   config.Config
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Sessions *sessions.Tracker
	Store    SessionStore
	Archiver live.UtteranceArchiver

	Transcriber live.Transcriber
	Detector    live.LanguageDetector
	Responder   live.Responder
	Synthesizer live.Synthesizer
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, &core.Error{
			Type:    core.ErrInvalidRequest,
			Message: "live sessions are opened with a websocket GET",
			Code:    "method_not_allowed",
		})
		return
	}
	if !h.originAllowed(r) {
		writeError(w, r, http.StatusForbidden, &core.Error{
			Type:    core.ErrAuthentication,
			Message: "origin is not allowed",
			Code:    "origin_forbidden",
		})
		return
	}

	// Origin is already checked above against the configured allowlist.
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if h.Config.LiveMaxJSONMessageBytes > 0 {
		conn.SetReadLimit(h.Config.LiveMaxJSONMessageBytes)
	}

	handshakeTimeout := h.Config.LiveHandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = 5 * time.Second
	}
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	hello, ok := h.readHello(conn)
	if !ok {
		return
	}
	if err := h.authorize(r, hello); err != nil {
		h.closeWithError(conn, "unauthorized", err.Error())
		return
	}

	lang, voice, err := h.resolveVoice(hello)
	if err != nil {
		h.closeWithError(conn, "bad_request", err.Error())
		return
	}

	greeting := h.Config.Greeting
	if hello.Greeting != nil {
		greeting = *hello.Greeting
	}
	sessionCfg := h.sessionConfig(lang, voice, greeting)

	s, err := session.New(session.Dependencies{
		Conn:    conn,
		Logger:  logger,
		Metrics: h.Metrics,
		Config: session.Config{
			MaxAudioFrameBytes:  h.Config.LiveMaxAudioFrameBytes,
			MaxAudioFPS:         h.Config.LiveMaxAudioFPS,
			MaxAudioBPS:         h.Config.LiveMaxAudioBPS,
			InboundBurstSeconds: h.Config.LiveInboundBurstSeconds,
			PingInterval:        h.Config.LiveWSPingInterval,
			WriteTimeout:        h.Config.LiveWSWriteTimeout,
			ReadTimeout:         h.Config.LiveWSReadTimeout,
			OutboundQueueSize:   h.Config.LiveOutboundQueueSize,
		},
		SessionConfig: sessionCfg,
		SessionDeps: live.Deps{
			Transcriber: h.Transcriber,
			Detector:    h.Detector,
			Responder:   h.Responder,
			Synthesizer: h.Synthesizer,
			Archiver:    h.Archiver,
			Logger:      logger,
		},
	})
	if err != nil {
		logger.Error("live session init failed", "error", err, "request_id", requestIDFromContext(r.Context()))
		h.closeWithError(conn, "internal", "failed to initialize live session")
		return
	}

	unregister, ok := h.Sessions.TryRegister(s.ID(), h.Config.MaxSessions, sessions.Handle{
		Cancel: s.Cancel,
		Warn:   s.Warn,
	})
	if !ok {
		h.closeWithError(conn, "capacity", "too many active live sessions")
		return
	}
	defer unregister()

	// The ready frame goes out before the bridge owns the socket, so this is
	// the only direct write after the upgrade.
	if err := conn.WriteJSON(h.readyFrame(s.ID(), sessionCfg, lang, voice)); err != nil {
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	logger.Info("live session opened",
		"session_id", s.ID(),
		"language", lang.String(),
		"request_id", requestIDFromContext(r.Context()),
	)

	if err := s.Run(r.Context()); err != nil {
		logger.Warn("live session closed with error",
			"session_id", s.ID(),
			"error", err,
			"request_id", requestIDFromContext(r.Context()),
		)
	}

	h.persist(logger, s)
}

// readHello consumes and validates the opening frame. On failure it reports
// the error to the client and returns ok=false.
func (h LiveHandler) readHello(conn *websocket.Conn) (protocol.ClientHello, bool) {
	messageType, data, err := conn.ReadMessage()
	if err != nil {
		h.closeWithError(conn, "bad_request", "could not read hello frame")
		return protocol.ClientHello{}, false
	}
	if messageType != websocket.TextMessage {
		h.closeWithError(conn, "bad_request", "hello must be a text frame")
		return protocol.ClientHello{}, false
	}

	decoded, err := protocol.DecodeClientMessage(data)
	if err != nil {
		var de *protocol.DecodeError
		if errors.As(err, &de) {
			h.closeWithError(conn, de.Code, de.Error())
		} else {
			h.closeWithError(conn, "bad_request", "invalid hello frame")
		}
		return protocol.ClientHello{}, false
	}
	hello, ok := decoded.(protocol.ClientHello)
	if !ok {
		h.closeWithError(conn, "bad_request", "first frame must be a hello")
		return protocol.ClientHello{}, false
	}

	if strings.TrimSpace(hello.Audio.Encoding) != protocol.EncodingPCM16 ||
		hello.Audio.SampleRateHz != 16000 ||
		hello.Audio.Channels != 1 {
		h.closeWithError(conn, "unsupported", "audio must be pcm_s16le at 16000 Hz mono")
		return protocol.ClientHello{}, false
	}
	return hello, true
}

func (h LiveHandler) authorize(r *http.Request, hello protocol.ClientHello) error {
	key := ""
	if hello.Auth != nil {
		key = strings.TrimSpace(hello.Auth.APIKey)
	}
	if key == "" {
		key = strings.TrimSpace(r.URL.Query().Get("api_key"))
	}

	switch h.Config.AuthMode {
	case config.AuthModeDisabled:
		return nil
	case config.AuthModeOptional:
		if key == "" {
			return nil
		}
	case config.AuthModeRequired:
		if key == "" {
			return errors.New("missing api key")
		}
	default:
		return errors.New("gateway auth mode is misconfigured")
	}
	if _, ok := h.Config.APIKeys[key]; !ok {
		return errors.New("invalid api key")
	}
	return nil
}

// resolveVoice picks the session's starting language and synthesis voice from
// the hello, falling back to the gateway defaults. Mixed is a detection
// outcome, not a language a session can open in.
func (h LiveHandler) resolveVoice(hello protocol.ClientHello) (types.Language, string, error) {
	name := strings.TrimSpace(hello.Language)
	if name == "" {
		name = h.Config.DefaultLanguage
	}
	lang, err := types.ParseLanguage(name)
	if err != nil {
		return "", "", fmt.Errorf("unsupported language %q", name)
	}
	if lang == types.LanguageMixed {
		return "", "", fmt.Errorf("language %q cannot open a session", name)
	}

	voice := strings.TrimSpace(hello.Voice)
	if voice == "" {
		voice = h.Config.Voices[lang.String()]
	}
	return lang, voice, nil
}

func (h LiveHandler) sessionConfig(lang types.Language, voice string, greeting bool) live.SessionConfig {
	cfg := live.DefaultSessionConfig()
	cfg.Greeting = greeting
	cfg.EnhanceSpeech = h.Config.EnhanceSpeech
	cfg.Profile = types.DefaultProfile()
	cfg.Profile.Primary = lang
	cfg.Profile.Voice = voice

	if h.Config.STTModel != "" {
		cfg.STTModel = h.Config.STTModel
	}
	if h.Config.TTSModel != "" {
		cfg.TTSModel = h.Config.TTSModel
	}
	if h.Config.SpeechSpeed > 0 {
		cfg.SpeechSpeed = h.Config.SpeechSpeed
	}
	if h.Config.HistoryWindow > 0 {
		cfg.HistoryWindow = h.Config.HistoryWindow
	}
	if h.Config.SwitchThreshold > 0 {
		cfg.SwitchThreshold = h.Config.SwitchThreshold
	}
	if h.Config.IdleTimeout != 0 {
		cfg.IdleTimeout = h.Config.IdleTimeout
	}
	if h.Config.SilenceCommit > 0 {
		cfg.Segmenter.SilenceCommit = h.Config.SilenceCommit
	}
	if h.Config.MaxUtterance > 0 {
		cfg.Segmenter.MaxUtterance = h.Config.MaxUtterance
	}
	if h.Config.PrefixPadding > 0 {
		cfg.Segmenter.PrefixPadding = h.Config.PrefixPadding
	}
	if h.Config.EnergyThreshold > 0 {
		cfg.Segmenter.EnergyThreshold = h.Config.EnergyThreshold
	}
	if len(h.Config.RetryBackoff) > 0 {
		cfg.RetryBackoff = h.Config.RetryBackoff
	}
	if len(h.Config.Voices) > 0 {
		voices := make(map[types.Language]string, len(h.Config.Voices))
		for name, v := range h.Config.Voices {
			if l, err := types.ParseLanguage(name); err == nil {
				voices[l] = v
			}
		}
		cfg.Voices = voices
	}
	return cfg
}

func (h LiveHandler) readyFrame(sessionID string, cfg live.SessionConfig, lang types.Language, voice string) protocol.ServerReady {
	limits := &protocol.ReadyLimits{
		MaxAudioFrameBytes:  h.Config.LiveMaxAudioFrameBytes,
		MaxJSONMessageBytes: h.Config.LiveMaxJSONMessageBytes,
		SilenceCommitMS:     int(cfg.Segmenter.SilenceCommit / time.Millisecond),
	}
	if h.Config.LiveMaxAudioFPS > 0 {
		limits.MaxAudioFPS = h.Config.LiveMaxAudioFPS
	}
	if h.Config.LiveMaxAudioBPS > 0 {
		limits.MaxAudioBPS = h.Config.LiveMaxAudioBPS
	}
	if cfg.IdleTimeout > 0 {
		limits.IdleTimeoutMS = int(cfg.IdleTimeout / time.Millisecond)
	}

	return protocol.ServerReady{
		Type:            "ready",
		ProtocolVersion: protocol.ProtocolVersion1,
		SessionID:       sessionID,
		Audio: protocol.AudioFormat{
			Encoding:     protocol.EncodingPCM16,
			SampleRateHz: cfg.Audio.SampleRate,
			Channels:     cfg.Audio.Channels,
		},
		Language: lang.String(),
		Voice:    voice,
		Limits:   limits,
	}
}

func (h LiveHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if len(h.Config.CORSAllowedOrigins) == 0 {
		return false
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}

// closeWithError reports a handshake failure on the socket and closes it.
// Once the bridge is running, errors travel through the session instead.
func (h LiveHandler) closeWithError(conn *websocket.Conn, code, message string) {
	_ = conn.WriteJSON(protocol.ServerError{
		Type:    "error",
		Code:    code,
		Message: message,
		Close:   true,
	})
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code),
		time.Now().Add(2*time.Second),
	)
}

// persist saves the finished conversation record. The socket is already gone,
// so this runs on a fresh context rather than the request's.
func (h LiveHandler) persist(logger *slog.Logger, s *session.Session) {
	if h.Store == nil {
		return
	}
	rec := s.Record()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Store.SaveSession(ctx, rec); err != nil {
		logger.Warn("session record save failed", "session_id", rec.ID, "error", err)
		return
	}
	logger.Info("session record saved", "session_id", rec.ID, "turns", len(rec.Turns))
}

func requestIDFromContext(ctx context.Context) string {
	if id, ok := mw.RequestIDFrom(ctx); ok {
		return id
	}
	return ""
}
