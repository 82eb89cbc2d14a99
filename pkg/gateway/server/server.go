// Package server assembles the gateway: the speech pipeline stages, the
// HTTP routes and the middleware chain around them.
package server

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/vaani-ai/vaani/pkg/core/dialogue"
	"github.com/vaani-ai/vaani/pkg/core/live"
	"github.com/vaani-ai/vaani/pkg/core/providers/openai"
	"github.com/vaani-ai/vaani/pkg/core/voice/stt"
	"github.com/vaani-ai/vaani/pkg/core/voice/tts"
	"github.com/vaani-ai/vaani/pkg/gateway/config"
	"github.com/vaani-ai/vaani/pkg/gateway/handlers"
	"github.com/vaani-ai/vaani/pkg/gateway/live/sessions"
	"github.com/vaani-ai/vaani/pkg/gateway/metrics"
	"github.com/vaani-ai/vaani/pkg/gateway/mw"
	"github.com/vaani-ai/vaani/pkg/store"
)

type Server struct {
	cfg     config.Config
	logger  *slog.Logger
	mux     *http.ServeMux
	metrics *metrics.Metrics
	tracker *sessions.Tracker
	store   *store.Store

	transcriber live.Transcriber
	detector    live.LanguageDetector
	responder   live.Responder
	synthesizer live.Synthesizer
}

// New wires the speech pipeline and routes. st may be nil; the gateway then
// runs without persistence and live sessions skip archiving and saving.
func New(cfg config.Config, logger *slog.Logger, st *store.Store) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	chat := openai.New(cfg.OpenAIAPIKey,
		openai.WithBaseURL(cfg.OpenAIBaseURL),
		openai.WithHTTPClient(httpClient),
	)

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		mux:     http.NewServeMux(),
		metrics: metrics.New(cfg.MetricsNamespace),
		tracker: sessions.NewTracker(),
		store:   st,

		transcriber: stt.NewOpenAIWithClient(cfg.OpenAIAPIKey, httpClient).WithBaseURL(cfg.OpenAIBaseURL),
		detector: dialogue.NewDetector(chat,
			dialogue.WithDetectorModel(cfg.ChatModel),
			dialogue.WithDetectorLogger(logger),
		),
		responder: dialogue.NewPolicy(chat,
			dialogue.WithModel(cfg.ChatModel),
			dialogue.WithHistoryWindow(cfg.HistoryWindow),
			dialogue.WithLogger(logger),
		),
		synthesizer: tts.NewOpenAIWithClient(cfg.OpenAIAPIKey, httpClient).WithBaseURL(cfg.OpenAIBaseURL),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg, Store: s.pinger()})
	s.mux.Handle("/metrics", s.metrics.Handler())

	s.mux.Handle("/v1/live", handlers.LiveHandler{
		Config:   s.cfg,
		Logger:   s.logger,
		Metrics:  s.metrics,
		Sessions: s.tracker,
		Store:    s.sessionStore(),
		Archiver: s.archiver(),

		Transcriber: s.transcriber,
		Detector:    s.detector,
		Responder:   s.responder,
		Synthesizer: s.synthesizer,
	})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

// Handler returns the mux wrapped in the middleware chain, outermost first:
// request id, access log, metrics, panic recovery, CORS, auth.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Auth(s.cfg, h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.Metrics(s.metrics, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// Sessions exposes the live session tracker, used to drain on shutdown.
func (s *Server) Sessions() *sessions.Tracker {
	return s.tracker
}

// The store is optional. Returning a typed nil through an interface field
// would defeat the handlers' nil checks, so each view is built explicitly.

func (s *Server) sessionStore() handlers.SessionStore {
	if s.store == nil {
		return nil
	}
	return s.store
}

func (s *Server) archiver() live.UtteranceArchiver {
	if s.store == nil {
		return nil
	}
	return s.store
}

func (s *Server) pinger() handlers.StorePinger {
	if s.store == nil {
		return nil
	}
	return s.store
}
