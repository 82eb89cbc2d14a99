package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/vaani-ai/vaani/pkg/core/types"
	"github.com/vaani-ai/vaani/pkg/gateway/config"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// StorePinger is the slice of the session store readiness cares about.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// ReadyHandler reports whether the gateway is in a state where accepting a
// live connection would work: sane config, upstream credentials present, and
// the session store reachable when one is configured.
type ReadyHandler struct {
	Config config.Config
	Store  StorePinger
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK          bool     `json:"ok"`
		AuthMode    string   `json:"auth_mode"`
		Persistence bool     `json:"persistence_enabled"`
		Issues      []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	switch h.Config.AuthMode {
	case config.AuthModeRequired, config.AuthModeOptional, config.AuthModeDisabled:
	default:
		issues = append(issues, "invalid auth_mode")
	}
	if h.Config.AuthMode == config.AuthModeRequired && len(h.Config.APIKeys) == 0 {
		issues = append(issues, "auth_mode=required but no api keys configured")
	}

	if h.Config.OpenAIAPIKey == "" {
		issues = append(issues, "openai api key is not configured")
	}
	if _, err := types.ParseLanguage(h.Config.DefaultLanguage); err != nil {
		issues = append(issues, "default_language is not a supported language")
	}

	if h.Config.LiveMaxAudioFrameBytes <= 0 {
		issues = append(issues, "live max audio frame bytes must be > 0")
	}
	if h.Config.LiveMaxJSONMessageBytes <= 0 {
		issues = append(issues, "live max json message bytes must be > 0")
	}
	if h.Config.LiveOutboundQueueSize <= 0 {
		issues = append(issues, "live outbound queue size must be > 0")
	}
	if h.Config.LiveHandshakeTimeout <= 0 || h.Config.LiveWSWriteTimeout <= 0 {
		issues = append(issues, "live socket timeouts must be > 0")
	}
	if h.Config.ReadHeaderTimeout <= 0 || h.Config.ReadTimeout <= 0 {
		issues = append(issues, "server timeouts must be > 0")
	}

	if h.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		if err := h.Store.Ping(ctx); err != nil {
			issues = append(issues, fmt.Sprintf("session store unreachable: %v", err))
		}
		cancel()
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:          ok,
		AuthMode:    string(h.Config.AuthMode),
		Persistence: h.Store != nil,
		Issues:      issues,
	})
}
