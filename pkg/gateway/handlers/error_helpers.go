package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/vaani-ai/vaani/pkg/core"
	"github.com/vaani-ai/vaani/pkg/gateway/mw"
)

type errorEnvelope struct {
	Error *core.Error `json:"error"`
}

// writeError renders a core error as the JSON envelope used on every
// non-websocket surface, stamping the request id when one is in context.
func writeError(w http.ResponseWriter, r *http.Request, status int, coreErr *core.Error) {
	if coreErr != nil && coreErr.RequestID == "" {
		if id, ok := mw.RequestIDFrom(r.Context()); ok {
			coreErr.RequestID = id
		}
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: coreErr})
}
