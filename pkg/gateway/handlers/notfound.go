package handlers

import (
	"net/http"

	"github.com/vaani-ai/vaani/pkg/core"
)

type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, &core.Error{
		Type:    core.ErrInvalidRequest,
		Message: "not found",
		Code:    "not_found",
	})
}
