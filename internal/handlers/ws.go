package handlers

import (
	"net/http"

	"finflow/internal/middleware"
)

// WSBalances accepts the token as a query parameter as well as a header.
func (h *Handler) WSBalances(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.Authenticate(r, h.cfg.JWTSecret, true)
	if err != nil {
		middleware.Unauthorized(w, err)
		return
	}
	h.ws.Serve(w, r, userID)
}
