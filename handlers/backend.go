package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/giygas/prescriptions-api/backend"
	"github.com/giygas/prescriptions-api/logging"
)

type loginRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

func (h *HTTPHandler) respondBackendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, backend.ErrUnauthorized):
		h.RespondWithError(w, http.StatusUnauthorized, "Invalid or expired credentials")
	case errors.Is(err, backend.ErrBackendUnavailable):
		h.RespondWithError(w, http.StatusBadGateway, "Records backend unavailable")
	default:
		logging.Error("Backend request failed", "error", err)
		h.RespondWithError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

// Login exchanges an NMC id (doctors) or ABHA id (patients) for a backend token.
func (h *HTTPHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.deps.Backend == nil {
		h.RespondWithError(w, http.StatusServiceUnavailable, "Records backend is not configured")
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" || len(userID) > 64 {
		h.RespondWithError(w, http.StatusBadRequest, "userId is required")
		return
	}
	role, err := backend.ParseRole(req.Role)
	if err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	raw, err := h.deps.Backend.Login(r.Context(), userID, role)
	if err != nil {
		h.respondBackendError(w, err)
		return
	}
	h.respondRaw(w, http.StatusOK, raw)
}

// PatientPrescriptions lists the caller's stored prescriptions.
func (h *HTTPHandler) PatientPrescriptions(w http.ResponseWriter, r *http.Request) {
	h.passthrough(w, r, func(ctx context.Context, token string) (json.RawMessage, error) {
		return h.deps.Backend.Prescriptions(ctx, token)
	})
}

// PatientReports lists the caller's recorded documents.
func (h *HTTPHandler) PatientReports(w http.ResponseWriter, r *http.Request) {
	h.passthrough(w, r, func(ctx context.Context, token string) (json.RawMessage, error) {
		return h.deps.Backend.Reports(ctx, token)
	})
}

// passthrough forwards the caller's token to a backend call and relays the answer.
func (h *HTTPHandler) passthrough(w http.ResponseWriter, r *http.Request, call func(ctx context.Context, token string) (json.RawMessage, error)) {
	if h.deps.Backend == nil {
		h.RespondWithError(w, http.StatusServiceUnavailable, "Records backend is not configured")
		return
	}

	token := BearerToken(r)
	if token == "" {
		h.RespondWithError(w, http.StatusUnauthorized, "Missing bearer token")
		return
	}

	raw, err := call(r.Context(), token)
	if err != nil {
		h.respondBackendError(w, err)
		return
	}
	h.respondRaw(w, http.StatusOK, raw)
}
