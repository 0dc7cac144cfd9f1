package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/giygas/prescriptions-api/completion"
	"github.com/giygas/prescriptions-api/extraction"
	"github.com/giygas/prescriptions-api/logging"
	"github.com/giygas/prescriptions-api/summary"
)

// GenerateEmergencyCard condenses an arbitrary patient document into an emergency card.
func (h *HTTPHandler) GenerateEmergencyCard(w http.ResponseWriter, r *http.Request) {
	if h.deps.EmergencyCards == nil {
		h.RespondWithError(w, http.StatusServiceUnavailable, "Completion service is not configured")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.RespondWithError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	outcome, err := h.deps.EmergencyCards.Generate(r.Context(), json.RawMessage(body))
	if err != nil {
		h.respondExtractionError(w, r, err)
		return
	}

	switch o := outcome.(type) {
	case extraction.ParsedCard:
		h.respondRaw(w, http.StatusOK, o.Raw)
	case extraction.Unparsed:
		h.respondUnparsed(w, o)
	default:
		h.RespondWithError(w, http.StatusInternalServerError, "Unexpected extraction result")
	}
}

// SummarizeReport summarizes an uploaded PDF report.
func (h *HTTPHandler) SummarizeReport(w http.ResponseWriter, r *http.Request) {
	if h.deps.Summarizer == nil {
		h.RespondWithError(w, http.StatusServiceUnavailable, "Completion service is not configured")
		return
	}

	var report summary.Report
	if err := decodeJSON(r, &report); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	text, err := h.deps.Summarizer.Summarize(r.Context(), report)
	switch {
	case err == nil:
		h.RespondWithJSON(w, http.StatusOK, map[string]string{"summary": text})
	case errors.Is(err, summary.ErrMissingFileURL):
		h.RespondWithError(w, http.StatusBadRequest, "fileUrl is required")
	case errors.Is(err, summary.ErrURLNotAllowed):
		logging.Warn("Refused report URL", "file_url", report.FileURL, "remote_addr", r.RemoteAddr)
		h.RespondWithError(w, http.StatusBadRequest, "fileUrl must be a stored document or a public http(s) URL")
	case errors.Is(err, summary.ErrDocumentNotFound):
		h.RespondWithError(w, http.StatusNotFound, "Document not found")
	case errors.Is(err, summary.ErrUnreadablePDF):
		h.RespondWithError(w, http.StatusUnprocessableEntity, "The report could not be read as a PDF")
	case errors.Is(err, summary.ErrFetchFailed), errors.Is(err, completion.ErrUpstreamUnavailable):
		logging.Warn("Report summary failed", "file_name", report.FileName, "error", err)
		h.RespondWithError(w, http.StatusBadGateway, "Failed to summarize document")
	default:
		logging.Error("Report summary failed", "file_name", report.FileName, "error", err)
		h.RespondWithError(w, http.StatusInternalServerError, "Failed to summarize document")
	}
}
