package handlers

import (
	"net/http"

	"github.com/giygas/prescriptions-api/extraction"
	"github.com/giygas/prescriptions-api/logging"
	"github.com/giygas/prescriptions-api/prescription"
)

type transcriptRequest struct {
	Transcript string `json:"transcript"`
}

type mergeRequest struct {
	Medicines  []prescription.Medicine `json:"medicines"`
	Transcript string                  `json:"transcript"`
}

type mergeResponse struct {
	Medicines []prescription.Medicine `json:"medicines"`
	Notes     string                  `json:"notes"`
	Added     int                     `json:"added"`
}

// readTranscript decodes and validates a {"transcript"} body, answering the
// request itself on failure.
func (h *HTTPHandler) readTranscript(w http.ResponseWriter, r *http.Request, dst *string) bool {
	var req transcriptRequest
	if err := decodeJSON(r, &req); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if err := h.deps.Validator.ValidateTranscript(req.Transcript); err != nil {
		logging.Warn("Rejected transcript", "path", r.URL.Path, "error", err)
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return false
	}
	*dst = req.Transcript
	return true
}

// requireExtractor answers 503 when no extractor is configured.
func (h *HTTPHandler) requireExtractor(w http.ResponseWriter) bool {
	if h.deps.Extractor == nil {
		h.RespondWithError(w, http.StatusServiceUnavailable, "Prescription extraction is not configured")
		return false
	}
	return true
}

// warnUnrecognizedFrequencies logs extracted frequencies that did not
// normalize to a short code and need correcting by hand.
func warnUnrecognizedFrequencies(path string, meds []prescription.ExtractedMedicine) {
	unknown := 0
	for _, med := range meds {
		if med.Frequency != "" && !prescription.IsFrequencyCode(prescription.NormalizeFrequency(med.Frequency)) {
			unknown++
		}
	}
	if unknown > 0 {
		logging.Warn("Extracted frequencies need review", "path", path, "count", unknown)
	}
}

// ParsePrescription returns the model's JSON object for a transcript as is.
func (h *HTTPHandler) ParsePrescription(w http.ResponseWriter, r *http.Request) {
	if !h.requireExtractor(w) {
		return
	}

	var transcript string
	if !h.readTranscript(w, r, &transcript) {
		return
	}

	outcome, err := h.deps.Extractor.Extract(r.Context(), transcript)
	if err != nil {
		h.respondExtractionError(w, r, err)
		return
	}

	switch o := outcome.(type) {
	case extraction.Parsed:
		h.respondRaw(w, http.StatusOK, o.Raw)
	case extraction.Unparsed:
		h.respondUnparsed(w, o)
	default:
		h.RespondWithError(w, http.StatusInternalServerError, "Unexpected extraction result")
	}
}

// MergePrescription extracts a transcript and merges it into the given medicine list.
func (h *HTTPHandler) MergePrescription(w http.ResponseWriter, r *http.Request) {
	if !h.requireExtractor(w) {
		return
	}

	var req mergeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.deps.Validator.ValidateTranscript(req.Transcript); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, med := range req.Medicines {
		if err := h.deps.Validator.ValidateMedicine(patchFromMedicine(med)); err != nil {
			h.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	outcome, err := h.deps.Extractor.Extract(r.Context(), req.Transcript)
	if err != nil {
		h.respondExtractionError(w, r, err)
		return
	}

	switch o := outcome.(type) {
	case extraction.Parsed:
		current := req.Medicines
		if current == nil {
			current = []prescription.Medicine{}
		}
		warnUnrecognizedFrequencies(r.URL.Path, o.Extraction.Medicines)
		merged, added := prescription.Merger{NewID: prescription.NewID}.Merge(current, o.Extraction.Medicines)
		h.RespondWithJSON(w, http.StatusOK, mergeResponse{
			Medicines: merged,
			Notes:     o.Extraction.Notes,
			Added:     added,
		})
	case extraction.Unparsed:
		h.respondUnparsed(w, o)
	default:
		h.RespondWithError(w, http.StatusInternalServerError, "Unexpected extraction result")
	}
}

func patchFromMedicine(m prescription.Medicine) prescription.MedicinePatch {
	return prescription.MedicinePatch{
		Name:      &m.Name,
		Strength:  &m.Strength,
		Frequency: &m.Frequency,
		Days:      &m.Days,
	}
}
