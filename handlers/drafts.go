package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/giygas/prescriptions-api/backend"
	"github.com/giygas/prescriptions-api/data"
	"github.com/giygas/prescriptions-api/extraction"
	"github.com/giygas/prescriptions-api/logging"
	"github.com/giygas/prescriptions-api/prescription"
)

var (
	errMedicineNotFound = errors.New("medicine not found")
	errLastRow          = errors.New("the last medicine row cannot be removed")
)

type draftResponse struct {
	ID         string                  `json:"id"`
	Medicines  []prescription.Medicine `json:"medicines"`
	Notes      string                  `json:"notes"`
	Mode       prescription.Mode       `json:"mode"`
	Valid      bool                    `json:"valid"`
	Extracting bool                    `json:"extracting"`
	CreatedAt  time.Time               `json:"created_at"`
	UpdatedAt  time.Time               `json:"updated_at"`
}

type voiceResponse struct {
	draftResponse
	Added int `json:"added"`
}

func newDraftResponse(d data.Draft) draftResponse {
	return draftResponse{
		ID:         d.ID,
		Medicines:  d.Form.Medicines,
		Notes:      d.Form.Notes,
		Mode:       d.Form.Mode,
		Valid:      d.Form.Valid(),
		Extracting: d.Extracting,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

// draftID reads and validates the {id} URL parameter.
func (h *HTTPHandler) draftID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := h.deps.Validator.ValidateID(id); err != nil {
		logging.Warn("Unusual user input", "draft_id", id)
		h.RespondWithError(w, http.StatusBadRequest, "Invalid draft id")
		return "", false
	}
	return id, true
}

func (h *HTTPHandler) respondDraftError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, data.ErrDraftNotFound):
		h.RespondWithError(w, http.StatusNotFound, "Draft not found")
	case errors.Is(err, data.ErrExtractionInProgress):
		h.RespondWithError(w, http.StatusConflict, "A voice transcript is already being processed for this draft")
	case errors.Is(err, errMedicineNotFound):
		h.RespondWithError(w, http.StatusNotFound, "Medicine not found")
	case errors.Is(err, errLastRow):
		h.RespondWithError(w, http.StatusConflict, err.Error())
	default:
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
	}
}

// update runs fn on the draft named in the URL and writes the draft back.
func (h *HTTPHandler) update(w http.ResponseWriter, r *http.Request, status int, fn func(*prescription.Form) error) {
	id, ok := h.draftID(w, r)
	if !ok {
		return
	}
	draft, err := h.deps.Drafts.Update(id, fn)
	if err != nil {
		h.respondDraftError(w, err)
		return
	}
	h.RespondWithJSON(w, status, newDraftResponse(draft))
}

// CreateDraft starts a new prescription with one empty row.
func (h *HTTPHandler) CreateDraft(w http.ResponseWriter, r *http.Request) {
	draft := h.deps.Drafts.Create()
	if who, ok := backend.IdentityFromContext(r.Context()); ok {
		logging.Info("Draft created", "draft_id", draft.ID, "created_by", who.ID)
	}
	w.Header().Set("Location", "/v1/drafts/"+draft.ID)
	h.RespondWithJSON(w, http.StatusCreated, newDraftResponse(draft))
}

func (h *HTTPHandler) GetDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := h.draftID(w, r)
	if !ok {
		return
	}
	draft, err := h.deps.Drafts.Get(id)
	if err != nil {
		h.respondDraftError(w, err)
		return
	}
	h.RespondWithJSON(w, http.StatusOK, newDraftResponse(draft))
}

func (h *HTTPHandler) DeleteDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := h.draftID(w, r)
	if !ok {
		return
	}
	if !h.deps.Drafts.Delete(id) {
		h.respondDraftError(w, data.ErrDraftNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddMedicine appends an empty row.
func (h *HTTPHandler) AddMedicine(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, http.StatusCreated, func(f *prescription.Form) error {
		f.AddRow()
		return nil
	})
}

// UpdateMedicine applies a partial edit to one row.
func (h *HTTPHandler) UpdateMedicine(w http.ResponseWriter, r *http.Request) {
	medicineID := chi.URLParam(r, "medicineId")

	var patch prescription.MedicinePatch
	if err := decodeJSON(r, &patch); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.deps.Validator.ValidateMedicine(patch); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.update(w, r, http.StatusOK, func(f *prescription.Form) error {
		if _, ok := f.UpdateRow(medicineID, patch); !ok {
			return errMedicineNotFound
		}
		return nil
	})
}

// RemoveMedicine deletes one row; the last row is kept.
func (h *HTTPHandler) RemoveMedicine(w http.ResponseWriter, r *http.Request) {
	medicineID := chi.URLParam(r, "medicineId")

	h.update(w, r, http.StatusOK, func(f *prescription.Form) error {
		if f.RemoveRow(medicineID) {
			return nil
		}
		for _, med := range f.Medicines {
			if med.ID == medicineID {
				return errLastRow
			}
		}
		return errMedicineNotFound
	})
}

// SetMode switches between manual and voice entry.
func (h *HTTPHandler) SetMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := prescription.ParseMode(req.Mode)
	if err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.update(w, r, http.StatusOK, func(f *prescription.Form) error {
		f.SetMode(mode)
		return nil
	})
}

// SetNotes replaces the free-text notes.
func (h *HTTPHandler) SetNotes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Notes string `json:"notes"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.deps.Validator.ValidateNotes(req.Notes); err != nil {
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.update(w, r, http.StatusOK, func(f *prescription.Form) error {
		f.SetNotes(req.Notes)
		return nil
	})
}

func (h *HTTPHandler) ResetDraft(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, http.StatusOK, func(f *prescription.Form) error {
		f.Reset()
		return nil
	})
}

// ApplyVoice extracts a dictated transcript and merges it into the draft.
// Only one extraction may run per draft; the merge happens after the model
// answers, under the draft lock.
func (h *HTTPHandler) ApplyVoice(w http.ResponseWriter, r *http.Request) {
	if !h.requireExtractor(w) {
		return
	}
	id, ok := h.draftID(w, r)
	if !ok {
		return
	}
	var transcript string
	if !h.readTranscript(w, r, &transcript) {
		return
	}

	if err := h.deps.Drafts.BeginExtraction(id); err != nil {
		h.respondDraftError(w, err)
		return
	}
	defer h.deps.Drafts.EndExtraction(id)

	outcome, err := h.deps.Extractor.Extract(r.Context(), transcript)
	if r.Context().Err() != nil {
		logging.Info("Voice extraction abandoned by client", "draft_id", id)
		return
	}
	if err != nil {
		h.respondExtractionError(w, r, err)
		return
	}

	switch o := outcome.(type) {
	case extraction.Parsed:
		warnUnrecognizedFrequencies(r.URL.Path, o.Extraction.Medicines)
		added := 0
		draft, err := h.deps.Drafts.Update(id, func(f *prescription.Form) error {
			added = f.ApplyVoice(o.Extraction)
			return nil
		})
		if err != nil {
			h.respondDraftError(w, err)
			return
		}
		// The busy flag is still set here; report the draft as it will be once released.
		draft.Extracting = false
		logging.Info("Voice transcript merged", "draft_id", id, "added", added, "extracted", len(o.Extraction.Medicines))
		h.RespondWithJSON(w, http.StatusOK, voiceResponse{draftResponse: newDraftResponse(draft), Added: added})
	case extraction.Unparsed:
		h.respondUnparsed(w, o)
	default:
		h.RespondWithError(w, http.StatusInternalServerError, "Unexpected extraction result")
	}
}
