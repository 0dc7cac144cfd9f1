package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/giygas/prescriptions-api/backend"
	"github.com/giygas/prescriptions-api/logging"
	"github.com/giygas/prescriptions-api/storage"
)

const multipartMemory = 8 << 20

type uploadResponse struct {
	storage.Object
	Record json.RawMessage `json:"record,omitempty"`
}

// UploadDocument stores the multipart "file" field and describes the stored
// object. With a bearer token and a records backend the document is also
// recorded for the patient, using the "category" and "abhaId" fields.
func (h *HTTPHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	if h.deps.Documents == nil {
		h.RespondWithError(w, http.StatusServiceUnavailable, "Document storage is not configured")
		return
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.RespondWithError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		h.RespondWithError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.RespondWithError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	obj, err := h.deps.Documents.Save(r.Context(), r.FormValue("folder"), header.Filename, file)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrEmptyFile):
		h.RespondWithError(w, http.StatusBadRequest, "No file uploaded")
		return
	case errors.Is(err, storage.ErrTooLarge):
		h.RespondWithError(w, http.StatusRequestEntityTooLarge, "File too large")
		return
	case errors.Is(err, storage.ErrUnsupportedType):
		h.RespondWithError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	default:
		logging.Error("Upload failed", "error", err)
		h.RespondWithError(w, http.StatusInternalServerError, "Upload failed")
		return
	}
	logging.Info("Document uploaded", "public_id", obj.PublicID, "bytes", obj.Bytes, "format", obj.Format)

	resp := uploadResponse{Object: obj}
	if token := BearerToken(r); token != "" && h.deps.Backend != nil {
		record, err := h.deps.Backend.RecordReport(r.Context(), token, backend.ReportRecord{
			ABHAID:   strings.TrimSpace(r.FormValue("abhaId")),
			FileName: header.Filename,
			Category: strings.TrimSpace(r.FormValue("category")),
			URL:      obj.SecureURL,
		})
		if err != nil {
			logging.Warn("Stored document was not recorded", "public_id", obj.PublicID, "error", err)
			h.respondBackendError(w, err)
			return
		}
		resp.Record = record
	}
	h.RespondWithJSON(w, http.StatusOK, resp)
}
