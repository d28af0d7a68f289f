package statement

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"BizBooks/api"
	"BizBooks/api/books/ledger"
)

// readUploadedFile finds the statement file in the multipart form, trying
// the conventional field names before falling back to the first file field.
func readUploadedFile(r *http.Request) ([]byte, string, error) {
	if r.MultipartForm == nil {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return nil, "", ledger.FileFormatErrorf("unable to read the uploaded file")
		}
	}
	var file multipart.File
	var header *multipart.FileHeader
	var err error
	for _, field := range []string{"file", "statement"} {
		file, header, err = r.FormFile(field)
		if err == nil && file != nil {
			break
		}
	}
	if file == nil && r.MultipartForm != nil {
		for _, files := range r.MultipartForm.File {
			if len(files) > 0 {
				header = files[0]
				file, err = header.Open()
				break
			}
		}
	}
	if err != nil || file == nil {
		return nil, "", ledger.FileFormatErrorf("no file attached; use the 'file' field in form-data")
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", ledger.FileFormatErrorf("failed to read the uploaded file")
	}
	return data, header.Filename, nil
}

func fileKindOf(r *http.Request, fileName string) string {
	if k := strings.TrimSpace(r.FormValue("file_kind")); k != "" {
		return strings.ToLower(k)
	}
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), ".")
}

func importStatus(err error) int {
	switch {
	case errors.Is(err, ledger.ErrFileAlreadyUploaded), errors.Is(err, ledger.ErrAlreadyRolledBack):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrBatchNotFound):
		return http.StatusNotFound
	default:
		var ffe *ledger.FileFormatError
		if errors.As(err, &ffe) {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	}
}

// PreviewStatement handles POST /books/statement/preview: normalize the
// file and return the guessed column mapping for the user to confirm.
func PreviewStatement() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			api.RespondWithError(w, http.StatusMethodNotAllowed, "only POST is allowed")
			return
		}
		data, fileName, err := readUploadedFile(r)
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		preview, err := Preview(data, fileKindOf(r, fileName))
		if err != nil {
			api.RespondWithError(w, importStatus(err), err.Error())
			return
		}
		api.RespondWithPayload(w, true, "", preview)
	}
}

// ImportStatement handles POST /books/statement/import: multipart form with
// the file plus the confirmed mapping as a JSON form field.
func ImportStatement(im *Importer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			api.RespondWithError(w, http.StatusMethodNotAllowed, "only POST is allowed")
			return
		}
		data, fileName, err := readUploadedFile(r)
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}

		req := ImportRequest{
			AccountID: strings.TrimSpace(r.FormValue("account_id")),
			FileName:  fileName,
			FileKind:  fileKindOf(r, fileName),
			Data:      data,
			Period: Period{
				Start: strings.TrimSpace(r.FormValue("period_start")),
				End:   strings.TrimSpace(r.FormValue("period_end")),
			},
		}
		if raw := r.FormValue("mappings"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &req.Mappings); err != nil {
				api.RespondWithError(w, http.StatusBadRequest, "mappings is not valid JSON")
				return
			}
		}
		if raw := r.FormValue("options"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &req.Options); err != nil {
				api.RespondWithError(w, http.StatusBadRequest, "options is not valid JSON")
				return
			}
		}
		if day := strings.TrimSpace(r.FormValue("checkpoint_date")); day != "" {
			bal, err := decimal.NewFromString(strings.TrimSpace(r.FormValue("checkpoint_balance")))
			if err != nil {
				api.RespondWithError(w, http.StatusBadRequest, "checkpoint_balance is not a number")
				return
			}
			req.Checkpoint = &CheckpointRequest{Date: day, DeclaredBalance: bal}
		}

		result, err := im.Import(r.Context(), req)
		if err != nil {
			if result != nil {
				// partial success: some chunks landed before the failure
				api.RespondWithPayload(w, false, err.Error(), result)
				return
			}
			api.RespondWithError(w, importStatus(err), err.Error())
			return
		}
		api.RespondWithPayload(w, true, "", result)
	}
}

// RollbackBatchHandler handles POST /books/statement/rollback with JSON body
// {"batch_id": "...", "reason": "..."} (reason optional).
func RollbackBatchHandler(rc *RollbackCoordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			api.RespondWithError(w, http.StatusMethodNotAllowed, "only POST is allowed")
			return
		}
		var req struct {
			BatchID string `json:"batch_id"`
			Reason  string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.BatchID) == "" {
			api.RespondWithError(w, http.StatusBadRequest, "batch_id is required")
			return
		}
		result, err := rc.Rollback(r.Context(), req.BatchID, strings.TrimSpace(req.Reason))
		if err != nil {
			api.RespondWithError(w, importStatus(err), err.Error())
			return
		}
		api.RespondWithPayload(w, true, "", result)
	}
}

// ListBatchesHandler handles GET /books/statement/batches?account_id=...
func ListBatchesHandler(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID := strings.TrimSpace(r.URL.Query().Get("account_id"))
		if accountID == "" {
			api.RespondWithError(w, http.StatusBadRequest, "account_id is required")
			return
		}
		batches, err := store.ListBatches(r.Context(), accountID)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
		api.RespondWithPayload(w, true, "", batches)
	}
}
