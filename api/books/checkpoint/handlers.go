package checkpoint

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"BizBooks/api"
	"BizBooks/api/books/ledger"
)

// CreateCheckpointHandler handles POST /books/checkpoint/create with a JSON
// CreateInput body. Creating on a date that already has a checkpoint
// replaces it.
func CreateCheckpointHandler(eng *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			api.RespondWithError(w, http.StatusMethodNotAllowed, "only POST is allowed")
			return
		}
		var in CreateInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		cp, recalc, err := eng.CreateOrUpdateCheckpoint(r.Context(), in)
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		api.RespondWithPayload(w, true, "", map[string]interface{}{
			"checkpoint":   cp,
			"recalculated": recalc,
		})
	}
}

// DeleteCheckpointHandler handles POST /books/checkpoint/delete with JSON
// body {"id": "..."}.
func DeleteCheckpointHandler(eng *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			api.RespondWithError(w, http.StatusMethodNotAllowed, "only POST is allowed")
			return
		}
		var req struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.ID) == "" {
			api.RespondWithError(w, http.StatusBadRequest, "id is required")
			return
		}
		recalc, err := eng.DeleteCheckpoint(r.Context(), req.ID)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, ledger.ErrCheckpointNotFound) {
				status = http.StatusNotFound
			}
			api.RespondWithError(w, status, err.Error())
			return
		}
		api.RespondWithPayload(w, true, "", map[string]interface{}{"recalculated": recalc})
	}
}

// ListCheckpointsHandler handles GET /books/checkpoints?account_id=...
func ListCheckpointsHandler(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID := strings.TrimSpace(r.URL.Query().Get("account_id"))
		if accountID == "" {
			api.RespondWithError(w, http.StatusBadRequest, "account_id is required")
			return
		}
		cps, err := store.CheckpointsOnOrAfter(r.Context(), accountID, "")
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
		api.RespondWithPayload(w, true, "", cps)
	}
}
