package accounts

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"BizBooks/api"
)

// Account is one bank account the books track.
type Account struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	AccountNumber string `json:"account_number,omitempty"`
	BankName      string `json:"bank_name,omitempty"`
	Currency      string `json:"currency,omitempty"`
	// CurrentBalance is the replayed credit-minus-debit over all
	// transactions, adjustments included.
	CurrentBalance string `json:"current_balance"`
}

// CreateAccount inserts a new account row.
func CreateAccount(pgxPool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req struct {
			Name          string `json:"name"`
			AccountNumber string `json:"account_number,omitempty"`
			BankName      string `json:"bank_name,omitempty"`
			Currency      string `json:"currency,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.RespondWithResult(w, false, "invalid json: "+err.Error())
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			api.RespondWithResult(w, false, "name required")
			return
		}
		id := uuid.NewString()
		_, err := pgxPool.Exec(ctx, `
			INSERT INTO accounts (id, name, account_number, bank_name, currency)
			VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''), NULLIF($5,''))
		`, id, strings.TrimSpace(req.Name), req.AccountNumber, req.BankName, req.Currency)
		if err != nil {
			api.RespondWithResult(w, false, "failed to create account: "+err.Error())
			return
		}
		api.RespondWithPayload(w, true, "", map[string]string{"id": id})
	}
}

// ListAccounts returns all live accounts with their replayed balance.
func ListAccounts(pgxPool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		rows, err := pgxPool.Query(ctx, `
			SELECT a.id, a.name, COALESCE(a.account_number,''), COALESCE(a.bank_name,''), COALESCE(a.currency,''),
			       COALESCE(SUM(COALESCE(t.credit_amount,0) - COALESCE(t.debit_amount,0)), 0)::text
			FROM accounts a
			LEFT JOIN transactions t ON t.account_id = a.id
			WHERE NOT a.is_deleted
			GROUP BY a.id, a.name, a.account_number, a.bank_name, a.currency
			ORDER BY a.name
		`)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
		defer rows.Close()
		out := []Account{}
		for rows.Next() {
			var a Account
			if err := rows.Scan(&a.ID, &a.Name, &a.AccountNumber, &a.BankName, &a.Currency, &a.CurrentBalance); err != nil {
				api.RespondWithError(w, http.StatusInternalServerError, err.Error())
				return
			}
			out = append(out, a)
		}
		api.RespondWithPayload(w, true, "", out)
	}
}

// GetAccountBalance returns the replayed balance of one account up to an
// optional as_of date.
func GetAccountBalance(pgxPool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		accountID := strings.TrimSpace(r.URL.Query().Get("account_id"))
		if accountID == "" {
			api.RespondWithError(w, http.StatusBadRequest, "account_id is required")
			return
		}
		asOf := strings.TrimSpace(r.URL.Query().Get("as_of"))
		q := `
			SELECT COALESCE(SUM(COALESCE(credit_amount,0) - COALESCE(debit_amount,0)), 0)::text
			FROM transactions WHERE account_id = $1`
		args := []interface{}{accountID}
		if asOf != "" {
			q += ` AND txn_date <= $2::date`
			args = append(args, asOf)
		}
		var balance string
		if err := pgxPool.QueryRow(ctx, q, args...).Scan(&balance); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
		api.RespondWithPayload(w, true, "", map[string]string{
			"account_id": accountID,
			"balance":    balance,
			"as_of":      asOf,
		})
	}
}

// DeleteAccount soft-deletes an account; its history stays queryable.
func DeleteAccount(pgxPool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.ID) == "" {
			api.RespondWithResult(w, false, "id required")
			return
		}
		tag, err := pgxPool.Exec(ctx, `UPDATE accounts SET is_deleted = true WHERE id = $1 AND NOT is_deleted`, req.ID)
		if err != nil {
			api.RespondWithResult(w, false, "failed to delete account: "+err.Error())
			return
		}
		if tag.RowsAffected() == 0 {
			api.RespondWithError(w, http.StatusNotFound, "account not found")
			return
		}
		api.RespondWithResult(w, true, "")
	}
}
