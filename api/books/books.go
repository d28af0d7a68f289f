package books

import (
	"database/sql"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"

	"BizBooks/api/books/accounts"
	"BizBooks/api/books/checkpoint"
	"BizBooks/api/books/statement"
)

// StartBooksService wires the bookkeeping domain and serves it on its own
// port behind the gateway.
func StartBooksService(db *sql.DB, pgxPool *pgxpool.Pool) {
	stmtStore := statement.NewPGStore(db)
	cpStore := checkpoint.NewPGStore(db)
	engine := checkpoint.NewEngine(cpStore)
	importer := statement.NewImporter(stmtStore, engine, statement.NewS3Archiver())
	rollback := statement.NewRollbackCoordinator(stmtStore, engine)

	router := mux.NewRouter()
	router.HandleFunc("/books/statement/preview", statement.PreviewStatement()).Methods("POST")
	router.HandleFunc("/books/statement/import", statement.ImportStatement(importer)).Methods("POST")
	router.HandleFunc("/books/statement/rollback", statement.RollbackBatchHandler(rollback)).Methods("POST")
	router.HandleFunc("/books/statement/batches", statement.ListBatchesHandler(stmtStore)).Methods("GET")

	router.HandleFunc("/books/checkpoint/create", checkpoint.CreateCheckpointHandler(engine)).Methods("POST")
	router.HandleFunc("/books/checkpoint/delete", checkpoint.DeleteCheckpointHandler(engine)).Methods("POST")
	router.HandleFunc("/books/checkpoints", checkpoint.ListCheckpointsHandler(cpStore)).Methods("GET")

	router.HandleFunc("/books/accounts/create", accounts.CreateAccount(pgxPool)).Methods("POST")
	router.HandleFunc("/books/accounts/delete", accounts.DeleteAccount(pgxPool)).Methods("POST")
	router.HandleFunc("/books/accounts/balance", accounts.GetAccountBalance(pgxPool)).Methods("GET")
	router.HandleFunc("/books/accounts", accounts.ListAccounts(pgxPool)).Methods("GET")

	router.HandleFunc("/books/hello", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Hello from Books Service"))
	}).Methods("GET")

	log.Println("Books Service started on :7143")
	if err := http.ListenAndServe(":7143", router); err != nil {
		log.Fatalf("Books Service failed: %v", err)
	}
}
