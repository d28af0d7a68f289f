package books

import (
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"

	"BizBooks/internal/serviceiface"
)

type BooksService struct {
	config  map[string]interface{}
	db      *sql.DB
	pgxPool *pgxpool.Pool
}

func NewBooksService(cfg map[string]interface{}, db *sql.DB, pgxPool *pgxpool.Pool) serviceiface.Service {
	return &BooksService{config: cfg, db: db, pgxPool: pgxPool}
}

func (s *BooksService) Name() string {
	return "books"
}

func (s *BooksService) Start() error {
	go StartBooksService(s.db, s.pgxPool)
	return nil
}

func (s *BooksService) Stop() error {
	return nil
}
