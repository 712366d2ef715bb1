package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/2026musik-code/autoscrip/internal/db"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const documentName = "state"

// PostgresStore keeps the document as one jsonb row. Mutations lock the
// row with SELECT ... FOR UPDATE, so concurrent writers across processes
// are serialized by the database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, url, schema string) (*PostgresStore, error) {
	if url == "" {
		return nil, errors.New("postgres_url is required for the postgres driver")
	}
	if err := db.RunMigrations(url, schema); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	pool, err := db.InitDB(ctx, url, schema)
	if err != nil {
		return nil, err
	}
	return NewPostgresStore(pool), nil
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Read(ctx context.Context) (Document, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM documents WHERE name = $1`, documentName).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return decode(nil)
	}
	if err != nil {
		return Document{}, fmt.Errorf("failed to read document: %w", err)
	}
	return decode(body)
}

func (s *PostgresStore) Mutate(ctx context.Context, fn func(doc *Document) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO documents (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, documentName); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}

	var body []byte
	if err := tx.QueryRow(ctx,
		`SELECT body FROM documents WHERE name = $1 FOR UPDATE`, documentName).Scan(&body); err != nil {
		return fmt.Errorf("failed to lock document: %w", err)
	}

	doc, err := decode(body)
	if err != nil {
		return err
	}
	if err := fn(&doc); err != nil {
		return err
	}

	data, err := encode(&doc)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE documents SET body = $2::jsonb, updated_at = now() WHERE name = $1`,
		documentName, string(data)); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
