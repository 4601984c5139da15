package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"lexchat/internal/embeddings"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	s := &PostgresStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	// Use advisory lock to prevent concurrent migrations from multiple services.
	// Note: In production, use dedicated migration tools (e.g., golang-migrate/migrate)
	// that run as a separate deployment step before app services start.
	const lockID = 424242001 // arbitrary number for this application's migration lock

	var acquired bool
	err := s.db.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, lockID).Scan(&acquired)
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}

	if !acquired {
		// Another service is running migrations; wait briefly and skip
		time.Sleep(2 * time.Second)
		return nil
	}

	defer func() {
		_, _ = s.db.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, lockID)
	}()

	_, err = s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			id UUID PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL,
			media_type TEXT NOT NULL,
			size_bytes BIGINT NOT NULL DEFAULT 0,
			file_key TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			embedding REAL[],
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`)
	if err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, title, userID, mediaType string, sizeBytes int64) (Document, error) {
	id := uuid.New()
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents(id, title, user_id, media_type, size_bytes, status, created_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$7)`,
		id, title, userID, mediaType, sizeBytes, StatusProcessing, now)
	if err != nil {
		return Document{}, err
	}
	return Document{
		ID:        id,
		Title:     title,
		UserID:    userID,
		MediaType: mediaType,
		SizeBytes: sizeBytes,
		Status:    StatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id uuid.UUID) (Document, error) {
	var d Document
	var emb pq.Float32Array
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, content, user_id, media_type, size_bytes, file_key, status, embedding, created_at, updated_at
		FROM documents WHERE id=$1`, id)
	err := row.Scan(&d.ID, &d.Title, &d.Content, &d.UserID, &d.MediaType, &d.SizeBytes,
		&d.FileKey, &d.Status, &emb, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrDocumentNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	d.Embedding = embeddings.Vector(emb)
	return d, nil
}

func (s *PostgresStore) AttachFile(ctx context.Context, id uuid.UUID, fileKey string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET file_key=$1, updated_at=now() WHERE id=$2`, fileKey, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PostgresStore) ClaimProcessing(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET updated_at=now()
		WHERE id=$1 AND status=$2`, id, StatusProcessing)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotProcessing
	}
	return nil
}

func (s *PostgresStore) UpdateDocumentStatus(ctx context.Context, id uuid.UUID, status DocumentStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET status=$1, updated_at=now() WHERE id=$2`, status, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PostgresStore) SaveContent(ctx context.Context, id uuid.UUID, content string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET content=$1, updated_at=now() WHERE id=$2`, content, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PostgresStore) CompleteDocument(ctx context.Context, id uuid.UUID, vector embeddings.Vector) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET embedding=$1, status=$2, updated_at=now() WHERE id=$3`,
		pq.Float32Array(vector), StatusCompleted, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDocumentNotFound
	}
	return nil
}
