package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"lexchat/internal/embeddings"
)

type DocumentStatus string

const (
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrNotProcessing    = errors.New("document is not in processing state")
)

// Document is the persisted record for an uploaded legal document.
type Document struct {
	ID        uuid.UUID
	Title     string
	Content   string
	UserID    string
	MediaType string
	SizeBytes int64
	FileKey   string
	Status    DocumentStatus
	Embedding embeddings.Vector
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Ready reports whether the document can serve chat. Eligibility depends on
// the stored vector, not the status label.
func (d Document) Ready() bool {
	return len(d.Embedding) > 0
}

// Store defines the record store contract; an external DB implementation can replace this.
type Store interface {
	CreateDocument(ctx context.Context, title, userID, mediaType string, sizeBytes int64) (Document, error)
	GetDocument(ctx context.Context, id uuid.UUID) (Document, error)
	AttachFile(ctx context.Context, id uuid.UUID, fileKey string) error
	// ClaimProcessing is a compare-and-swap entry guard: it succeeds only
	// while the document status is still "processing".
	ClaimProcessing(ctx context.Context, id uuid.UUID) error
	UpdateDocumentStatus(ctx context.Context, id uuid.UUID, status DocumentStatus) error
	SaveContent(ctx context.Context, id uuid.UUID, content string) error
	// CompleteDocument persists the flattened vector and marks the document
	// completed in one patch.
	CompleteDocument(ctx context.Context, id uuid.UUID, vector embeddings.Vector) error
	DeleteDocument(ctx context.Context, id uuid.UUID) error
}
