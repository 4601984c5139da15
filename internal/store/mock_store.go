package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"lexchat/internal/embeddings"
)

// MockStore is a mock implementation of Store using testify/mock.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateDocument(ctx context.Context, title, userID, mediaType string, sizeBytes int64) (Document, error) {
	args := m.Called(ctx, title, userID, mediaType, sizeBytes)
	return args.Get(0).(Document), args.Error(1)
}

func (m *MockStore) GetDocument(ctx context.Context, id uuid.UUID) (Document, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Document), args.Error(1)
}

func (m *MockStore) AttachFile(ctx context.Context, id uuid.UUID, fileKey string) error {
	args := m.Called(ctx, id, fileKey)
	return args.Error(0)
}

func (m *MockStore) ClaimProcessing(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStore) UpdateDocumentStatus(ctx context.Context, id uuid.UUID, status DocumentStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockStore) SaveContent(ctx context.Context, id uuid.UUID, content string) error {
	args := m.Called(ctx, id, content)
	return args.Error(0)
}

func (m *MockStore) CompleteDocument(ctx context.Context, id uuid.UUID, vector embeddings.Vector) error {
	args := m.Called(ctx, id, vector)
	return args.Error(0)
}

func (m *MockStore) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
