package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lexchat/internal/app"
	"lexchat/internal/chat"
	"lexchat/internal/classifier"
	"lexchat/internal/config"
	"lexchat/internal/embeddings"
	"lexchat/internal/llm"
	"lexchat/internal/prompts"
	"lexchat/internal/queue"
	"lexchat/internal/store"
)

type testEnv struct {
	deps     app.Deps
	store    *store.MockStore
	queue    *queue.MockQueue
	embedder *embeddings.MockEmbedder
	llm      *llm.MockClient
	router   http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := new(store.MockStore)
	q := new(queue.MockQueue)
	emb := new(embeddings.MockEmbedder)
	client := new(llm.MockClient)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	deps := app.Deps{
		Config:   config.Load(),
		Log:      log,
		Store:    st,
		Queue:    q,
		Embedder: emb,
		LLM:      client,
		Prompts:  prompts.NewStatic(prompts.DefaultChatTemplate),
	}
	engine := chat.NewEngine(st, emb, client, deps.Prompts, log)
	cls := classifier.New(client, deps.Config.ClassifierMaxChars)
	return &testEnv{
		deps:     deps,
		store:    st,
		queue:    q,
		embedder: emb,
		llm:      client,
		router:   newRouter(deps, engine, cls),
	}
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			_ = json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestCreateDocument(t *testing.T) {
	docID := uuid.New()

	tests := []struct {
		name       string
		body       any
		setup      func(*testEnv)
		wantStatus int
	}{
		{
			name: "creates processing record",
			body: map[string]any{"title": "NDA", "user_id": "u1", "media_type": "application/pdf", "size_bytes": 1024},
			setup: func(e *testEnv) {
				e.store.On("CreateDocument", mock.Anything, "NDA", "u1", "application/pdf", int64(1024)).
					Return(store.Document{ID: docID, Title: "NDA", Status: store.StatusProcessing}, nil)
			},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "rejects malformed json",
			body:       `{"title":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "rejects missing title",
			body:       map[string]any{"user_id": "u1", "media_type": "text/plain"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "rejects unsupported media type",
			body:       map[string]any{"title": "img", "user_id": "u1", "media_type": "image/png"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "rejects oversized upload",
			body:       map[string]any{"title": "big", "user_id": "u1", "media_type": "application/pdf", "size_bytes": 26214401},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "store failure surfaces as 500",
			body: map[string]any{"title": "NDA", "user_id": "u1", "media_type": "text/plain"},
			setup: func(e *testEnv) {
				e.store.On("CreateDocument", mock.Anything, "NDA", "u1", "text/plain", int64(0)).
					Return(store.Document{}, assert.AnError)
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.setup != nil {
				tt.setup(env)
			}
			rec := env.do(http.MethodPost, "/api/documents", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if rec.Code == http.StatusCreated {
				body := decodeBody(t, rec)
				assert.Equal(t, docID.String(), body["document_id"])
				assert.Equal(t, "processing", body["status"])
				assert.Equal(t, "uploads/"+docID.String(), body["upload_key"])
			}
			env.store.AssertExpectations(t)
		})
	}
}

func TestGetDocument(t *testing.T) {
	docID := uuid.New()

	t.Run("returns document with readiness", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.On("GetDocument", mock.Anything, docID).Return(store.Document{
			ID: docID, Title: "NDA", Status: store.StatusCompleted,
			MediaType: "application/pdf", Embedding: embeddings.Vector{0.1, 0.2},
		}, nil)

		rec := env.do(http.MethodGet, "/api/documents/"+docID.String(), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "completed", body["status"])
		assert.Equal(t, true, body["ready"])
	})

	t.Run("unknown id is 404", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.On("GetDocument", mock.Anything, docID).Return(store.Document{}, store.ErrDocumentNotFound)
		rec := env.do(http.MethodGet, "/api/documents/"+docID.String(), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid id is 400", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(http.MethodGet, "/api/documents/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAttachFile(t *testing.T) {
	docID := uuid.New()
	body := map[string]any{"file_key": "uploads/" + docID.String()}

	t.Run("attaches file and enqueues ingestion", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.On("AttachFile", mock.Anything, docID, "uploads/"+docID.String()).Return(nil)
		env.queue.On("Enqueue", mock.Anything, mock.MatchedBy(func(task queue.Task) bool {
			var payload ingestTaskPayload
			if err := json.Unmarshal(task.Payload, &payload); err != nil {
				return false
			}
			return task.Type == queue.TaskTypeIngest && payload.DocumentID == docID.String()
		})).Return(nil)

		rec := env.do(http.MethodPost, fmt.Sprintf("/api/documents/%s/file", docID), body)
		require.Equal(t, http.StatusAccepted, rec.Code)
		env.store.AssertExpectations(t)
		env.queue.AssertExpectations(t)
	})

	t.Run("enqueue failure marks the document failed", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.On("AttachFile", mock.Anything, docID, mock.Anything).Return(nil)
		env.queue.On("Enqueue", mock.Anything, mock.Anything).Return(assert.AnError)
		env.store.On("UpdateDocumentStatus", mock.Anything, docID, store.StatusFailed).Return(nil)

		rec := env.do(http.MethodPost, fmt.Sprintf("/api/documents/%s/file", docID), body)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		env.store.AssertCalled(t, "UpdateDocumentStatus", mock.Anything, docID, store.StatusFailed)
	})

	t.Run("missing file_key is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(http.MethodPost, fmt.Sprintf("/api/documents/%s/file", docID), map[string]any{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown document is 404", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.On("AttachFile", mock.Anything, docID, mock.Anything).Return(store.ErrDocumentNotFound)
		rec := env.do(http.MethodPost, fmt.Sprintf("/api/documents/%s/file", docID), body)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestChat(t *testing.T) {
	docID := uuid.New()
	readyDoc := store.Document{
		ID:        docID,
		Content:   "The term of this agreement is two years.",
		Status:    store.StatusCompleted,
		Embedding: embeddings.Vector{0.5, 0.5},
	}
	chatBody := map[string]any{"message": "How long is the term?"}

	t.Run("answers from the document", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.On("GetDocument", mock.Anything, docID).Return(readyDoc, nil)
		env.embedder.On("Embed", mock.Anything, "How long is the term?").Return(embeddings.Vector{0.5, 0.5}, nil)
		env.llm.On("Complete", mock.Anything, mock.Anything, mock.Anything).
			Return(`{"content":"Two years.","references":[{"page":1,"text":"two years"}]}`, nil)

		rec := env.do(http.MethodPost, fmt.Sprintf("/api/documents/%s/chat", docID), chatBody)
		require.Equal(t, http.StatusOK, rec.Code)
		var msg chat.Message
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&msg))
		assert.Equal(t, chat.RoleAssistant, msg.Role)
		assert.Equal(t, "Two years.", msg.Content)
		require.Len(t, msg.References, 1)
		assert.Equal(t, 1, msg.References[0].Page)
	})

	t.Run("document without vector is 409", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.On("GetDocument", mock.Anything, docID).
			Return(store.Document{ID: docID, Status: store.StatusProcessing}, nil)

		rec := env.do(http.MethodPost, fmt.Sprintf("/api/documents/%s/chat", docID), chatBody)
		assert.Equal(t, http.StatusConflict, rec.Code)
		env.llm.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unusable model response is 422", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.On("GetDocument", mock.Anything, docID).Return(readyDoc, nil)
		env.embedder.On("Embed", mock.Anything, mock.Anything).Return(embeddings.Vector{0.5, 0.5}, nil)
		env.llm.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("I cannot answer that.", nil)

		rec := env.do(http.MethodPost, fmt.Sprintf("/api/documents/%s/chat", docID), chatBody)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("unknown document is 404", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.On("GetDocument", mock.Anything, docID).Return(store.Document{}, store.ErrDocumentNotFound)
		rec := env.do(http.MethodPost, fmt.Sprintf("/api/documents/%s/chat", docID), chatBody)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("generation failure is 502", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.On("GetDocument", mock.Anything, docID).Return(readyDoc, nil)
		env.embedder.On("Embed", mock.Anything, mock.Anything).Return(embeddings.Vector{0.5, 0.5}, nil)
		env.llm.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("", assert.AnError)

		rec := env.do(http.MethodPost, fmt.Sprintf("/api/documents/%s/chat", docID), chatBody)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("empty message is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(http.MethodPost, fmt.Sprintf("/api/documents/%s/chat", docID), map[string]any{"message": ""})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestClassify(t *testing.T) {
	docID := uuid.New()
	doc := store.Document{ID: docID, Content: "This lease agreement is made between the parties."}

	t.Run("returns verdict", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.On("GetDocument", mock.Anything, docID).Return(doc, nil)
		env.llm.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("Yes", nil)

		rec := env.do(http.MethodPost, fmt.Sprintf("/api/documents/%s/classify", docID), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, true, body["is_legal"])
		assert.NotContains(t, body, "error")
	})

	t.Run("classifier failure reports an error, not a verdict", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.On("GetDocument", mock.Anything, docID).Return(doc, nil)
		env.llm.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("", assert.AnError)

		rec := env.do(http.MethodPost, fmt.Sprintf("/api/documents/%s/classify", docID), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.NotContains(t, body, "is_legal")
		assert.Contains(t, body, "error")
	})

	t.Run("document without content is 409", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.On("GetDocument", mock.Anything, docID).Return(store.Document{ID: docID}, nil)
		rec := env.do(http.MethodPost, fmt.Sprintf("/api/documents/%s/classify", docID), nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
