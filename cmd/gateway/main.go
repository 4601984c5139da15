package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"lexchat/internal/app"
	"lexchat/internal/chat"
	"lexchat/internal/classifier"
	"lexchat/internal/embeddings"
	"lexchat/internal/httputil"
	"lexchat/internal/queue"
	"lexchat/internal/store"
)

type createDocumentRequest struct {
	Title     string `json:"title" validate:"required,min=1,max=300"`
	UserID    string `json:"user_id" validate:"required"`
	MediaType string `json:"media_type" validate:"required"`
	SizeBytes int64  `json:"size_bytes" validate:"omitempty,min=0"`
}

type attachFileRequest struct {
	FileKey string `json:"file_key" validate:"required"`
}

type chatRequest struct {
	Message string         `json:"message" validate:"required,min=1,max=2000"`
	History []chat.Message `json:"history"`
}

type ingestTaskPayload struct {
	DocumentID string `json:"document_id"`
}

func main() {
	ctx := context.Background()
	deps, err := app.Build(ctx)
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	engine := chat.NewEngine(deps.Store, deps.Embedder, deps.LLM, deps.Prompts, deps.Log)
	cls := classifier.New(deps.LLM, deps.Config.ClassifierMaxChars)
	r := newRouter(deps, engine, cls)

	addr := fmt.Sprintf(":%d", deps.Config.Port)
	deps.Log.Info("gateway listening", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		deps.Log.Error("server failed", "err", err)
	}
}

func newRouter(deps app.Deps, engine *chat.Engine, cls *classifier.Classifier) *chi.Mux {
	r := httputil.NewRouter(deps.Log)
	r.Post("/api/documents", createDocumentHandler(deps))
	r.Get("/api/documents/{id}", getDocumentHandler(deps))
	r.Post("/api/documents/{id}/file", attachFileHandler(deps))
	r.Post("/api/documents/{id}/chat", chatHandler(deps, engine))
	r.Post("/api/documents/{id}/classify", classifyHandler(deps, cls))
	r.Get("/healthz", httputil.HealthHandler(deps.Log))
	return r
}

// createDocumentHandler registers an upload intent. The record starts in
// processing state before any file exists; the client uploads the bytes to
// the object store and then attaches the key.
func createDocumentHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createDocumentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Fail(deps.Log, w, "invalid payload", err, http.StatusBadRequest)
			return
		}
		if err := httputil.Validator.Struct(&req); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}
		if !supportedMediaType(req.MediaType) {
			httputil.Fail(deps.Log, w, "unsupported media type (only PDF and text allowed)", nil, http.StatusBadRequest)
			return
		}
		if req.SizeBytes > deps.Config.MaxUploadSize {
			httputil.Fail(deps.Log, w, fmt.Sprintf("file too large (max %d bytes)", deps.Config.MaxUploadSize), nil, http.StatusBadRequest)
			return
		}

		doc, err := deps.Store.CreateDocument(r.Context(), req.Title, req.UserID, req.MediaType, req.SizeBytes)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to persist document", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, map[string]any{
			"document_id": doc.ID.String(),
			"status":      doc.Status,
			"upload_key":  "uploads/" + doc.ID.String(),
		})
	}
}

func getDocumentHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docID, ok := parseID(deps, w, r)
		if !ok {
			return
		}
		doc, err := deps.Store.GetDocument(r.Context(), docID)
		if errors.Is(err, store.ErrDocumentNotFound) {
			httputil.Fail(deps.Log, w, "document not found", err, http.StatusNotFound)
			return
		}
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to load document", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"document_id": doc.ID.String(),
			"title":       doc.Title,
			"status":      doc.Status,
			"media_type":  doc.MediaType,
			"ready":       doc.Ready(),
			"created_at":  doc.CreatedAt,
			"updated_at":  doc.UpdatedAt,
		})
	}
}

// attachFileHandler records the uploaded object key and enqueues the
// ingestion run.
func attachFileHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docID, ok := parseID(deps, w, r)
		if !ok {
			return
		}
		var req attachFileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Fail(deps.Log, w, "invalid payload", err, http.StatusBadRequest)
			return
		}
		if err := httputil.Validator.Struct(&req); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}

		ctx := r.Context()
		if err := deps.Store.AttachFile(ctx, docID, req.FileKey); err != nil {
			if errors.Is(err, store.ErrDocumentNotFound) {
				httputil.Fail(deps.Log, w, "document not found", err, http.StatusNotFound)
				return
			}
			httputil.Fail(deps.Log, w, "failed to attach file", err, http.StatusInternalServerError)
			return
		}

		body, err := json.Marshal(ingestTaskPayload{DocumentID: docID.String()})
		if err != nil {
			failDocument(ctx, deps, w, "marshal payload failed", err, docID)
			return
		}
		task := queue.Task{Type: queue.TaskTypeIngest, Payload: body}
		if err := queue.EnqueueWithRetry(ctx, deps.Queue, task, 3, 200*time.Millisecond); err != nil {
			failDocument(ctx, deps, w, "failed to enqueue document; please retry", err, docID)
			return
		}

		httputil.WriteJSON(w, http.StatusAccepted, map[string]any{
			"document_id": docID.String(),
			"status":      store.StatusProcessing,
		})
	}
}

func chatHandler(deps app.Deps, engine *chat.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docID, ok := parseID(deps, w, r)
		if !ok {
			return
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Fail(deps.Log, w, "invalid payload", err, http.StatusBadRequest)
			return
		}
		if err := httputil.Validator.Struct(&req); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}

		msg, err := engine.Chat(r.Context(), docID, req.Message, req.History)
		switch {
		case err == nil:
			httputil.WriteJSON(w, http.StatusOK, msg)
		case errors.Is(err, store.ErrDocumentNotFound):
			httputil.Fail(deps.Log, w, "document not found", err, http.StatusNotFound)
		case errors.Is(err, chat.ErrDocumentNotReady):
			httputil.Fail(deps.Log, w, "document is not ready for chat", err, http.StatusConflict)
		case errors.Is(err, chat.ErrInvalidModelResponse):
			httputil.Fail(deps.Log, w, "model returned an unusable response", err, http.StatusUnprocessableEntity)
		case errors.Is(err, embeddings.ErrDimensionMismatch):
			httputil.Fail(deps.Log, w, "stored vector is incompatible with the query", err, http.StatusInternalServerError)
		default:
			httputil.Fail(deps.Log, w, "chat failed", err, http.StatusBadGateway)
		}
	}
}

func classifyHandler(deps app.Deps, cls *classifier.Classifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docID, ok := parseID(deps, w, r)
		if !ok {
			return
		}
		doc, err := deps.Store.GetDocument(r.Context(), docID)
		if errors.Is(err, store.ErrDocumentNotFound) {
			httputil.Fail(deps.Log, w, "document not found", err, http.StatusNotFound)
			return
		}
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to load document", err, http.StatusInternalServerError)
			return
		}
		if doc.Content == "" {
			httputil.Fail(deps.Log, w, "document has no extracted content yet", nil, http.StatusConflict)
			return
		}

		resp := map[string]any{"document_id": docID.String()}
		isLegal, clsErr := cls.IsLegal(r.Context(), doc.Content)
		if clsErr != nil {
			// The verdict is unavailable, not negative.
			resp["error"] = clsErr.Error()
		} else {
			resp["is_legal"] = isLegal
		}
		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}

// failDocument marks the document failed so it does not stay stuck in
// processing, then writes the error response.
func failDocument(ctx context.Context, deps app.Deps, w http.ResponseWriter, message string, err error, docID uuid.UUID) {
	log := deps.Log.With("document_id", docID)
	if upErr := deps.Store.UpdateDocumentStatus(ctx, docID, store.StatusFailed); upErr != nil {
		log.Error("failed to mark document failed", "err", upErr)
	}
	httputil.Fail(log, w, message, err, http.StatusInternalServerError)
}

func parseID(deps app.Deps, w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	docID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.Fail(deps.Log, w, "invalid document id", err, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return docID, true
}

func supportedMediaType(mediaType string) bool {
	return mediaType == "application/pdf" || strings.HasPrefix(mediaType, "text/")
}
