package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"lexchat/internal/chunker"
	"lexchat/internal/embeddings"
	"lexchat/internal/extractor"
	"lexchat/internal/filestore"
	"lexchat/internal/store"
)

var (
	ErrMissingFileLocation = errors.New("document has no file location")
	ErrEmptyContent        = errors.New("no text content extracted")
)

// Classifier delivers the legal/non-legal verdict for extracted content.
type Classifier interface {
	IsLegal(ctx context.Context, content string) (bool, error)
}

// Options bounds chunking and embedding for a run.
type Options struct {
	MaxChunkSize   int
	ChunkOverlap   int
	MaxEmbedChunks int
}

// DefaultMaxEmbedChunks caps how many leading chunks are embedded.
const DefaultMaxEmbedChunks = 10

// Result reports the outcome of one ingestion run. ClassifierErr is the only
// non-fatal failure; it is carried here for observability instead of aborting
// the run.
type Result struct {
	Status         store.DocumentStatus
	Deleted        bool
	ChunkCount     int
	EmbeddedChunks int
	ClassifierErr  error
}

// Runner executes one end-to-end ingestion per document: fetch, extract,
// chunk, persist content, embed, classify, finalize.
type Runner struct {
	store      store.Store
	files      filestore.Store
	downloader *filestore.Downloader
	embedder   embeddings.Embedder
	classifier Classifier
	log        *slog.Logger
	opts       Options
}

func NewRunner(st store.Store, files filestore.Store, dl *filestore.Downloader,
	emb embeddings.Embedder, cls Classifier, log *slog.Logger, opts Options) *Runner {
	if opts.MaxChunkSize <= 0 {
		opts.MaxChunkSize = chunker.DefaultMaxSize
	}
	if opts.ChunkOverlap <= 0 {
		opts.ChunkOverlap = chunker.DefaultOverlap
	}
	if opts.MaxEmbedChunks <= 0 {
		opts.MaxEmbedChunks = DefaultMaxEmbedChunks
	}
	return &Runner{
		store:      st,
		files:      files,
		downloader: dl,
		embedder:   emb,
		classifier: cls,
		log:        log,
		opts:       opts,
	}
}

// Run processes one document. Steps are strictly sequential; any fatal error
// forces a best-effort "failed" status write before it is returned. A panic
// anywhere in the run is converted to the same failure path.
func (r *Runner) Run(ctx context.Context, docID uuid.UUID) (res Result, err error) {
	log := r.log.With("document_id", docID)

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("ingestion panic: %v", rec)
			res = Result{Status: store.StatusFailed}
			r.markFailed(ctx, log, docID, err)
		}
	}()

	doc, err := r.store.GetDocument(ctx, docID)
	if err != nil {
		return Result{}, fmt.Errorf("load document: %w", err)
	}

	// Compare-and-swap entry guard; a re-trigger on a finished document is
	// rejected before any download happens.
	if err := r.store.ClaimProcessing(ctx, docID); err != nil {
		return Result{}, fmt.Errorf("claim document: %w", err)
	}

	if doc.FileKey == "" {
		r.markFailed(ctx, log, docID, ErrMissingFileLocation)
		return Result{Status: store.StatusFailed}, ErrMissingFileLocation
	}

	scratch, err := r.fetchToScratch(ctx, doc.FileKey)
	if err != nil {
		r.markFailed(ctx, log, docID, err)
		return Result{Status: store.StatusFailed}, err
	}
	defer func() {
		if rmErr := os.Remove(scratch); rmErr != nil {
			log.Warn("failed to remove scratch file", "path", scratch, "err", rmErr)
		}
	}()

	segments, err := extractor.Extract(scratch, doc.MediaType)
	if err != nil {
		r.markFailed(ctx, log, docID, err)
		return Result{Status: store.StatusFailed}, fmt.Errorf("extract text: %w", err)
	}

	chunks := chunker.Split(segments, chunker.Options{
		MaxSize: r.opts.MaxChunkSize,
		Overlap: r.opts.ChunkOverlap,
	})
	if len(chunks) == 0 {
		r.markFailed(ctx, log, docID, ErrEmptyContent)
		return Result{Status: store.StatusFailed}, ErrEmptyContent
	}

	// Content is durable before embedding: a later failure still leaves
	// usable text on the record.
	content := chunker.Join(chunks)
	if err := r.store.SaveContent(ctx, docID, content); err != nil {
		r.markFailed(ctx, log, docID, err)
		return Result{Status: store.StatusFailed}, fmt.Errorf("persist content: %w", err)
	}

	texts := chunker.Texts(chunks)
	if len(texts) > r.opts.MaxEmbedChunks {
		texts = texts[:r.opts.MaxEmbedChunks]
	}
	vectors, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		r.markFailed(ctx, log, docID, err)
		return Result{Status: store.StatusFailed}, fmt.Errorf("embed chunks: %w", err)
	}

	res = Result{
		ChunkCount:     len(chunks),
		EmbeddedChunks: len(vectors),
	}

	isLegal, clsErr := r.classifier.IsLegal(ctx, content)
	if clsErr != nil {
		// Non-fatal: absence of a verdict is never a negative verdict.
		log.Warn("classifier failed; keeping document", "err", clsErr)
		res.ClassifierErr = clsErr
	} else if !isLegal {
		return r.deleteRejected(ctx, log, doc, res)
	}

	if err := r.store.CompleteDocument(ctx, docID, embeddings.Flatten(vectors)); err != nil {
		r.markFailed(ctx, log, docID, err)
		return Result{Status: store.StatusFailed}, fmt.Errorf("finalize document: %w", err)
	}
	res.Status = store.StatusCompleted
	log.Info("ingestion completed", "chunks", res.ChunkCount, "embedded", res.EmbeddedChunks)
	return res, nil
}

// fetchToScratch resolves the file key and downloads the bytes into a
// temporary file. The caller owns removal.
func (r *Runner) fetchToScratch(ctx context.Context, fileKey string) (string, error) {
	url, err := r.files.SignedURL(ctx, fileKey)
	if err != nil {
		return "", fmt.Errorf("resolve file url: %w", err)
	}
	tmp, err := os.CreateTemp("", "lexchat-ingest-*")
	if err != nil {
		return "", fmt.Errorf("create scratch file: %w", err)
	}
	if err := r.downloader.Download(ctx, url, tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close scratch file: %w", err)
	}
	return tmp.Name(), nil
}

// deleteRejected removes a non-legal document entirely. No terminal status is
// ever written; the record stops existing instead.
func (r *Runner) deleteRejected(ctx context.Context, log *slog.Logger, doc store.Document, res Result) (Result, error) {
	log.Info("document classified as non-legal; deleting")
	if err := r.store.DeleteDocument(ctx, doc.ID); err != nil {
		r.markFailed(ctx, log, doc.ID, err)
		return Result{Status: store.StatusFailed}, fmt.Errorf("delete rejected document: %w", err)
	}
	if err := r.files.Delete(ctx, doc.FileKey); err != nil {
		// The record is already gone; the orphaned object is tolerated.
		log.Warn("failed to delete backing file", "file_key", doc.FileKey, "err", err)
	}
	res.Deleted = true
	return res, nil
}

// markFailed writes the failed status. Best-effort: a secondary failure here
// is logged, not retried.
func (r *Runner) markFailed(ctx context.Context, log *slog.Logger, docID uuid.UUID, cause error) {
	if err := r.store.UpdateDocumentStatus(ctx, docID, store.StatusFailed); err != nil {
		log.Error("failed to mark document failed", "cause", cause, "err", err)
	}
}
