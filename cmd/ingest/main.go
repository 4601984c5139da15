package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"lexchat/internal/app"
	"lexchat/internal/classifier"
	"lexchat/internal/filestore"
	"lexchat/internal/httputil"
	"lexchat/internal/pipeline"
	"lexchat/internal/queue"
)

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
	deps.Log.Info("ingest worker starting")

	runner := pipeline.NewRunner(
		deps.Store,
		deps.Files,
		filestore.NewDownloader(),
		deps.Embedder,
		classifier.New(deps.LLM, deps.Config.ClassifierMaxChars),
		deps.Log,
		pipeline.Options{
			MaxChunkSize:   deps.Config.MaxChunkSize,
			ChunkOverlap:   deps.Config.ChunkOverlap,
			MaxEmbedChunks: deps.Config.MaxEmbedChunks,
		},
	)

	g, ctx := errgroup.WithContext(ctx)

	// Run queue worker
	g.Go(func() error {
		return deps.Queue.Worker(ctx, queue.TaskTypeIngest, func(ctx context.Context, task queue.Task) error {
			var payload ingestTaskPayload
			if err := json.Unmarshal(task.Payload, &payload); err != nil {
				return err
			}
			return handleIngest(ctx, deps, runner, payload)
		})
	})

	// Run health check server
	g.Go(func() error {
		return httputil.ServeHealth(deps.Log, deps.Config.Port, "ingest")
	})

	// Wait for either to fail
	if err := g.Wait(); err != nil {
		deps.Log.Error("ingest service stopped", "err", err)
	}
}

func handleIngest(ctx context.Context, deps app.Deps, runner *pipeline.Runner, payload ingestTaskPayload) error {
	docID, err := uuid.Parse(payload.DocumentID)
	if err != nil {
		return err
	}
	log := deps.Log.With("document_id", docID)

	res, err := runner.Run(ctx, docID)
	if err != nil {
		log.Error("ingestion failed", "err", err)
		return err
	}
	if res.ClassifierErr != nil {
		log.Warn("classifier verdict unavailable", "err", res.ClassifierErr)
	}
	if res.Deleted {
		log.Info("document rejected and removed")
		return nil
	}
	log.Info("ingestion finished",
		"status", res.Status,
		"chunks", res.ChunkCount,
		"embedded_chunks", res.EmbeddedChunks)
	return nil
}
