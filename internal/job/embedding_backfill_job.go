package job

import (
	"context"

	"github.com/chatstack/chatstack/internal/service"
)

// EmbeddingBackfillJob retries documents whose chunks were never written,
// typically after an embedding service outage cut an ingestion short.
type EmbeddingBackfillJob struct {
	ingest    *service.IngestService
	batchSize int
}

func NewEmbeddingBackfillJob(ingest *service.IngestService, batchSize int) *EmbeddingBackfillJob {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &EmbeddingBackfillJob{ingest: ingest, batchSize: batchSize}
}

func (j *EmbeddingBackfillJob) Name() string {
	return "embedding_backfill"
}

func (j *EmbeddingBackfillJob) Run(ctx context.Context) error {
	if j.ingest == nil {
		return nil
	}
	return j.ingest.ProcessUnembedded(ctx, j.batchSize)
}
