package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pgvector/pgvector-go"

	"github.com/chatstack/chatstack/internal/model"
)

type ChunkRepo struct {
	db *sql.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// Upsert writes one chunk; re-ingesting a document overwrites its chunks in
// place instead of duplicating them.
func (r *ChunkRepo) Upsert(ctx context.Context, chunk *model.Chunk) error {
	meta, err := json.Marshal(chunk.Metadata)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO chunks (id, document_id, kb_id, agent_id, chunk_index, content, embedding, metadata, mtime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (document_id, chunk_index) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata,
			mtime = EXCLUDED.mtime
	`
	_, err = r.db.ExecContext(ctx, query,
		chunk.ID,
		chunk.DocumentID,
		chunk.KnowledgeBaseID,
		chunk.AgentID,
		chunk.ChunkIndex,
		chunk.Content,
		pgvector.NewVector(chunk.Embedding),
		string(meta),
		chunk.Mtime,
	)
	return err
}

// Search returns the topK most similar chunks in one knowledge base, scored
// by cosine similarity.
func (r *ChunkRepo) Search(ctx context.Context, agentID, kbID string, embedding []float32, topK int) ([]model.SearchResult, error) {
	const query = `
		SELECT content, metadata, 1 - (embedding <=> $1) AS score
		FROM chunks
		WHERE agent_id = $2 AND kb_id = $3 AND embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $4
	`
	rows, err := r.db.QueryContext(ctx, query, pgvector.NewVector(embedding), agentID, kbID, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := make([]model.SearchResult, 0, topK)
	for rows.Next() {
		var item model.SearchResult
		var meta string
		if err := rows.Scan(&item.Content, &meta, &item.Score); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(meta), &item.Metadata); err != nil {
			return nil, err
		}
		results = append(results, item)
	}
	return results, rows.Err()
}

func (r *ChunkRepo) DeleteByDocument(ctx context.Context, docID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, docID)
	return err
}

func (r *ChunkRepo) CountByKnowledgeBase(ctx context.Context, kbID string) (int, error) {
	row := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM chunks WHERE kb_id = $1`, kbID)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
