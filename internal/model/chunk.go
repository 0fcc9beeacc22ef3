package model

// Chunk is a bounded slice of a document's text stored with its embedding.
// AgentID and KnowledgeBaseID are denormalized so similarity searches can
// filter without joins. (DocumentID, ChunkIndex) is unique; re-embedding the
// same index upserts instead of duplicating.
type Chunk struct {
	ID              string            `json:"id"`
	DocumentID      string            `json:"document_id"`
	KnowledgeBaseID string            `json:"knowledge_base_id"`
	AgentID         string            `json:"agent_id"`
	ChunkIndex      int               `json:"chunk_index"`
	Content         string            `json:"content"`
	Embedding       []float32         `json:"-"`
	Metadata        map[string]string `json:"metadata"`
	Mtime           int64             `json:"mtime"`
}

// SearchResult is a chunk hit scored against one query. It only lives for the
// duration of a single retrieval call and is never persisted.
type SearchResult struct {
	Content           string
	Metadata          map[string]string
	Score             float64
	Query             string
	KnowledgeBaseName string
}
