package model

// Document is one ingested source: a crawled page, an uploaded file, or a
// batch of tabular rows. Metadata carries whatever the acquirer learned about
// the source (title, counts, crawl timestamp, sheet names and so on).
type Document struct {
	ID              string            `json:"id"`
	KnowledgeBaseID string            `json:"knowledge_base_id"`
	Source          string            `json:"source"`
	Content         string            `json:"content"`
	Metadata        map[string]string `json:"metadata"`
	Ctime           int64             `json:"ctime"`
}
