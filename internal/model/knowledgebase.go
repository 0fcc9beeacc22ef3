package model

const (
	KnowledgeKindPage     = "page"
	KnowledgeKindDocument = "document"
	KnowledgeKindTabular  = "tabular"
)

type KnowledgeBase struct {
	ID      string `json:"id"`
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Ctime   int64  `json:"ctime"`
}
