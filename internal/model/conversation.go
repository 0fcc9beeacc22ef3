package model

const (
	SenderUser = "USER"
	SenderBot  = "BOT"
)

type Conversation struct {
	ID      string `json:"id"`
	AgentID string `json:"agent_id"`
	Title   string `json:"title"`
	Ctime   int64  `json:"ctime"`
}

type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderType     string `json:"sender_type"`
	Content        string `json:"content"`
	Ctime          int64  `json:"ctime"`
}
