package model

type Agent struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	SystemPrompt string  `json:"system_prompt"`
	Personality  string  `json:"personality"`
	Temperature  float32 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
	Ctime        int64   `json:"ctime"`
	Mtime        int64   `json:"mtime"`
}
