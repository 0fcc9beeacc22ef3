package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/chatstack/chatstack/internal/ai"
	"github.com/chatstack/chatstack/internal/model"
	appErr "github.com/chatstack/chatstack/internal/pkg/errors"
)

const (
	historyWindow = 10
	titleMaxRunes = 50
)

// ChatReply is one completed turn: the rendered response plus everything the
// widget needs to draw sources and trigger actions.
type ChatReply struct {
	ConversationID string               `json:"conversation_id"`
	Raw            string               `json:"-"`
	HTML           string               `json:"html"`
	Sources        []Source             `json:"sources"`
	Triggered      []model.LogicTrigger `json:"triggered"`
}

type retriever interface {
	PlanQueries(ctx context.Context, message string) []string
	Retrieve(ctx context.Context, agentID string, queries []string, light bool) (string, []Source, error)
}

type triggerEvaluator interface {
	Evaluate(ctx context.Context, agentID, message string) (string, []model.LogicTrigger)
}

type conversationStore interface {
	Create(ctx context.Context, conv *model.Conversation) error
	GetByID(ctx context.Context, convID string) (*model.Conversation, error)
}

type messageStore interface {
	Create(ctx context.Context, msg *model.Message) error
	ListByConversation(ctx context.Context, convID string, limit, offset uint) ([]model.Message, error)
	CountByConversation(ctx context.Context, convID string) (int, error)
}

type ChatService struct {
	agents        agentReader
	conversations conversationStore
	messages      messageStore
	retrieval     retriever
	triggers      triggerEvaluator
	generator     ai.IStreamGenerator
}

func NewChatService(
	agents agentReader,
	conversations conversationStore,
	messages messageStore,
	retrieval retriever,
	triggers triggerEvaluator,
	generator ai.IStreamGenerator,
) *ChatService {
	return &ChatService{
		agents:        agents,
		conversations: conversations,
		messages:      messages,
		retrieval:     retrieval,
		triggers:      triggers,
		generator:     generator,
	}
}

// Chat runs one complete turn: persist the user message, gather history,
// search queries and trigger hints concurrently, retrieve context, generate,
// render. The bot message is persisted in the background after the reply is
// already on its way to the caller.
func (s *ChatService) Chat(ctx context.Context, agentID, conversationID, message string) (*ChatReply, error) {
	turn, err := s.prepareTurn(ctx, agentID, conversationID, message)
	if err != nil {
		return nil, err
	}
	prompt := s.buildPrompt(turn)
	raw, err := s.generator.Generate(ctx, prompt, generateOptions(turn.agent))
	if err != nil {
		return nil, wrapGeneration(err)
	}
	return s.finalizeTurn(ctx, turn, raw), nil
}

// ChatStream is the streaming variant. Tokens are forwarded raw while the
// full text accumulates; rendering and persistence happen once the stream
// closes. A caller disconnect stops forwarding but whatever text accumulated
// is still persisted best-effort.
func (s *ChatService) ChatStream(ctx context.Context, agentID, conversationID, message string, fn func(token string) error) (*ChatReply, error) {
	turn, err := s.prepareTurn(ctx, agentID, conversationID, message)
	if err != nil {
		return nil, err
	}
	prompt := s.buildPrompt(turn)

	var raw strings.Builder
	streamErr := s.generator.GenerateStream(ctx, prompt, generateOptions(turn.agent), func(token string) error {
		raw.WriteString(token)
		return fn(token)
	})
	if streamErr != nil {
		if raw.Len() > 0 {
			s.persistBotMessage(ctx, turn.conversation.ID, raw.String())
		}
		return nil, wrapGeneration(streamErr)
	}
	return s.finalizeTurn(ctx, turn, raw.String()), nil
}

type turnState struct {
	agent        *model.Agent
	conversation *model.Conversation
	message      string
	history      []model.Message
	context      string
	sources      []Source
	hint         string
	triggered    []model.LogicTrigger
}

func (s *ChatService) prepareTurn(ctx context.Context, agentID, conversationID, message string) (*turnState, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, appErr.ErrInvalid
	}
	agent, err := s.agents.GetByID(ctx, agentID)
	if err != nil {
		return nil, err
	}
	conversation, err := s.ensureConversation(ctx, agent.ID, conversationID, message)
	if err != nil {
		return nil, err
	}
	// history feeds the prompt, so the user message must exist before
	// generation starts
	if err := s.messages.Create(ctx, &model.Message{
		ID:             newID(),
		ConversationID: conversation.ID,
		SenderType:     model.SenderUser,
		Content:        message,
		Ctime:          time.Now().UnixMilli(),
	}); err != nil {
		return nil, fmt.Errorf("%w: user message: %v", appErr.ErrPersistence, err)
	}

	turn := &turnState{agent: agent, conversation: conversation, message: message}

	logger := logutil.GetLogger(ctx).With(zap.String("conversation_id", conversation.ID))
	var wg sync.WaitGroup
	var queries []string
	wg.Add(3)
	go func() {
		defer wg.Done()
		history, err := s.recentHistory(ctx, conversation.ID)
		if err != nil {
			logger.Warn("load history failed", zap.Error(err))
			return
		}
		turn.history = history
	}()
	go func() {
		defer wg.Done()
		queries = s.retrieval.PlanQueries(ctx, message)
	}()
	go func() {
		defer wg.Done()
		turn.hint, turn.triggered = s.triggers.Evaluate(ctx, agent.ID, message)
	}()
	wg.Wait()

	contextStr, sources, err := s.retrieval.Retrieve(ctx, agent.ID, queries, false)
	if err != nil {
		logger.Warn("retrieval failed, answering without context", zap.Error(err))
	}
	turn.context = contextStr
	turn.sources = sources
	return turn, nil
}

func (s *ChatService) finalizeTurn(ctx context.Context, turn *turnState, raw string) *ChatReply {
	htmlText := RenderHTML(raw, turn.sources)
	// what readers see later must match what the widget showed, so the
	// sanitized rendering is what gets stored
	s.persistBotMessage(ctx, turn.conversation.ID, htmlText)
	return &ChatReply{
		ConversationID: turn.conversation.ID,
		Raw:            raw,
		HTML:           htmlText,
		Sources:        turn.sources,
		Triggered:      turn.triggered,
	}
}

// persistBotMessage is fire and forget: the reply has already been delivered,
// a write failure is logged and never retried or surfaced.
func (s *ChatService) persistBotMessage(ctx context.Context, conversationID, content string) {
	detached := context.WithoutCancel(ctx)
	go func() {
		writeCtx, cancel := context.WithTimeout(detached, 10*time.Second)
		defer cancel()
		err := s.messages.Create(writeCtx, &model.Message{
			ID:             newID(),
			ConversationID: conversationID,
			SenderType:     model.SenderBot,
			Content:        content,
			Ctime:          time.Now().UnixMilli(),
		})
		if err != nil {
			logutil.GetLogger(detached).Error("persist bot message failed",
				zap.String("conversation_id", conversationID),
				zap.Error(fmt.Errorf("%w: %v", appErr.ErrPersistence, err)))
		}
	}()
}

func (s *ChatService) ensureConversation(ctx context.Context, agentID, conversationID, firstMessage string) (*model.Conversation, error) {
	if conversationID != "" {
		conversation, err := s.conversations.GetByID(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		if conversation.AgentID != agentID {
			return nil, appErr.ErrNotFound
		}
		return conversation, nil
	}
	conversation := &model.Conversation{
		ID:      newID(),
		AgentID: agentID,
		Title:   conversationTitle(firstMessage),
		Ctime:   time.Now().UnixMilli(),
	}
	if err := s.conversations.Create(ctx, conversation); err != nil {
		return nil, err
	}
	return conversation, nil
}

func conversationTitle(message string) string {
	runes := []rune(strings.TrimSpace(message))
	if len(runes) <= titleMaxRunes {
		return string(runes)
	}
	return string(runes[:titleMaxRunes]) + "..."
}

func (s *ChatService) recentHistory(ctx context.Context, conversationID string) ([]model.Message, error) {
	count, err := s.messages.CountByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	offset := 0
	if count > historyWindow {
		offset = count - historyWindow
	}
	return s.messages.ListByConversation(ctx, conversationID, historyWindow, uint(offset))
}

func (s *ChatService) Messages(ctx context.Context, conversationID string, limit, offset uint) ([]model.Message, error) {
	if _, err := s.conversations.GetByID(ctx, conversationID); err != nil {
		return nil, err
	}
	return s.messages.ListByConversation(ctx, conversationID, limit, offset)
}

const ragPromptTemplate = `%s%s
Use the context below to answer the visitor's question. Be concise and factual.
When a sentence relies on a chunk whose label names a source with a URL, append
<cite data-url="URL">Title</cite> immediately after that sentence. Never invent
a URL that does not appear in the context labels. If the context does not cover
the question, say so instead of guessing.

Context:
%s
%s
Conversation so far:
%s
Visitor: %s
Answer:`

const generalPromptTemplate = `%s%s
Answer the visitor's question directly. If you do not know, say so.
%s
Conversation so far:
%s
Visitor: %s
Answer:`

// buildPrompt picks the RAG template when retrieval produced context and the
// general one otherwise; an empty knowledge base must not pretend to cite.
func (s *ChatService) buildPrompt(turn *turnState) string {
	system := strings.TrimSpace(turn.agent.SystemPrompt)
	if system == "" {
		system = "You are a helpful assistant for this website."
	}
	personality := ""
	if p := strings.TrimSpace(turn.agent.Personality); p != "" {
		personality = "\nPersonality: " + p
	}
	hint := ""
	if turn.hint != "" {
		hint = "\n" + turn.hint + "\n"
	}
	history := formatHistory(turn.history, turn.message)
	if turn.context != "" {
		return fmt.Sprintf(ragPromptTemplate, system, personality, turn.context, hint, history, turn.message)
	}
	return fmt.Sprintf(generalPromptTemplate, system, personality, hint, history, turn.message)
}

// formatHistory renders prior turns, excluding the just-persisted user
// message which appears separately as the question.
func formatHistory(history []model.Message, currentMessage string) string {
	if len(history) > 0 {
		last := history[len(history)-1]
		if last.SenderType == model.SenderUser && last.Content == currentMessage {
			history = history[:len(history)-1]
		}
	}
	if len(history) == 0 {
		return "(no prior messages)"
	}
	var sb strings.Builder
	for i, msg := range history {
		if i > 0 {
			sb.WriteString("\n")
		}
		role := "Visitor"
		if msg.SenderType == model.SenderBot {
			role = "Assistant"
		}
		sb.WriteString(role + ": " + msg.Content)
	}
	return sb.String()
}

func generateOptions(agent *model.Agent) ai.GenerateOptions {
	opts := ai.GenerateOptions{
		MaxTokens:   agent.MaxTokens,
		Temperature: agent.Temperature,
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Temperature <= 0 {
		opts.Temperature = defaultTemperature
	}
	return opts
}

func wrapGeneration(err error) error {
	if errors.Is(err, ai.ErrUnavailable) {
		return appErr.ErrAIUnavailable
	}
	return fmt.Errorf("%w: %v", appErr.ErrGeneration, err)
}
