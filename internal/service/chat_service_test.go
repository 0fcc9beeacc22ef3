package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chatstack/chatstack/internal/ai"
	"github.com/chatstack/chatstack/internal/model"
	appErr "github.com/chatstack/chatstack/internal/pkg/errors"
)

type stubStreamGenerator struct {
	text string
	err  error
}

func (s *stubStreamGenerator) Generate(ctx context.Context, prompt string, opts ai.GenerateOptions) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.text, nil
}

func (s *stubStreamGenerator) GenerateStream(ctx context.Context, prompt string, opts ai.GenerateOptions, fn func(token string) error) error {
	if s.err != nil {
		return s.err
	}
	return fn(s.text)
}

type fakeConversationStore struct {
	mu    sync.Mutex
	convs map[string]*model.Conversation
}

func (f *fakeConversationStore) Create(ctx context.Context, conv *model.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.convs == nil {
		f.convs = map[string]*model.Conversation{}
	}
	f.convs[conv.ID] = conv
	return nil
}

func (f *fakeConversationStore) GetByID(ctx context.Context, convID string) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if conv := f.convs[convID]; conv != nil {
		return conv, nil
	}
	return nil, appErr.ErrNotFound
}

type fakeMessageStore struct {
	mu       sync.Mutex
	messages []*model.Message
	botCh    chan string
}

func (f *fakeMessageStore) Create(ctx context.Context, msg *model.Message) error {
	f.mu.Lock()
	f.messages = append(f.messages, msg)
	f.mu.Unlock()
	if msg.SenderType == model.SenderBot && f.botCh != nil {
		f.botCh <- msg.Content
	}
	return nil
}

func (f *fakeMessageStore) ListByConversation(ctx context.Context, convID string, limit, offset uint) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Message
	for _, msg := range f.messages {
		if msg.ConversationID == convID {
			out = append(out, *msg)
		}
	}
	return out, nil
}

func (f *fakeMessageStore) CountByConversation(ctx context.Context, convID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, msg := range f.messages {
		if msg.ConversationID == convID {
			count++
		}
	}
	return count, nil
}

type fakeRetriever struct {
	contextText string
	sources     []Source
}

func (f *fakeRetriever) PlanQueries(ctx context.Context, message string) []string {
	return []string{message}
}

func (f *fakeRetriever) Retrieve(ctx context.Context, agentID string, queries []string, light bool) (string, []Source, error) {
	return f.contextText, f.sources, nil
}

type fakeTriggers struct{}

func (fakeTriggers) Evaluate(ctx context.Context, agentID, message string) (string, []model.LogicTrigger) {
	return "", nil
}

func TestChatPersistsRenderedBotMessage(t *testing.T) {
	source := Source{Title: "Pricing", URL: "https://example.com/pricing", Score: 0.9}
	msgs := &fakeMessageStore{botCh: make(chan string, 1)}
	gen := &stubStreamGenerator{
		text: `Shoes cost ten dollars. <cite data-url="https://example.com/pricing">Pricing</cite>`,
	}
	svc := NewChatService(
		&fakeAgentReader{},
		&fakeConversationStore{},
		msgs,
		&fakeRetriever{contextText: "[Chunk 1 | Relevance: 90% | Source: Pricing]\nten dollars", sources: []Source{source}},
		fakeTriggers{},
		gen,
	)

	reply, err := svc.Chat(context.Background(), "agent-1", "", "how much are shoes")
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	select {
	case stored := <-msgs.botCh:
		if stored != reply.HTML {
			t.Fatalf("stored bot message differs from rendered reply:\nstored %q\nreply  %q", stored, reply.HTML)
		}
		if strings.Contains(stored, "<cite") {
			t.Fatalf("cite markup must not reach storage: %q", stored)
		}
		if !strings.Contains(stored, `<a href="https://example.com/pricing"`) {
			t.Fatalf("citation anchor missing from stored message: %q", stored)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("bot message was never persisted")
	}
}

func TestConversationTitle(t *testing.T) {
	if got := conversationTitle("  short question  "); got != "short question" {
		t.Fatalf("got %q", got)
	}
	long := strings.Repeat("ab", 40)
	got := conversationTitle(long)
	if len([]rune(got)) != titleMaxRunes+3 || !strings.HasSuffix(got, "...") {
		t.Fatalf("long title not truncated: %q", got)
	}
	// rune-safe truncation
	wide := strings.Repeat("日", 60)
	got = conversationTitle(wide)
	if got != strings.Repeat("日", 50)+"..." {
		t.Fatalf("multibyte truncation broken: %q", got)
	}
}

func TestFormatHistoryExcludesCurrentMessage(t *testing.T) {
	history := []model.Message{
		{SenderType: model.SenderUser, Content: "hello"},
		{SenderType: model.SenderBot, Content: "hi, how can I help?"},
		{SenderType: model.SenderUser, Content: "what are your prices"},
	}
	got := formatHistory(history, "what are your prices")
	want := "Visitor: hello\nAssistant: hi, how can I help?"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFormatHistoryEmpty(t *testing.T) {
	if got := formatHistory(nil, "anything"); got != "(no prior messages)" {
		t.Fatalf("got %q", got)
	}
	only := []model.Message{{SenderType: model.SenderUser, Content: "first message"}}
	if got := formatHistory(only, "first message"); got != "(no prior messages)" {
		t.Fatalf("first turn should have no history: %q", got)
	}
}

func TestBuildPromptTemplateSelection(t *testing.T) {
	svc := &ChatService{}
	agent := &model.Agent{SystemPrompt: "You help with billing.", Personality: "friendly"}

	withContext := &turnState{
		agent:   agent,
		message: "how much",
		context: "[Chunk 1 | Relevance: 90% | Source: Pricing]\nten dollars",
	}
	prompt := svc.buildPrompt(withContext)
	if !strings.Contains(prompt, "Use the context below") {
		t.Fatalf("context should select the citation template:\n%s", prompt)
	}
	if !strings.Contains(prompt, "ten dollars") || !strings.Contains(prompt, "Personality: friendly") {
		t.Fatalf("prompt missing parts:\n%s", prompt)
	}

	withoutContext := &turnState{agent: agent, message: "how much"}
	prompt = svc.buildPrompt(withoutContext)
	if strings.Contains(prompt, "Use the context below") || strings.Contains(prompt, "<cite") {
		t.Fatalf("empty context must not use the citation template:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Answer the visitor's question directly.") {
		t.Fatalf("expected the general template:\n%s", prompt)
	}
}

func TestBuildPromptDefaultsAndHint(t *testing.T) {
	svc := &ChatService{}
	turn := &turnState{
		agent:   &model.Agent{},
		message: "hi",
		hint:    "You may offer to schedule a meeting.",
	}
	prompt := svc.buildPrompt(turn)
	if !strings.Contains(prompt, "You are a helpful assistant for this website.") {
		t.Fatalf("default system prompt missing:\n%s", prompt)
	}
	if !strings.Contains(prompt, "You may offer to schedule a meeting.") {
		t.Fatalf("trigger hint missing:\n%s", prompt)
	}
}

func TestGenerateOptionsDefaults(t *testing.T) {
	opts := generateOptions(&model.Agent{})
	if opts.MaxTokens != defaultMaxTokens || opts.Temperature != defaultTemperature {
		t.Fatalf("defaults not applied: %+v", opts)
	}
	opts = generateOptions(&model.Agent{MaxTokens: 900, Temperature: 0.2})
	if opts.MaxTokens != 900 || opts.Temperature != 0.2 {
		t.Fatalf("agent settings ignored: %+v", opts)
	}
}

func TestWrapGeneration(t *testing.T) {
	if !errors.Is(wrapGeneration(ai.ErrUnavailable), appErr.ErrAIUnavailable) {
		t.Fatal("provider unavailability should map to the dedicated error")
	}
	err := wrapGeneration(errors.New("boom"))
	if !errors.Is(err, appErr.ErrGeneration) {
		t.Fatalf("generic failures wrap ErrGeneration: %v", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("cause lost: %v", err)
	}
}
