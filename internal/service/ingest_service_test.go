package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/chatstack/chatstack/internal/config"
	"github.com/chatstack/chatstack/internal/model"
	appErr "github.com/chatstack/chatstack/internal/pkg/errors"
)

type fakeAgentReader struct{ err error }

func (f *fakeAgentReader) GetByID(ctx context.Context, agentID string) (*model.Agent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.Agent{ID: agentID, Name: "Agent"}, nil
}

type fakeKBStore struct {
	mu      sync.Mutex
	created []*model.KnowledgeBase
	kinds   map[string]string
	deleted []string
}

func (f *fakeKBStore) Create(ctx context.Context, kb *model.KnowledgeBase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, kb)
	return nil
}

func (f *fakeKBStore) GetByID(ctx context.Context, kbID string) (*model.KnowledgeBase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, kb := range f.created {
		if kb.ID == kbID {
			return kb, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (f *fakeKBStore) ListByAgent(ctx context.Context, agentID string) ([]model.KnowledgeBase, error) {
	return nil, nil
}

func (f *fakeKBStore) UpdateKind(ctx context.Context, kbID, kind string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.kinds == nil {
		f.kinds = map[string]string{}
	}
	f.kinds[kbID] = kind
	return nil
}

func (f *fakeKBStore) Delete(ctx context.Context, kbID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, kbID)
	return nil
}

type fakeDocStore struct {
	mu   sync.Mutex
	docs []*model.Document
}

func (f *fakeDocStore) Create(ctx context.Context, doc *model.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, doc)
	return nil
}

func (f *fakeDocStore) ListUnembedded(ctx context.Context, limit int) ([]model.Document, error) {
	return nil, nil
}

type fakeChunkStore struct {
	mu     sync.Mutex
	chunks []*model.Chunk
}

func (f *fakeChunkStore) Upsert(ctx context.Context, chunk *model.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = append(f.chunks, chunk)
	return nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text, taskType string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func (fakeEmbedder) ModelName() string { return "fake-embed" }

func newTestIngestService(kbs *fakeKBStore, docs *fakeDocStore, chunks *fakeChunkStore) *IngestService {
	cfg := config.IngestConfig{ChunkSize: 1200, TableBatchRows: 100, BatchConcurrency: 2}
	return NewIngestService(&fakeAgentReader{}, kbs, docs, chunks, fakeEmbedder{}, nil, nil, nil, cfg)
}

func TestCreateFromFilesMiddleFailureKeepsBatch(t *testing.T) {
	kbs := &fakeKBStore{}
	docs := &fakeDocStore{}
	chunks := &fakeChunkStore{}
	svc := newTestIngestService(kbs, docs, chunks)

	uploads := []UploadFile{
		{Name: "about.txt", Data: []byte("Alice sells shoes.")},
		{Name: "setup.exe", Data: []byte{0x4d, 0x5a}},
		{Name: "faq.txt", Data: []byte("Bob sells hats.")},
	}
	kb, results, err := svc.CreateFromFiles(context.Background(), "agent-1", "docs", uploads)
	if err != nil {
		t.Fatalf("a non-leading failure must not fail the batch: %v", err)
	}
	if kb == nil {
		t.Fatal("expected a knowledge base")
	}
	if len(results) != 3 || !results[0].Ok || results[1].Ok || !results[2].Ok {
		t.Fatalf("unexpected per-file outcomes: %+v", results)
	}
	if results[1].Error == "" {
		t.Fatal("failed file should carry its error")
	}
	if len(kbs.deleted) != 0 {
		t.Fatalf("no rollback expected, deleted %v", kbs.deleted)
	}
	if len(docs.docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs.docs))
	}
	if len(chunks.chunks) == 0 {
		t.Fatal("surviving documents should have been embedded")
	}
}

func TestCreateFromFilesFirstFileRollsBack(t *testing.T) {
	kbs := &fakeKBStore{}
	docs := &fakeDocStore{}
	chunks := &fakeChunkStore{}
	svc := newTestIngestService(kbs, docs, chunks)

	uploads := []UploadFile{
		{Name: "setup.exe", Data: []byte{0x4d, 0x5a}},
		{Name: "about.txt", Data: []byte("Alice sells shoes.")},
	}
	kb, results, err := svc.CreateFromFiles(context.Background(), "agent-1", "docs", uploads)
	if !errors.Is(err, appErr.ErrParse) {
		t.Fatalf("leading failure should surface ErrParse, got %v", err)
	}
	if kb != nil {
		t.Fatal("no knowledge base should survive a leading failure")
	}
	if len(results) == 0 || results[0].Ok {
		t.Fatalf("first result should be the failure: %+v", results)
	}
	if len(kbs.created) != 1 || len(kbs.deleted) != 1 || kbs.deleted[0] != kbs.created[0].ID {
		t.Fatalf("created knowledge base should be rolled back: created %v deleted %v", kbs.created, kbs.deleted)
	}
	if len(chunks.chunks) != 0 {
		t.Fatalf("nothing should be embedded after rollback, got %d chunks", len(chunks.chunks))
	}
}

func TestCreateFromFilesTabularKindPersisted(t *testing.T) {
	kbs := &fakeKBStore{}
	docs := &fakeDocStore{}
	svc := newTestIngestService(kbs, docs, &fakeChunkStore{})

	uploads := []UploadFile{
		{Name: "prices.csv", Data: []byte("name,price\nshoes,10\nhats,5")},
	}
	kb, _, err := svc.CreateFromFiles(context.Background(), "agent-1", "prices", uploads)
	if err != nil {
		t.Fatalf("csv upload failed: %v", err)
	}
	if kb.Kind != model.KnowledgeKindTabular {
		t.Fatalf("kind = %q, want tabular", kb.Kind)
	}
	// the upgrade must reach storage, backfill re-reads the kind from there
	if got := kbs.kinds[kb.ID]; got != model.KnowledgeKindTabular {
		t.Fatalf("persisted kind = %q, want tabular", got)
	}
}

func TestChunkDocumentTabularRegroup(t *testing.T) {
	doc := &model.Document{
		Content: "Table columns: name, price\nRow 1: name: shoes, price: 10\n\n" +
			"Table columns: name, price\nRow 2: name: hats, price: 5",
	}
	chunks := chunkDocument(doc, model.KnowledgeKindTabular, config.IngestConfig{ChunkSize: 1200})
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2: %v", len(chunks), chunks)
	}
	for i, chunk := range chunks {
		if !strings.HasPrefix(chunk, "Table columns: name, price") {
			t.Errorf("chunk %d lost its header: %q", i, chunk)
		}
	}
	if !strings.Contains(chunks[1], "Row 2") {
		t.Fatalf("row content lost: %q", chunks[1])
	}
}

func TestChunkDocumentPDFUsesOverlap(t *testing.T) {
	words := make([]string, 600)
	for i := range words {
		words[i] = "word"
	}
	doc := &model.Document{
		Content:  strings.Join(words, " "),
		Metadata: map[string]string{"format": "pdf"},
	}
	chunks := chunkDocument(doc, model.KnowledgeKindDocument, config.IngestConfig{ChunkSize: 1200})
	if len(chunks) < 2 {
		t.Fatalf("long pdf should produce multiple windows, got %d", len(chunks))
	}
}

func TestChunkDocumentDefaultSplit(t *testing.T) {
	doc := &model.Document{Content: "Alice sells shoes. Bob sells hats."}
	chunks := chunkDocument(doc, model.KnowledgeKindPage, config.IngestConfig{ChunkSize: 20})
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2: %v", len(chunks), chunks)
	}
}

func TestChunkMetadata(t *testing.T) {
	doc := &model.Document{
		Source: "https://example.com/page",
		Metadata: map[string]string{
			"title":       "Pricing",
			"url":         "https://example.com/page",
			"crawled_at":  "2026-01-01",
			"image_count": "3",
		},
	}
	meta := chunkMetadata(doc)
	if meta["source"] != doc.Source || meta["title"] != "Pricing" || meta["url"] != "https://example.com/page" {
		t.Fatalf("unexpected metadata: %v", meta)
	}
	if _, ok := meta["crawled_at"]; ok {
		t.Fatalf("only provenance fields should carry over: %v", meta)
	}
}

func TestWithURL(t *testing.T) {
	meta := withURL(nil, "https://example.com/x")
	if meta["url"] != "https://example.com/x" {
		t.Fatalf("nil map not initialized: %v", meta)
	}
	meta = withURL(map[string]string{"title": "T"}, "https://example.com/y")
	if meta["title"] != "T" || meta["url"] != "https://example.com/y" {
		t.Fatalf("existing fields lost: %v", meta)
	}
}
