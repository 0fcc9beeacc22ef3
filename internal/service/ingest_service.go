package service

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/chatstack/chatstack/internal/ai"
	"github.com/chatstack/chatstack/internal/chunker"
	"github.com/chatstack/chatstack/internal/config"
	"github.com/chatstack/chatstack/internal/filestore"
	"github.com/chatstack/chatstack/internal/ingest"
	"github.com/chatstack/chatstack/internal/model"
	appErr "github.com/chatstack/chatstack/internal/pkg/errors"
)

// IngestResult reports one source's outcome so callers can show partial
// success ("7 of 10 pages imported").
type IngestResult struct {
	Source string `json:"source"`
	Ok     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// UploadFile is one file received from the upload surface.
type UploadFile struct {
	Name string
	Data []byte
}

type pageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (*ingest.Page, error)
}

type siteCrawler interface {
	Crawl(ctx context.Context, startURL string, maxPages int) []ingest.PageResult
}

type agentReader interface {
	GetByID(ctx context.Context, agentID string) (*model.Agent, error)
}

type knowledgeBaseStore interface {
	Create(ctx context.Context, kb *model.KnowledgeBase) error
	GetByID(ctx context.Context, kbID string) (*model.KnowledgeBase, error)
	ListByAgent(ctx context.Context, agentID string) ([]model.KnowledgeBase, error)
	UpdateKind(ctx context.Context, kbID, kind string) error
	Delete(ctx context.Context, kbID string) error
}

type documentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	ListUnembedded(ctx context.Context, limit int) ([]model.Document, error)
}

type chunkWriter interface {
	Upsert(ctx context.Context, chunk *model.Chunk) error
}

type IngestService struct {
	agents    agentReader
	kbs       knowledgeBaseStore
	documents documentStore
	chunks    chunkWriter
	embedder  ai.IEmbedder
	fetcher   pageFetcher
	crawler   siteCrawler
	files     filestore.Store
	cfg       config.IngestConfig
}

func NewIngestService(
	agents agentReader,
	kbs knowledgeBaseStore,
	documents documentStore,
	chunks chunkWriter,
	embedder ai.IEmbedder,
	fetcher pageFetcher,
	crawler siteCrawler,
	files filestore.Store,
	cfg config.IngestConfig,
) *IngestService {
	return &IngestService{
		agents:    agents,
		kbs:       kbs,
		documents: documents,
		chunks:    chunks,
		embedder:  embedder,
		fetcher:   fetcher,
		crawler:   crawler,
		files:     files,
		cfg:       cfg,
	}
}

// CreateFromURL builds a knowledge base from a web source. With crawl set the
// whole site is walked up to maxPages; otherwise just the one page. If the
// very first page fails the knowledge base is rolled back; later failures are
// reported per item and leave earlier documents intact.
func (s *IngestService) CreateFromURL(ctx context.Context, agentID, name, rawURL string, crawl bool, maxPages int) (*model.KnowledgeBase, []IngestResult, error) {
	if _, err := s.agents.GetByID(ctx, agentID); err != nil {
		return nil, nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = rawURL
	}
	kb := &model.KnowledgeBase{
		ID:      newID(),
		AgentID: agentID,
		Name:    name,
		Kind:    model.KnowledgeKindPage,
		Ctime:   time.Now().UnixMilli(),
	}
	if err := s.kbs.Create(ctx, kb); err != nil {
		return nil, nil, err
	}

	var pages []ingest.PageResult
	if crawl {
		pages = s.crawler.Crawl(ctx, rawURL, maxPages)
	} else {
		page, err := s.fetcher.Fetch(ctx, rawURL)
		pages = []ingest.PageResult{{URL: rawURL, Page: page, Err: err}}
	}
	if len(pages) == 0 {
		pages = []ingest.PageResult{{URL: rawURL, Err: fmt.Errorf("%w: no pages acquired", appErr.ErrFetch)}}
	}

	results := make([]IngestResult, len(pages))
	docs := make([]*model.Document, len(pages))
	for i, page := range pages {
		results[i] = IngestResult{Source: page.URL, Ok: page.Err == nil}
		if page.Err != nil {
			results[i].Error = page.Err.Error()
			continue
		}
		doc := &model.Document{
			ID:              newID(),
			KnowledgeBaseID: kb.ID,
			Source:          page.URL,
			Content:         page.Page.Content,
			Metadata:        withURL(page.Page.Metadata, page.URL),
			Ctime:           time.Now().UnixMilli(),
		}
		if err := s.documents.Create(ctx, doc); err != nil {
			results[i].Ok = false
			results[i].Error = err.Error()
			continue
		}
		docs[i] = doc
	}
	if !results[0].Ok {
		// all-or-nothing only applies to the leading item
		if err := s.kbs.Delete(ctx, kb.ID); err != nil && !appErr.IsNotFound(err) {
			logutil.GetLogger(ctx).Error("rollback knowledge base failed", zap.String("kb_id", kb.ID), zap.Error(err))
		}
		return nil, results, fmt.Errorf("%w: first source failed: %s", appErr.ErrFetch, results[0].Error)
	}

	s.embedBatch(ctx, kb, docs, results)
	return kb, results, nil
}

// CreateFromFiles builds a knowledge base from uploaded files. Each file is
// archived in the file store, parsed, and embedded; a malformed file fails
// alone unless it is the first one.
func (s *IngestService) CreateFromFiles(ctx context.Context, agentID, name string, uploads []UploadFile) (*model.KnowledgeBase, []IngestResult, error) {
	if _, err := s.agents.GetByID(ctx, agentID); err != nil {
		return nil, nil, err
	}
	if len(uploads) == 0 {
		return nil, nil, appErr.ErrInvalid
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = uploads[0].Name
	}
	kb := &model.KnowledgeBase{
		ID:      newID(),
		AgentID: agentID,
		Name:    name,
		Kind:    model.KnowledgeKindDocument,
		Ctime:   time.Now().UnixMilli(),
	}
	if err := s.kbs.Create(ctx, kb); err != nil {
		return nil, nil, err
	}

	logger := logutil.GetLogger(ctx).With(zap.String("kb_id", kb.ID))
	results := make([]IngestResult, len(uploads))
	docs := make([]*model.Document, len(uploads))
	kind := ""
	for i, upload := range uploads {
		results[i] = IngestResult{Source: upload.Name, Ok: true}
		parsed, err := ingest.ParseFile(upload.Name, upload.Data)
		if err != nil {
			results[i].Ok = false
			results[i].Error = err.Error()
			continue
		}
		s.archiveUpload(ctx, upload, parsed.Metadata)

		content := parsed.Text
		if parsed.IsTabular() {
			content = strings.Join(chunker.BatchRows(parsed.Table.Columns, parsed.Table.Rows, s.cfg.TableBatchRows), "\n\n")
		}
		doc := &model.Document{
			ID:              newID(),
			KnowledgeBaseID: kb.ID,
			Source:          upload.Name,
			Content:         content,
			Metadata:        parsed.Metadata,
			Ctime:           time.Now().UnixMilli(),
		}
		if err := s.documents.Create(ctx, doc); err != nil {
			results[i].Ok = false
			results[i].Error = err.Error()
			continue
		}
		docs[i] = doc
		if kind == "" {
			kind = model.KnowledgeKindDocument
			if parsed.IsTabular() {
				kind = model.KnowledgeKindTabular
			}
		}
	}
	if !results[0].Ok {
		if err := s.kbs.Delete(ctx, kb.ID); err != nil && !appErr.IsNotFound(err) {
			logger.Error("rollback knowledge base failed", zap.Error(err))
		}
		return nil, results, fmt.Errorf("%w: first file failed: %s", appErr.ErrParse, results[0].Error)
	}
	if kind != "" && kind != kb.Kind {
		// persisted, not just in-memory: backfill re-reads the kind from storage
		if err := s.kbs.UpdateKind(ctx, kb.ID, kind); err != nil {
			logger.Warn("update knowledge base kind failed", zap.Error(err))
		} else {
			kb.Kind = kind
		}
	}

	s.embedBatch(ctx, kb, docs, results)
	return kb, results, nil
}

func (s *IngestService) ListKnowledgeBases(ctx context.Context, agentID string) ([]model.KnowledgeBase, error) {
	if _, err := s.agents.GetByID(ctx, agentID); err != nil {
		return nil, err
	}
	return s.kbs.ListByAgent(ctx, agentID)
}

// DeleteKnowledgeBase removes the knowledge base; documents and chunks cascade.
func (s *IngestService) DeleteKnowledgeBase(ctx context.Context, kbID string) error {
	return s.kbs.Delete(ctx, kbID)
}

// embedBatch embeds documents in fixed-size concurrent windows with a pause
// between windows so the embedding service's rate limits hold.
func (s *IngestService) embedBatch(ctx context.Context, kb *model.KnowledgeBase, docs []*model.Document, results []IngestResult) {
	logger := logutil.GetLogger(ctx).With(zap.String("kb_id", kb.ID))
	window := s.cfg.BatchConcurrency
	if window <= 0 {
		window = 1
	}
	pending := make([]int, 0, len(docs))
	for i, doc := range docs {
		if doc != nil {
			pending = append(pending, i)
		}
	}
	for start := 0; start < len(pending); start += window {
		end := start + window
		if end > len(pending) {
			end = len(pending)
		}
		var wg sync.WaitGroup
		for _, idx := range pending[start:end] {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				if err := s.EmbedAndStore(ctx, docs[idx], kb); err != nil {
					logger.Error("embed document failed", zap.String("doc_id", docs[idx].ID), zap.Error(err))
					results[idx].Ok = false
					results[idx].Error = err.Error()
				}
			}(idx)
		}
		wg.Wait()
		if end < len(pending) {
			select {
			case <-time.After(time.Duration(s.cfg.BatchPauseMillis) * time.Millisecond):
			case <-ctx.Done():
				return
			}
		}
	}
}

// EmbedAndStore chunks one document and writes each chunk with its embedding.
// The first embedding failure aborts the document's remaining chunks; chunks
// already written stay (the upsert key makes a retry idempotent).
func (s *IngestService) EmbedAndStore(ctx context.Context, doc *model.Document, kb *model.KnowledgeBase) error {
	texts := chunkDocument(doc, kb.Kind, s.cfg)
	if len(texts) == 0 {
		return nil
	}
	meta := chunkMetadata(doc)
	for i, text := range texts {
		embedding, err := s.embedder.Embed(ctx, text, "RETRIEVAL_DOCUMENT")
		if err != nil {
			return fmt.Errorf("%w: chunk %d: %v", appErr.ErrEmbedding, i, err)
		}
		chunk := &model.Chunk{
			ID:              newID(),
			DocumentID:      doc.ID,
			KnowledgeBaseID: doc.KnowledgeBaseID,
			AgentID:         kb.AgentID,
			ChunkIndex:      i,
			Content:         text,
			Embedding:       embedding,
			Metadata:        meta,
			Mtime:           time.Now().UnixMilli(),
		}
		if err := s.chunks.Upsert(ctx, chunk); err != nil {
			return fmt.Errorf("%w: chunk %d: %v", appErr.ErrPersistence, i, err)
		}
	}
	return nil
}

// ProcessUnembedded re-runs embedding for documents that have no chunks yet.
// One failing document does not stop the rest of the batch.
func (s *IngestService) ProcessUnembedded(ctx context.Context, limit int) error {
	logger := logutil.GetLogger(ctx)
	docs, err := s.documents.ListUnembedded(ctx, limit)
	if err != nil {
		return err
	}
	for i := range docs {
		doc := &docs[i]
		kb, err := s.kbs.GetByID(ctx, doc.KnowledgeBaseID)
		if err != nil {
			logger.Warn("skip document, knowledge base missing", zap.String("doc_id", doc.ID), zap.Error(err))
			continue
		}
		if err := s.EmbedAndStore(ctx, doc, kb); err != nil {
			logger.Warn("backfill embedding failed", zap.String("doc_id", doc.ID), zap.Error(err))
		}
	}
	return nil
}

const tableChunkHeader = "Table columns: "

// chunkDocument picks the splitting strategy by knowledge kind and format.
// Tabular content was rendered as self-describing row batches at parse time,
// so it only needs regrouping on the batch headers.
func chunkDocument(doc *model.Document, kind string, cfg config.IngestConfig) []string {
	if kind == model.KnowledgeKindTabular && strings.HasPrefix(doc.Content, tableChunkHeader) {
		parts := strings.Split(doc.Content, "\n\n"+tableChunkHeader)
		chunks := make([]string, 0, len(parts))
		for i, part := range parts {
			if i > 0 {
				part = tableChunkHeader + part
			}
			chunks = append(chunks, part)
		}
		return chunks
	}
	if doc.Metadata["format"] == "pdf" {
		return chunker.SplitWithOverlap(doc.Content, chunker.DefaultChunkWords, chunker.DefaultOverlapWords)
	}
	return chunker.Split(doc.Content, cfg.ChunkSize)
}

func chunkMetadata(doc *model.Document) map[string]string {
	meta := map[string]string{
		"source": doc.Source,
	}
	if title := doc.Metadata["title"]; title != "" {
		meta["title"] = title
	}
	if url := doc.Metadata["url"]; url != "" {
		meta["url"] = url
	}
	return meta
}

func withURL(meta map[string]string, pageURL string) map[string]string {
	if meta == nil {
		meta = map[string]string{}
	}
	meta["url"] = pageURL
	return meta
}

// archiveUpload keeps the original bytes in the file store. Failures are
// logged only; the parsed content is what ingestion actually needs.
func (s *IngestService) archiveUpload(ctx context.Context, upload UploadFile, meta map[string]string) {
	if s.files == nil {
		return
	}
	key := newID() + strings.ToLower(filepath.Ext(upload.Name))
	reader := readSeekNopCloser{bytes.NewReader(upload.Data)}
	if err := s.files.Save(ctx, key, reader, int64(len(upload.Data))); err != nil {
		logutil.GetLogger(ctx).Warn("archive upload failed", zap.String("file", upload.Name), zap.Error(err))
		return
	}
	meta["file_key"] = key
}

type readSeekNopCloser struct {
	*bytes.Reader
}

func (readSeekNopCloser) Close() error { return nil }
