package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/chatstack/chatstack/internal/ai"
	"github.com/chatstack/chatstack/internal/config"
	"github.com/chatstack/chatstack/internal/model"
	"github.com/chatstack/chatstack/internal/repo"
)

// Source is one provenance entry for the footer and inline citations.
type Source struct {
	URL   string  `json:"url"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

type chunkSearcher interface {
	Search(ctx context.Context, agentID, kbID string, embedding []float32, topK int) ([]model.SearchResult, error)
}

type RetrievalService struct {
	kbs      *repo.KnowledgeBaseRepo
	searcher chunkSearcher
	embedder ai.IEmbedder
	planner  ai.IGenerator
	cfg      config.RetrievalConfig
	rewrites *expirable.LRU[string, []string]
}

func NewRetrievalService(kbs *repo.KnowledgeBaseRepo, searcher chunkSearcher, embedder ai.IEmbedder, planner ai.IGenerator, cfg config.RetrievalConfig) *RetrievalService {
	return &RetrievalService{
		kbs:      kbs,
		searcher: searcher,
		embedder: embedder,
		planner:  planner,
		cfg:      cfg,
		rewrites: expirable.NewLRU[string, []string](4096, nil, 30*time.Minute),
	}
}

const shortQueryTokens = 5

const rewritePromptTemplate = `Rephrase the following question as 2-3 alternative search queries.
Each query should be 5-15 words and approach the question from a different angle.
Return one query per line, numbered.

Question: %s`

var numberedLine = regexp.MustCompile(`^\s*\d+[.)]\s*(.+)$`)

// PlanQueries turns a user message into at most 2 search queries. Short
// messages skip the model entirely, and any model failure degrades to the
// message itself. This path never errors.
func (s *RetrievalService) PlanQueries(ctx context.Context, message string) []string {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil
	}
	if len(strings.Fields(message)) <= shortQueryTokens {
		return []string{message}
	}
	cacheKey := hashKey(message)
	if cached, ok := s.rewrites.Get(cacheKey); ok {
		return cached
	}
	raw, err := s.planner.Generate(ctx, fmt.Sprintf(rewritePromptTemplate, message), ai.GenerateOptions{})
	if err != nil {
		logutil.GetLogger(ctx).Warn("query rewrite failed, using original message", zap.Error(err))
		return []string{message}
	}
	queries := []string{message}
	for _, variant := range parseNumberedLines(raw) {
		if len(queries) >= 2 {
			break
		}
		if !strings.EqualFold(variant, message) {
			queries = append(queries, variant)
		}
	}
	s.rewrites.Add(cacheKey, queries)
	return queries
}

func parseNumberedLines(raw string) []string {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		if m := numberedLine.FindStringSubmatch(line); m != nil {
			if text := strings.TrimSpace(m[1]); text != "" {
				lines = append(lines, text)
			}
		}
	}
	return lines
}

// Retrieve fans out every (query, knowledge base) pair concurrently and
// reduces the hits into a labeled context string plus the source list. A
// failing pair contributes nothing; partial degradation never errors.
func (s *RetrievalService) Retrieve(ctx context.Context, agentID string, queries []string, light bool) (string, []Source, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("agent_id", agentID))
	kbs, err := s.kbs.ListByAgent(ctx, agentID)
	if err != nil {
		return "", nil, err
	}
	if len(kbs) == 0 || len(queries) == 0 {
		return "", nil, nil
	}

	embeddings := make([][]float32, len(queries))
	for i, query := range queries {
		emb, err := s.embedder.Embed(ctx, query, "RETRIEVAL_QUERY")
		if err != nil {
			logger.Warn("query embedding failed", zap.String("query", query), zap.Error(err))
			continue
		}
		embeddings[i] = emb
	}

	var mu sync.Mutex
	var merged []model.SearchResult
	var wg sync.WaitGroup
	for qi, query := range queries {
		if embeddings[qi] == nil {
			continue
		}
		for _, kb := range kbs {
			wg.Add(1)
			go func(query string, embedding []float32, kb model.KnowledgeBase) {
				defer wg.Done()
				hits, err := s.searcher.Search(ctx, agentID, kb.ID, embedding, s.cfg.TopKPerSearch)
				if err != nil {
					logger.Warn("similarity search failed", zap.String("kb_id", kb.ID), zap.Error(err))
					return
				}
				kept := make([]model.SearchResult, 0, len(hits))
				for _, hit := range hits {
					if hit.Score < s.cfg.MinScore {
						continue
					}
					hit.Query = query
					hit.KnowledgeBaseName = kb.Name
					kept = append(kept, hit)
				}
				mu.Lock()
				merged = append(merged, kept...)
				mu.Unlock()
			}(query, embeddings[qi], kb)
		}
	}
	wg.Wait()

	if len(merged) == 0 {
		return "", nil, nil
	}
	deduped := dedupeResults(merged)
	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].Score > deduped[j].Score
	})
	budget := s.cfg.ContextBudget
	if light {
		budget = s.cfg.LightBudget
	}
	selected := selectDiverse(deduped, budget, s.cfg)
	return buildContext(selected), collectSources(selected, s.cfg.MaxSources), nil
}

const dedupePrefixLen = 100

// dedupeResults drops hits whose leading content matches an earlier hit; the
// first occurrence keeps its query and knowledge base attribution.
func dedupeResults(results []model.SearchResult) []model.SearchResult {
	seen := make(map[string]bool, len(results))
	out := make([]model.SearchResult, 0, len(results))
	for _, item := range results {
		prefix := item.Content
		if len(prefix) > dedupePrefixLen {
			prefix = prefix[:dedupePrefixLen]
		}
		key := hashKey(prefix)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}

// selectDiverse walks score-ordered hits accepting strong matches, hits that
// bring enough new vocabulary, or anything while below the floor. Coverage
// over pure ranking: five near-duplicates should not crowd out one useful
// lower-scored chunk.
func selectDiverse(sorted []model.SearchResult, budget int, cfg config.RetrievalConfig) []model.SearchResult {
	if budget <= 0 || len(sorted) == 0 {
		return nil
	}
	seenStems := make(map[string]bool)
	selected := make([]model.SearchResult, 0, budget)
	for _, item := range sorted {
		if len(selected) >= budget {
			break
		}
		stems := wordStems(item.Content)
		accept := item.Score > cfg.StrongScore ||
			noveltyRatio(stems, seenStems) > cfg.NoveltyRatio ||
			len(selected) < cfg.SelectionFloor
		if !accept {
			continue
		}
		selected = append(selected, item)
		for _, stem := range stems {
			seenStems[stem] = true
		}
	}
	return selected
}

const minStemLen = 5

func wordStems(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	stems := make([]string, 0, len(fields))
	for _, field := range fields {
		stem := strings.Trim(field, ".,;:!?\"'()[]{}")
		if len(stem) >= minStemLen {
			stems = append(stems, stem)
		}
	}
	return stems
}

func noveltyRatio(stems []string, seen map[string]bool) float64 {
	if len(stems) == 0 {
		return 0
	}
	novel := 0
	for _, stem := range stems {
		if !seen[stem] {
			novel++
		}
	}
	return float64(novel) / float64(len(stems))
}

func buildContext(selected []model.SearchResult) string {
	if len(selected) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, item := range selected {
		if i > 0 {
			sb.WriteString("\n---\n")
		}
		label := item.Metadata["title"]
		if label == "" {
			label = item.KnowledgeBaseName
		}
		fmt.Fprintf(&sb, "[Chunk %d | Relevance: %d%% | Source: %s]\n", i+1, int(item.Score*100), label)
		sb.WriteString(item.Content)
	}
	return sb.String()
}

// collectSources keeps up to max distinct absolute http(s) URLs, each with
// the best-scoring chunk's title.
func collectSources(selected []model.SearchResult, max int) []Source {
	byURL := make(map[string]int)
	sources := make([]Source, 0, max)
	for _, item := range selected {
		url := item.Metadata["url"]
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			continue
		}
		if idx, ok := byURL[url]; ok {
			if item.Score > sources[idx].Score {
				sources[idx].Score = item.Score
				if title := item.Metadata["title"]; title != "" {
					sources[idx].Title = title
				}
			}
			continue
		}
		title := item.Metadata["title"]
		if title == "" {
			title = url
		}
		byURL[url] = len(sources)
		sources = append(sources, Source{URL: url, Title: title, Score: item.Score})
	}
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Score > sources[j].Score
	})
	if len(sources) > max {
		sources = sources[:max]
	}
	return sources
}

func hashKey(text string) string {
	hash := sha256.Sum256([]byte(text))
	return hex.EncodeToString(hash[:])
}
