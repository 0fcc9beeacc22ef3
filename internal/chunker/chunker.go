package chunker

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	DefaultChunkSize      = 1200
	DefaultOverlapWords   = 40
	DefaultChunkWords     = 200
	DefaultTableBatchRows = 100
)

var sentenceEnd = regexp.MustCompile(`([.!?])\s+`)

// SplitSentences cuts text at `.`, `!` or `?` followed by whitespace. The
// terminator stays with its sentence.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var sentences []string
	last := 0
	for _, loc := range sentenceEnd.FindAllStringSubmatchIndex(text, -1) {
		// loc[3] is the end of the terminator group
		sentence := strings.TrimSpace(text[last:loc[3]])
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		last = loc[1]
	}
	if tail := strings.TrimSpace(text[last:]); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

// Split accumulates sentences greedily until adding the next one would exceed
// maxSize, then starts a new chunk with that sentence. Chunks never overlap.
// A single sentence longer than maxSize becomes its own oversized chunk.
func Split(text string, maxSize int) []string {
	if maxSize <= 0 {
		maxSize = DefaultChunkSize
	}
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return nil
	}
	var chunks []string
	var current strings.Builder
	for _, sentence := range sentences {
		if current.Len() == 0 {
			current.WriteString(sentence)
			continue
		}
		if current.Len()+1+len(sentence) > maxSize {
			chunks = append(chunks, current.String())
			current.Reset()
			current.WriteString(sentence)
			continue
		}
		current.WriteString(" ")
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// SplitWithOverlap cuts text into windows of chunkWords words, seeding each
// new chunk with the tail overlapWords of the previous one. Used for document
// types where sentence boundaries are unreliable (extracted PDF text mostly).
func SplitWithOverlap(text string, chunkWords, overlapWords int) []string {
	if chunkWords <= 0 {
		chunkWords = DefaultChunkWords
	}
	if overlapWords < 0 {
		overlapWords = DefaultOverlapWords
	}
	if overlapWords >= chunkWords {
		// small windows cannot carry the default overlap
		overlapWords = chunkWords / 2
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if len(words) <= chunkWords {
		return []string{strings.Join(words, " ")}
	}
	step := chunkWords - overlapWords
	var chunks []string
	for start := 0; start < len(words); start += step {
		end := start + chunkWords
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}

// BatchRows renders tabular rows as labeled text blocks, batchSize rows per
// chunk, each chunk headed by the column list so a chunk is self-describing.
// Row numbers are global across batches.
func BatchRows(columns []string, rows [][]string, batchSize int) []string {
	if batchSize <= 0 {
		batchSize = DefaultTableBatchRows
	}
	if len(rows) == 0 {
		return nil
	}
	header := "Table columns: " + strings.Join(columns, ", ")
	var chunks []string
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		var sb strings.Builder
		sb.WriteString(header)
		for i := start; i < end; i++ {
			sb.WriteString("\n")
			sb.WriteString(renderRow(i+1, columns, rows[i]))
		}
		chunks = append(chunks, sb.String())
	}
	return chunks
}

func renderRow(n int, columns, row []string) string {
	parts := make([]string, 0, len(row))
	for i, value := range row {
		name := fmt.Sprintf("col%d", i+1)
		if i < len(columns) && strings.TrimSpace(columns[i]) != "" {
			name = columns[i]
		}
		parts = append(parts, fmt.Sprintf("%s: %s", name, value))
	}
	return fmt.Sprintf("Row %d: %s", n, strings.Join(parts, ", "))
}
