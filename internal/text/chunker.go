package text

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/FadiShak3r/rag-system/internal/extract"
)

// Chunk is the unit handed to the embedder and the vector store. ID encodes
// provenance: "<table>:<row key>" plus ":<n>" when a row splits.
type Chunk struct {
	ID       string
	Text     string
	Metadata map[string]string
}

type Chunker struct {
	table        string
	maxChars     int
	overlapChars int
}

func NewChunker(table string, maxChars, overlapChars int) *Chunker {
	if overlapChars >= maxChars {
		overlapChars = maxChars / 4
	}
	return &Chunker{table: table, maxChars: maxChars, overlapChars: overlapChars}
}

// ChunkRow is pure and deterministic: the same RowRecord always yields the
// same ids and text. Most rows produce exactly one chunk; only rows whose
// serialized text exceeds maxChars split into an overlapping word window.
func (c *Chunker) ChunkRow(rec extract.RowRecord) []Chunk {
	text := c.FormatRow(rec)
	baseID := fmt.Sprintf("%s:%s", c.table, rec.Key)

	meta := map[string]string{
		"table":   c.table,
		"row_key": rec.Key,
	}

	if len(text) <= c.maxChars {
		return []Chunk{{ID: baseID, Text: text, Metadata: meta}}
	}

	var chunks []Chunk
	words := strings.Fields(text)
	start := 0
	for start < len(words) {
		end := start
		length := 0
		for end < len(words) {
			wl := len(words[end]) + 1
			if length+wl > c.maxChars && length > 0 {
				break
			}
			length += wl
			end++
		}

		part := strings.Join(words[start:end], " ")
		idx := len(chunks)
		m := map[string]string{
			"table":       c.table,
			"row_key":     rec.Key,
			"chunk_index": fmt.Sprintf("%d", idx),
		}
		chunks = append(chunks, Chunk{
			ID:       fmt.Sprintf("%s:%d", baseID, idx),
			Text:     part,
			Metadata: m,
		})

		if end >= len(words) {
			break
		}

		// Back up enough words to overlap the windows.
		back := end
		overlap := 0
		for back > start && overlap < c.overlapChars {
			back--
			overlap += len(words[back]) + 1
		}
		if back <= start {
			back = start + 1
		}
		start = back
	}

	return chunks
}

// FormatRow serializes a row the way the index describes it to the model:
// "Table: products. List Price: 1200.5. Color: Red." NULL columns are
// skipped; column order follows the source's column order.
func (c *Chunker) FormatRow(rec extract.RowRecord) string {
	parts := []string{fmt.Sprintf("Table: %s", c.table)}
	for _, col := range rec.Columns {
		v, ok := rec.Values[col]
		if !ok || v == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", humanizeColumn(col), v))
	}
	return strings.Join(parts, ". ") + "."
}

// humanizeColumn turns "list_price" into "List Price" and leaves already
// readable names ("ListPrice") alone.
func humanizeColumn(col string) string {
	words := strings.Split(col, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
