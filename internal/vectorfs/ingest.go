package vectorfs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/vecfs/internal/embeddings"
	"github.com/fyrsmithlabs/vecfs/internal/resource"
)

// maxParagraphChars caps a single text node. Longer paragraphs are split on
// whitespace.
const maxParagraphChars = 2000

// resourceSummaryChars is how much leading text is folded into the resource
// embedding next to the name and description.
const resourceSummaryChars = 500

// SplitParagraphs splits text on blank lines. Paragraphs longer than
// maxParagraphChars are cut at word boundaries.
func SplitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		out = append(out, chunk(block, maxParagraphChars)...)
	}
	return out
}

func chunk(s string, limit int) []string {
	if len(s) <= limit {
		return []string{s}
	}
	var (
		out []string
		b   strings.Builder
	)
	for _, word := range strings.Fields(s) {
		if b.Len() > 0 && b.Len()+1+len(word) > limit {
			out = append(out, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(word)
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}

// NewTextDocument builds a Document with one embedded text node per
// paragraph of text. The resource embedding covers the name, the description
// and the start of the text.
func NewTextDocument(ctx context.Context, gen embeddings.Generator, name, description, text string, src resource.Source) (*resource.Document, error) {
	if gen == nil {
		return nil, errors.New("embedding generator is required")
	}
	paragraphs := SplitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil, fmt.Errorf("document %q has no text", name)
	}

	doc := resource.NewDocument(name, description, src, gen.ModelType())
	ids := make([]string, len(paragraphs))
	for i := range paragraphs {
		ids[i] = strconv.Itoa(i + 1)
	}
	embs, err := gen.GenerateEmbeddings(ctx, paragraphs, ids)
	if err != nil {
		return nil, fmt.Errorf("embedding %q: %w", name, err)
	}
	for i, p := range paragraphs {
		doc.AppendText(p, nil, embs[i], nil)
	}

	summary := strings.TrimSpace(name + "\n" + description + "\n" + text)
	if len(summary) > resourceSummaryChars {
		summary = summary[:resourceSummaryChars]
	}
	re, err := gen.GenerateEmbedding(ctx, summary, "RE")
	if err != nil {
		return nil, fmt.Errorf("embedding %q: %w", name, err)
	}
	doc.SetResourceEmbedding(re)
	return doc, nil
}
