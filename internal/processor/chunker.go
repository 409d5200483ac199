// Package processor turns raw documents into classified text chunks:
// parsing bytes to plain text, splitting into overlapping passages and
// labeling each passage with a content kind.
package processor

import (
	"strings"
)

// Chunker splits text into overlapping passages. Splitting prefers
// paragraph boundaries, then sentence boundaries, then hard character
// cuts, so chunks stay semantically coherent where the text allows it.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a Chunker. size is the maximum chunk length in
// characters; overlap is how much trailing context each chunk carries
// into the next.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 4
	}
	return &Chunker{size: size, overlap: overlap}
}

// Chunk splits text into passages of at most the configured size.
// Consecutive passages share overlapping context except where a
// semantic boundary already provides enough continuity. Empty or
// whitespace-only input yields no chunks.
func (c *Chunker) Chunk(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	segments := c.segments(trimmed)

	var chunks []string
	current := ""
	for _, seg := range segments {
		if current == "" {
			current = seg
			continue
		}

		joined := current + "\n\n" + seg
		if len(joined) <= c.size {
			current = joined
			continue
		}

		chunks = append(chunks, current)
		tail := c.overlapTail(current)
		if tail != "" && len(tail)+1+len(seg) <= c.size {
			current = tail + " " + seg
		} else {
			current = seg
		}
	}
	if current != "" {
		chunks = append(chunks, current)
	}

	return chunks
}

// segments breaks text into pieces that each fit within one chunk,
// preferring paragraphs, then sentences, then hard cuts.
func (c *Chunker) segments(text string) []string {
	var segs []string
	for _, para := range splitParagraphs(text) {
		if len(para) <= c.size {
			segs = append(segs, para)
			continue
		}
		for _, sent := range splitSentences(para) {
			if len(sent) <= c.size {
				segs = append(segs, sent)
				continue
			}
			segs = append(segs, c.hardSplit(sent)...)
		}
	}
	return segs
}

// hardSplit cuts an oversized run of text into pieces small enough
// that an overlap prefix still fits in front of them.
func (c *Chunker) hardSplit(text string) []string {
	maxPiece := c.size - c.overlap - 1
	if maxPiece <= 0 {
		maxPiece = c.size
	}

	var pieces []string
	for len(text) > maxPiece {
		cut := maxPiece
		// Prefer cutting at a space near the limit.
		if idx := strings.LastIndexByte(text[:cut], ' '); idx > maxPiece/2 {
			cut = idx
		}
		pieces = append(pieces, strings.TrimSpace(text[:cut]))
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		pieces = append(pieces, text)
	}
	return pieces
}

// overlapTail returns the last overlap-worth of a chunk, snapped to a
// word boundary.
func (c *Chunker) overlapTail(chunk string) string {
	if c.overlap == 0 || len(chunk) <= c.overlap {
		return ""
	}

	tail := chunk[len(chunk)-c.overlap:]
	if idx := strings.IndexByte(tail, ' '); idx >= 0 {
		tail = tail[idx+1:]
	}
	return strings.TrimSpace(tail)
}

func splitParagraphs(text string) []string {
	var paras []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			paras = append(paras, p)
		}
	}
	return paras
}

// splitSentences splits on sentence-final punctuation followed by
// whitespace. Good enough for chunk sizing; this is not a linguistic
// segmenter.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		switch text[i] {
		case '.', '!', '?':
			if text[i+1] == ' ' || text[i+1] == '\n' {
				s := strings.TrimSpace(text[start : i+1])
				if s != "" {
					sentences = append(sentences, s)
				}
				start = i + 1
			}
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
