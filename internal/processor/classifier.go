package processor

import (
	"strings"

	"github.com/contextforge/contextforge/internal/models"
)

// Classifier assigns a content kind to a chunk of text using cheap
// deterministic heuristics. Misclassification only affects which
// collection a chunk lands in, so the heuristics favor simplicity over
// precision.
type Classifier struct{}

// NewClassifier creates a Classifier
func NewClassifier() *Classifier {
	return &Classifier{}
}

var codeKeywords = []string{
	"func ", "def ", "class ", "import ", "package ", "return ",
	"var ", "const ", "public ", "private ", "static ", "#include",
}

var captionPrefixes = []string{
	"figure", "fig.", "image:", "photo:", "caption:", "diagram",
	"screenshot", "chart:",
}

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp"}

// Classify returns the content kind for one chunk of text.
func (c *Classifier) Classify(text string) models.ContentKind {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return models.ContentKindProse
	}

	if looksLikeCode(trimmed) {
		return models.ContentKindCode
	}
	if looksLikeCaption(trimmed) {
		return models.ContentKindMedia
	}
	return models.ContentKindProse
}

func looksLikeCode(text string) bool {
	// A fenced block is code regardless of what surrounds it.
	if strings.Contains(text, "```") {
		return true
	}

	lines := strings.Split(text, "\n")
	codeLines := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		hasKeyword := false
		lower := strings.ToLower(trimmed)
		for _, kw := range codeKeywords {
			if strings.HasPrefix(lower, kw) {
				hasKeyword = true
				break
			}
		}

		switch {
		case hasKeyword:
			codeLines++
		case strings.HasSuffix(trimmed, "{") || strings.HasSuffix(trimmed, ";") ||
			strings.HasSuffix(trimmed, "}") || strings.HasPrefix(trimmed, "//"):
			codeLines++
		case strings.Contains(trimmed, " := ") || strings.Contains(trimmed, "=>"):
			codeLines++
		}
	}

	nonEmpty := 0
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			nonEmpty++
		}
	}
	return nonEmpty > 0 && codeLines*10 >= nonEmpty*3
}

func looksLikeCaption(text string) bool {
	// Markdown image syntax.
	if strings.Contains(text, "![") {
		return true
	}

	lower := strings.ToLower(text)
	for _, prefix := range captionPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}

	// Short text mentioning an image file reads like a caption.
	if len(text) < 200 {
		for _, ext := range imageExtensions {
			if strings.Contains(lower, ext) {
				return true
			}
		}
	}
	return false
}
