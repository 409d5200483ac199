package processor

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/contextforge/contextforge/internal/models"
)

// ErrUnparseable marks document content that cannot be turned into
// text. Never retried; surfaced to the caller as-is.
var ErrUnparseable = errors.New("document content is not parseable")

// Parser converts raw document bytes into plain text based on the
// declared content type, falling back to extension sniffing.
type Parser struct{}

// NewParser creates a Parser
func NewParser() *Parser {
	return &Parser{}
}

// Parse extracts plain text from a raw document. HTML is stripped to
// its visible text; markdown and plain text pass through. Binary
// content fails with ErrUnparseable.
func (p *Parser) Parse(raw *models.RawDocument) (string, error) {
	if len(raw.Body) == 0 {
		return "", nil
	}

	switch detectFormat(raw) {
	case "html":
		return extractHTMLText(raw.Body)
	default:
		return parsePlainText(raw.Body)
	}
}

func detectFormat(raw *models.RawDocument) string {
	ct := strings.ToLower(raw.ContentType)
	if strings.Contains(ct, "html") {
		return "html"
	}
	if strings.Contains(ct, "markdown") || strings.Contains(ct, "text") || strings.Contains(ct, "json") {
		return "text"
	}

	name := strings.ToLower(raw.URL)
	if name == "" {
		name = strings.ToLower(raw.Title)
	}
	if strings.HasSuffix(name, ".html") || strings.HasSuffix(name, ".htm") {
		return "html"
	}

	// Unlabeled content that opens with a tag is almost always HTML.
	head := bytes.TrimSpace(raw.Body)
	if bytes.HasPrefix(head, []byte("<!DOCTYPE")) || bytes.HasPrefix(head, []byte("<html")) {
		return "html"
	}
	return "text"
}

func parsePlainText(body []byte) (string, error) {
	if bytes.IndexByte(body, 0) >= 0 {
		return "", fmt.Errorf("%w: binary content", ErrUnparseable)
	}
	if !utf8.Valid(body) {
		return "", fmt.Errorf("%w: invalid UTF-8", ErrUnparseable)
	}
	return string(body), nil
}

// extractHTMLText walks the parse tree collecting visible text,
// skipping script and style subtrees. Block elements become paragraph
// breaks so the chunker sees real boundaries.
func extractHTMLText(body []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnparseable, err)
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "head":
				return
			case "p", "div", "br", "li", "h1", "h2", "h3", "h4", "h5", "h6",
				"tr", "section", "article", "blockquote", "pre":
				b.WriteString("\n\n")
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	return normalizeWhitespace(b.String()), nil
}

// normalizeWhitespace collapses runs of blank lines and intra-line
// whitespace left behind by tag stripping.
func normalizeWhitespace(text string) string {
	var paragraphs []string
	for _, para := range strings.Split(text, "\n\n") {
		fields := strings.Fields(para)
		if len(fields) > 0 {
			paragraphs = append(paragraphs, strings.Join(fields, " "))
		}
	}
	return strings.Join(paragraphs, "\n\n")
}

// ExtractLinks returns the href targets of anchor tags in an HTML
// document. Used by the crawler to grow its frontier.
func ExtractLinks(body []byte) ([]string, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}

	var links []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" && attr.Val != "" {
					links = append(links, attr.Val)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	return links, nil
}
