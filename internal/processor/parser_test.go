package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextforge/contextforge/internal/models"
)

func TestParser_PlainText(t *testing.T) {
	parser := NewParser()

	text, err := parser.Parse(&models.RawDocument{
		Title:       "notes.txt",
		ContentType: "text/plain",
		Body:        []byte("Just some plain text.\n\nWith two paragraphs."),
	})
	require.NoError(t, err)
	assert.Equal(t, "Just some plain text.\n\nWith two paragraphs.", text)
}

func TestParser_EmptyBody(t *testing.T) {
	parser := NewParser()

	text, err := parser.Parse(&models.RawDocument{Title: "empty.txt"})
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestParser_HTMLStripsTagsAndScripts(t *testing.T) {
	parser := NewParser()

	body := []byte(`<!DOCTYPE html>
<html>
<head><title>Ignored</title><style>p { color: red; }</style></head>
<body>
  <script>alert("nope")</script>
  <h1>Heading</h1>
  <p>First paragraph with <b>bold</b> text.</p>
  <p>Second paragraph.</p>
</body>
</html>`)

	text, err := parser.Parse(&models.RawDocument{
		URL:         "https://example.com/page.html",
		ContentType: "text/html",
		Body:        body,
	})
	require.NoError(t, err)

	assert.Contains(t, text, "Heading")
	assert.Contains(t, text, "First paragraph with bold text.")
	assert.Contains(t, text, "Second paragraph.")
	assert.NotContains(t, text, "alert")
	assert.NotContains(t, text, "color: red")
	assert.NotContains(t, text, "<p>")
}

func TestParser_HTMLDetectedWithoutContentType(t *testing.T) {
	parser := NewParser()

	text, err := parser.Parse(&models.RawDocument{
		Title: "unknown",
		Body:  []byte("<!DOCTYPE html><html><body><p>Detected by sniffing.</p></body></html>"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Detected by sniffing.", text)
}

func TestParser_BinaryContentRejected(t *testing.T) {
	parser := NewParser()

	_, err := parser.Parse(&models.RawDocument{
		Title:       "blob.bin",
		ContentType: "application/octet-stream",
		Body:        []byte{0x89, 0x50, 0x4e, 0x47, 0x00, 0x1a},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestParser_InvalidUTF8Rejected(t *testing.T) {
	parser := NewParser()

	_, err := parser.Parse(&models.RawDocument{
		Title:       "bad.txt",
		ContentType: "text/plain",
		Body:        []byte{0xff, 0xfe, 0xfd},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestExtractLinks(t *testing.T) {
	body := []byte(`<html><body>
		<a href="/docs/intro">Intro</a>
		<a href="https://example.com/guide">Guide</a>
		<a>No href</a>
		<a href="">Empty</a>
	</body></html>`)

	links, err := ExtractLinks(body)
	require.NoError(t, err)
	assert.Equal(t, []string{"/docs/intro", "https://example.com/guide"}, links)
}
