package mirror

import (
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
)

// snippetPolicy is bluemonday's strict policy: it removes every HTML tag and
// keeps only the text. It is applied by sanitizeSnippet.
var snippetPolicy = bluemonday.StrictPolicy()

var snippetConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
	),
)

// sanitizeSnippet strips all markup from a snippet body authored as HTML,
// leaving plain text. renderSnippet uses it as its fallback when Markdown
// conversion fails; a body that converts successfully is not passed through
// it.
func sanitizeSnippet(html string) string {
	return snippetPolicy.Sanitize(html)
}

// renderSnippet converts a snippet's stored HTML body into the
// lightweight Markdown the chat platform's message renderer understands, so
// a snippet authored in a rich-text editor keeps its bold/italic/links when
// mirrored into both the staff echo and the DM twin.
//
// On conversion failure, the sanitized plain-text fallback is returned
// rather than erroring the whole reply — a snippet that fails to render
// richly should still be usable as plain text.
func renderSnippet(html string) string {
	md, err := snippetConverter.ConvertString(html)
	if err != nil {
		return sanitizeSnippet(html)
	}
	return md
}
