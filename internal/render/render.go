// Package render turns the draft into the HTML shown in the editor preview.
package render

import (
	"sync"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	md_html "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/rs/zerolog"

	"github.com/debemdeboas/dailywrite/internal/cache"
	"github.com/debemdeboas/dailywrite/internal/util"
)

var renderLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	renderLogger = l
}

const extensions = parser.Tables | parser.FencedCode | parser.Autolink | parser.Strikethrough |
	parser.SpaceHeadings | parser.HeadingIDs | parser.BackslashLineBreak | parser.DefinitionLists |
	parser.AutoHeadingIDs | parser.Footnotes | parser.OrderedListStart | parser.NoEmptyLineBeforeBlock

func parse(md []byte) ast.Node {
	md = markdown.NormalizeNewlines(md)
	return parser.NewWithExtensions(extensions).Parse(md)
}

func RenderMarkdown(md []byte) []byte {
	opts := md_html.RendererOptions{
		Flags: md_html.CommonFlags | md_html.HrefTargetBlank | md_html.FootnoteReturnLinks,
	}
	return markdown.Render(parse(md), md_html.NewRenderer(opts))
}

// Mutex to protect the check-render-set operation in RenderMarkdownCached
var renderCacheMutex sync.Mutex

func RenderMarkdownCached(md []byte) []byte {
	contentHash := util.ContentHash(md)

	if cached, found := cache.GetRenderedMarkdown(contentHash); found {
		renderLogger.Debug().Str("contentHash", contentHash).Msg("Cache hit for rendered markdown")
		return cached.HTML
	}

	renderLogger.Debug().Str("contentHash", contentHash).Msg("Cache miss for rendered markdown")
	renderCacheMutex.Lock()
	defer renderCacheMutex.Unlock()

	html := RenderMarkdown(md)
	cache.SetRenderedMarkdown(contentHash, html, ImageRefs(md))
	return html
}

// ImageRefs lists the destinations of every image in md, in document order.
func ImageRefs(md []byte) []string {
	var refs []string
	ast.WalkFunc(parse(md), func(node ast.Node, entering bool) ast.WalkStatus {
		if img, ok := node.(*ast.Image); ok && entering {
			refs = append(refs, string(img.Destination))
		}
		return ast.GoToNext
	})
	return refs
}

// CachedImageRefs returns the image references recorded when md was last
// rendered, falling back to parsing it.
func CachedImageRefs(md []byte) []string {
	if cached, found := cache.GetRenderedMarkdown(util.ContentHash(md)); found {
		if refs, ok := cached.Extra.([]string); ok {
			return refs
		}
	}
	return ImageRefs(md)
}
