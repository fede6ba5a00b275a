package extract

import (
	"context"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/pagerelay/pagerelay/pkg/types"
)

// minMainContentLength is the floor a "main content" selector match must
// clear before it is trusted over whole-page extraction.
const minMainContentLength = 200

// maxGeneralBodyLength caps the flattened body so a single page cannot blow
// out a provider's context window.
const maxGeneralBodyLength = 60000

// mainContentSelectors is the ordered preference list for a page's primary
// content region.
var mainContentSelectors = []string{
	"main",
	"article",
	"[role='main']",
	"#content",
	"#main-content",
	".post-content",
	".article-body",
	".content",
}

// GeneralStrategy handles any page without a specialized strategy: it walks
// the visible DOM and reconstructs readable text.
type GeneralStrategy struct{}

// NewGeneralStrategy creates the general-page strategy.
func NewGeneralStrategy() *GeneralStrategy {
	return &GeneralStrategy{}
}

// ContentType returns the content type this strategy produces.
func (s *GeneralStrategy) ContentType() types.ContentType {
	return types.ContentTypeGeneral
}

// Extract walks the page for readable text. The first main-content selector
// whose text clears the 200-character floor wins; otherwise the whole page
// is flattened. A readability pass is the last resort for pages whose DOM
// walk yields almost nothing.
func (s *GeneralStrategy) Extract(_ context.Context, page Page) *types.ExtractedContent {
	doc, err := parseHTML(page.HTML)
	if err != nil {
		return types.NewErrorContent(types.ContentTypeGeneral, page.URL, "failed to parse page HTML: "+err.Error())
	}

	content := &types.ExtractedContent{
		ContentType: types.ContentTypeGeneral,
		URL:         page.URL,
		ExtractedAt: now(),
	}

	if n := querySelector(doc, "title"); n != nil && n.FirstChild != nil {
		content.Title = strings.TrimSpace(n.FirstChild.Data)
	}
	if content.Title == "" {
		content.Title = metaContent(doc, "og:title")
	}
	content.Description = metaContent(doc, "description")

	body := s.mainContent(doc)
	if body == "" {
		body = s.wholePage(doc)
	}
	if len(body) < minMainContentLength {
		if article := s.readabilityPass(page); len(article) > len(body) {
			body = article
		}
	}

	if body == "" {
		content.Error = true
		content.Message = "no readable text found on page"
		return content
	}

	content.Body = truncateRunes(body, maxGeneralBodyLength)
	return content
}

// mainContent returns the first preferred selector's text that clears the
// floor, or empty.
func (s *GeneralStrategy) mainContent(doc *html.Node) string {
	for _, selector := range mainContentSelectors {
		n := querySelector(doc, selector)
		if n == nil {
			continue
		}
		text := strings.TrimSpace(visibleText(n))
		if len(text) >= minMainContentLength {
			return text
		}
	}
	return ""
}

func (s *GeneralStrategy) wholePage(doc *html.Node) string {
	if body := querySelector(doc, "body"); body != nil {
		return strings.TrimSpace(visibleText(body))
	}
	return strings.TrimSpace(visibleText(doc))
}

// readabilityPass runs the readability article extractor over the raw HTML.
// It handles script-heavy pages where the plain DOM walk finds nothing.
func (s *GeneralStrategy) readabilityPass(page Page) string {
	pageURL, err := url.Parse(page.URL)
	if err != nil {
		pageURL = &url.URL{}
	}
	article, err := readability.FromReader(strings.NewReader(page.HTML), pageURL)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(article.TextContent)
}
