package extract

import (
	"context"
	"strings"

	"golang.org/x/net/html"

	"github.com/pagerelay/pagerelay/pkg/types"
)

// defaultRedditCommentCap bounds comment extraction for forum posts.
const defaultRedditCommentCap = 200

// Selector candidates per field, ordered new-markup-first. Reddit ships
// several frontends at once (shreddit web components, the data-testid
// redesign, old.reddit classes), so every field tolerates all of them.
var (
	redditTitleSelectors = []string{
		"shreddit-post h1[slot='title']",
		"h1[slot='title']",
		"div[data-test-id='post-content'] h1",
		"a.title",
		"h1",
	}
	redditAuthorSelectors = []string{
		"shreddit-post a[href^='/user/']",
		"a[data-testid='post_author_link']",
		"a.author",
	}
	redditBodySelectors = []string{
		"shreddit-post div[slot='text-body']",
		"div[data-test-id='post-content'] div[data-click-id='text']",
		"div.usertext-body div.md",
	}

	// Comment selector families. The first family with at least one match
	// wins; families are never merged, since mixing frontends would
	// duplicate comments.
	redditCommentFamilies = []string{
		"shreddit-comment",
		"div[data-testid='comment']",
		"div.comment div.entry",
	}

	redditCommentAuthorSelectors = []string{
		"a[href^='/user/']",
		"a.author",
	}
	redditCommentTextSelectors = []string{
		"div[slot='comment']",
		"div[data-testid='comment'] p",
		"div.md",
		"p",
	}
	redditCommentScoreSelectors = []string{
		"shreddit-comment-action-row faceplate-number",
		"span.score",
	}
)

// RedditStrategy extracts forum posts: title, author, body, and a capped
// comment batch.
type RedditStrategy struct {
	commentCap int
}

// NewRedditStrategy creates the reddit strategy with the default comment cap.
func NewRedditStrategy() *RedditStrategy {
	return &RedditStrategy{commentCap: defaultRedditCommentCap}
}

// ContentType returns the content type this strategy produces.
func (s *RedditStrategy) ContentType() types.ContentType {
	return types.ContentTypeReddit
}

// Extract pulls the structured post fields. Field extraction is isolated:
// one missing field degrades that field only, and a malformed comment is
// skipped without aborting the batch.
func (s *RedditStrategy) Extract(_ context.Context, page Page) *types.ExtractedContent {
	doc, err := parseHTML(page.HTML)
	if err != nil {
		return types.NewErrorContent(types.ContentTypeReddit, page.URL, "failed to parse post HTML: "+err.Error())
	}

	content := &types.ExtractedContent{
		ContentType: types.ContentTypeReddit,
		URL:         page.URL,
		ExtractedAt: now(),
	}

	content.Title = textFromSelectors(doc, redditTitleSelectors)
	content.Author = textFromSelectors(doc, redditAuthorSelectors)
	content.Body = textFromSelectors(doc, redditBodySelectors)
	content.Comments = s.extractComments(doc)

	if content.Title == "" && content.Body == "" && len(content.Comments) == 0 {
		content.Error = true
		content.Message = "no recognizable post content found"
	}
	return content
}

func (s *RedditStrategy) extractComments(doc *html.Node) []types.Comment {
	nodes := firstMatchAll(doc, redditCommentFamilies)
	if len(nodes) == 0 {
		return nil
	}

	comments := make([]types.Comment, 0, min(len(nodes), s.commentCap))
	for _, n := range nodes {
		if len(comments) >= s.commentCap {
			break
		}
		c := extractComment(n, redditCommentAuthorSelectors, redditCommentTextSelectors, redditCommentScoreSelectors)
		if c == nil {
			continue
		}
		comments = append(comments, *c)
	}
	return comments
}

// extractComment captures one comment independently so a malformed node
// cannot abort the batch. A comment with no text is dropped.
func extractComment(n *html.Node, authorSelectors, textSelectors, scoreSelectors []string) *types.Comment {
	text := textFromSelectors(n, textSelectors)
	if text == "" {
		// Fall back to the node's own visible text before giving up.
		text = strings.TrimSpace(visibleText(n))
	}
	if text == "" {
		return nil
	}

	return &types.Comment{
		Author:     textFromSelectors(n, authorSelectors),
		Text:       text,
		Popularity: textFromSelectors(n, scoreSelectors),
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
