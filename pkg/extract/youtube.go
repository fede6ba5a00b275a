package extract

import (
	"context"
	"strings"

	"golang.org/x/net/html"

	"github.com/pagerelay/pagerelay/pkg/types"
)

// defaultYouTubeCommentCap bounds comment extraction for video pages, which
// matter less than the transcript and description.
const defaultYouTubeCommentCap = 50

var (
	youtubeTitleSelectors = []string{
		"h1.ytd-watch-metadata yt-formatted-string",
		"h1.title yt-formatted-string",
		"meta[property='og:title']",
	}
	youtubeChannelSelectors = []string{
		"ytd-channel-name#channel-name a",
		"#owner #channel-name a",
		"span[itemprop='author'] link[itemprop='name']",
	}
	youtubeDescriptionSelectors = []string{
		"ytd-text-inline-expander#description-inline-expander",
		"#description-inline-expander",
		"#description yt-formatted-string",
	}

	// Transcript segments only exist after the user opens the transcript
	// panel; their absence is normal.
	youtubeTranscriptSegmentSelectors = []string{
		"ytd-transcript-segment-renderer .segment-text",
		"ytd-transcript-segment-renderer yt-formatted-string",
	}

	youtubeCommentFamilies = []string{
		"ytd-comment-thread-renderer",
		"ytd-comment-renderer",
	}
	youtubeCommentAuthorSelectors = []string{
		"#author-text span",
		"#author-text",
	}
	youtubeCommentTextSelectors = []string{
		"#content-text",
		"yt-attributed-string#content-text",
	}
	youtubeCommentLikeSelectors = []string{
		"#vote-count-middle",
		"span#vote-count-middle",
	}
)

// YouTubeStrategy extracts video pages: title, channel, description,
// transcript (when the panel is open), and a capped comment batch.
type YouTubeStrategy struct {
	commentCap int
}

// NewYouTubeStrategy creates the youtube strategy with the default comment
// cap.
func NewYouTubeStrategy() *YouTubeStrategy {
	return &YouTubeStrategy{commentCap: defaultYouTubeCommentCap}
}

// ContentType returns the content type this strategy produces.
func (s *YouTubeStrategy) ContentType() types.ContentType {
	return types.ContentTypeYouTube
}

// Extract pulls the structured video fields, isolating per-field failures.
func (s *YouTubeStrategy) Extract(_ context.Context, page Page) *types.ExtractedContent {
	doc, err := parseHTML(page.HTML)
	if err != nil {
		return types.NewErrorContent(types.ContentTypeYouTube, page.URL, "failed to parse video page HTML: "+err.Error())
	}

	content := &types.ExtractedContent{
		ContentType: types.ContentTypeYouTube,
		URL:         page.URL,
		ExtractedAt: now(),
	}

	content.Title = textFromSelectors(doc, youtubeTitleSelectors)
	if content.Title == "" {
		content.Title = metaContent(doc, "og:title")
	}
	content.Author = textFromSelectors(doc, youtubeChannelSelectors)
	content.Description = textFromSelectors(doc, youtubeDescriptionSelectors)
	if content.Description == "" {
		content.Description = metaContent(doc, "description")
	}
	content.Transcript = s.extractTranscript(doc)
	content.Comments = s.extractComments(doc)

	if content.Title == "" && content.Description == "" && content.Transcript == "" {
		content.Error = true
		content.Message = "no recognizable video content found"
	}
	return content
}

func (s *YouTubeStrategy) extractTranscript(doc *html.Node) string {
	var segments []*html.Node
	for _, selector := range youtubeTranscriptSegmentSelectors {
		if nodes := querySelectorAll(doc, selector); len(nodes) > 0 {
			segments = nodes
			break
		}
	}
	if len(segments) == 0 {
		return ""
	}

	var parts []string
	for _, seg := range segments {
		if text := strings.TrimSpace(visibleText(seg)); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

func (s *YouTubeStrategy) extractComments(doc *html.Node) []types.Comment {
	nodes := firstMatchAll(doc, youtubeCommentFamilies)
	if len(nodes) == 0 {
		return nil
	}

	comments := make([]types.Comment, 0, min(len(nodes), s.commentCap))
	for _, n := range nodes {
		if len(comments) >= s.commentCap {
			break
		}
		c := extractComment(n, youtubeCommentAuthorSelectors, youtubeCommentTextSelectors, youtubeCommentLikeSelectors)
		if c == nil {
			continue
		}
		comments = append(comments, *c)
	}
	return comments
}
