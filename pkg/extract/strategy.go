// Package extract implements the pluggable content-extraction strategies:
// URL-based classification plus one extractor per content type (general,
// reddit, youtube, pdf). Strategies never fail hard: a total failure
// produces a flagged partial record so the pipeline always has something to
// hand downstream.
package extract

import (
	"context"
	"strings"

	"github.com/gobwas/glob"

	"github.com/pagerelay/pagerelay/pkg/types"
)

// Page is the raw material a strategy works from: the tab's URL, its
// rendered HTML, and any active user text selection. A non-empty selection
// always overrides structured extraction.
type Page struct {
	URL       string
	HTML      string
	Selection string
}

// Strategy extracts a canonical content record from a page. Extract must not
// panic and must not return nil; failures are reported inside the record.
type Strategy interface {
	ContentType() types.ContentType
	Extract(ctx context.Context, page Page) *types.ExtractedContent
}

// urlPattern pairs a compiled glob with the content type it selects.
type urlPattern struct {
	pattern     glob.Glob
	contentType types.ContentType
}

var urlPatterns = []urlPattern{
	{glob.MustCompile("*reddit.com/r/*/comments/*"), types.ContentTypeReddit},
	{glob.MustCompile("*redd.it/*"), types.ContentTypeReddit},
	{glob.MustCompile("*youtube.com/watch*"), types.ContentTypeYouTube},
	{glob.MustCompile("*youtu.be/*"), types.ContentTypeYouTube},
	{glob.MustCompile("*.pdf"), types.ContentTypePDF},
	{glob.MustCompile("*.pdf?*"), types.ContentTypePDF},
}

// Detect classifies a URL. Anything unrecognized is a general page.
func Detect(url string) types.ContentType {
	normalized := strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(url, "https://"), "http://"))
	for _, p := range urlPatterns {
		if p.pattern.Match(normalized) {
			return p.contentType
		}
	}
	return types.ContentTypeGeneral
}

// Registry resolves strategies by URL.
type Registry struct {
	strategies map[types.ContentType]Strategy
}

// NewRegistry builds a registry with the default strategy set.
func NewRegistry() *Registry {
	r := &Registry{strategies: make(map[types.ContentType]Strategy)}
	r.Register(NewGeneralStrategy())
	r.Register(NewRedditStrategy())
	r.Register(NewYouTubeStrategy())
	r.Register(NewPDFStrategy())
	return r
}

// Register adds or replaces a strategy for its content type.
func (r *Registry) Register(s Strategy) {
	r.strategies[s.ContentType()] = s
}

// ForURL returns the strategy matching a URL's detected content type.
func (r *Registry) ForURL(url string) Strategy {
	if s, ok := r.strategies[Detect(url)]; ok {
		return s
	}
	return r.strategies[types.ContentTypeGeneral]
}

// Run detects, extracts, and applies the selection override in one step.
// This is the entry point tab agents use.
func (r *Registry) Run(ctx context.Context, page Page) *types.ExtractedContent {
	strategy := r.ForURL(page.URL)

	if sel := strings.TrimSpace(page.Selection); sel != "" {
		return &types.ExtractedContent{
			ContentType: strategy.ContentType(),
			Title:       documentTitle(page.HTML),
			URL:         page.URL,
			Body:        sel,
			IsSelection: true,
			ExtractedAt: now(),
		}
	}

	return strategy.Extract(ctx, page)
}
