// Package types defines the shared data model for the pagerelay pipeline:
// extracted content records, chat sessions, per-tab UI state, and the typed
// request/response union dispatched by the router.
package types

import "time"

// ContentType classifies a page for extraction and formatting purposes.
type ContentType string

const (
	ContentTypeGeneral ContentType = "general" // ContentTypeGeneral is any page without a specialized strategy.
	ContentTypeReddit  ContentType = "reddit"  // ContentTypeReddit is a forum-style post with comments.
	ContentTypeYouTube ContentType = "youtube" // ContentTypeYouTube is a video page with description/transcript/comments.
	ContentTypePDF     ContentType = "pdf"     // ContentTypePDF is a PDF document.
)

// Comment is a single extracted comment. Popularity carries whatever the
// source exposes (upvotes, likes) as display text.
type Comment struct {
	Author     string `json:"author"`
	Text       string `json:"text"`
	Popularity string `json:"popularity,omitempty"`
}

// ExtractedContent is the canonical content record produced by an extraction
// strategy. It is written once per extraction request by a tab agent and
// consumed exactly once by the formatter; the router clears it from storage
// after a successful delivery.
//
// Extraction never aborts the pipeline: on total failure Error is true,
// Message explains why, and the remaining fields hold whatever partial data
// was recovered.
type ExtractedContent struct {
	ContentType ContentType `json:"contentType"`
	Title       string      `json:"title"`
	URL         string      `json:"url"`
	Body        string      `json:"body"`
	Author      string      `json:"author,omitempty"`
	Description string      `json:"description,omitempty"`
	Comments    []Comment   `json:"comments,omitempty"`
	Transcript  string      `json:"transcript,omitempty"`
	IsSelection bool        `json:"isSelection"`
	ExtractedAt time.Time   `json:"extractedAt"`
	Error       bool        `json:"error"`
	Message     string      `json:"message,omitempty"`
}

// NewErrorContent builds a flagged partial record for a failed extraction.
// The record still carries the content type and URL so downstream formatting
// has something to work with.
func NewErrorContent(contentType ContentType, url, message string) *ExtractedContent {
	return &ExtractedContent{
		ContentType: contentType,
		URL:         url,
		IsSelection: false,
		ExtractedAt: time.Now(),
		Error:       true,
		Message:     message,
	}
}
