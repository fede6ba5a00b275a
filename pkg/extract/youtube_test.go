package extract

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

func youtubeWatchHTML(extra string) string {
	return `<html><head><meta property="og:title" content="How Go Scheduling Works"></head><body>
	<h1 class="ytd-watch-metadata"><yt-formatted-string>How Go Scheduling Works</yt-formatted-string></h1>
	<ytd-channel-name id="channel-name"><a href="/@gophercon">GopherCon</a></ytd-channel-name>
	<ytd-text-inline-expander id="description-inline-expander">A deep dive into goroutine scheduling, preemption, and the run queue.</ytd-text-inline-expander>
	` + extra + `
	</body></html>`
}

func TestYouTubeExtractFields(t *testing.T) {
	html := youtubeWatchHTML(`
		<ytd-transcript-segment-renderer><div class="segment-text">welcome to the talk</div></ytd-transcript-segment-renderer>
		<ytd-transcript-segment-renderer><div class="segment-text">today we cover the scheduler</div></ytd-transcript-segment-renderer>
		<ytd-comment-thread-renderer>
			<div id="author-text"><span>@viewer1</span></div>
			<div id="content-text">Best explanation so far.</div>
			<span id="vote-count-middle">1.2K</span>
		</ytd-comment-thread-renderer>`)

	content := NewYouTubeStrategy().Extract(context.Background(), Page{URL: "https://youtube.com/watch?v=abc", HTML: html})

	if content.Error {
		t.Fatalf("Unexpected error: %s", content.Message)
	}
	if content.Title != "How Go Scheduling Works" {
		t.Errorf("Title = %q", content.Title)
	}
	if content.Author != "GopherCon" {
		t.Errorf("Author = %q", content.Author)
	}
	if !strings.Contains(content.Description, "goroutine scheduling") {
		t.Errorf("Description = %q", content.Description)
	}
	if content.Transcript != "welcome to the talk today we cover the scheduler" {
		t.Errorf("Transcript = %q", content.Transcript)
	}
	if len(content.Comments) != 1 {
		t.Fatalf("Expected 1 comment, got %d", len(content.Comments))
	}
	if content.Comments[0].Author != "@viewer1" {
		t.Errorf("Comments[0].Author = %q", content.Comments[0].Author)
	}
	if content.Comments[0].Popularity != "1.2K" {
		t.Errorf("Comments[0].Popularity = %q", content.Comments[0].Popularity)
	}
}

func TestYouTubeCommentCap(t *testing.T) {
	var b strings.Builder
	for i := 0; i < defaultYouTubeCommentCap*3; i++ {
		fmt.Fprintf(&b, `<ytd-comment-thread-renderer><div id="content-text">comment %d</div></ytd-comment-thread-renderer>`, i)
	}

	content := NewYouTubeStrategy().Extract(context.Background(), Page{URL: "https://youtube.com/watch?v=abc", HTML: youtubeWatchHTML(b.String())})

	if len(content.Comments) != defaultYouTubeCommentCap {
		t.Errorf("Expected exactly %d comments, got %d", defaultYouTubeCommentCap, len(content.Comments))
	}
}

func TestYouTubeMissingTranscriptIsNotAnError(t *testing.T) {
	content := NewYouTubeStrategy().Extract(context.Background(), Page{URL: "https://youtube.com/watch?v=abc", HTML: youtubeWatchHTML("")})

	if content.Error {
		t.Fatalf("Unexpected error: %s", content.Message)
	}
	if content.Transcript != "" {
		t.Errorf("Expected empty transcript, got %q", content.Transcript)
	}
}

func TestYouTubeTotalFailureYieldsErrorRecord(t *testing.T) {
	content := NewYouTubeStrategy().Extract(context.Background(), Page{
		URL:  "https://youtube.com/watch?v=abc",
		HTML: "<html><body></body></html>",
	})

	if !content.Error {
		t.Fatal("Expected error flag")
	}
	if content.Message == "" {
		t.Error("Expected non-empty message")
	}
}
