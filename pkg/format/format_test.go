package format

import (
	"strings"
	"testing"

	"github.com/pagerelay/pagerelay/pkg/types"
)

func TestContentGeneral(t *testing.T) {
	content := &types.ExtractedContent{
		ContentType: types.ContentTypeGeneral,
		Title:       "Go 1.24 Release Notes",
		URL:         "https://go.dev/doc/go1.24",
		Description: "What changed in Go 1.24",
		Body:        "Generic type aliases are now fully supported.",
	}

	got := Content(content, "Summarize this page.")

	if !strings.HasPrefix(got, "Summarize this page.") {
		t.Fatalf("prompt must lead the output, got:\n%s", got)
	}
	for _, want := range []string{
		"Page: Go 1.24 Release Notes",
		"URL: https://go.dev/doc/go1.24",
		"Description: What changed in Go 1.24",
		"Page content:\nGeneric type aliases",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestContentReddit(t *testing.T) {
	content := &types.ExtractedContent{
		ContentType: types.ContentTypeReddit,
		Title:       "What editor do you use?",
		URL:         "https://reddit.com/r/golang/comments/abc",
		Author:      "u/gopher",
		Body:        "Curious what everyone runs.",
		Comments: []types.Comment{
			{Author: "u/alice", Text: "Neovim", Popularity: "42"},
			{Author: "", Text: "GoLand"},
		},
	}

	got := Content(content, "Summarize the discussion.")

	for _, want := range []string{
		"Post: What editor do you use?",
		"Posted by: u/gopher",
		"Post body:\nCurious what everyone runs.",
		"Comments (2):",
		"- u/alice (42): Neovim",
		"- anonymous: GoLand",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestContentYouTube(t *testing.T) {
	content := &types.ExtractedContent{
		ContentType: types.ContentTypeYouTube,
		Title:       "Concurrency Patterns",
		URL:         "https://youtube.com/watch?v=xyz",
		Author:      "GopherCon",
		Description: "Talk from GopherCon.",
		Transcript:  "Today we will look at pipelines.",
	}

	got := Content(content, "Summarize the video.")

	for _, want := range []string{
		"Video: Concurrency Patterns",
		"Channel: GopherCon",
		"Transcript:\nToday we will look at pipelines.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Comments") {
		t.Errorf("no comments section expected when there are none:\n%s", got)
	}
}

func TestContentPDF(t *testing.T) {
	content := &types.ExtractedContent{
		ContentType: types.ContentTypePDF,
		Title:       "annual-report",
		URL:         "https://example.com/annual-report.pdf",
		Description: "12 pages",
		Body:        "Revenue grew 14% year over year.",
	}

	got := Content(content, "Summarize this document.")

	for _, want := range []string{
		"Document: annual-report",
		"Length: 12 pages",
		"Document content:\nRevenue grew 14%",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestContentSelectionOverridesTypeTemplate(t *testing.T) {
	content := &types.ExtractedContent{
		ContentType: types.ContentTypeReddit,
		Title:       "Thread title",
		URL:         "https://reddit.com/r/golang/comments/abc",
		Body:        "just this highlighted sentence",
		IsSelection: true,
		Comments:    []types.Comment{{Author: "u/x", Text: "ignored"}},
	}

	got := Content(content, "Explain.")

	if !strings.Contains(got, "Selected text:\njust this highlighted sentence") {
		t.Fatalf("selection body missing:\n%s", got)
	}
	if strings.Contains(got, "Comments") {
		t.Errorf("selection formatting must ignore comments:\n%s", got)
	}
}

func TestContentErrorRecord(t *testing.T) {
	content := types.NewErrorContent(types.ContentTypePDF, "https://example.com/x.pdf", "failed to fetch PDF: status 404")

	got := Content(content, "Summarize this document.")

	if !strings.Contains(got, "[Content extraction failed: failed to fetch PDF: status 404]") {
		t.Fatalf("error marker missing:\n%s", got)
	}
	if !strings.Contains(got, "URL: https://example.com/x.pdf") {
		t.Errorf("partial fields should still render:\n%s", got)
	}
}

func TestContentNilRecord(t *testing.T) {
	got := Content(nil, "Summarize.")
	if !strings.Contains(got, "[No content was extracted from the page.]") {
		t.Fatalf("nil record must degrade to a descriptive string, got:\n%s", got)
	}
}
