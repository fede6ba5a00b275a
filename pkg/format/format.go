// Package format renders a canonical content record plus a prompt into the
// flattened text a provider consumes. Formatting is pure: no side effects,
// and malformed input degrades to a descriptive string instead of an error.
package format

import (
	"fmt"
	"strings"

	"github.com/pagerelay/pagerelay/pkg/types"
)

// Content renders one record with its prompt. Each content type has its own
// template; the prompt always leads so the instruction is read before the
// material.
func Content(content *types.ExtractedContent, promptText string) string {
	if content == nil {
		return strings.TrimSpace(promptText) + "\n\n[No content was extracted from the page.]"
	}

	var b strings.Builder
	if p := strings.TrimSpace(promptText); p != "" {
		b.WriteString(p)
		b.WriteString("\n\n")
	}

	if content.Error {
		fmt.Fprintf(&b, "[Content extraction failed: %s]\n", content.Message)
		// Fall through: a partial record may still carry usable fields.
	}

	if content.IsSelection {
		writeSelection(&b, content)
		return strings.TrimSpace(b.String())
	}

	switch content.ContentType {
	case types.ContentTypeReddit:
		writeReddit(&b, content)
	case types.ContentTypeYouTube:
		writeYouTube(&b, content)
	case types.ContentTypePDF:
		writePDF(&b, content)
	default:
		writeGeneral(&b, content)
	}

	return strings.TrimSpace(b.String())
}

func writeHeader(b *strings.Builder, label string, content *types.ExtractedContent) {
	if content.Title != "" {
		fmt.Fprintf(b, "%s: %s\n", label, content.Title)
	}
	if content.URL != "" {
		fmt.Fprintf(b, "URL: %s\n", content.URL)
	}
}

func writeSelection(b *strings.Builder, content *types.ExtractedContent) {
	writeHeader(b, "Page", content)
	b.WriteString("\nSelected text:\n")
	b.WriteString(content.Body)
	b.WriteString("\n")
}

func writeGeneral(b *strings.Builder, content *types.ExtractedContent) {
	writeHeader(b, "Page", content)
	if content.Description != "" {
		fmt.Fprintf(b, "Description: %s\n", content.Description)
	}
	if content.Body != "" {
		b.WriteString("\nPage content:\n")
		b.WriteString(content.Body)
		b.WriteString("\n")
	}
}

func writeReddit(b *strings.Builder, content *types.ExtractedContent) {
	writeHeader(b, "Post", content)
	if content.Author != "" {
		fmt.Fprintf(b, "Posted by: %s\n", content.Author)
	}
	if content.Body != "" {
		b.WriteString("\nPost body:\n")
		b.WriteString(content.Body)
		b.WriteString("\n")
	}
	writeComments(b, content.Comments)
}

func writeYouTube(b *strings.Builder, content *types.ExtractedContent) {
	writeHeader(b, "Video", content)
	if content.Author != "" {
		fmt.Fprintf(b, "Channel: %s\n", content.Author)
	}
	if content.Description != "" {
		b.WriteString("\nDescription:\n")
		b.WriteString(content.Description)
		b.WriteString("\n")
	}
	if content.Transcript != "" {
		b.WriteString("\nTranscript:\n")
		b.WriteString(content.Transcript)
		b.WriteString("\n")
	}
	writeComments(b, content.Comments)
}

func writePDF(b *strings.Builder, content *types.ExtractedContent) {
	writeHeader(b, "Document", content)
	if content.Description != "" {
		fmt.Fprintf(b, "Length: %s\n", content.Description)
	}
	if content.Body != "" {
		b.WriteString("\nDocument content:\n")
		b.WriteString(content.Body)
		b.WriteString("\n")
	}
}

func writeComments(b *strings.Builder, comments []types.Comment) {
	if len(comments) == 0 {
		return
	}
	fmt.Fprintf(b, "\nComments (%d):\n", len(comments))
	for _, c := range comments {
		author := c.Author
		if author == "" {
			author = "anonymous"
		}
		if c.Popularity != "" {
			fmt.Fprintf(b, "- %s (%s): %s\n", author, c.Popularity, c.Text)
		} else {
			fmt.Fprintf(b, "- %s: %s\n", author, c.Text)
		}
	}
}
