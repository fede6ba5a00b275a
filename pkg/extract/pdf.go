package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/pagerelay/pagerelay/pkg/types"
)

const (
	// maxPDFBytes caps the download size for PDF documents.
	maxPDFBytes = 32 << 20

	// maxPDFBodyLength caps the flattened text handed downstream.
	maxPDFBodyLength = 60000
)

// PDFStrategy extracts text from PDF documents. The browser cannot hand us
// usable HTML for a PDF tab, so the strategy fetches the document itself and
// decodes the page content streams.
type PDFStrategy struct {
	httpClient *http.Client
}

// NewPDFStrategy creates the PDF strategy.
func NewPDFStrategy() *PDFStrategy {
	return &PDFStrategy{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ContentType returns the content type this strategy produces.
func (s *PDFStrategy) ContentType() types.ContentType {
	return types.ContentTypePDF
}

// Extract downloads the document and flattens its text content. Pages that
// fail to decode are skipped; the record only errors when no page yields any
// text.
func (s *PDFStrategy) Extract(ctx context.Context, page Page) *types.ExtractedContent {
	content := &types.ExtractedContent{
		ContentType: types.ContentTypePDF,
		URL:         page.URL,
		Title:       pdfTitleFromURL(page.URL),
		ExtractedAt: now(),
	}

	data, err := s.fetch(ctx, page.URL)
	if err != nil {
		content.Error = true
		content.Message = "failed to fetch PDF: " + err.Error()
		return content
	}

	body, pageCount, err := extractPDFText(data)
	if err != nil {
		content.Error = true
		content.Message = "failed to read PDF: " + err.Error()
		return content
	}
	if body == "" {
		content.Error = true
		content.Message = fmt.Sprintf("no extractable text in %d-page PDF (may be scanned images)", pageCount)
		return content
	}

	content.Body = truncateRunes(body, maxPDFBodyLength)
	content.Description = fmt.Sprintf("%d pages", pageCount)
	return content
}

func (s *PDFStrategy) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxPDFBytes {
		return nil, fmt.Errorf("document exceeds %d byte limit", maxPDFBytes)
	}
	return data, nil
}

// extractPDFText decodes all page content streams and scrapes their
// text-showing operators.
func extractPDFText(data []byte) (string, int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pageCount, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return "", 0, err
	}

	outDir, err := os.MkdirTemp("", "pagerelay-pdf-*")
	if err != nil {
		return "", pageCount, err
	}
	defer os.RemoveAll(outDir)

	if err := api.ExtractContent(bytes.NewReader(data), outDir, "page", nil, conf); err != nil {
		return "", pageCount, err
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return "", pageCount, err
	}

	var b strings.Builder
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		stream, err := os.ReadFile(filepath.Join(outDir, entry.Name()))
		if err != nil {
			continue
		}
		if text := decodePDFTextOperators(stream); text != "" {
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(text)
		}
	}

	return strings.TrimSpace(b.String()), pageCount, nil
}

// decodePDFTextOperators scrapes the literal strings consumed by the
// text-showing operators (Tj, ', ", and TJ arrays) out of a decoded content
// stream. Positioning operators become whitespace so words stay separated.
func decodePDFTextOperators(stream []byte) string {
	var b strings.Builder
	var pending []string

	flush := func() {
		for _, s := range pending {
			b.WriteString(s)
		}
		pending = pending[:0]
	}

	i := 0
	for i < len(stream) {
		c := stream[i]
		switch {
		case c == '(':
			s, next := readPDFLiteralString(stream, i)
			pending = append(pending, s)
			i = next
		case c == '<' && i+1 < len(stream) && stream[i+1] != '<':
			// Hex strings are usually CID-encoded; skipping them loses
			// embedded-font text but never corrupts output.
			for i < len(stream) && stream[i] != '>' {
				i++
			}
			i++
		case c == 'T' && i+1 < len(stream):
			op := stream[i+1]
			if op == 'j' || op == 'J' {
				flush()
				b.WriteByte(' ')
			} else if op == 'd' || op == 'D' || op == '*' {
				pending = pending[:0]
				b.WriteByte('\n')
			}
			i += 2
		case c == '\'' || c == '"':
			flush()
			b.WriteByte('\n')
			i++
		default:
			i++
		}
	}

	return collapseBlankLines(b.String())
}

// readPDFLiteralString consumes a parenthesized PDF string starting at
// stream[start]=='(' and returns the decoded text and the next offset.
func readPDFLiteralString(stream []byte, start int) (string, int) {
	var b strings.Builder
	depth := 0
	i := start
	for i < len(stream) {
		c := stream[i]
		switch c {
		case '\\':
			if i+1 >= len(stream) {
				return b.String(), i + 1
			}
			esc := stream[i+1]
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 'r', 't', 'b', 'f':
				b.WriteByte(' ')
			case '(', ')', '\\':
				b.WriteByte(esc)
			default:
				// Octal escapes map outside ASCII more often than not;
				// drop them rather than emit garbage.
			}
			i += 2
		case '(':
			depth++
			if depth > 1 {
				b.WriteByte(c)
			}
			i++
		case ')':
			depth--
			if depth == 0 {
				return b.String(), i + 1
			}
			b.WriteByte(c)
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), i
}

func pdfTitleFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, path.Ext(base))
}
