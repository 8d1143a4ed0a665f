package app

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pageChunk is one page-range slice of a book before upload.
type pageChunk struct {
	ChunkNumber int
	PageStart   int
	PageEnd     int
	Text        string
	Metadata    map[string]string
}

// chunkPDF extracts text from the PDF at path and groups pages into
// fixed-size page ranges. Problematic pages are skipped rather than
// failing the whole document.
func chunkPDF(path string, pagesPerChunk int) ([]pageChunk, error) {
	if pagesPerChunk <= 0 {
		pagesPerChunk = 10
	}
	file, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()

	totalPages := reader.NumPage()
	if totalPages == 0 {
		return nil, ErrEmptyDocument
	}

	var chunks []pageChunk
	extracted := false
	for start := 1; start <= totalPages; start += pagesPerChunk {
		end := start + pagesPerChunk - 1
		if end > totalPages {
			end = totalPages
		}
		var pages []string
		for i := start; i <= end; i++ {
			page := reader.Page(i)
			if page.V.IsNull() {
				continue
			}
			text, err := page.GetPlainText(nil)
			if err != nil {
				continue
			}
			text = normalizeText(text)
			if text != "" {
				pages = append(pages, text)
				extracted = true
			}
		}
		chunks = append(chunks, pageChunk{
			ChunkNumber: len(chunks) + 1,
			PageStart:   start,
			PageEnd:     end,
			Text:        strings.Join(pages, "\n\n"),
			Metadata: map[string]string{
				"pages":      strconv.Itoa(end - start + 1),
				"totalPages": strconv.Itoa(totalPages),
			},
		})
	}
	if !extracted {
		return nil, ErrEmptyDocument
	}
	return chunks, nil
}

func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	return strings.Join(strings.Fields(text), " ")
}

// slugify lowercases the title and keeps alphanumeric runs joined by dashes.
func slugify(title string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
