package extractor

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrUnsupportedMediaType is returned when no extractor exists for the declared type.
var ErrUnsupportedMediaType = errors.New("unsupported media type")

// Segment is a unit of extracted text with best-effort page attribution.
// Plain-text sources have no page concept and report page 1.
type Segment struct {
	Page int
	Text string
}

// Extract reads the file at path and produces ordered text segments,
// dispatching on the declared media type.
func Extract(path, mediaType string) ([]Segment, error) {
	switch {
	case mediaType == "application/pdf":
		return extractPDF(path)
	case strings.HasPrefix(mediaType, "text/"):
		return extractPlainText(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMediaType, mediaType)
	}
}

// extractPDF produces one segment per page. Pages that fail to parse are
// skipped rather than failing the whole document.
func extractPDF(path string) ([]Segment, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var segments []Segment
	numPages := reader.NumPage()
	for pageNum := 1; pageNum <= numPages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() || page.V.Key("Contents").Kind() == pdf.Null {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		segments = append(segments, Segment{Page: pageNum, Text: text})
	}
	return segments, nil
}

func extractPlainText(path string) ([]Segment, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	text := string(content)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return []Segment{{Page: 1, Text: text}}, nil
}
