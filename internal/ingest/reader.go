// Package ingest turns scraped article records into chunks for the
// verification loop. Crawling and document conversion happen upstream;
// this package only parses the handed-off records, strips residual
// markup, and filters out items too thin to verify.
package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/jweetan/newsvet/internal/model"
)

// Record is the line-delimited form the scraper hands over
type Record struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Date     string `json:"date"`
	Category string `json:"category"`
}

// dateLayouts are the date formats scrapers have been seen to emit
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2 January 2006",
	"02 Jan 2006",
}

// Reader loads scraped records and yields verification-ready chunks
type Reader struct {
	minContentLen int
}

// NewReader creates a reader with the given content-length floor
func NewReader(cfg model.IngestConfig) *Reader {
	minLen := cfg.MinContentLen
	if minLen <= 0 {
		minLen = 50
	}
	return &Reader{minContentLen: minLen}
}

// LoadFile reads chunks from a line-delimited JSON file. Returns the
// chunks plus the number of records skipped as too short or empty.
func (r *Reader) LoadFile(path string) ([]model.Chunk, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open input: %w", err)
	}
	defer func() { _ = f.Close() }()

	return r.Load(f)
}

// Load reads chunks from line-delimited JSON
func (r *Reader) Load(src io.Reader) ([]model.Chunk, int, error) {
	var (
		chunks  []model.Chunk
		skipped int
		line    int
	)

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, 0, fmt.Errorf("parse record line %d: %w", line, err)
		}

		chunk, ok := r.chunkFrom(rec, line)
		if !ok {
			skipped++
			continue
		}
		chunks = append(chunks, chunk)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read input: %w", err)
	}
	return chunks, skipped, nil
}

// chunkFrom converts one record, rejecting thin content
func (r *Reader) chunkFrom(rec Record, line int) (model.Chunk, bool) {
	content := StripMarkup(rec.Content)
	if len(content) < r.minContentLen {
		return model.Chunk{}, false
	}

	id := rec.ID
	if id == "" {
		id = fmt.Sprintf("line-%d", line)
	}

	return model.Chunk{
		ID:        id,
		Title:     strings.TrimSpace(rec.Title),
		Content:   content,
		SourceURL: rec.URL,
		Date:      parseDate(rec.Date),
		Category:  strings.TrimSpace(rec.Category),
	}, true
}

func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	// Undated records still index; they just never win recency ties
	return time.Time{}
}

// StripMarkup removes residual HTML tags from scraped content, keeping
// only visible text. Plain text passes through untouched.
func StripMarkup(content string) string {
	if !strings.Contains(content, "<") {
		return collapseWhitespace(content)
	}

	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return collapseWhitespace(content)
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return collapseWhitespace(b.String())
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
