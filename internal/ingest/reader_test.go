package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jweetan/newsvet/internal/model"
)

func testReader() *Reader {
	return NewReader(model.IngestConfig{MinContentLen: 50})
}

const longBody = "Sunway Berhad announced a new township development in the Klang Valley today, with construction expected to begin next quarter."

func TestReader_Load_ParsesRecords(t *testing.T) {
	input := `{"id":"n1","url":"https://example.com/1","title":"Sunway township","content":"` + longBody + `","date":"2026-08-01","category":"property"}` + "\n"

	chunks, skipped, err := testReader().Load(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if skipped != 0 {
		t.Errorf("Expected no skips, got %d", skipped)
	}
	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(chunks))
	}

	c := chunks[0]
	if c.ID != "n1" || c.Title != "Sunway township" || c.Category != "property" {
		t.Errorf("Unexpected chunk fields: %+v", c)
	}
	if c.SourceURL != "https://example.com/1" {
		t.Errorf("Unexpected source URL %q", c.SourceURL)
	}
	want := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if !c.Date.Equal(want) {
		t.Errorf("Date = %v, want %v", c.Date, want)
	}
}

func TestReader_Load_SkipsThinContent(t *testing.T) {
	input := `{"id":"n1","content":"Too short."}` + "\n" +
		`{"id":"n2","content":"` + longBody + `"}` + "\n" +
		`{"id":"n3","content":""}` + "\n"

	chunks, skipped, err := testReader().Load(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(chunks) != 1 || chunks[0].ID != "n2" {
		t.Fatalf("Expected only n2 to survive, got %+v", chunks)
	}
	if skipped != 2 {
		t.Errorf("Expected 2 skipped records, got %d", skipped)
	}
}

func TestReader_Load_BlankLinesIgnored(t *testing.T) {
	input := "\n\n" + `{"id":"n1","content":"` + longBody + `"}` + "\n\n"

	chunks, skipped, err := testReader().Load(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(chunks) != 1 || skipped != 0 {
		t.Errorf("Expected 1 chunk and no skips, got %d/%d", len(chunks), skipped)
	}
}

func TestReader_Load_BadJSONFails(t *testing.T) {
	if _, _, err := testReader().Load(strings.NewReader("{broken\n")); err == nil {
		t.Fatal("Expected error for malformed record")
	}
}

func TestReader_Load_MissingIDIsSynthesized(t *testing.T) {
	input := `{"content":"` + longBody + `"}` + "\n"
	chunks, _, err := testReader().Load(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(chunks) != 1 || chunks[0].ID == "" {
		t.Fatalf("Expected a synthesized id, got %+v", chunks)
	}
}

func TestReader_Load_DateFormats(t *testing.T) {
	tests := []struct {
		name string
		date string
		want time.Time
	}{
		{"rfc3339", "2026-08-01T09:30:00Z", time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)},
		{"date only", "2026-08-01", time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)},
		{"long form", "1 August 2026", time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)},
		{"abbreviated", "01 Aug 2026", time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)},
		{"unparseable", "yesterday", time.Time{}},
		{"empty", "", time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := `{"id":"n1","content":"` + longBody + `","date":"` + tt.date + `"}` + "\n"
			chunks, _, err := testReader().Load(strings.NewReader(input))
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if len(chunks) != 1 {
				t.Fatalf("Expected 1 chunk, got %d", len(chunks))
			}
			if !chunks[0].Date.Equal(tt.want) {
				t.Errorf("Date = %v, want %v", chunks[0].Date, tt.want)
			}
		})
	}
}

func TestReader_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scraped.jsonl")
	content := `{"id":"n1","content":"` + longBody + `"}` + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	chunks, _, err := testReader().LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if len(chunks) != 1 {
		t.Errorf("Expected 1 chunk, got %d", len(chunks))
	}

	if _, _, err := testReader().LoadFile(filepath.Join(t.TempDir(), "missing.jsonl")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestStripMarkup(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text untouched", "Sunway posts record earnings.", "Sunway posts record earnings."},
		{"tags removed", "<p>Sunway posts <b>record</b> earnings.</p>", "Sunway posts record earnings."},
		{"script dropped", "<p>Visible</p><script>alert(1)</script>", "Visible"},
		{"style dropped", "<style>p{color:red}</style><p>Visible</p>", "Visible"},
		{"whitespace collapsed", "Sunway   posts\n\nrecord earnings.", "Sunway posts record earnings."},
		{"nested markup", "<div><ul><li>First</li><li>Second</li></ul></div>", "First Second"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripMarkup(tt.input); got != tt.want {
				t.Errorf("StripMarkup(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
