package pipeline

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jweetan/newsvet/internal/model"
)

func sampleResult() *RunResult {
	started := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	return &RunResult{
		StartedAt:  started,
		FinishedAt: started.Add(42 * time.Second),
		Skipped:    2,
		Outcomes: []model.ChunkOutcome{
			{
				Chunk:    model.Chunk{ID: "c1", Title: "Sunway township"},
				State:    model.ChunkStateDone,
				Accepted: true,
				Decisions: []model.VerificationDecision{
					{Mention: model.Mention{Candidate: "Sunway", ChunkID: "c1"},
						Matched: &model.RegistryEntry{ID: "5211"}, Confidence: 0.95, Verdict: model.VerdictAccepted},
				},
			},
			{
				Chunk: model.Chunk{ID: "c2"},
				State: model.ChunkStateDone,
				Decisions: []model.VerificationDecision{
					{Mention: model.Mention{Candidate: "Alpha", ChunkID: "c2"},
						Confidence: 0.7, Verdict: model.VerdictAmbiguous},
				},
			},
			{
				Chunk:    model.Chunk{ID: "c3"},
				State:    model.ChunkStateFailed,
				Error:    "provider down",
				Attempts: 3,
			},
		},
		Indexed: []model.IndexedChunk{
			{
				ContentHash: "abc123",
				Content:     "Sunway Berhad announced a township.",
				Metadata: model.ChunkMetadata{
					Date:      time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
					EntityIDs: []string{"5211"},
					Title:     "Sunway township",
					Summary:   "A township was announced.",
					SourceURL: "https://example.com/1",
				},
			},
		},
		IndexErrs: map[string]string{"c9": "embedding backend down"},
	}
}

func TestRenderMarkdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "digest.md")
	if err := RenderMarkdown(sampleResult(), path); err != nil {
		t.Fatalf("RenderMarkdown failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read digest: %v", err)
	}
	md := string(data)

	for _, want := range []string{
		"# Market Watch Digest",
		"## Sunway township",
		"**Companies:** 5211",
		"**Summary:** A township was announced.",
		"[Read Source](https://example.com/1)",
		"## Needs review (ambiguous matches)",
		`chunk c2: "Alpha" (confidence 0.70)`,
		"## Failed chunks",
		"c3 after 3 attempts: provider down",
		"## Indexing failures",
		"indexing c9 failed: embedding backend down",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("Digest missing %q\n---\n%s", want, md)
		}
	}
}

func TestRenderMarkdown_IndexErrorOrder(t *testing.T) {
	result := sampleResult()
	result.IndexErrs = map[string]string{
		"c7": "disk full",
		"c2": "embedding backend down",
		"c5": "constraint violation",
	}

	path := filepath.Join(t.TempDir(), "digest.md")
	if err := RenderMarkdown(result, path); err != nil {
		t.Fatalf("RenderMarkdown failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read digest: %v", err)
	}
	md := string(data)

	// Lines appear sorted by chunk id regardless of map iteration order
	last := -1
	for _, id := range []string{"c2", "c5", "c7"} {
		pos := strings.Index(md, "indexing "+id+" failed")
		if pos < 0 {
			t.Fatalf("Digest missing index error for %s\n---\n%s", id, md)
		}
		if pos < last {
			t.Errorf("Index error for %s out of order", id)
		}
		last = pos
	}
}

func TestRenderMarkdown_EmptyRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "digest.md")
	result := &RunResult{StartedAt: time.Now(), FinishedAt: time.Now()}
	if err := RenderMarkdown(result, path); err != nil {
		t.Fatalf("RenderMarkdown failed on empty run: %v", err)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "# Market Watch Digest") {
		t.Error("Empty digest should still carry the header")
	}
	if strings.Contains(string(data), "## Needs review") {
		t.Error("Empty run should not have a review section")
	}
}

func TestRenderJSON_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	if err := RenderJSON(sampleResult(), path); err != nil {
		t.Fatalf("RenderJSON failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read report: %v", err)
	}

	var decoded RunResult
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Report is not valid JSON: %v", err)
	}
	if len(decoded.Outcomes) != 3 || len(decoded.Indexed) != 1 || decoded.Skipped != 2 {
		t.Errorf("Report lost data in round trip: %+v", decoded)
	}
	if decoded.Outcomes[0].Decisions[0].Verdict != model.VerdictAccepted {
		t.Error("Decision verdicts lost in round trip")
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	PrintSummary(sampleResult(), &buf)
	out := buf.String()

	for _, want := range []string{
		"3 verified, 2 skipped, 1 failed",
		"1 accepted, 0 discarded, 1 ambiguous",
		"Indexed:   1 chunks",
		"42s",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Summary missing %q:\n%s", want, out)
		}
	}
}
