package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jweetan/newsvet/internal/model"
)

// RenderJSON writes the machine-readable run report
func RenderJSON(result *RunResult, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write run report: %w", err)
	}
	return nil
}

// RenderMarkdown writes the market-watch digest: accepted items first,
// then ambiguous decisions held for review, then failed chunks. Nothing
// is silently dropped from the report.
func RenderMarkdown(result *RunResult, path string) error {
	var b strings.Builder

	b.WriteString("# Market Watch Digest\n\n")
	fmt.Fprintf(&b, "Run: %s. %d chunks, %d indexed, %d skipped as too short\n\n",
		result.StartedAt.Format("2006-01-02 15:04 MST"),
		len(result.Outcomes), len(result.Indexed), result.Skipped)
	b.WriteString("---\n\n")

	for _, chunk := range result.Indexed {
		title := chunk.Metadata.Title
		if title == "" {
			title = "Untitled"
		}
		fmt.Fprintf(&b, "## %s\n\n", title)
		if !chunk.Metadata.Date.IsZero() {
			fmt.Fprintf(&b, "**Date:** %s\n\n", chunk.Metadata.Date.Format("2 January 2006"))
		}
		if len(chunk.Metadata.EntityIDs) > 0 {
			fmt.Fprintf(&b, "**Companies:** %s\n\n", strings.Join(chunk.Metadata.EntityIDs, ", "))
		}
		if chunk.Metadata.Summary != "" {
			fmt.Fprintf(&b, "**Summary:** %s\n\n", chunk.Metadata.Summary)
		}
		if chunk.Metadata.SourceURL != "" {
			fmt.Fprintf(&b, "[Read Source](%s)\n\n", chunk.Metadata.SourceURL)
		}
		b.WriteString("---\n\n")
	}

	if ambiguous := collectAmbiguous(result); len(ambiguous) > 0 {
		b.WriteString("## Needs review (ambiguous matches)\n\n")
		for _, d := range ambiguous {
			fmt.Fprintf(&b, "- chunk %s: %q (confidence %.2f)\n",
				d.Mention.ChunkID, d.Mention.Candidate, d.Confidence)
		}
		b.WriteString("\n")
	}

	if failed := collectFailed(result); len(failed) > 0 {
		b.WriteString("## Failed chunks\n\n")
		for _, o := range failed {
			fmt.Fprintf(&b, "- %s after %d attempts: %s\n", o.Chunk.ID, o.Attempts, o.Error)
		}
		b.WriteString("\n")
	}

	if len(result.IndexErrs) > 0 {
		b.WriteString("## Indexing failures\n\n")
		ids := make([]string, 0, len(result.IndexErrs))
		for id := range result.IndexErrs {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(&b, "- indexing %s failed: %s\n", id, result.IndexErrs[id])
		}
		b.WriteString("\n")
	}

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("write digest: %w", err)
	}
	return nil
}

// PrintSummary writes the one-screen run summary
func PrintSummary(result *RunResult, w io.Writer) {
	accepted, discarded, ambiguous := 0, 0, 0
	for _, o := range result.Outcomes {
		for _, d := range o.Decisions {
			switch d.Verdict {
			case model.VerdictAccepted:
				accepted++
			case model.VerdictDiscarded:
				discarded++
			case model.VerdictAmbiguous:
				ambiguous++
			}
		}
	}

	fmt.Fprintf(w, "Chunks:    %d verified, %d skipped, %d failed\n",
		len(result.Outcomes), result.Skipped, len(collectFailed(result)))
	fmt.Fprintf(w, "Mentions:  %d accepted, %d discarded, %d ambiguous\n",
		accepted, discarded, ambiguous)
	fmt.Fprintf(w, "Indexed:   %d chunks\n", len(result.Indexed))
	fmt.Fprintf(w, "Duration:  %s\n", result.FinishedAt.Sub(result.StartedAt).Round(10*time.Millisecond))
}

func collectAmbiguous(result *RunResult) []model.VerificationDecision {
	var out []model.VerificationDecision
	for _, o := range result.Outcomes {
		for _, d := range o.Decisions {
			if d.Verdict == model.VerdictAmbiguous {
				out = append(out, d)
			}
		}
	}
	return out
}

func collectFailed(result *RunResult) []model.ChunkOutcome {
	var out []model.ChunkOutcome
	for _, o := range result.Outcomes {
		if o.State == model.ChunkStateFailed {
			out = append(out, o)
		}
	}
	return out
}
