package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jweetan/newsvet/internal/model"
)

// extractionSystemPrompt frames the extraction call. The model only
// identifies candidates; acceptance is decided by the match engine, so
// the prompt forbids any judgement about listing status.
const extractionSystemPrompt = "You are an expert extraction algorithm. " +
	"Only extract information present in the text. " +
	"If you do not know the value of an attribute, return null for it. " +
	"Never guess whether a company is listed; that is decided elsewhere."

// BuildExtractionPrompt constructs the per-chunk mention extraction
// prompt. Sectioned CONTEXT/OBJECTIVE/RESPONSE layout.
func BuildExtractionPrompt(chunk model.Chunk) string {
	var b strings.Builder

	b.WriteString("# CONTEXT #\n")
	b.WriteString("The text below is one scraped news item")
	if chunk.Title != "" {
		fmt.Fprintf(&b, " titled %q", chunk.Title)
	}
	b.WriteString(".\n\n")

	b.WriteString("# OBJECTIVE #\n")
	b.WriteString("List every company or organization the text mentions. ")
	b.WriteString("For each, give the exact span as it appears, the most likely full company name, and the ticker if one is written.\n\n")

	b.WriteString("# RESPONSE #\n")
	b.WriteString("Respond with ONLY a JSON object of the form ")
	b.WriteString(`{"mentions":[{"span":"...","name":"...","ticker":"..."}]}. `)
	b.WriteString("Use an empty list if no companies are mentioned. No other text.\n\n")

	b.WriteString("# TEXT #\n")
	b.WriteString(chunk.Content)

	return b.String()
}

// BuildSummaryPrompt asks for a short factual summary of an accepted
// news chunk for the digest report and index metadata.
func BuildSummaryPrompt(chunk model.Chunk, entityNames []string) string {
	var b strings.Builder
	b.WriteString("# OBJECTIVE #\n")
	b.WriteString("Summarize the news item below in 2-3 sentences. State only what the text says.\n")
	if len(entityNames) > 0 {
		fmt.Fprintf(&b, "The item concerns: %s.\n", strings.Join(entityNames, ", "))
	}
	b.WriteString("\n# TEXT #\n")
	b.WriteString(chunk.Content)
	return b.String()
}

// BuildChatSystemPrompt frames a grounded chat reply. The grounding
// chunks are the only content the assistant may draw facts from; when
// none are available the assistant must say so.
func BuildChatSystemPrompt(grounding []model.RetrievedChunk) string {
	var b strings.Builder
	b.WriteString("You are a market-news assistant. Answer using ONLY the indexed news excerpts below plus the conversation so far. ")
	b.WriteString("If the excerpts do not cover the question, say that the index has nothing relevant. Do not invent companies, figures or dates.\n")

	if len(grounding) == 0 {
		b.WriteString("\n(No indexed excerpts are available for this question.)\n")
		return b.String()
	}

	b.WriteString("\n# EXCERPTS #\n")
	for i, g := range grounding {
		fmt.Fprintf(&b, "[%d] (%s", i+1, g.Metadata.Date.Format("2006-01-02"))
		if g.Metadata.Title != "" {
			fmt.Fprintf(&b, ", %s", g.Metadata.Title)
		}
		b.WriteString(")\n")
		text := g.Content
		if g.Metadata.Summary != "" {
			text = g.Metadata.Summary
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	return b.String()
}

// jsonBlock locates the outermost JSON object inside a model reply that
// may carry a preamble or trailing prose
var jsonBlock = regexp.MustCompile(`(?s)\{.*\}`)

type mentionPayload struct {
	Mentions []struct {
		Span   string `json:"span"`
		Name   string `json:"name"`
		Ticker string `json:"ticker"`
	} `json:"mentions"`
}

// DecodeMentions parses an extraction reply. Replies wrapped in prose are
// recovered by locating the JSON block; anything else is malformed.
func DecodeMentions(raw, chunkID string) ([]model.Mention, error) {
	block := jsonBlock.FindString(raw)
	if block == "" {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrMalformedOutput)
	}

	var payload mentionPayload
	if err := json.Unmarshal([]byte(block), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	mentions := make([]model.Mention, 0, len(payload.Mentions))
	for _, m := range payload.Mentions {
		name := strings.TrimSpace(m.Name)
		span := strings.TrimSpace(m.Span)
		if name == "" && span == "" && strings.TrimSpace(m.Ticker) == "" {
			continue
		}
		if name == "" {
			name = span
		}
		mentions = append(mentions, model.Mention{
			RawSpan:   span,
			Candidate: name,
			Ticker:    strings.TrimSpace(m.Ticker),
			ChunkID:   chunkID,
		})
	}
	return mentions, nil
}

// flattenMessages renders a conversation as a single prompt for
// providers without a native message-list API.
func flattenMessages(messages []model.Message) string {
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case model.RoleUser:
			b.WriteString("User: ")
		case model.RoleAssistant:
			b.WriteString("Assistant: ")
		}
		b.WriteString(m.Text)
		b.WriteString("\n")
	}
	b.WriteString("Assistant:")
	return b.String()
}
