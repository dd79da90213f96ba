// Package match resolves free-text entity mentions against the registry.
// Matching is deterministic: the same mention against the same snapshot
// always yields the same verdict and confidence.
package match

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/jweetan/newsvet/internal/model"
)

// Registry is the lookup contract the engine needs. Implemented by
// registry.Store; kept as an interface so tests can supply fixed sets.
type Registry interface {
	Lookup(name string) []model.RegistryEntry
}

// exchangePrefix strips market prefixes like "KL:" or "KL " from tickers
var exchangePrefix = regexp.MustCompile(`^(?i)kl\s*:?\s*`)

// nonAlnum matches everything that is not a letter or digit
var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// corporateSuffixes are trailing tokens carrying no identity information
var corporateSuffixes = map[string]bool{
	"berhad": true, "bhd": true, "sdn": true, "plc": true, "inc": true,
	"corp": true, "corporation": true, "ltd": true, "limited": true,
	"co": true, "company": true, "group": true, "holdings": true,
}

// Normalize case-folds a name, strips the exchange prefix, trailing
// corporate suffixes and all punctuation. Returns "" for empty input.
func Normalize(text string) string {
	text = exchangePrefix.ReplaceAllString(strings.TrimSpace(text), "")
	text = strings.ToLower(text)

	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	for len(tokens) > 1 && corporateSuffixes[tokens[len(tokens)-1]] {
		tokens = tokens[:len(tokens)-1]
	}
	return nonAlnum.ReplaceAllString(strings.Join(tokens, ""), "")
}

// Similarity scores two names in [0, 1]. The score is the better of
// normalized Levenshtein similarity and substring containment (the
// original validator's alias rule); identical normalized forms score 1.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}

	longest := len(na)
	if len(nb) > longest {
		longest = len(nb)
	}
	dist := levenshtein.ComputeDistance(na, nb)
	sim := 1 - float64(dist)/float64(longest)
	if sim < 0 {
		sim = 0
	}

	// Containment only counts for strings long enough to be meaningful
	if len(na) > 3 && len(nb) > 3 {
		if strings.Contains(na, nb) || strings.Contains(nb, na) {
			shortest := len(na)
			if len(nb) < shortest {
				shortest = len(nb)
			}
			if ratio := float64(shortest) / float64(longest); ratio > sim {
				sim = ratio
			}
		}
	}
	return sim
}

// EntrySimilarity scores a mention against everything an entry is known
// as: canonical name, short name and aliases.
func EntrySimilarity(name string, entry model.RegistryEntry) float64 {
	best := Similarity(name, entry.Name)
	if s := Similarity(name, entry.ShortName); s > best {
		best = s
	}
	for _, alias := range entry.Aliases {
		if s := Similarity(name, alias); s > best {
			best = s
		}
	}
	return best
}

// Result is the match verdict for one candidate name. It doubles as the
// verification tool's structured response.
type Result struct {
	Matched    bool                 `json:"matched"`
	EntryID    string               `json:"entry_id,omitempty"`
	Entry      *model.RegistryEntry `json:"-"`
	Confidence float64              `json:"confidence"`
	Verdict    model.Verdict        `json:"verdict"`
}

// ToolJSON renders the result as the verification tool's wire form
// {matched, entry_id, confidence} for the audit trail.
func (r Result) ToolJSON() string {
	b, _ := json.Marshal(struct {
		Matched    bool    `json:"matched"`
		EntryID    *string `json:"entry_id"`
		Confidence float64 `json:"confidence"`
	}{
		Matched:    r.Matched,
		EntryID:    nilIfEmpty(r.EntryID),
		Confidence: r.Confidence,
	})
	return string(b)
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Engine applies the decision policy over registry lookups
type Engine struct {
	registry Registry
	high     float64
	low      float64
}

// NewEngine creates a match engine with the given thresholds
func NewEngine(reg Registry, cfg model.MatchConfig) *Engine {
	high, low := cfg.HighThreshold, cfg.LowThreshold
	if high <= 0 {
		high = 0.85
	}
	if low <= 0 {
		low = 0.55
	}
	return &Engine{registry: reg, high: high, low: low}
}

// Match resolves a candidate name. The locale hint is accepted for
// callers that know the mention's market context; only the Malaysian
// exchange prefix is currently recognized, so the hint does not change
// normalization today.
func (e *Engine) Match(candidate, localeHint string) Result {
	_ = localeHint

	candidates := e.registry.Lookup(candidate)
	if len(candidates) == 0 {
		return Result{Verdict: model.VerdictDiscarded}
	}

	bestSim := -1.0
	bestIdx := -1
	tied := false
	for i, entry := range candidates {
		sim := EntrySimilarity(candidate, entry)
		switch {
		case sim > bestSim:
			bestSim = sim
			bestIdx = i
			tied = false
		case sim == bestSim && candidates[i].ID != candidates[bestIdx].ID:
			// Equal top similarity across distinct entries is never
			// broken arbitrarily
			tied = true
		}
	}

	switch {
	case bestSim < e.low:
		return Result{Confidence: bestSim, Verdict: model.VerdictDiscarded}
	case tied || bestSim < e.high:
		return Result{Confidence: bestSim, Verdict: model.VerdictAmbiguous}
	default:
		entry := candidates[bestIdx]
		return Result{
			Matched:    true,
			EntryID:    entry.ID,
			Entry:      &entry,
			Confidence: bestSim,
			Verdict:    model.VerdictAccepted,
		}
	}
}
