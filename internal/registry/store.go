// Package registry holds the authoritative set of listed entities.
// The set is an immutable snapshot: Reload replaces it wholesale and
// readers never observe a partially loaded registry.
package registry

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync/atomic"

	"github.com/jweetan/newsvet/internal/match"
	"github.com/jweetan/newsvet/internal/model"
)

// ErrUnavailable means the backing source could not be read. Callers must
// treat this as fatal for the current batch, not per-mention.
var ErrUnavailable = errors.New("registry unavailable")

// maxLookupCandidates caps how many ranked candidates Lookup returns
const maxLookupCandidates = 10

// snapshot is one immutable generation of the registry
type snapshot struct {
	entries []model.RegistryEntry
	byKey   map[string]int // normalized name/alias/id -> index into entries
}

// Store is the registry lookup service. Safe for concurrent readers;
// Reload may run concurrently with lookups.
type Store struct {
	path string
	snap atomic.Pointer[snapshot]
}

// Open loads the registry from a line-delimited JSON file, one entry per
// line. The initial load must succeed; later Reload failures keep the
// prior snapshot in place.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the backing file and swaps the whole snapshot
// atomically. On failure the previous snapshot stays active.
func (s *Store) Reload() error {
	snap, err := load(s.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.snap.Store(snap)
	return nil
}

func load(path string) (*snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open registry: %v", err)
	}
	defer func() { _ = f.Close() }()

	snap := &snapshot{byKey: make(map[string]int)}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec model.RegistryRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("parse registry line %d: %v", line, err)
		}
		entry := rec.Entry()
		if entry.ID == "" {
			return nil, fmt.Errorf("registry line %d: missing identifier", line)
		}
		idx := len(snap.entries)
		snap.entries = append(snap.entries, entry)

		snap.byKey[entry.ID] = idx
		for _, key := range []string{entry.Name, entry.ShortName} {
			if n := match.Normalize(key); n != "" {
				snap.byKey[n] = idx
			}
		}
		for _, alias := range entry.Aliases {
			if n := match.Normalize(alias); n != "" {
				snap.byKey[n] = idx
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read registry: %v", err)
	}
	if len(snap.entries) == 0 {
		return nil, fmt.Errorf("registry is empty")
	}
	return snap, nil
}

// Len returns the number of entries in the active snapshot
func (s *Store) Len() int {
	return len(s.snap.Load().entries)
}

// Entries returns the active snapshot's entries. The slice is shared with
// the snapshot and must not be mutated.
func (s *Store) Entries() []model.RegistryEntry {
	return s.snap.Load().entries
}

// Lookup returns candidate entries for a free-text name, ranked by string
// similarity, best first. An exact key hit (identifier, normalized name
// or alias) always ranks first.
func (s *Store) Lookup(name string) []model.RegistryEntry {
	snap := s.snap.Load()

	type scored struct {
		entry model.RegistryEntry
		sim   float64
	}

	exactIdx := -1
	if idx, ok := snap.byKey[name]; ok {
		exactIdx = idx
	} else if idx, ok := snap.byKey[match.Normalize(name)]; ok {
		exactIdx = idx
	}

	candidates := make([]scored, 0, len(snap.entries))
	for i, entry := range snap.entries {
		if i == exactIdx {
			continue
		}
		sim := match.EntrySimilarity(name, entry)
		if sim <= 0 {
			continue
		}
		candidates = append(candidates, scored{entry: entry, sim: sim})
	}

	// Deterministic order: similarity descending, identifier ascending
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].sim != candidates[j].sim {
			return candidates[i].sim > candidates[j].sim
		}
		return candidates[i].entry.ID < candidates[j].entry.ID
	})

	var out []model.RegistryEntry
	if exactIdx >= 0 {
		out = append(out, snap.entries[exactIdx])
	}
	for _, c := range candidates {
		if len(out) >= maxLookupCandidates {
			break
		}
		out = append(out, c.entry)
	}
	return out
}
