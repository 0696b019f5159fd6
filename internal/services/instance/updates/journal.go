package updates

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/juju/version/v2"

	"github.com/louisbranch/homebook/internal/platform/fsys"
	"github.com/louisbranch/homebook/internal/platform/paths"
)

// JournalFile is the journal name inside the updates directory.
const JournalFile = "updates.json"

// Journal persists the versions of applied updates as a JSON array.
type Journal struct {
	fs   fsys.FileSystem
	path string
}

// NewJournal returns the journal of the instance rooted at p.
func NewJournal(fs fsys.FileSystem, p paths.Provider) *Journal {
	return &Journal{fs: fs, path: filepath.Join(p.UpdatesDir(), JournalFile)}
}

// Path returns the journal location.
func (j *Journal) Path() string {
	return j.path
}

// Load returns the applied versions in ascending order. A missing or
// blank file is an empty journal.
func (j *Journal) Load(ctx context.Context) ([]version.Number, error) {
	exists, err := j.fs.Exists(ctx, j.path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	text, err := j.fs.ReadAllText(ctx, j.path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	var raw []string
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", JournalFile, err)
	}
	applied := make([]version.Number, 0, len(raw))
	seen := make(map[version.Number]bool, len(raw))
	for _, entry := range raw {
		v, err := version.Parse(strings.TrimSpace(entry))
		if err != nil {
			return nil, fmt.Errorf("decode %s entry %q: %w", JournalFile, entry, err)
		}
		if seen[v] {
			continue
		}
		seen[v] = true
		applied = append(applied, v)
	}
	sortVersions(applied)
	return applied, nil
}

// Save replaces the journal with applied.
func (j *Journal) Save(ctx context.Context, applied []version.Number) error {
	sorted := make([]version.Number, len(applied))
	copy(sorted, applied)
	sortVersions(sorted)

	raw := make([]string, 0, len(sorted))
	for i, v := range sorted {
		if i > 0 && v == sorted[i-1] {
			continue
		}
		raw = append(raw, v.String())
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", JournalFile, err)
	}
	return j.fs.WriteAllText(ctx, j.path, string(data)+"\n")
}

// Append records v as applied and persists the journal.
func (j *Journal) Append(ctx context.Context, v version.Number) error {
	applied, err := j.Load(ctx)
	if err != nil {
		return err
	}
	for _, existing := range applied {
		if existing == v {
			return nil
		}
	}
	return j.Save(ctx, append(applied, v))
}

func sortVersions(values []version.Number) {
	sort.SliceStable(values, func(i, k int) bool {
		return values[i].Compare(values[k]) < 0
	})
}
