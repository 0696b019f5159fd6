// Package paths resolves the fixed operational directories of an instance.
package paths

import (
	"path/filepath"
	"strings"
)

// Provider resolves named directories below a single root.
type Provider struct {
	root string
}

// New returns a Provider rooted at root. An empty root resolves to the
// working directory.
func New(root string) Provider {
	root = strings.TrimSpace(root)
	if root == "" {
		root = "."
	}
	return Provider{root: filepath.Clean(root)}
}

// Root returns the base directory.
func (p Provider) Root() string { return p.root }

// ConfigDir holds markers and persisted settings.
func (p Provider) ConfigDir() string { return filepath.Join(p.root, "config") }

// CacheDir holds rebuildable data.
func (p Provider) CacheDir() string { return filepath.Join(p.root, "cache") }

// LogsDir holds log files.
func (p Provider) LogsDir() string { return filepath.Join(p.root, "logs") }

// DataDir holds durable instance data, including the SQLite file by default.
func (p Provider) DataDir() string { return filepath.Join(p.root, "data") }

// TempDir holds scratch files that may be removed at any time.
func (p Provider) TempDir() string { return filepath.Join(p.root, "temp") }

// UpdatesDir holds the applied-updates journal.
func (p Provider) UpdatesDir() string { return filepath.Join(p.DataDir(), "updates") }

// RequiredDirectories lists every directory a running instance expects, parents first.
func (p Provider) RequiredDirectories() []string {
	return []string{
		p.ConfigDir(),
		p.CacheDir(),
		p.LogsDir(),
		p.DataDir(),
		p.TempDir(),
		p.UpdatesDir(),
	}
}
