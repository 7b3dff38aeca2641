// Package activity probes a project tree for recent file modifications.
// The engine uses it as the progress signal when deciding whether an
// in-flight invocation has gone stale.
package activity

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultIgnore excludes trees that churn without representing agent
// progress.
var DefaultIgnore = []string{
	".git/**",
	"node_modules/**",
	"vendor/**",
	"**/*.log",
}

// Probe scans a project directory for the most recent modification.
type Probe struct {
	// Pattern selects the files considered; defaults to everything.
	Pattern string

	// Ignore patterns are excluded from the scan.
	Ignore []string
}

// NewProbe creates a probe with the default pattern and ignore set.
func NewProbe() *Probe {
	return &Probe{Pattern: "**/*", Ignore: DefaultIgnore}
}

// LatestChange returns the newest modification time under root among
// matching files. A missing or empty tree returns the zero time.
func (p *Probe) LatestChange(root string) (time.Time, error) {
	pattern := p.Pattern
	if pattern == "" {
		pattern = "**/*"
	}

	var latest time.Time
	fsys := os.DirFS(root)
	err := doublestar.GlobWalk(fsys, pattern, func(path string, d fs.DirEntry) error {
		if d.IsDir() {
			return nil
		}
		for _, ig := range p.Ignore {
			if ok, _ := doublestar.Match(ig, path); ok {
				return nil
			}
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	return latest, nil
}

// ActiveSince reports whether any matching file changed after the mark.
func (p *Probe) ActiveSince(root string, mark time.Time) bool {
	latest, err := p.LatestChange(root)
	if err != nil {
		return false
	}
	return latest.After(mark)
}

// Touch is a test helper hook kept close to the probe: it sets a file's
// mtime without caring about content.
func Touch(path string, at time.Time) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, nil, 0644); err != nil {
			return err
		}
	}
	return os.Chtimes(path, at, at)
}
