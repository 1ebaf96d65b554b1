package discovery

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"
)

// FileSystemWalker defines the interface for walking directories
type FileSystemWalker interface {
	Walk(root string, options *godirwalk.Options) error
}

// DefaultFileSystemWalker implements FileSystemWalker using godirwalk
type DefaultFileSystemWalker struct{}

func (d *DefaultFileSystemWalker) Walk(root string, options *godirwalk.Options) error {
	return godirwalk.Walk(root, options)
}

// Result is the outcome of one discovery pass. Both lists are sorted.
type Result struct {
	Candidates  []string
	Unsupported []string
}

// Lister finds candidate files under a root directory.
type Lister struct {
	Walker FileSystemWalker
}

// NewLister returns a Lister backed by godirwalk.
func NewLister() *Lister {
	return &Lister{Walker: &DefaultFileSystemWalker{}}
}

// ListCandidates walks root recursively, skipping hidden files and
// directories, and splits regular files (and links to them) by whether
// their lowercased extension is in allowed.
func (l *Lister) ListCandidates(root string, allowed map[string]bool) (Result, error) {
	var res Result

	if _, err := os.Stat(root); err != nil {
		return res, err
	}

	err := l.Walker.Walk(root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if path != root && isHidden(path) {
				if de != nil && de.IsDir() {
					return godirwalk.SkipThis
				}
				return nil
			}
			// de may be nil when a test walker drives the callback
			if de != nil && (de.IsDir() || !de.IsRegular() && !de.IsSymlink()) {
				return nil
			}
			// Links count only when they resolve to a regular file.
			if de != nil && de.IsSymlink() {
				fi, err := os.Stat(path)
				if err != nil || !fi.Mode().IsRegular() {
					log.Debug().Err(err).Str("path", path).Msg("skipping link that is not a regular file")
					return nil
				}
			}
			if allowed[Extension(path)] {
				res.Candidates = append(res.Candidates, path)
			} else {
				res.Unsupported = append(res.Unsupported, path)
			}
			return nil
		},
		ErrorCallback: func(path string, err error) godirwalk.ErrorAction {
			log.Warn().Err(err).Str("path", path).Msg("skipping unreadable entry")
			return godirwalk.SkipNode
		},
	})
	if err != nil {
		return Result{}, err
	}

	sort.Strings(res.Candidates)
	sort.Strings(res.Unsupported)
	return res, nil
}

// Extension returns the lowercased extension of path without the leading dot.
func Extension(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
