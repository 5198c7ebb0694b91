// Package library indexes audio files on disk so the console can load
// them onto decks by ID.
package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/37-AN/43v3rm1x/internal/logger"
)

// audioExtensions are the file types the scanner admits.
var audioExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".flac": true,
	".ogg":  true,
	".m4a":  true,
	".aac":  true,
	".aiff": true,
}

// Entry is one indexed audio file.
type Entry struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Artist string `json:"artist"`
	Path   string `json:"-"`
}

// Library is a directory-backed track index. Entries keep stable IDs
// across rescans as long as the path survives.
type Library struct {
	dir string

	mu     sync.RWMutex
	byID   map[string]*Entry
	byPath map[string]*Entry
}

// New creates a library rooted at dir. Call Scan to populate it.
func New(dir string) *Library {
	return &Library{
		dir:    dir,
		byID:   make(map[string]*Entry),
		byPath: make(map[string]*Entry),
	}
}

// Scan walks the library directory and indexes every audio file found.
// Files already indexed keep their IDs; files gone from disk are dropped.
func (l *Library) Scan() error {
	seen := make(map[string]bool)

	err := filepath.WalkDir(l.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !audioExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		seen[path] = true
		l.add(path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan library %s: %w", l.dir, err)
	}

	l.mu.Lock()
	for path, e := range l.byPath {
		if !seen[path] {
			delete(l.byPath, path)
			delete(l.byID, e.ID)
		}
	}
	count := len(l.byID)
	l.mu.Unlock()

	logger.Info("library scanned", logger.String("dir", l.dir), logger.Int("tracks", count))
	return nil
}

// add indexes one file, keeping a prior entry's ID if the path is known.
func (l *Library) add(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.byPath[path]; ok {
		return
	}
	artist, name := ParseFilename(filepath.Base(path))
	e := &Entry{
		ID:     uuid.NewString(),
		Name:   name,
		Artist: artist,
		Path:   path,
	}
	l.byPath[path] = e
	l.byID[e.ID] = e
}

// remove drops the entry for a path if one exists.
func (l *Library) remove(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.byPath[path]; ok {
		delete(l.byPath, path)
		delete(l.byID, e.ID)
	}
}

// Entries lists the index sorted by artist then name.
func (l *Library) Entries() []Entry {
	l.mu.RLock()
	out := make([]Entry, 0, len(l.byID))
	for _, e := range l.byID {
		out = append(out, *e)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Artist != out[j].Artist {
			return out[i].Artist < out[j].Artist
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Get resolves an entry by ID.
func (l *Library) Get(id string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.byID[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// ReadFile returns the raw bytes of the entry's file.
func (l *Library) ReadFile(id string) (Entry, []byte, error) {
	e, ok := l.Get(id)
	if !ok {
		return Entry{}, nil, fmt.Errorf("library: unknown track %q", id)
	}
	data, err := os.ReadFile(e.Path)
	if err != nil {
		return Entry{}, nil, fmt.Errorf("library: read %s: %w", e.Path, err)
	}
	return e, data, nil
}

// Watch keeps the index in sync with the directory until ctx is
// cancelled. New audio files are indexed as they appear, removed files
// are dropped.
func (l *Library) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("library watch: %w", err)
	}
	if err := watcher.Add(l.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("library watch %s: %w", l.dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !audioExtensions[strings.ToLower(filepath.Ext(ev.Name))] {
					continue
				}
				switch {
				case ev.Op.Has(fsnotify.Create), ev.Op.Has(fsnotify.Rename):
					if _, err := os.Stat(ev.Name); err == nil {
						l.add(ev.Name)
						logger.Info("library track added", logger.String("path", ev.Name))
					} else {
						l.remove(ev.Name)
					}
				case ev.Op.Has(fsnotify.Remove):
					l.remove(ev.Name)
					logger.Info("library track removed", logger.String("path", ev.Name))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("library watcher", logger.ErrorField(err))
			}
		}
	}()

	return nil
}

// ParseFilename splits "Artist - Title.ext" into artist and title. A
// name with no separator becomes the title with an unknown artist.
func ParseFilename(base string) (artist, name string) {
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if i := strings.Index(stem, " - "); i >= 0 {
		artist = strings.TrimSpace(stem[:i])
		name = strings.TrimSpace(stem[i+3:])
		if artist != "" && name != "" {
			return artist, name
		}
	}
	return "Unknown Artist", strings.TrimSpace(stem)
}
