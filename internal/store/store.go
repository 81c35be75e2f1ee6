// Package store keeps rendered slide documents on disk, one file per index.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	dmodel "deckflow/internal/model"
)

// ErrNotFound is returned when a slide index has no document.
var ErrNotFound = errors.New("slide not found")

const ext = ".html"

// Store is a directory of <index>.html documents.
type Store struct {
	dir string
	mu  sync.Mutex
}

func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Dir() string {
	return s.dir
}

// Reset empties the store. Previous slides are removed rather than
// overwritten so nothing from an earlier run survives.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("clear slide store: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create slide store: %w", err)
	}
	return nil
}

// Path returns the file path for a slide index.
func (s *Store) Path(index int) string {
	return filepath.Join(s.dir, strconv.Itoa(index)+ext)
}

// Put writes a slide atomically and records its path on the slide.
func (s *Store) Put(slide *dmodel.RenderedSlide) error {
	if slide.Index < 1 {
		return fmt.Errorf("invalid slide index %d", slide.Index)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	path := s.Path(slide.Index)
	tmp, err := os.CreateTemp(s.dir, ".slide-*")
	if err != nil {
		return err
	}
	if _, err := tmp.WriteString(slide.HTML); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	slide.Path = path
	return nil
}

// Entry is one stored slide.
type Entry struct {
	Index int
	Path  string
}

// List returns the stored slides in increasing numeric index order. Files
// that are not named <int>.html are ignored.
func (s *Store) List() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	des, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []Entry
	for _, de := range des {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, ext) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(name, ext))
		if err != nil || n < 1 {
			continue
		}
		out = append(out, Entry{Index: n, Path: filepath.Join(s.dir, name)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// Load reads one slide back.
func (s *Store) Load(index int) (*dmodel.RenderedSlide, error) {
	path := s.Path(index)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %d", ErrNotFound, index)
		}
		return nil, err
	}
	return &dmodel.RenderedSlide{Index: index, HTML: string(data), Path: path}, nil
}

// LoadAll reads every stored slide in index order.
func (s *Store) LoadAll() ([]dmodel.RenderedSlide, error) {
	entries, err := s.List()
	if err != nil {
		return nil, err
	}
	out := make([]dmodel.RenderedSlide, 0, len(entries))
	for _, e := range entries {
		sl, err := s.Load(e.Index)
		if err != nil {
			return nil, err
		}
		out = append(out, *sl)
	}
	return out, nil
}
