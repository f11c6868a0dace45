package tile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Store loads and saves tiles under a directory laid out as
// <root>/<level>/<index>.gph, keeping loaded tiles in an in-memory cache.
//
// The cache and its byte accounting are guarded by the store's own mutex,
// separate from whatever coordinates the workers: tiles themselves are never
// shared between workers, only the cache bookkeeping is.
type Store struct {
	dir    string
	budget int64 // cache budget in bytes, <= 0 means unlimited

	mu         sync.Mutex
	cache      map[ID]*Tile
	cacheBytes int64
}

// NewStore creates a store rooted at dir with a cache budget in megabytes.
func NewStore(dir string, budgetMB int) *Store {
	return &Store{
		dir:    dir,
		budget: int64(budgetMB) * 1024 * 1024,
		cache:  make(map[ID]*Tile),
	}
}

// Dir returns the store root.
func (s *Store) Dir() string {
	return s.dir
}

// Load returns the tile for id, reading it from disk on first access.
func (s *Store) Load(id ID) (*Tile, error) {
	s.mu.Lock()
	if t, ok := s.cache[id]; ok {
		s.mu.Unlock()
		return t, nil
	}
	s.mu.Unlock()

	buf, err := os.ReadFile(filepath.Join(s.dir, id.Path()))
	if err != nil {
		return nil, fmt.Errorf("loading tile %s: %w", id, err)
	}
	t, err := Unmarshal(id, buf)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[id] = t
	s.cacheBytes += int64(len(buf))
	s.mu.Unlock()
	return t, nil
}

// Save serializes t back to disk and refreshes the cache entry.
func (s *Store) Save(t *Tile) error {
	buf := t.Marshal()

	path := filepath.Join(s.dir, t.ID.Path())
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("saving tile %s: %w", t.ID, err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("saving tile %s: %w", t.ID, err)
	}

	s.mu.Lock()
	if _, ok := s.cache[t.ID]; !ok {
		s.cacheBytes += int64(len(buf))
	}
	s.cache[t.ID] = t
	s.mu.Unlock()
	return nil
}

// Enumerate walks the store directory and returns every tile ID, sorted by
// level then index.
func (s *Store) Enumerate() ([]ID, error) {
	levels, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("enumerating tiles: %w", err)
	}

	var ids []ID
	for _, levelEntry := range levels {
		if !levelEntry.IsDir() {
			continue
		}
		level, err := strconv.ParseUint(levelEntry.Name(), 10, 8)
		if err != nil {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.dir, levelEntry.Name()))
		if err != nil {
			return nil, fmt.Errorf("enumerating level %d: %w", level, err)
		}
		for _, f := range files {
			name, ok := strings.CutSuffix(f.Name(), fileExt)
			if !ok || f.IsDir() {
				continue
			}
			index, err := strconv.ParseUint(name, 10, 32)
			if err != nil {
				continue
			}
			ids = append(ids, ID{Level: uint8(level), Index: uint32(index)})
		}
	}

	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Level != ids[j].Level {
			return ids[i].Level < ids[j].Level
		}
		return ids[i].Index < ids[j].Index
	})
	return ids, nil
}

// OverCommitted reports whether the cache has outgrown its budget.
func (s *Store) OverCommitted() bool {
	if s.budget <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cacheBytes > s.budget
}

// Trim drops the in-memory tile cache. Tiles already handed out stay valid;
// they are simply re-read on the next Load.
func (s *Store) Trim() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[ID]*Tile)
	s.cacheBytes = 0
}
