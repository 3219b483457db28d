package character

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	immutableFile = "immutable.yaml"
	longTermFile  = "long_term.yaml"
)

// ErrNotFound is returned when a character directory or one of its YAML
// documents does not exist. Check with [errors.Is].
var ErrNotFound = errors.New("character: not found")

// ErrInvalidData is returned when a character document exists but cannot be
// parsed or fails validation. Check with [errors.Is].
var ErrInvalidData = errors.New("character: invalid data")

// Repository loads character profiles from a base directory and caches them
// in memory. The expected layout is <base>/<character_id>/immutable.yaml and
// <base>/<character_id>/long_term.yaml.
//
// Long-term updates go through [Repository.UpdateLongTerm], which replaces
// the cache entry and rewrites long_term.yaml atomically.
type Repository struct {
	base   string
	logger *slog.Logger

	mu        sync.RWMutex
	immutable map[string]*Immutable
	longTerm  map[string]*LongTerm
}

// Option configures a [Repository].
type Option func(*Repository)

// WithLogger sets the logger used for repository diagnostics.
// Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRepository creates a Repository rooted at base. The directory does not
// need to exist yet; missing characters surface as [ErrNotFound] on load.
func NewRepository(base string, opts ...Option) *Repository {
	r := &Repository{
		base:      base,
		logger:    slog.Default(),
		immutable: make(map[string]*Immutable),
		longTerm:  make(map[string]*LongTerm),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load reads both YAML documents for id into the cache. Loading an already
// cached character is a no-op. Returns [ErrNotFound] if the character
// directory or either document is missing, or [ErrInvalidData] if a document
// cannot be parsed or fails validation.
func (r *Repository) Load(id string) error {
	if id == "" {
		return fmt.Errorf("character: load: %w: empty id", ErrNotFound)
	}

	r.mu.RLock()
	_, haveIm := r.immutable[id]
	_, haveLT := r.longTerm[id]
	r.mu.RUnlock()
	if haveIm && haveLT {
		return nil
	}

	dir := filepath.Join(r.base, id)
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return fmt.Errorf("character: load %q: %w: no directory at %s", id, ErrNotFound, dir)
	}

	im, err := readImmutable(filepath.Join(dir, immutableFile))
	if err != nil {
		return fmt.Errorf("character: load %q: %w", id, err)
	}
	if im.CharacterID != id {
		return fmt.Errorf("character: load %q: %w: immutable.yaml declares character_id %q", id, ErrInvalidData, im.CharacterID)
	}

	lt, err := readLongTerm(filepath.Join(dir, longTermFile))
	if err != nil {
		return fmt.Errorf("character: load %q: %w", id, err)
	}
	if lt.CharacterID != id {
		return fmt.Errorf("character: load %q: %w: long_term.yaml declares character_id %q", id, ErrInvalidData, lt.CharacterID)
	}
	normalize(lt)

	r.mu.Lock()
	r.immutable[id] = im
	r.longTerm[id] = lt
	r.mu.Unlock()

	r.logger.Debug("character loaded", "character_id", id, "name", im.Name)
	return nil
}

// Immutable returns the fixed profile for id, loading it on demand.
// The returned value is a copy.
func (r *Repository) Immutable(id string) (*Immutable, error) {
	if err := r.Load(id); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.immutable[id].clone(), nil
}

// LongTerm returns the long-term record for id, loading it on demand.
// The returned value is a deep copy.
func (r *Repository) LongTerm(id string) (*LongTerm, error) {
	if err := r.Load(id); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.longTerm[id].clone(), nil
}

// ResolveName returns the display name for id, or id itself when the
// character cannot be loaded. Useful for log rendering where a missing
// profile should not fail the caller.
func (r *Repository) ResolveName(id string) string {
	im, err := r.Immutable(id)
	if err != nil {
		return id
	}
	return im.Name
}

// UpdateLongTerm replaces the cached long-term record for id and rewrites
// long_term.yaml. The file write is atomic: the new document is written to a
// temporary file in the character directory and renamed over the old one.
// record.CharacterID must equal id.
func (r *Repository) UpdateLongTerm(id string, record *LongTerm) error {
	if record == nil {
		return fmt.Errorf("character: update %q: record must not be nil", id)
	}
	if record.CharacterID != id {
		return fmt.Errorf("character: update %q: record declares character_id %q", id, record.CharacterID)
	}
	if err := record.Validate(); err != nil {
		return fmt.Errorf("character: update %q: %w: %w", id, ErrInvalidData, err)
	}

	cp := record.clone()
	normalize(cp)

	if err := writeLongTerm(filepath.Join(r.base, id, longTermFile), cp); err != nil {
		return fmt.Errorf("character: update %q: %w", id, err)
	}

	r.mu.Lock()
	r.longTerm[id] = cp
	r.mu.Unlock()

	r.logger.Debug("long-term record updated",
		"character_id", id,
		"experiences", len(cp.Experiences),
		"goals", len(cp.Goals),
		"memories", len(cp.Memories))
	return nil
}

// Loaded reports whether id is currently cached.
func (r *Repository) Loaded(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.immutable[id]
	return ok
}

// normalize ensures slice fields are non-nil so YAML and JSON render empty
// lists instead of null.
func normalize(lt *LongTerm) {
	if lt.Experiences == nil {
		lt.Experiences = []Experience{}
	}
	if lt.Goals == nil {
		lt.Goals = []Goal{}
	}
	if lt.Memories == nil {
		lt.Memories = []Memory{}
	}
	for i := range lt.Memories {
		if lt.Memories[i].RelatedCharacterIDs == nil {
			lt.Memories[i].RelatedCharacterIDs = []string{}
		}
	}
}

func readImmutable(path string) (*Immutable, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: missing %s", ErrNotFound, filepath.Base(path))
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var im Immutable
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true) // reject unknown keys to catch typos
	if err := dec.Decode(&im); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrInvalidData, filepath.Base(path), err)
	}
	if err := im.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidData, err)
	}
	return &im, nil
}

func readLongTerm(path string) (*LongTerm, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: missing %s", ErrNotFound, filepath.Base(path))
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var lt LongTerm
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&lt); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrInvalidData, filepath.Base(path), err)
	}
	if err := lt.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidData, err)
	}
	return &lt, nil
}

// writeLongTerm writes the record to path via a temporary file in the same
// directory followed by a rename, so readers never observe a torn document.
func writeLongTerm(path string, lt *LongTerm) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	defer os.Remove(tmp.Name())

	enc := yaml.NewEncoder(tmp)
	enc.SetIndent(2)
	if err := enc.Encode(lt); err != nil {
		tmp.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
