// Package scene holds the state of the scene currently being simulated.
//
// A scene is described by a YAML file ([LoadFile]) that names the location,
// time, situation, and participating characters. [State] tracks the loaded
// scene and applies the mutations the simulation performs mid-scene:
// situation rewrites, participant entry and exit.
//
// All State operations are safe for concurrent use.
package scene

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Info describes a scene as declared in its YAML file.
//
// Example:
//
//	scene_id: scene_001
//	location: "古い図書館"
//	time: "夕方"
//	situation: |
//	  埃っぽい閲覧室。アリスが地図を広げている。
//	participant_character_ids:
//	  - alice
//	  - bob
type Info struct {
	// SceneID is the unique identifier for this scene.
	SceneID string `yaml:"scene_id" json:"scene_id"`

	// Location is a free-text place description. May be empty.
	Location string `yaml:"location,omitempty" json:"location,omitempty"`

	// Time is a free-text moment description. May be empty.
	Time string `yaml:"time,omitempty" json:"time,omitempty"`

	// Situation describes what is happening as the scene opens. The
	// simulation rewrites this when the operator updates the situation.
	Situation string `yaml:"situation" json:"situation"`

	// ParticipantCharacterIDs lists the characters present, in turn order.
	ParticipantCharacterIDs []string `yaml:"participant_character_ids" json:"participant_character_ids"`

	// PreviousSceneLogReference optionally points at the log of the scene
	// that preceded this one. Parsed and carried but not yet consumed.
	PreviousSceneLogReference string `yaml:"previous_scene_log_reference,omitempty" json:"previous_scene_log_reference,omitempty"`
}

// Validate checks the scene declaration. It returns a joined error describing
// every violation found, or nil.
func (in *Info) Validate() error {
	var errs []error

	if in.SceneID == "" {
		errs = append(errs, fmt.Errorf("scene: scene_id must not be empty"))
	}
	if in.Situation == "" {
		errs = append(errs, fmt.Errorf("scene: situation must not be empty"))
	}
	seen := make(map[string]struct{}, len(in.ParticipantCharacterIDs))
	for _, id := range in.ParticipantCharacterIDs {
		if id == "" {
			errs = append(errs, fmt.Errorf("scene: participant ids must not be empty"))
			continue
		}
		if _, dup := seen[id]; dup {
			errs = append(errs, fmt.Errorf("scene: duplicate participant %q", id))
		}
		seen[id] = struct{}{}
	}

	return errors.Join(errs...)
}

func (in *Info) clone() Info {
	cp := *in
	cp.ParticipantCharacterIDs = append([]string(nil), in.ParticipantCharacterIDs...)
	return cp
}

// LoadFile reads and parses a scene YAML file from disk.
func LoadFile(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scene: open file %q: %w", path, err)
	}
	defer f.Close()

	info, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("scene: parse file %q: %w", path, err)
	}
	return info, nil
}

// LoadFromReader parses scene YAML from an [io.Reader]. The reader is
// consumed entirely; the caller is responsible for closing it.
func LoadFromReader(r io.Reader) (*Info, error) {
	var info Info
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // reject unknown keys to catch typos
	if err := dec.Decode(&info); err != nil {
		return nil, fmt.Errorf("scene: decode yaml: %w", err)
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}
	return &info, nil
}

// ErrNotLoaded is returned by State accessors and mutators when no scene is
// currently loaded.
var ErrNotLoaded = errors.New("scene: no scene loaded")

// ErrNotInScene is returned when an operation targets a character that is not
// a current participant.
var ErrNotInScene = errors.New("scene: character not in scene")

// State holds at most one current scene and serialises mutations to it.
type State struct {
	mu      sync.RWMutex
	current *Info
}

// NewState returns an empty State with no scene loaded.
func NewState() *State {
	return &State{}
}

// Load makes info the current scene, replacing any previous one.
func (s *State) Load(info *Info) error {
	if info == nil {
		return fmt.Errorf("scene: load: info must not be nil")
	}
	if err := info.Validate(); err != nil {
		return err
	}
	cp := info.clone()
	s.mu.Lock()
	s.current = &cp
	s.mu.Unlock()
	return nil
}

// Clear removes the current scene.
func (s *State) Clear() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

// Loaded reports whether a scene is currently loaded.
func (s *State) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil
}

// Info returns a copy of the current scene declaration.
func (s *State) Info() (Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Info{}, ErrNotLoaded
	}
	return s.current.clone(), nil
}

// Situation returns the current situation text.
func (s *State) Situation() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return "", ErrNotLoaded
	}
	return s.current.Situation, nil
}

// Participants returns a copy of the current participant list in turn order.
func (s *State) Participants() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, ErrNotLoaded
	}
	return append([]string(nil), s.current.ParticipantCharacterIDs...), nil
}

// Contains reports whether id is a current participant.
func (s *State) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return false
	}
	for _, p := range s.current.ParticipantCharacterIDs {
		if p == id {
			return true
		}
	}
	return false
}

// UpdateSituation replaces the situation text.
func (s *State) UpdateSituation(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ErrNotLoaded
	}
	s.current.Situation = text
	return nil
}

// AddParticipant appends id to the participant list. Adding a character that
// is already present is a no-op.
func (s *State) AddParticipant(id string) error {
	if id == "" {
		return fmt.Errorf("scene: add participant: empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ErrNotLoaded
	}
	for _, p := range s.current.ParticipantCharacterIDs {
		if p == id {
			return nil
		}
	}
	s.current.ParticipantCharacterIDs = append(s.current.ParticipantCharacterIDs, id)
	return nil
}

// RemoveParticipant removes id from the participant list, preserving the
// order of the remaining participants. Returns [ErrNotInScene] if id is not
// present.
func (s *State) RemoveParticipant(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ErrNotLoaded
	}
	for i, p := range s.current.ParticipantCharacterIDs {
		if p == id {
			s.current.ParticipantCharacterIDs = append(
				s.current.ParticipantCharacterIDs[:i],
				s.current.ParticipantCharacterIDs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("scene: remove participant %q: %w", id, ErrNotInScene)
}
