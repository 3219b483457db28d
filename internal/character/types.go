// Package character provides file-backed storage for character profiles.
//
// Each character lives in its own directory under a common base path and is
// described by two YAML documents: immutable.yaml holds the fixed profile
// (name, age, occupation, personality) and long_term.yaml holds the evolving
// record of experiences, goals, and memories that the simulation rewrites
// over time.
//
// The primary abstraction is [Repository], which caches both documents per
// character and persists long-term updates atomically. All Repository
// operations are safe for concurrent use.
package character

import (
	"errors"
	"fmt"
)

// Immutable is the fixed profile of a character. It is loaded once from
// immutable.yaml and never modified by the simulation.
type Immutable struct {
	// CharacterID is the unique identifier, matching the directory name.
	CharacterID string `yaml:"character_id" json:"character_id"`

	// Name is the character's display name.
	Name string `yaml:"name" json:"name"`

	// Age in years. Nil when unknown.
	Age *int `yaml:"age,omitempty" json:"age,omitempty"`

	// Occupation is a short free-text role description.
	Occupation string `yaml:"occupation,omitempty" json:"occupation,omitempty"`

	// BasePersonality is a free-text description of the character's
	// personality traits, speech patterns, and values.
	BasePersonality string `yaml:"base_personality" json:"base_personality"`
}

// Validate checks the immutable profile for consistency. It returns a joined
// error describing every violation found, or nil if the profile is valid.
func (im *Immutable) Validate() error {
	var errs []error

	if im.CharacterID == "" {
		errs = append(errs, fmt.Errorf("character: character_id must not be empty"))
	}
	if im.Name == "" {
		errs = append(errs, fmt.Errorf("character: name must not be empty"))
	}
	if im.BasePersonality == "" {
		errs = append(errs, fmt.Errorf("character: base_personality must not be empty"))
	}

	return errors.Join(errs...)
}

// Experience is a past event a character considers formative.
type Experience struct {
	// Event describes what happened.
	Event string `yaml:"event" json:"event"`

	// Importance ranks the event from 1 (minor) to 10 (defining).
	Importance int `yaml:"importance" json:"importance"`
}

// Goal is a current aim or desire of a character.
type Goal struct {
	// Goal describes what the character wants.
	Goal string `yaml:"goal" json:"goal"`

	// Importance ranks the goal from 1 (idle wish) to 10 (driving motive).
	Importance int `yaml:"importance" json:"importance"`
}

// Memory is a remembered moment tied to a specific scene.
type Memory struct {
	// Memory describes what the character remembers.
	Memory string `yaml:"memory" json:"memory"`

	// SceneIDOfMemory is the scene in which the memory was formed.
	SceneIDOfMemory string `yaml:"scene_id_of_memory" json:"scene_id_of_memory"`

	// RelatedCharacterIDs lists the characters involved. Never nil after
	// normalisation; an empty slice means no one else was involved.
	RelatedCharacterIDs []string `yaml:"related_character_ids" json:"related_character_ids"`
}

// LongTerm is the evolving long-term record of a character. It is loaded from
// long_term.yaml and rewritten whenever the simulation applies a memory
// update.
type LongTerm struct {
	// CharacterID must match the character this record belongs to.
	CharacterID string `yaml:"character_id" json:"character_id"`

	// Experiences in insertion order.
	Experiences []Experience `yaml:"experiences" json:"experiences"`

	// Goals in insertion order.
	Goals []Goal `yaml:"goals" json:"goals"`

	// Memories in insertion order.
	Memories []Memory `yaml:"memories" json:"memories"`
}

// Validate checks the long-term record for consistency. Every importance
// value must be in [1, 10]. It returns a joined error describing all
// violations, or nil.
func (lt *LongTerm) Validate() error {
	var errs []error

	if lt.CharacterID == "" {
		errs = append(errs, fmt.Errorf("character: character_id must not be empty"))
	}
	for i, exp := range lt.Experiences {
		if exp.Importance < 1 || exp.Importance > 10 {
			errs = append(errs, fmt.Errorf("character: experiences[%d].importance must be in [1, 10], got %d", i, exp.Importance))
		}
	}
	for i, g := range lt.Goals {
		if g.Importance < 1 || g.Importance > 10 {
			errs = append(errs, fmt.Errorf("character: goals[%d].importance must be in [1, 10], got %d", i, g.Importance))
		}
	}

	return errors.Join(errs...)
}

// clone returns a deep copy so callers can read without holding the
// repository lock.
func (lt *LongTerm) clone() *LongTerm {
	cp := &LongTerm{
		CharacterID: lt.CharacterID,
		Experiences: append([]Experience(nil), lt.Experiences...),
		Goals:       append([]Goal(nil), lt.Goals...),
		Memories:    make([]Memory, len(lt.Memories)),
	}
	for i, m := range lt.Memories {
		cp.Memories[i] = Memory{
			Memory:              m.Memory,
			SceneIDOfMemory:     m.SceneIDOfMemory,
			RelatedCharacterIDs: append([]string(nil), m.RelatedCharacterIDs...),
		}
	}
	return cp
}

// clone returns a copy with its own Age pointer.
func (im *Immutable) clone() *Immutable {
	cp := *im
	if im.Age != nil {
		age := *im.Age
		cp.Age = &age
	}
	return &cp
}
