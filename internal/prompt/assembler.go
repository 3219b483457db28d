// Package prompt assembles the textual context a character's turn is
// generated from.
//
// The [Assembler] pulls profile data from the character repository and
// combines it with the current scene and the running scene log into the
// section blocks the prompt templates expect. All formatting is pure string
// work; the package never talks to an LLM.
package prompt

import (
	"fmt"
	"strings"

	"github.com/MrWong99/dramaturg/internal/character"
	"github.com/MrWong99/dramaturg/internal/scene"
	"github.com/MrWong99/dramaturg/internal/scenelog"
)

const (
	// maxTurns bounds the dialogue window included in a turn context.
	maxTurns = 5

	// maxSignificantTurns bounds the event window included in a long-term
	// memory update context.
	maxSignificantTurns = 10
)

// CharacterSource is the subset of the character repository the assembler
// needs. *character.Repository satisfies it.
type CharacterSource interface {
	Immutable(id string) (*character.Immutable, error)
	LongTerm(id string) (*character.LongTerm, error)
	ResolveName(id string) string
}

var _ CharacterSource = (*character.Repository)(nil)

// ThoughtContext is the assembled context for one character turn. Each field
// is a fully rendered section; FullContext is the concatenation handed to the
// thought template.
type ThoughtContext struct {
	ImmutableContext     string
	LongTermContext      string
	SceneContext         string
	ShortTermContext     string
	PreviousSceneContext string
	FullContext          string
}

// TemplateValues returns the placeholder map for [RenderTemplate].
func (c *ThoughtContext) TemplateValues(characterName string) map[string]string {
	return map[string]string{
		"character_name":         characterName,
		"immutable_context":      c.ImmutableContext,
		"long_term_context":      c.LongTermContext,
		"scene_context":          c.SceneContext,
		"short_term_context":     c.ShortTermContext,
		"previous_scene_context": c.PreviousSceneContext,
		"full_context":           c.FullContext,
	}
}

// UpdateContext is the assembled context for a long-term memory update.
type UpdateContext struct {
	CharacterName           string
	ExistingLongTermContext string
	RecentSignificantEvents string
}

// TemplateValues returns the placeholder map for [RenderTemplate].
func (c *UpdateContext) TemplateValues() map[string]string {
	return map[string]string{
		"character_name":                        c.CharacterName,
		"existing_long_term_context":            c.ExistingLongTermContext,
		"recent_significant_events_or_thoughts": c.RecentSignificantEvents,
	}
}

// Assembler builds contexts from character, scene, and log state.
type Assembler struct {
	chars CharacterSource
}

// NewAssembler creates an Assembler reading character data from chars.
func NewAssembler(chars CharacterSource) (*Assembler, error) {
	if chars == nil {
		return nil, fmt.Errorf("prompt: character source must not be nil")
	}
	return &Assembler{chars: chars}, nil
}

// BuildThoughtContext assembles the turn context for characterID.
// previousSceneSummary carries either a summary of the preceding scene or a
// freshly framed revelation block; empty means the section is omitted.
func (a *Assembler) BuildThoughtContext(characterID string, sceneInfo *scene.Info, recentTurns []scenelog.Turn, previousSceneSummary string) (*ThoughtContext, error) {
	im, err := a.chars.Immutable(characterID)
	if err != nil {
		return nil, fmt.Errorf("prompt: thought context for %q: %w", characterID, err)
	}
	lt, err := a.chars.LongTerm(characterID)
	if err != nil {
		return nil, fmt.Errorf("prompt: thought context for %q: %w", characterID, err)
	}
	if sceneInfo == nil {
		return nil, fmt.Errorf("prompt: thought context for %q: %w", characterID, scene.ErrNotLoaded)
	}

	ctx := &ThoughtContext{
		ImmutableContext:     FormatImmutable(im),
		LongTermContext:      FormatLongTerm(lt, a.chars.ResolveName),
		SceneContext:         FormatScene(sceneInfo, a.chars.ResolveName),
		ShortTermContext:     FormatShortTerm(recentTurns),
		PreviousSceneContext: formatPreviousScene(previousSceneSummary),
	}

	sections := []string{
		ctx.ImmutableContext,
		ctx.LongTermContext,
		ctx.SceneContext,
		ctx.PreviousSceneContext,
		ctx.ShortTermContext,
	}
	nonEmpty := sections[:0]
	for _, s := range sections {
		if s = strings.TrimSpace(s); s != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}
	ctx.FullContext = strings.Join(nonEmpty, "\n\n")

	return ctx, nil
}

// BuildUpdateContext assembles the context a long-term memory update for
// characterID is generated from, based on the complete scene log.
func (a *Assembler) BuildUpdateContext(characterID string, l *scenelog.Log) (*UpdateContext, error) {
	im, err := a.chars.Immutable(characterID)
	if err != nil {
		return nil, fmt.Errorf("prompt: update context for %q: %w", characterID, err)
	}
	lt, err := a.chars.LongTerm(characterID)
	if err != nil {
		return nil, fmt.Errorf("prompt: update context for %q: %w", characterID, err)
	}

	return &UpdateContext{
		CharacterName:           im.Name,
		ExistingLongTermContext: FormatLongTerm(lt, a.chars.ResolveName),
		RecentSignificantEvents: formatSignificantEvents(characterID, l),
	}, nil
}
