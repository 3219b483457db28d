// Package ltm applies long-term memory updates to character records.
//
// An [Updater] runs the full update round trip for one character: build the
// update context from the scene log, ask the LLM gateway for an
// [gateway.UpdateProposal], merge the proposal into the character's long-term
// record, and persist the result. Merging is deterministic and additive;
// the LLM never rewrites existing entries except goal importance.
package ltm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/dramaturg/internal/character"
	"github.com/MrWong99/dramaturg/internal/prompt"
	"github.com/MrWong99/dramaturg/internal/scenelog"
	"github.com/MrWong99/dramaturg/pkg/gateway"
)

// Generator is the gateway surface the updater needs.
// *gateway.Gateway satisfies it.
type Generator interface {
	GenerateLongTermUpdate(ctx context.Context, values map[string]string) (*gateway.UpdateProposal, error)
}

var _ Generator = (*gateway.Gateway)(nil)

// ContextBuilder assembles the update context for a character.
// *prompt.Assembler satisfies it.
type ContextBuilder interface {
	BuildUpdateContext(characterID string, l *scenelog.Log) (*prompt.UpdateContext, error)
}

var _ ContextBuilder = (*prompt.Assembler)(nil)

// Store is the character repository surface the updater needs.
// *character.Repository satisfies it.
type Store interface {
	LongTerm(id string) (*character.LongTerm, error)
	UpdateLongTerm(id string, record *character.LongTerm) error
}

var _ Store = (*character.Repository)(nil)

// Updater orchestrates long-term memory updates.
type Updater struct {
	generator Generator
	builder   ContextBuilder
	store     Store
	logger    *slog.Logger
}

// Option configures an [Updater].
type Option func(*Updater)

// WithLogger sets the logger used for update diagnostics.
// Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(u *Updater) {
		if l != nil {
			u.logger = l
		}
	}
}

// NewUpdater creates an Updater from its three collaborators.
func NewUpdater(generator Generator, builder ContextBuilder, store Store, opts ...Option) (*Updater, error) {
	if generator == nil {
		return nil, fmt.Errorf("ltm: generator must not be nil")
	}
	if builder == nil {
		return nil, fmt.Errorf("ltm: context builder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ltm: store must not be nil")
	}
	u := &Updater{
		generator: generator,
		builder:   builder,
		store:     store,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

// Update runs the complete round trip for characterID against the scene log
// and returns the proposal that was applied. The proposal is returned
// verbatim even when it suggests no changes.
func (u *Updater) Update(ctx context.Context, characterID string, l *scenelog.Log) (*gateway.UpdateProposal, error) {
	updateCtx, err := u.builder.BuildUpdateContext(characterID, l)
	if err != nil {
		return nil, fmt.Errorf("ltm: update %q: %w", characterID, err)
	}

	proposal, err := u.generator.GenerateLongTermUpdate(ctx, updateCtx.TemplateValues())
	if err != nil {
		return nil, fmt.Errorf("ltm: update %q: %w", characterID, err)
	}

	current, err := u.store.LongTerm(characterID)
	if err != nil {
		return nil, fmt.Errorf("ltm: update %q: %w", characterID, err)
	}

	merged := Apply(current, proposal)
	if err := u.store.UpdateLongTerm(characterID, merged); err != nil {
		return nil, fmt.Errorf("ltm: update %q: %w", characterID, err)
	}

	u.logger.Info("long-term memory updated",
		"character_id", characterID,
		"new_experiences", len(proposal.NewExperiences),
		"updated_goals", len(proposal.UpdatedGoals),
		"new_memories", len(proposal.NewMemories))

	return proposal, nil
}

// Apply merges proposal into record and returns the merged record:
//
//   - proposed experiences are appended in order
//   - proposed goals upsert by exact goal text: a match overwrites only the
//     importance, otherwise the goal is appended
//   - proposed memories are appended with RelatedCharacterIDs normalised to
//     an empty slice when absent
//
// record is not modified. An empty proposal yields an equal record.
func Apply(record *character.LongTerm, proposal *gateway.UpdateProposal) *character.LongTerm {
	merged := &character.LongTerm{
		CharacterID: record.CharacterID,
		Experiences: append([]character.Experience(nil), record.Experiences...),
		Goals:       append([]character.Goal(nil), record.Goals...),
		Memories:    append([]character.Memory(nil), record.Memories...),
	}
	if proposal == nil {
		return merged
	}

	for _, exp := range proposal.NewExperiences {
		merged.Experiences = append(merged.Experiences, character.Experience{
			Event:      exp.Event,
			Importance: exp.Importance,
		})
	}

	for _, pg := range proposal.UpdatedGoals {
		found := false
		for i := range merged.Goals {
			if merged.Goals[i].Goal == pg.Goal {
				merged.Goals[i].Importance = pg.Importance
				found = true
				break
			}
		}
		if !found {
			merged.Goals = append(merged.Goals, character.Goal{
				Goal:       pg.Goal,
				Importance: pg.Importance,
			})
		}
	}

	for _, pm := range proposal.NewMemories {
		related := pm.RelatedCharacterIDs
		if related == nil {
			related = []string{}
		}
		merged.Memories = append(merged.Memories, character.Memory{
			Memory:              pm.Memory,
			SceneIDOfMemory:     pm.SceneIDOfMemory,
			RelatedCharacterIDs: related,
		})
	}

	return merged
}
