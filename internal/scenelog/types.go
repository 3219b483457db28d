// Package scenelog records everything that happens during a scene and
// persists it as an indented JSON document after every turn and intervention.
//
// A [Log] accumulates [Turn] and [Intervention] records alongside a snapshot
// of the scene declaration. [Writer] flushes a log to
// <dir>/<simulation_id>/scene_<scene_id>.json using an atomic
// write-temp-then-rename, so the on-disk document is always complete.
package scenelog

import (
	"encoding/json"
	"fmt"

	"github.com/MrWong99/dramaturg/internal/scene"
)

// Turn is one character's completed turn.
type Turn struct {
	// TurnNumber is 1-based and assigned by [Log.RecordTurn].
	TurnNumber int `json:"turn_number"`

	// CharacterID identifies who acted.
	CharacterID string `json:"character_id"`

	// CharacterName is the display name at the time of the turn.
	CharacterName string `json:"character_name"`

	// Think is the character's internal monologue. Never shown to other
	// characters when assembling their context.
	Think string `json:"think"`

	// Act describes the physical action taken. Empty means no action.
	Act string `json:"act"`

	// Talk is the spoken line. Empty means silence.
	Talk string `json:"talk"`
}

// InterventionType discriminates operator interventions.
type InterventionType string

const (
	// SceneSituationUpdate rewrites the scene's situation text.
	SceneSituationUpdate InterventionType = "SCENE_SITUATION_UPDATE"

	// Revelation privately delivers information to one character before
	// their next turn.
	Revelation InterventionType = "REVELATION"

	// AddCharacter brings a character into the scene.
	AddCharacter InterventionType = "ADD_CHARACTER_TO_SCENE"

	// RemoveCharacter takes a character out of the scene.
	RemoveCharacter InterventionType = "REMOVE_CHARACTER_FROM_SCENE"

	// EndScene requests that the simulation finish before the next turn.
	EndScene InterventionType = "END_SCENE"

	// TriggerLongTermUpdate runs a long-term memory update for one
	// character immediately.
	TriggerLongTermUpdate InterventionType = "TRIGGER_LONG_TERM_UPDATE"
)

// IsValid reports whether t is a recognised intervention type.
func (t InterventionType) IsValid() bool {
	switch t {
	case SceneSituationUpdate, Revelation, AddCharacter, RemoveCharacter,
		EndScene, TriggerLongTermUpdate:
		return true
	}
	return false
}

// Payload is the type-specific body of an intervention. Each implementation
// carries a human-readable description plus its own fields.
type Payload interface {
	// Description returns the operator-facing summary of the intervention.
	Description() string
}

// SceneUpdatePayload carries a situation rewrite.
type SceneUpdatePayload struct {
	Desc                    string `json:"description"`
	UpdatedSituationElement string `json:"updated_situation_element"`
}

// Description implements [Payload].
func (p SceneUpdatePayload) Description() string { return p.Desc }

// RevelationPayload carries information revealed to a single character.
type RevelationPayload struct {
	Desc              string `json:"description"`
	RevelationContent string `json:"revelation_content"`
}

// Description implements [Payload].
func (p RevelationPayload) Description() string { return p.Desc }

// GenericPayload carries interventions whose only structure is a free-form
// key-value map, such as character entry and exit.
type GenericPayload struct {
	Desc      string            `json:"description"`
	ExtraData map[string]string `json:"extra_data,omitempty"`
}

// Description implements [Payload].
func (p GenericPayload) Description() string { return p.Desc }

// Intervention is one operator action applied between turns.
type Intervention struct {
	// AppliedBeforeTurnNumber is the turn number the intervention precedes,
	// i.e. len(turns)+1 at the time it was recorded.
	AppliedBeforeTurnNumber int

	// Type discriminates the payload.
	Type InterventionType

	// Payload holds the type-specific body. Its concrete type must agree
	// with Type: [SceneUpdatePayload] for SceneSituationUpdate,
	// [RevelationPayload] for Revelation, [GenericPayload] otherwise.
	Payload Payload

	// TargetCharacterID names the affected character, when the type
	// requires one. Empty for scene-wide interventions.
	TargetCharacterID string
}

// interventionJSON is the wire form of an [Intervention].
type interventionJSON struct {
	AppliedBeforeTurnNumber int              `json:"applied_before_turn_number"`
	Type                    InterventionType `json:"intervention_type"`
	Payload                 json.RawMessage  `json:"intervention"`
	TargetCharacterID       string           `json:"target_character_id,omitempty"`
}

// MarshalJSON implements [json.Marshaler].
func (iv Intervention) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(iv.Payload)
	if err != nil {
		return nil, fmt.Errorf("scenelog: marshal intervention payload: %w", err)
	}
	return json.Marshal(interventionJSON{
		AppliedBeforeTurnNumber: iv.AppliedBeforeTurnNumber,
		Type:                    iv.Type,
		Payload:                 payload,
		TargetCharacterID:       iv.TargetCharacterID,
	})
}

// UnmarshalJSON implements [json.Unmarshaler], selecting the concrete payload
// type from the intervention_type discriminator.
func (iv *Intervention) UnmarshalJSON(data []byte) error {
	var wire interventionJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("scenelog: unmarshal intervention: %w", err)
	}
	if !wire.Type.IsValid() {
		return fmt.Errorf("scenelog: unknown intervention type %q", wire.Type)
	}

	var payload Payload
	switch wire.Type {
	case SceneSituationUpdate:
		var p SceneUpdatePayload
		if err := json.Unmarshal(wire.Payload, &p); err != nil {
			return fmt.Errorf("scenelog: unmarshal scene update payload: %w", err)
		}
		payload = p
	case Revelation:
		var p RevelationPayload
		if err := json.Unmarshal(wire.Payload, &p); err != nil {
			return fmt.Errorf("scenelog: unmarshal revelation payload: %w", err)
		}
		payload = p
	default:
		var p GenericPayload
		if err := json.Unmarshal(wire.Payload, &p); err != nil {
			return fmt.Errorf("scenelog: unmarshal generic payload: %w", err)
		}
		payload = p
	}

	iv.AppliedBeforeTurnNumber = wire.AppliedBeforeTurnNumber
	iv.Type = wire.Type
	iv.Payload = payload
	iv.TargetCharacterID = wire.TargetCharacterID
	return nil
}

// Log is the complete record of one simulated scene.
type Log struct {
	// SceneInfo is a snapshot of the scene declaration, kept current when
	// interventions change the situation or the participant list.
	SceneInfo scene.Info `json:"scene_info"`

	// Interventions in application order.
	Interventions []Intervention `json:"interventions_in_scene"`

	// Turns in execution order.
	Turns []Turn `json:"turns"`
}

// NewLog creates a Log with a snapshot of info and empty record lists.
func NewLog(info scene.Info) *Log {
	return &Log{
		SceneInfo:     info,
		Interventions: []Intervention{},
		Turns:         []Turn{},
	}
}

// RecordTurn appends a turn, assigning it the next 1-based turn number, and
// returns the recorded value.
func (l *Log) RecordTurn(characterID, characterName, think, act, talk string) Turn {
	turn := Turn{
		TurnNumber:    len(l.Turns) + 1,
		CharacterID:   characterID,
		CharacterName: characterName,
		Think:         think,
		Act:           act,
		Talk:          talk,
	}
	l.Turns = append(l.Turns, turn)
	return turn
}

// RecordIntervention appends iv, stamping AppliedBeforeTurnNumber with the
// number the next turn will receive.
func (l *Log) RecordIntervention(iv Intervention) Intervention {
	iv.AppliedBeforeTurnNumber = len(l.Turns) + 1
	l.Interventions = append(l.Interventions, iv)
	return iv
}

// SetSceneInfo replaces the scene snapshot, mirroring a mid-scene change.
func (l *Log) SetSceneInfo(info scene.Info) {
	l.SceneInfo = info
}

// LastTurns returns up to n most recent turns in chronological order.
func (l *Log) LastTurns(n int) []Turn {
	if n <= 0 || len(l.Turns) == 0 {
		return nil
	}
	if n > len(l.Turns) {
		n = len(l.Turns)
	}
	return append([]Turn(nil), l.Turns[len(l.Turns)-n:]...)
}
