package engine

import (
	"context"
	"fmt"

	"github.com/MrWong99/dramaturg/internal/scenelog"
)

// ProcessIntervention records iv in the scene log and applies its effect.
//
// The record always lands in the log, even when the effect cannot be applied;
// application failures are logged and do not stop the simulation. The scene
// log is flushed afterwards.
func (e *Engine) ProcessIntervention(ctx context.Context, iv scenelog.Intervention) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.processIntervention(ctx, iv)
}

// processIntervention is the locked core of intervention handling.
// Callers must hold e.mu.
func (e *Engine) processIntervention(ctx context.Context, iv scenelog.Intervention) error {
	if e.log == nil {
		return fmt.Errorf("engine: process intervention: %w", ErrNotRunning)
	}
	if !iv.Type.IsValid() {
		return fmt.Errorf("engine: process intervention: unknown type %q", iv.Type)
	}

	recorded := e.log.RecordIntervention(iv)
	e.metrics.RecordIntervention(ctx, string(recorded.Type))
	e.logger.Info("intervention received",
		"type", recorded.Type,
		"target_character_id", recorded.TargetCharacterID,
		"applied_before_turn", recorded.AppliedBeforeTurnNumber)

	if err := e.applyIntervention(ctx, recorded); err != nil {
		e.logger.Error("intervention recorded but not applied",
			"type", recorded.Type, "error", err)
	}

	e.writer.FlushBestEffort(e.log)
	return nil
}

// applyIntervention dispatches one recorded intervention to its effect.
// Callers must hold e.mu.
func (e *Engine) applyIntervention(ctx context.Context, iv scenelog.Intervention) error {
	switch iv.Type {
	case scenelog.SceneSituationUpdate:
		p, ok := iv.Payload.(scenelog.SceneUpdatePayload)
		if !ok {
			return fmt.Errorf("engine: scene update carries payload type %T", iv.Payload)
		}
		if err := e.scene.UpdateSituation(p.UpdatedSituationElement); err != nil {
			return fmt.Errorf("engine: update situation: %w", err)
		}
		e.mirrorScene()
		e.logger.Info("scene situation updated", "situation", p.UpdatedSituationElement)

	case scenelog.Revelation:
		if iv.TargetCharacterID == "" {
			return fmt.Errorf("engine: revelation requires a target character")
		}
		p, ok := iv.Payload.(scenelog.RevelationPayload)
		if !ok {
			return fmt.Errorf("engine: revelation carries payload type %T", iv.Payload)
		}
		e.pending[iv.TargetCharacterID] = append(e.pending[iv.TargetCharacterID], p.RevelationContent)
		e.logger.Info("revelation queued",
			"character_id", iv.TargetCharacterID,
			"pending", len(e.pending[iv.TargetCharacterID]))

	case scenelog.AddCharacter:
		id := genericExtra(iv, "character_id_to_add")
		if id == "" {
			return fmt.Errorf("engine: add character: missing character_id_to_add")
		}
		if err := e.chars.Load(id); err != nil {
			return fmt.Errorf("engine: add character: %w", err)
		}
		present := e.scene.Contains(id)
		if err := e.scene.AddParticipant(id); err != nil {
			return fmt.Errorf("engine: add character: %w", err)
		}
		if !present {
			e.metrics.ActiveParticipants.Add(ctx, 1)
		}
		e.mirrorScene()
		e.logger.Info("character added to scene", "character_id", id)

	case scenelog.RemoveCharacter:
		id := genericExtra(iv, "character_id_to_remove")
		if id == "" {
			return fmt.Errorf("engine: remove character: missing character_id_to_remove")
		}
		if err := e.scene.RemoveParticipant(id); err != nil {
			return fmt.Errorf("engine: remove character: %w", err)
		}
		e.metrics.ActiveParticipants.Add(ctx, -1)
		if participants, err := e.scene.Participants(); err == nil && e.turnIndex >= len(participants) {
			e.turnIndex = 0
		}
		e.mirrorScene()
		e.logger.Info("character removed from scene", "character_id", id)

	case scenelog.EndScene:
		e.endRequested = true
		e.logger.Info("scene end requested")

	case scenelog.TriggerLongTermUpdate:
		if iv.TargetCharacterID == "" {
			return fmt.Errorf("engine: long-term update trigger requires a target character")
		}
		if _, err := e.updateLongTerm(ctx, iv.TargetCharacterID); err != nil {
			return err
		}
	}
	return nil
}

// mirrorScene copies the live scene state into the log snapshot so the
// persisted document reflects mid-scene changes. Callers must hold e.mu.
func (e *Engine) mirrorScene() {
	if info, err := e.scene.Info(); err == nil {
		e.log.SetSceneInfo(info)
	}
}

// genericExtra reads one key from a GenericPayload's extra data.
func genericExtra(iv scenelog.Intervention, key string) string {
	p, ok := iv.Payload.(scenelog.GenericPayload)
	if !ok {
		return ""
	}
	return p.ExtraData[key]
}
