package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/dramaturg/internal/scenelog"
)

// Canonical intervention command verbs. [ParseCommand] also accepts the
// short aliases update, revelation, add, remove, and end.
const (
	VerbUpdateSituation  = "update_situation"
	VerbGiveRevelation   = "give_revelation"
	VerbAddCharacter     = "add_character"
	VerbRemoveCharacter  = "remove_character"
	VerbEndScene         = "end_scene"
	VerbTriggerLTMUpdate = "trigger_ltm_update"
)

// Command is a parsed operator intervention command.
type Command struct {
	// Verb is one of the canonical verb constants.
	Verb string

	// Target is the character id, for verbs that take one.
	Target string

	// Text is the free-text remainder: the new situation or the revelation
	// content.
	Text string
}

// ParseCommand splits one operator command line into a [Command]. Aliases
// are normalised to their canonical verbs and argument counts are checked;
// membership checks are left to [Engine.ProcessInterventionCommand].
func ParseCommand(s string) (*Command, error) {
	parts := strings.Fields(s)
	if len(parts) == 0 {
		return nil, errors.New("engine: empty intervention command")
	}
	verb, args := strings.ToLower(parts[0]), parts[1:]

	switch verb {
	case VerbUpdateSituation, "update":
		if len(args) < 1 {
			return nil, errors.New("engine: update_situation requires the new situation text")
		}
		return &Command{Verb: VerbUpdateSituation, Text: strings.Join(args, " ")}, nil

	case VerbGiveRevelation, "revelation":
		if len(args) < 2 {
			return nil, errors.New("engine: give_revelation requires a character id and the revelation text")
		}
		return &Command{Verb: VerbGiveRevelation, Target: args[0], Text: strings.Join(args[1:], " ")}, nil

	case VerbAddCharacter, "add":
		if len(args) < 1 {
			return nil, errors.New("engine: add_character requires a character id")
		}
		return &Command{Verb: VerbAddCharacter, Target: args[0]}, nil

	case VerbRemoveCharacter, "remove":
		if len(args) < 1 {
			return nil, errors.New("engine: remove_character requires a character id")
		}
		return &Command{Verb: VerbRemoveCharacter, Target: args[0]}, nil

	case VerbEndScene, "end":
		return &Command{Verb: VerbEndScene}, nil

	case VerbTriggerLTMUpdate:
		if len(args) < 1 {
			return nil, errors.New("engine: trigger_ltm_update requires a character id")
		}
		return &Command{Verb: VerbTriggerLTMUpdate, Target: args[0]}, nil

	default:
		return nil, fmt.Errorf("engine: unknown intervention type %q", verb)
	}
}

// ProcessInterventionCommand parses and applies one operator command line.
// It returns whether the intervention was applied plus an operator-facing
// message either way. Pre-checks (argument counts, character existence,
// scene membership) fail without touching any state.
func (e *Engine) ProcessInterventionCommand(ctx context.Context, commandStr string) (bool, string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.log == nil {
		return false, "simulation is not running"
	}

	cmd, err := ParseCommand(commandStr)
	if err != nil {
		return false, strings.TrimPrefix(err.Error(), "engine: ")
	}

	switch cmd.Verb {
	case VerbUpdateSituation:
		iv := scenelog.Intervention{
			Type: scenelog.SceneSituationUpdate,
			Payload: scenelog.SceneUpdatePayload{
				Desc:                    "ユーザーによる場面状況の更新",
				UpdatedSituationElement: cmd.Text,
			},
		}
		if err := e.processIntervention(ctx, iv); err != nil {
			return false, err.Error()
		}
		return true, "situation updated: " + cmd.Text

	case VerbGiveRevelation:
		if _, err := e.chars.Immutable(cmd.Target); err != nil {
			return false, fmt.Sprintf("character %q not found", cmd.Target)
		}
		if !e.scene.Contains(cmd.Target) {
			return false, fmt.Sprintf("character %q is not in the current scene", cmd.Target)
		}
		iv := scenelog.Intervention{
			Type: scenelog.Revelation,
			Payload: scenelog.RevelationPayload{
				Desc:              fmt.Sprintf("ユーザーからキャラクター '%s' への天啓", cmd.Target),
				RevelationContent: cmd.Text,
			},
			TargetCharacterID: cmd.Target,
		}
		if err := e.processIntervention(ctx, iv); err != nil {
			return false, err.Error()
		}
		return true, fmt.Sprintf("revelation given to %q", cmd.Target)

	case VerbAddCharacter:
		if err := e.chars.Load(cmd.Target); err != nil {
			return false, fmt.Sprintf("character %q could not be loaded: %v", cmd.Target, err)
		}
		if e.scene.Contains(cmd.Target) {
			return false, fmt.Sprintf("character %q is already in the scene", cmd.Target)
		}
		iv := scenelog.Intervention{
			Type: scenelog.AddCharacter,
			Payload: scenelog.GenericPayload{
				Desc:      fmt.Sprintf("ユーザーによるキャラクター '%s' の追加", cmd.Target),
				ExtraData: map[string]string{"character_id_to_add": cmd.Target},
			},
		}
		if err := e.processIntervention(ctx, iv); err != nil {
			return false, err.Error()
		}
		return true, fmt.Sprintf("character %q added to the scene", cmd.Target)

	case VerbRemoveCharacter:
		if !e.scene.Contains(cmd.Target) {
			return false, fmt.Sprintf("character %q is not in the current scene", cmd.Target)
		}
		iv := scenelog.Intervention{
			Type: scenelog.RemoveCharacter,
			Payload: scenelog.GenericPayload{
				Desc:      fmt.Sprintf("ユーザーによるキャラクター '%s' の削除", cmd.Target),
				ExtraData: map[string]string{"character_id_to_remove": cmd.Target},
			},
		}
		if err := e.processIntervention(ctx, iv); err != nil {
			return false, err.Error()
		}
		return true, fmt.Sprintf("character %q removed from the scene", cmd.Target)

	case VerbEndScene:
		iv := scenelog.Intervention{
			Type: scenelog.EndScene,
			Payload: scenelog.GenericPayload{
				Desc:      "ユーザーによる場面終了",
				ExtraData: map[string]string{},
			},
		}
		if err := e.processIntervention(ctx, iv); err != nil {
			return false, err.Error()
		}
		return true, "scene will end before the next turn"

	case VerbTriggerLTMUpdate:
		if _, err := e.chars.Immutable(cmd.Target); err != nil {
			return false, fmt.Sprintf("character %q not found", cmd.Target)
		}
		if !e.scene.Contains(cmd.Target) {
			return false, fmt.Sprintf("character %q is not in the current scene", cmd.Target)
		}
		iv := scenelog.Intervention{
			Type: scenelog.TriggerLongTermUpdate,
			Payload: scenelog.GenericPayload{
				Desc:      fmt.Sprintf("ユーザーによるキャラクター '%s' の長期情報更新", cmd.Target),
				ExtraData: map[string]string{},
			},
			TargetCharacterID: cmd.Target,
		}
		// The command path reports the update outcome, so the record and
		// the update run separately instead of through applyIntervention.
		e.log.RecordIntervention(iv)
		e.metrics.RecordIntervention(ctx, string(iv.Type))
		e.writer.FlushBestEffort(e.log)
		if _, err := e.updateLongTerm(ctx, cmd.Target); err != nil {
			return false, fmt.Sprintf("long-term update for %q failed: %v", cmd.Target, err)
		}
		return true, fmt.Sprintf("long-term memory of %q updated", cmd.Target)
	}

	return false, fmt.Sprintf("unknown intervention type %q", cmd.Verb)
}
