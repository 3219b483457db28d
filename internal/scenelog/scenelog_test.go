package scenelog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/dramaturg/internal/scene"
)

func fixtureInfo() scene.Info {
	return scene.Info{
		SceneID:                 "scene_001",
		Location:                "古い図書館",
		Time:                    "夕方",
		Situation:               "埃っぽい閲覧室。",
		ParticipantCharacterIDs: []string{"alice", "bob"},
	}
}

func TestNewSimulationID(t *testing.T) {
	start := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	if got := NewSimulationID(start); got != "sim_20260314_150926" {
		t.Errorf("NewSimulationID() = %q", got)
	}
}

func TestLogRecordTurnNumbersSequentially(t *testing.T) {
	l := NewLog(fixtureInfo())

	first := l.RecordTurn("alice", "アリス", "考えた", "地図を畳む", "行こう")
	second := l.RecordTurn("bob", "ボブ", "", "", "")

	if first.TurnNumber != 1 || second.TurnNumber != 2 {
		t.Errorf("turn numbers = %d, %d, want 1, 2", first.TurnNumber, second.TurnNumber)
	}
	if len(l.Turns) != 2 {
		t.Fatalf("len(Turns) = %d", len(l.Turns))
	}
}

func TestLogRecordInterventionStampsTurnNumber(t *testing.T) {
	l := NewLog(fixtureInfo())
	l.RecordTurn("alice", "アリス", "t", "a", "k")

	iv := l.RecordIntervention(Intervention{
		Type:    SceneSituationUpdate,
		Payload: SceneUpdatePayload{Desc: "照明が落ちる", UpdatedSituationElement: "闇。"},
	})
	if iv.AppliedBeforeTurnNumber != 2 {
		t.Errorf("AppliedBeforeTurnNumber = %d, want 2", iv.AppliedBeforeTurnNumber)
	}
}

func TestLogLastTurns(t *testing.T) {
	l := NewLog(fixtureInfo())
	for i := 0; i < 7; i++ {
		l.RecordTurn("alice", "アリス", "", "act", "")
	}

	got := l.LastTurns(5)
	if len(got) != 5 {
		t.Fatalf("LastTurns(5) returned %d", len(got))
	}
	if got[0].TurnNumber != 3 || got[4].TurnNumber != 7 {
		t.Errorf("window = [%d..%d], want [3..7]", got[0].TurnNumber, got[4].TurnNumber)
	}
	if got := l.LastTurns(0); got != nil {
		t.Errorf("LastTurns(0) = %v, want nil", got)
	}
	if got := l.LastTurns(100); len(got) != 7 {
		t.Errorf("LastTurns(100) returned %d, want all 7", len(got))
	}
}

func TestInterventionJSONRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		iv   Intervention
	}{
		{
			name: "scene update",
			iv: Intervention{
				AppliedBeforeTurnNumber: 3,
				Type:                    SceneSituationUpdate,
				Payload:                 SceneUpdatePayload{Desc: "状況更新", UpdatedSituationElement: "雨が降り始めた。"},
			},
		},
		{
			name: "revelation",
			iv: Intervention{
				AppliedBeforeTurnNumber: 1,
				Type:                    Revelation,
				Payload:                 RevelationPayload{Desc: "天啓", RevelationContent: "鍵は机の下にある"},
				TargetCharacterID:       "alice",
			},
		},
		{
			name: "add character",
			iv: Intervention{
				AppliedBeforeTurnNumber: 2,
				Type:                    AddCharacter,
				Payload:                 GenericPayload{Desc: "登場", ExtraData: map[string]string{"character_id_to_add": "carol"}},
				TargetCharacterID:       "carol",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.iv)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			var got Intervention
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if got.Type != tt.iv.Type ||
				got.AppliedBeforeTurnNumber != tt.iv.AppliedBeforeTurnNumber ||
				got.TargetCharacterID != tt.iv.TargetCharacterID {
				t.Errorf("envelope mismatch: got %+v", got)
			}
			if got.Payload.Description() != tt.iv.Payload.Description() {
				t.Errorf("payload description = %q, want %q",
					got.Payload.Description(), tt.iv.Payload.Description())
			}
		})
	}
}

func TestInterventionUnmarshalRejectsUnknownType(t *testing.T) {
	var iv Intervention
	err := json.Unmarshal([]byte(`{"intervention_type":"TELEPORT","intervention":{}}`), &iv)
	if err == nil {
		t.Fatal("Unmarshal with unknown type succeeded, want error")
	}
}

func TestWriterFlush(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "sim_20260314_150926")
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	l := NewLog(fixtureInfo())
	l.RecordTurn("alice", "アリス", "静かだ", "本を閉じる", "「もう行かないと」")
	l.RecordIntervention(Intervention{
		Type:              Revelation,
		Payload:           RevelationPayload{Desc: "天啓", RevelationContent: "裏口は開いている"},
		TargetCharacterID: "alice",
	})

	if err := w.Flush(l); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	path := filepath.Join(dir, "sim_20260314_150926", "scene_scene_001.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}

	// Non-ASCII text must not be escaped.
	if !strings.Contains(string(data), "「もう行かないと」") {
		t.Error("Japanese text was escaped in the persisted log")
	}

	var got Log
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("re-parse persisted log: %v", err)
	}
	if got.SceneInfo.SceneID != "scene_001" {
		t.Errorf("SceneID = %q", got.SceneInfo.SceneID)
	}
	if len(got.Turns) != 1 || got.Turns[0].Talk != "「もう行かないと」" {
		t.Errorf("turns = %+v", got.Turns)
	}
	if len(got.Interventions) != 1 || got.Interventions[0].Type != Revelation {
		t.Errorf("interventions = %+v", got.Interventions)
	}

	// Flushing again overwrites rather than appending.
	l.RecordTurn("bob", "ボブ", "", "", "")
	if err := w.Flush(l); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
	data, _ = os.ReadFile(path)
	var again Log
	if err := json.Unmarshal(data, &again); err != nil {
		t.Fatalf("re-parse after second flush: %v", err)
	}
	if len(again.Turns) != 2 {
		t.Errorf("turns after second flush = %d, want 2", len(again.Turns))
	}
}

func TestWriterFlushBestEffortSwallowsErrors(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "sim_x")
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	// Remove the run directory so the flush fails.
	if err := os.RemoveAll(filepath.Join(dir, "sim_x")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	// Must not panic; the in-memory log stays usable.
	w.FlushBestEffort(NewLog(fixtureInfo()))
}
