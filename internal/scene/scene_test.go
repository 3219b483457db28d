package scene

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

const validSceneYAML = `scene_id: scene_001
location: 古い図書館
time: 夕方
situation: |
  埃っぽい閲覧室。アリスが地図を広げている。
participant_character_ids:
  - alice
  - bob
`

func TestLoadFromReader(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{name: "valid", yaml: validSceneYAML},
		{name: "missing scene_id", yaml: strings.Replace(validSceneYAML, "scene_id: scene_001", "scene_id: \"\"", 1), wantErr: true},
		{name: "missing situation", yaml: "scene_id: s1\nparticipant_character_ids: [a]\n", wantErr: true},
		{name: "duplicate participant", yaml: "scene_id: s1\nsituation: x\nparticipant_character_ids: [a, a]\n", wantErr: true},
		{name: "unknown field", yaml: validSceneYAML + "weather: rainy\n", wantErr: true},
		{name: "malformed yaml", yaml: "scene_id: [", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := LoadFromReader(strings.NewReader(tt.yaml))
			if tt.wantErr {
				if err == nil {
					t.Fatal("LoadFromReader() succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadFromReader() error: %v", err)
			}
			if info.SceneID != "scene_001" {
				t.Errorf("SceneID = %q", info.SceneID)
			}
			if got := info.ParticipantCharacterIDs; !reflect.DeepEqual(got, []string{"alice", "bob"}) {
				t.Errorf("participants = %v", got)
			}
		})
	}
}

func loadedState(t *testing.T) *State {
	t.Helper()
	info, err := LoadFromReader(strings.NewReader(validSceneYAML))
	if err != nil {
		t.Fatalf("fixture: %v", err)
	}
	st := NewState()
	if err := st.Load(info); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return st
}

func TestStateRequiresLoadedScene(t *testing.T) {
	st := NewState()

	if _, err := st.Info(); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Info() error = %v, want ErrNotLoaded", err)
	}
	if err := st.UpdateSituation("x"); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("UpdateSituation() error = %v, want ErrNotLoaded", err)
	}
	if err := st.AddParticipant("c"); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("AddParticipant() error = %v, want ErrNotLoaded", err)
	}
	if err := st.RemoveParticipant("c"); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("RemoveParticipant() error = %v, want ErrNotLoaded", err)
	}
}

func TestStateUpdateSituation(t *testing.T) {
	st := loadedState(t)

	if err := st.UpdateSituation("突然、照明が落ちた。"); err != nil {
		t.Fatalf("UpdateSituation() error: %v", err)
	}
	got, err := st.Situation()
	if err != nil {
		t.Fatalf("Situation() error: %v", err)
	}
	if got != "突然、照明が落ちた。" {
		t.Errorf("Situation() = %q", got)
	}
}

func TestStateParticipants(t *testing.T) {
	st := loadedState(t)

	if err := st.AddParticipant("carol"); err != nil {
		t.Fatalf("AddParticipant() error: %v", err)
	}
	// Adding again is a silent no-op.
	if err := st.AddParticipant("carol"); err != nil {
		t.Fatalf("AddParticipant() repeat error: %v", err)
	}
	got, _ := st.Participants()
	if want := []string{"alice", "bob", "carol"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Participants() = %v, want %v", got, want)
	}

	if err := st.RemoveParticipant("bob"); err != nil {
		t.Fatalf("RemoveParticipant() error: %v", err)
	}
	got, _ = st.Participants()
	if want := []string{"alice", "carol"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Participants() after remove = %v, want %v", got, want)
	}

	if err := st.RemoveParticipant("bob"); !errors.Is(err, ErrNotInScene) {
		t.Errorf("RemoveParticipant(absent) error = %v, want ErrNotInScene", err)
	}

	if !st.Contains("alice") || st.Contains("bob") {
		t.Error("Contains() inconsistent with participant list")
	}
}

func TestStateInfoReturnsCopy(t *testing.T) {
	st := loadedState(t)

	info, _ := st.Info()
	info.ParticipantCharacterIDs[0] = "mallory"
	again, _ := st.Info()
	if again.ParticipantCharacterIDs[0] != "alice" {
		t.Error("state mutated through returned copy")
	}
}
