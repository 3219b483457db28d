package engine

import (
	"strings"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Command
		wantErr string
	}{
		{
			name:  "update situation",
			input: "update_situation 突然、雷が鳴り響いた。",
			want:  Command{Verb: VerbUpdateSituation, Text: "突然、雷が鳴り響いた。"},
		},
		{
			name:  "update alias",
			input: "update 新しい状況",
			want:  Command{Verb: VerbUpdateSituation, Text: "新しい状況"},
		},
		{
			name:  "update joins words",
			input: "update 雷が 鳴った",
			want:  Command{Verb: VerbUpdateSituation, Text: "雷が 鳴った"},
		},
		{
			name:  "give revelation",
			input: "give_revelation alice 友人が嘘をついている",
			want:  Command{Verb: VerbGiveRevelation, Target: "alice", Text: "友人が嘘をついている"},
		},
		{
			name:  "revelation alias",
			input: "revelation alice 秘密",
			want:  Command{Verb: VerbGiveRevelation, Target: "alice", Text: "秘密"},
		},
		{
			name:  "add character",
			input: "add_character carol",
			want:  Command{Verb: VerbAddCharacter, Target: "carol"},
		},
		{
			name:  "add alias",
			input: "add carol",
			want:  Command{Verb: VerbAddCharacter, Target: "carol"},
		},
		{
			name:  "remove character",
			input: "remove_character bob",
			want:  Command{Verb: VerbRemoveCharacter, Target: "bob"},
		},
		{
			name:  "remove alias",
			input: "remove bob",
			want:  Command{Verb: VerbRemoveCharacter, Target: "bob"},
		},
		{
			name:  "end scene",
			input: "end_scene",
			want:  Command{Verb: VerbEndScene},
		},
		{
			name:  "end alias",
			input: "end",
			want:  Command{Verb: VerbEndScene},
		},
		{
			name:  "trigger ltm update",
			input: "trigger_ltm_update alice",
			want:  Command{Verb: VerbTriggerLTMUpdate, Target: "alice"},
		},
		{
			name:  "verb is case insensitive",
			input: "END_SCENE",
			want:  Command{Verb: VerbEndScene},
		},
		{
			name:  "surrounding whitespace",
			input: "  end_scene  ",
			want:  Command{Verb: VerbEndScene},
		},
		{
			name:    "empty",
			input:   "   ",
			wantErr: "empty intervention command",
		},
		{
			name:    "unknown verb",
			input:   "teleport alice",
			wantErr: "unknown intervention type",
		},
		{
			name:    "update without text",
			input:   "update_situation",
			wantErr: "requires the new situation text",
		},
		{
			name:    "revelation without content",
			input:   "give_revelation alice",
			wantErr: "requires a character id and the revelation text",
		},
		{
			name:    "add without id",
			input:   "add_character",
			wantErr: "requires a character id",
		},
		{
			name:    "remove without id",
			input:   "remove",
			wantErr: "requires a character id",
		},
		{
			name:    "trigger without id",
			input:   "trigger_ltm_update",
			wantErr: "requires a character id",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseCommand(tc.input)
			if tc.wantErr != "" {
				if err == nil {
					t.Fatalf("ParseCommand(%q) = %+v, want error containing %q", tc.input, got, tc.wantErr)
				}
				if !strings.Contains(err.Error(), tc.wantErr) {
					t.Errorf("error = %v, want it to contain %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCommand(%q): %v", tc.input, err)
			}
			if *got != tc.want {
				t.Errorf("ParseCommand(%q) = %+v, want %+v", tc.input, *got, tc.want)
			}
		})
	}
}
