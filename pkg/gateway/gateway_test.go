package gateway

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/dramaturg/pkg/provider/llm/mock"
)

func promptsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	thought := "{{character_name}}の番です。\n{{full_context}}\nJSONで応答してください。"
	update := "{{character_name}}の記憶を更新します。\n{{existing_long_term_context}}\n{{recent_significant_events_or_thoughts}}"
	if err := os.WriteFile(filepath.Join(dir, "think_generate.txt"), []byte(thought), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "long_term_update.txt"), []byte(update), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestStripFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "fenced block with json tag",
			in:   "```json\n{\"think\":\"x\"}\n```",
			want: `{"think":"x"}`,
		},
		{
			name: "fenced block without tag close only",
			in:   "{\"a\":1}\n```",
			want: `{"a":1}`,
		},
		{
			name: "inline markers",
			in:   "```json{\"a\":1}```",
			want: `{"a":1}`,
		},
		{
			name: "no fences",
			in:   "  {\"a\":1}\n",
			want: `{"a":1}`,
		},
		{
			name: "surrounding prose preserved fences removed",
			in:   "```json\n{\n  \"think\": \"静かだ\"\n}\n```\n",
			want: "{\n  \"think\": \"静かだ\"\n}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripFence(tt.in); got != tt.want {
				t.Errorf("StripFence() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGenerateThought(t *testing.T) {
	p := &mock.Provider{}
	p.QueueContent("```json\n{\"think\": \"逃げたい\", \"act\": \"\", \"talk\": \"ここを出よう\"}\n```")

	g, err := New(p, promptsDir(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	values := map[string]string{
		"character_name": "アリス",
		"full_context":   "context-body",
	}
	thought, err := g.GenerateThought(context.Background(), values)
	if err != nil {
		t.Fatalf("GenerateThought: %v", err)
	}
	if thought.Think != "逃げたい" || thought.Act != "" || thought.Talk != "ここを出よう" {
		t.Errorf("thought = %+v", thought)
	}

	// The rendered prompt carries the substituted context.
	if len(p.CompleteCalls) != 1 {
		t.Fatalf("Complete called %d times", len(p.CompleteCalls))
	}
	sent := p.CompleteCalls[0].Req.Messages[0].Content
	if !strings.Contains(sent, "アリスの番です。") || !strings.Contains(sent, "context-body") {
		t.Errorf("rendered prompt = %q", sent)
	}
	if p.CompleteCalls[0].Req.Temperature != 0.7 {
		t.Errorf("temperature = %v, want 0.7", p.CompleteCalls[0].Req.Temperature)
	}
}

func TestGenerateThoughtErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		callErr error
		wantErr error
	}{
		{
			name:    "provider failure",
			callErr: errors.New("rate limited"),
			wantErr: ErrGeneration,
		},
		{
			name:    "empty completion",
			content: "",
			wantErr: ErrGeneration,
		},
		{
			name:    "not json",
			content: "ごめんなさい、できません。",
			wantErr: ErrInvalidResponse,
		},
		{
			name:    "missing talk key",
			content: `{"think": "x", "act": "y"}`,
			wantErr: ErrInvalidResponse,
		},
		{
			name:    "non-string value",
			content: `{"think": "x", "act": "y", "talk": 3}`,
			wantErr: ErrInvalidResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &mock.Provider{}
			if tt.callErr != nil {
				p.Queue(nil, tt.callErr)
			} else {
				p.QueueContent(tt.content)
			}
			g, _ := New(p, promptsDir(t))

			_, err := g.GenerateThought(context.Background(), map[string]string{})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("GenerateThought error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestGenerateThoughtTemplateNotFound(t *testing.T) {
	p := &mock.Provider{}
	g, _ := New(p, t.TempDir())

	_, err := g.GenerateThought(context.Background(), map[string]string{})
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("error = %v, want ErrTemplateNotFound", err)
	}
	if len(p.CompleteCalls) != 0 {
		t.Error("provider called despite missing template")
	}
}

func TestGenerateLongTermUpdate(t *testing.T) {
	p := &mock.Provider{}
	p.QueueContent(`{
		"new_experiences": [{"event": "嵐を越えた", "importance": 8}],
		"updated_goals": [{"goal": "家に帰る", "importance": 9}],
		"new_memories": [{"memory": "ボブの言葉", "scene_id_of_memory": "scene_001", "related_character_ids": ["bob"]}]
	}`)
	g, _ := New(p, promptsDir(t))

	proposal, err := g.GenerateLongTermUpdate(context.Background(), map[string]string{"character_name": "アリス"})
	if err != nil {
		t.Fatalf("GenerateLongTermUpdate: %v", err)
	}
	if len(proposal.NewExperiences) != 1 || proposal.NewExperiences[0].Importance != 8 {
		t.Errorf("NewExperiences = %+v", proposal.NewExperiences)
	}
	if len(proposal.UpdatedGoals) != 1 || proposal.UpdatedGoals[0].Goal != "家に帰る" {
		t.Errorf("UpdatedGoals = %+v", proposal.UpdatedGoals)
	}
	if len(proposal.NewMemories) != 1 || proposal.NewMemories[0].SceneIDOfMemory != "scene_001" {
		t.Errorf("NewMemories = %+v", proposal.NewMemories)
	}
	if proposal.Empty() {
		t.Error("Empty() = true for a populated proposal")
	}
}

func TestParseUpdateProposalShape(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{
			name:    "no recognised keys",
			raw:     `{"something_else": []}`,
			wantErr: "none of",
		},
		{
			name:    "experiences not a list",
			raw:     `{"new_experiences": {"event": "x"}}`,
			wantErr: "new_experiences must be a list",
		},
		{
			name:    "importance out of range",
			raw:     `{"new_experiences": [{"event": "x", "importance": 11}]}`,
			wantErr: "new_experiences[0].importance",
		},
		{
			name:    "goal importance zero",
			raw:     `{"updated_goals": [{"goal": "x", "importance": 0}]}`,
			wantErr: "updated_goals[0].importance",
		},
		{
			name:    "memory without text",
			raw:     `{"new_memories": [{"scene_id_of_memory": "s"}]}`,
			wantErr: "new_memories[0].memory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseUpdateProposal(tt.raw)
			if err == nil {
				t.Fatal("parseUpdateProposal succeeded, want error")
			}
			if !errors.Is(err, ErrInvalidResponse) {
				t.Errorf("error = %v, want ErrInvalidResponse", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not name %q", err, tt.wantErr)
			}
		})
	}

	t.Run("single key is enough", func(t *testing.T) {
		proposal, err := parseUpdateProposal(`{"new_memories": []}`)
		if err != nil {
			t.Fatalf("parseUpdateProposal: %v", err)
		}
		if !proposal.Empty() {
			t.Error("Empty() = false for a proposal with empty lists")
		}
	})
}
