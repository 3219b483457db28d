package gateway

import (
	"encoding/json"
	"fmt"
)

// ProposedExperience is one experience suggested by a memory update.
type ProposedExperience struct {
	Event      string `json:"event"`
	Importance int    `json:"importance"`
}

// ProposedGoal is one goal suggested by a memory update. Goals are matched
// against existing goals by exact text when applied.
type ProposedGoal struct {
	Goal       string `json:"goal"`
	Importance int    `json:"importance"`
}

// ProposedMemory is one memory suggested by a memory update.
type ProposedMemory struct {
	Memory              string   `json:"memory"`
	SceneIDOfMemory     string   `json:"scene_id_of_memory"`
	RelatedCharacterIDs []string `json:"related_character_ids"`
}

// UpdateProposal is the validated output of a long-term memory update call.
// Any combination of the three lists may be present; a proposal with no keys
// at all is rejected at parse time.
type UpdateProposal struct {
	NewExperiences []ProposedExperience `json:"new_experiences,omitempty"`
	UpdatedGoals   []ProposedGoal       `json:"updated_goals,omitempty"`
	NewMemories    []ProposedMemory     `json:"new_memories,omitempty"`
}

// parseUpdateProposal parses and shape-checks the cleaned JSON text of a
// memory update response. Errors name the offending field path.
func parseUpdateProposal(raw string) (*UpdateProposal, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("%w: not a JSON object: %w", ErrInvalidResponse, err)
	}

	_, hasExp := fields["new_experiences"]
	_, hasGoals := fields["updated_goals"]
	_, hasMem := fields["new_memories"]
	if !hasExp && !hasGoals && !hasMem {
		return nil, fmt.Errorf("%w: none of new_experiences, updated_goals, new_memories present", ErrInvalidResponse)
	}

	var proposal UpdateProposal

	if hasExp {
		if err := json.Unmarshal(fields["new_experiences"], &proposal.NewExperiences); err != nil {
			return nil, fmt.Errorf("%w: new_experiences must be a list: %w", ErrInvalidResponse, err)
		}
		for i, exp := range proposal.NewExperiences {
			if exp.Event == "" {
				return nil, fmt.Errorf("%w: new_experiences[%d].event must not be empty", ErrInvalidResponse, i)
			}
			if exp.Importance < 1 || exp.Importance > 10 {
				return nil, fmt.Errorf("%w: new_experiences[%d].importance must be in [1, 10], got %d", ErrInvalidResponse, i, exp.Importance)
			}
		}
	}

	if hasGoals {
		if err := json.Unmarshal(fields["updated_goals"], &proposal.UpdatedGoals); err != nil {
			return nil, fmt.Errorf("%w: updated_goals must be a list: %w", ErrInvalidResponse, err)
		}
		for i, g := range proposal.UpdatedGoals {
			if g.Goal == "" {
				return nil, fmt.Errorf("%w: updated_goals[%d].goal must not be empty", ErrInvalidResponse, i)
			}
			if g.Importance < 1 || g.Importance > 10 {
				return nil, fmt.Errorf("%w: updated_goals[%d].importance must be in [1, 10], got %d", ErrInvalidResponse, i, g.Importance)
			}
		}
	}

	if hasMem {
		if err := json.Unmarshal(fields["new_memories"], &proposal.NewMemories); err != nil {
			return nil, fmt.Errorf("%w: new_memories must be a list: %w", ErrInvalidResponse, err)
		}
		for i, m := range proposal.NewMemories {
			if m.Memory == "" {
				return nil, fmt.Errorf("%w: new_memories[%d].memory must not be empty", ErrInvalidResponse, i)
			}
		}
	}

	return &proposal, nil
}

// Empty reports whether the proposal suggests no changes at all.
func (p *UpdateProposal) Empty() bool {
	return len(p.NewExperiences) == 0 && len(p.UpdatedGoals) == 0 && len(p.NewMemories) == 0
}
