package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/MrWong99/dramaturg/internal/character"
	"github.com/MrWong99/dramaturg/internal/scene"
	"github.com/MrWong99/dramaturg/internal/scenelog"
)

// The formatting in this file is part of the wire contract with the prompt
// templates: section markers, quoting, and phrasing must stay byte-stable or
// the model's output quality degrades. Change with care.

// FormatImmutable renders the character's fixed profile.
func FormatImmutable(im *character.Immutable) string {
	if im == nil {
		return "【キャラクター基本情報】\n情報がありません。"
	}

	var b strings.Builder
	b.WriteString("【キャラクター基本情報】\n")
	b.WriteString(im.Name)
	b.WriteString("は")
	if im.Age != nil {
		fmt.Fprintf(&b, "、%d歳の", *im.Age)
	}
	if im.Occupation != "" {
		b.WriteString(im.Occupation)
		b.WriteString("です。")
	} else {
		b.WriteString("人物です。")
	}
	fmt.Fprintf(&b, "\n\n性格特性:\n%s", im.BasePersonality)
	return b.String()
}

// FormatLongTerm renders the character's experiences, goals, and memories.
// Experiences and goals are ordered by importance, highest first, with the
// original order preserved among equals. Memories keep insertion order.
// resolveName maps related character ids to display names.
func FormatLongTerm(lt *character.LongTerm, resolveName func(string) string) string {
	if lt == nil {
		return "【経験と記憶】\n情報がありません。"
	}
	if resolveName == nil {
		resolveName = func(id string) string { return id }
	}

	var b strings.Builder
	b.WriteString("【経験と記憶】\n")

	if len(lt.Experiences) > 0 {
		sorted := append([]character.Experience(nil), lt.Experiences...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Importance > sorted[j].Importance
		})
		b.WriteString("【過去の重要な経験】\n")
		for _, exp := range sorted {
			fmt.Fprintf(&b, "- %s (重要度: %d/10)\n", exp.Event, exp.Importance)
		}
	} else {
		b.WriteString("【過去の重要な経験】\n特に記録されている経験はありません。\n")
	}

	if len(lt.Goals) > 0 {
		sorted := append([]character.Goal(nil), lt.Goals...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Importance > sorted[j].Importance
		})
		b.WriteString("\n【現在の目標/願望】\n")
		for _, g := range sorted {
			fmt.Fprintf(&b, "- %s (重要度: %d/10)\n", g.Goal, g.Importance)
		}
	} else {
		b.WriteString("\n【現在の目標/願望】\n特に記録されている目標はありません。\n")
	}

	if len(lt.Memories) > 0 {
		b.WriteString("\n【記憶】\n")
		for _, m := range lt.Memories {
			names := make([]string, 0, len(m.RelatedCharacterIDs))
			for _, id := range m.RelatedCharacterIDs {
				names = append(names, resolveName(id))
			}
			related := "なし"
			if len(names) > 0 {
				related = strings.Join(names, "、")
			}
			fmt.Fprintf(&b, "- %s (場面: %s, 関連キャラクター: %s)\n", m.Memory, m.SceneIDOfMemory, related)
		}
	} else {
		b.WriteString("\n【記憶】\n特に記録されている記憶はありません。\n")
	}

	return b.String()
}

// FormatScene renders the current scene declaration. resolveName maps
// participant ids to display names; ids that cannot be resolved appear
// verbatim.
func FormatScene(info *scene.Info, resolveName func(string) string) string {
	if info == nil {
		return "【現在の場面情報】\n情報がありません。"
	}
	if resolveName == nil {
		resolveName = func(id string) string { return id }
	}

	var b strings.Builder
	b.WriteString("【現在の場面情報】\n")

	var locTime string
	if info.Location != "" {
		locTime = fmt.Sprintf("場所は「%s」", info.Location)
	}
	if info.Time != "" {
		if locTime != "" {
			locTime += fmt.Sprintf("、時刻は「%s」", info.Time)
		} else {
			locTime = fmt.Sprintf("時刻は「%s」", info.Time)
		}
	}
	if locTime != "" {
		b.WriteString(locTime)
		b.WriteString("です。\n\n")
	}

	fmt.Fprintf(&b, "状況:\n%s\n\n", info.Situation)

	if len(info.ParticipantCharacterIDs) > 0 {
		names := make([]string, 0, len(info.ParticipantCharacterIDs))
		for _, id := range info.ParticipantCharacterIDs {
			names = append(names, resolveName(id))
		}
		fmt.Fprintf(&b, "この場面に参加しているキャラクター: %s", strings.Join(names, ", "))
	}

	return b.String()
}

// FormatShortTerm renders up to maxTurns most recent turns as visible
// dialogue. Thoughts are internal and never included.
func FormatShortTerm(turns []scenelog.Turn) string {
	if len(turns) == 0 {
		return "【最近のやり取り】\nまだやり取りは始まっていません。"
	}
	if len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}

	var b strings.Builder
	b.WriteString("【最近のやり取り】\n")
	for _, t := range turns {
		switch {
		case t.Act != "" && t.Talk != "":
			fmt.Fprintf(&b, "%s：%s 「%s」\n\n", t.CharacterName, t.Act, t.Talk)
		case t.Act != "":
			fmt.Fprintf(&b, "%s：%s\n\n", t.CharacterName, t.Act)
		case t.Talk != "":
			fmt.Fprintf(&b, "%s：「%s」\n\n", t.CharacterName, t.Talk)
		default:
			fmt.Fprintf(&b, "%s：(何も行動せず、何も話さなかった)\n\n", t.CharacterName)
		}
	}
	return strings.TrimSpace(b.String())
}

// FormatRevelations frames pending revelations for delivery at the top of a
// character's next turn context. Returns "" when there are none.
func FormatRevelations(revelations []string) string {
	if len(revelations) == 0 {
		return ""
	}
	lines := make([]string, len(revelations))
	for i, rev := range revelations {
		lines[i] = "- " + rev
	}
	return "【あなたは次の天啓を受けました】\n" + strings.Join(lines, "\n")
}

// formatPreviousScene frames a previous-scene summary (or pending revelation
// block) as its own context section. Returns "" for empty input.
func formatPreviousScene(summary string) string {
	if summary == "" {
		return ""
	}
	return "【前の場面のサマリー】\n" + summary
}

// formatSignificantEvents renders the material a long-term memory update is
// based on: the scene situation, interventions that concern the character,
// and the last maxSignificantTurns turns. The character's own turns appear in
// first person including thoughts; other characters contribute only their
// visible actions and speech.
func formatSignificantEvents(characterID string, l *scenelog.Log) string {
	if l == nil || len(l.Turns) == 0 {
		return "まだ重要な出来事は発生していません。"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "【場面の状況】\n%s\n\n", l.SceneInfo.Situation)

	if len(l.Interventions) > 0 {
		b.WriteString("【ユーザー介入】\n")
		for _, iv := range l.Interventions {
			if iv.TargetCharacterID != "" && iv.TargetCharacterID != characterID {
				continue
			}
			switch p := iv.Payload.(type) {
			case scenelog.SceneUpdatePayload:
				fmt.Fprintf(&b, "- ターン%d前: 場面状況が更新されました：%s\n", iv.AppliedBeforeTurnNumber, p.UpdatedSituationElement)
			case scenelog.RevelationPayload:
				fmt.Fprintf(&b, "- ターン%d前: あなたは天啓を受けました：%s\n", iv.AppliedBeforeTurnNumber, p.RevelationContent)
			default:
				fmt.Fprintf(&b, "- ターン%d前: %sタイプの介入がありました\n", iv.AppliedBeforeTurnNumber, iv.Type)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("【重要な出来事や会話】\n")
	turns := l.Turns
	if len(turns) > maxSignificantTurns {
		turns = turns[len(turns)-maxSignificantTurns:]
	}
	for _, t := range turns {
		if t.CharacterID == characterID {
			fmt.Fprintf(&b, "ターン%d: あなたは考えました：「%s」\n", t.TurnNumber, t.Think)
			if t.Act != "" {
				fmt.Fprintf(&b, "ターン%d: あなたは行動しました：%s\n", t.TurnNumber, t.Act)
			}
			if t.Talk != "" {
				fmt.Fprintf(&b, "ターン%d: あなたは発言しました：「%s」\n", t.TurnNumber, t.Talk)
			}
			continue
		}
		if t.Act != "" {
			fmt.Fprintf(&b, "ターン%d: %sは行動しました：%s\n", t.TurnNumber, t.CharacterName, t.Act)
		}
		if t.Talk != "" {
			fmt.Fprintf(&b, "ターン%d: %sは発言しました：「%s」\n", t.TurnNumber, t.CharacterName, t.Talk)
		}
	}

	return b.String()
}
