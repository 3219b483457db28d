package prompt

import (
	"strings"
)

// RenderTemplate substitutes {{key}} and {{key_str}} placeholders in template
// with the corresponding values. Placeholders with no matching key pass
// through untouched.
//
// When values has no "character_name" entry but does have an
// "immutable_context" entry, the character's name is recovered from the
// profile section header and substituted for {{character_name}}.
func RenderTemplate(template string, values map[string]string) string {
	out := template
	for key, value := range values {
		out = strings.ReplaceAll(out, "{{"+key+"}}", value)
		out = strings.ReplaceAll(out, "{{"+key+"_str}}", value)
	}

	if _, ok := values["character_name"]; !ok {
		if name := nameFromImmutableContext(values["immutable_context"]); name != "" {
			out = strings.ReplaceAll(out, "{{character_name}}", name)
		}
	}

	return out
}

// nameFromImmutableContext extracts the character name from a rendered
// profile section of the form 【キャラクター基本情報】\n<name>は...
func nameFromImmutableContext(immutable string) string {
	if immutable == "" || !strings.Contains(immutable, "は") {
		return ""
	}
	namePart, _, _ := strings.Cut(immutable, "は")
	if !strings.Contains(namePart, "【キャラクター基本情報】") {
		return ""
	}
	_, name, ok := strings.Cut(namePart, "】\n")
	if !ok {
		return ""
	}
	return strings.TrimSpace(name)
}
