package template

import (
	"fmt"
	"regexp"
	"sort"
)

// placeholderRe matches {{name}} placeholders. Whitespace inside the
// braces is tolerated on input and normalized away during rendering.
var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z][a-zA-Z0-9_]*)\s*\}\}`)

// Render substitutes every placeholder whose name appears in ctx with the
// context value. Placeholders with no matching context entry are left
// verbatim. Rendering is pure: an empty context returns the body unchanged.
func Render(body string, ctx map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(body, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		if value, ok := ctx[name]; ok {
			return value
		}
		return match
	})
}

// ExtractVariables returns the sorted set of placeholder names used in a body.
func ExtractVariables(body string) []string {
	seen := make(map[string]struct{})
	for _, m := range placeholderRe.FindAllStringSubmatch(body, -1) {
		seen[m[1]] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks a template's body against its declared variables and
// reports placeholders used in the body but not declared.
func Validate(tmpl *Template) error {
	if tmpl.Body == "" {
		return fmt.Errorf("template body is required")
	}

	declared := make(map[string]struct{}, len(tmpl.Variables))
	for _, v := range tmpl.Variables {
		declared[v] = struct{}{}
	}

	for _, used := range ExtractVariables(tmpl.Body) {
		if _, ok := declared[used]; !ok {
			return fmt.Errorf("placeholder {{%s}} is not a declared variable", used)
		}
	}

	return nil
}
