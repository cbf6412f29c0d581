package language

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/google/shlex"
)

// Template is an ordered sequence of argument tokens. Tokens may contain
// {src}, {exe} and {workdir} placeholders that are substituted at run time.
// An empty template means "no command configured".
type Template []string

var placeholderRe = regexp.MustCompile(`\{[a-zA-Z_][a-zA-Z0-9_]*\}`)

// Vars holds the substitution values for template placeholders.
type Vars struct {
	Src     string
	Exe     string
	WorkDir string
}

// Resolve expands every placeholder in the template and returns a concrete
// argv. Unknown placeholders resolve to the empty string so that a partially
// specified template degrades instead of failing. A nil result means no
// command is configured.
func (t Template) Resolve(vars Vars) []string {
	if len(t) == 0 {
		return nil
	}
	values := map[string]string{
		"src":     vars.Src,
		"exe":     vars.Exe,
		"workdir": vars.WorkDir,
	}
	argv := make([]string, len(t))
	for i, token := range t {
		argv[i] = placeholderRe.ReplaceAllStringFunc(token, func(m string) string {
			name := strings.Trim(m, "{}")
			return values[name]
		})
	}
	return argv
}

// TemplateFromJSON decodes a command column stored as a JSON-encoded token
// array. Malformed JSON or an empty column yields an empty template, so a
// misconfigured language degrades to "command not configured" downstream
// instead of failing the judging run.
func TemplateFromJSON(raw string) Template {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil
	}
	var tokens []string
	if err := json.Unmarshal([]byte(raw), &tokens); err != nil {
		return nil
	}
	return Template(tokens)
}

// TemplateFromShell splits a shell-style command string from the static
// configuration into tokens. Quoting follows POSIX shell word rules.
func TemplateFromShell(command string) (Template, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, nil
	}
	tokens, err := shlex.Split(command)
	if err != nil {
		return nil, err
	}
	return Template(tokens), nil
}
