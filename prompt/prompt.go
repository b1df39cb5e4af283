// Package prompt manages the externalized LLM prompt catalog. Each named
// prompt carries a system message, a user-message template with {variable}
// slots, and a sampling temperature. Rendering is pure substitution; no
// template logic.
package prompt

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultCatalog []byte

type (
	// Prompt is one catalog entry.
	Prompt struct {
		// System is the system message sent with every rendering.
		System string `yaml:"system"`
		// Template is the user-message template. Variable slots use
		// {name} syntax; unknown slots are a rendering error.
		Template string `yaml:"template"`
		// Temperature is the sampling temperature for this prompt.
		Temperature float32 `yaml:"temperature"`
	}

	// Catalog holds the named prompts loaded from YAML.
	Catalog struct {
		prompts map[string]Prompt
	}
)

// Default loads the embedded prompt catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// MustDefault loads the embedded catalog and panics on error. The embedded
// file is validated by tests, so a failure here is a build defect.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// Parse decodes a YAML prompt catalog.
func Parse(raw []byte) (*Catalog, error) {
	var prompts map[string]Prompt
	if err := yaml.Unmarshal(raw, &prompts); err != nil {
		return nil, fmt.Errorf("prompt: parse catalog: %w", err)
	}
	if len(prompts) == 0 {
		return nil, fmt.Errorf("prompt: catalog is empty")
	}
	for name, p := range prompts {
		if p.Template == "" {
			return nil, fmt.Errorf("prompt: %q has no template", name)
		}
	}
	return &Catalog{prompts: prompts}, nil
}

// Names returns the sorted prompt names in the catalog.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.prompts))
	for n := range c.prompts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Render substitutes vars into the named template. Every {name} slot in
// the template must have a variable; the check runs against the template,
// not the output, so braces inside substituted values are inert.
func (c *Catalog) Render(name string, vars map[string]string) (string, error) {
	p, ok := c.prompts[name]
	if !ok {
		return "", fmt.Errorf("prompt: %q not found (available: %s)", name, strings.Join(c.Names(), ", "))
	}
	if missing := missingSlots(p.Template, vars); len(missing) > 0 {
		return "", fmt.Errorf("prompt: %q missing variables: %s", name, strings.Join(missing, ", "))
	}
	return substitute(p.Template, vars), nil
}

// missingSlots returns the template slots not covered by vars, each listed
// once.
func missingSlots(tmpl string, vars map[string]string) []string {
	var missing []string
	seen := make(map[string]struct{})
	for _, slot := range findSlots(tmpl) {
		if _, ok := vars[slot]; ok {
			continue
		}
		if _, dup := seen[slot]; dup {
			continue
		}
		seen[slot] = struct{}{}
		missing = append(missing, slot)
	}
	return missing
}

// substitute replaces {name} slots with their values in a single pass over
// the template. Values are emitted verbatim and never rescanned, so a value
// containing "{scope}" or "${count}" cannot trigger further substitution.
func substitute(tmpl string, vars map[string]string) string {
	var b strings.Builder
	b.Grow(len(tmpl))
	for i := 0; i < len(tmpl); i++ {
		if tmpl[i] != '{' {
			b.WriteByte(tmpl[i])
			continue
		}
		j := strings.IndexByte(tmpl[i:], '}')
		if j > 1 {
			if v, ok := vars[tmpl[i+1:i+j]]; ok && isIdentifier(tmpl[i+1:i+j]) {
				b.WriteString(v)
				i += j
				continue
			}
		}
		b.WriteByte('{')
	}
	return b.String()
}

// System returns the system message for the named prompt.
func (c *Catalog) System(name string) string {
	return c.prompts[name].System
}

// Temperature returns the sampling temperature for the named prompt, or 0.7
// when unset.
func (c *Catalog) Temperature(name string) float32 {
	p, ok := c.prompts[name]
	if !ok || p.Temperature == 0 {
		return 0.7
	}
	return p.Temperature
}

// findSlots returns unresolved {identifier} slots in the rendered text.
// Braced regions containing whitespace or JSON punctuation are treated as
// literal text so templates can include JSON examples.
func findSlots(s string) []string {
	var slots []string
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		j := strings.IndexByte(s[i:], '}')
		if j < 0 {
			break
		}
		inner := s[i+1 : i+j]
		if inner != "" && isIdentifier(inner) {
			slots = append(slots, inner)
		}
		i += j
	}
	return slots
}

func isIdentifier(s string) bool {
	for _, r := range s {
		if r != '_' && (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
