package prompt

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/promptlab/backend/internal/domain/prompt"
	"github.com/promptlab/backend/internal/domain/provider"
	"github.com/promptlab/backend/internal/domain/shared"
)

// Renderer turns a version and run variables into provider messages
type Renderer interface {
	Render(v *prompt.Version, variables map[string]string) ([]provider.Message, error)
}

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_.-]*)\s*\}\}`)

// PlaceholderRenderer substitutes {{name}} placeholders. Every placeholder must have a
// variable; unused variables are ignored.
type PlaceholderRenderer struct{}

// NewPlaceholderRenderer creates a PlaceholderRenderer
func NewPlaceholderRenderer() *PlaceholderRenderer {
	return &PlaceholderRenderer{}
}

func (PlaceholderRenderer) Render(v *prompt.Version, variables map[string]string) ([]provider.Message, error) {
	user, err := substitute(v.Template, variables)
	if err != nil {
		return nil, err
	}
	msgs := make([]provider.Message, 0, 2)
	if v.SystemPrompt != "" {
		system, err := substitute(v.SystemPrompt, variables)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, provider.Message{Role: "system", Content: system})
	}
	return append(msgs, provider.Message{Role: "user", Content: user}), nil
}

func substitute(tmpl string, variables map[string]string) (string, error) {
	var missing []string
	out := placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		val, ok := variables[name]
		if !ok {
			if !slices.Contains(missing, name) {
				missing = append(missing, name)
			}
			return m
		}
		return val
	})
	if len(missing) > 0 {
		return "", shared.NewDomainError(shared.ErrInvalidInput.Code,
			fmt.Sprintf("missing template variables: %s", strings.Join(missing, ", ")))
	}
	return out, nil
}
