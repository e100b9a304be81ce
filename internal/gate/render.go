package gate

import (
	"github.com/fyrsmithlabs/upcmd/internal/upgrade"
)

// Renderer renders a template against a context.
type Renderer interface {
	Render(tpl string, ctx map[string]any) (string, error)
}

// Render returns cmd unchanged when templating is disabled, otherwise renders
// it against ctx. Failures are tagged KindTemplateRenderFailed.
func Render(r Renderer, cmd string, templatingEnabled bool, ctx map[string]any) (string, error) {
	if !templatingEnabled {
		return cmd, nil
	}
	out, err := r.Render(cmd, ctx)
	if err != nil {
		return "", upgrade.NewCommandError(upgrade.KindTemplateRenderFailed, cmd, err)
	}
	return out, nil
}
