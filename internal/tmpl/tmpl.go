// Package tmpl renders upgrade command templates.
//
// Templates use Go text/template syntax with the hermetic sprig function set,
// e.g. "npm install {{ .depName }}@{{ .newVersion | shellQuote }}". Only the
// fields listed in AllowedFields are visible to a template and referencing any
// other key is a render error.
package tmpl

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"dario.cat/mergo"
	"github.com/Masterminds/sprig/v3"

	"github.com/fyrsmithlabs/upcmd/internal/upgrade"
)

// AllowedFields are the context keys exposed to command templates.
var AllowedFields = []string{
	"baseBranch",
	"branchName",
	"currentValue",
	"currentVersion",
	"depName",
	"depNames",
	"depType",
	"isGroup",
	"manager",
	"newValue",
	"newVersion",
	"packageFile",
	"updateType",
}

var allowedFieldSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(AllowedFields))
	for _, f := range AllowedFields {
		m[f] = struct{}{}
	}
	return m
}()

// ErrEmptyTemplate is returned when rendering an empty command.
var ErrEmptyTemplate = errors.New("empty template")

// Engine renders templates against a context map.
type Engine struct {
	funcs template.FuncMap
}

// NewEngine returns an engine with sprig's hermetic functions plus shellQuote.
// Functions that read the process environment or the clock are excluded.
func NewEngine() *Engine {
	funcs := sprig.HermeticTxtFuncMap()
	funcs["shellQuote"] = ShellQuote
	return &Engine{funcs: funcs}
}

// Render executes tpl against ctx. Keys of ctx outside AllowedFields are
// dropped before execution.
func (e *Engine) Render(tpl string, ctx map[string]any) (string, error) {
	if strings.TrimSpace(tpl) == "" {
		return "", ErrEmptyTemplate
	}

	t, err := template.New("command").
		Option("missingkey=error").
		Funcs(e.funcs).
		Parse(tpl)
	if err != nil {
		return "", fmt.Errorf("parsing template: %w", err)
	}

	var out strings.Builder
	if err := t.Execute(&out, Filter(ctx)); err != nil {
		return "", fmt.Errorf("executing template: %w", err)
	}
	return out.String(), nil
}

// Filter returns the subset of ctx whose keys are in AllowedFields. Allowed
// keys missing from ctx are present with an empty string value.
func Filter(ctx map[string]any) map[string]any {
	out := make(map[string]any, len(AllowedFields))
	for _, k := range AllowedFields {
		out[k] = ""
	}
	for k, v := range ctx {
		if _, ok := allowedFieldSet[k]; ok {
			out[k] = v
		}
	}
	return out
}

// Merge returns base with override merged over it. Neither input is modified.
func Merge(base, override map[string]any) (map[string]any, error) {
	dst := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		dst[k] = v
	}
	if err := mergo.Merge(&dst, override, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merging template context: %w", err)
	}
	return dst, nil
}

// ShellQuote wraps s in single quotes for POSIX shells.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// BranchContext returns the templating fields of a branch.
func BranchContext(b *upgrade.BranchConfig) map[string]any {
	names := b.DepNames()
	ctx := map[string]any{
		"branchName": b.BranchName,
		"depNames":   names,
		"isGroup":    len(names) > 1,
	}
	putIfSet(ctx, "baseBranch", b.BaseBranch)
	putIfSet(ctx, "manager", b.Manager)
	return ctx
}

// UpgradeContext returns the templating fields of a single upgrade.
func UpgradeContext(u *upgrade.Upgrade) map[string]any {
	ctx := map[string]any{
		"depName": u.DepName,
	}
	putIfSet(ctx, "manager", u.Manager)
	putIfSet(ctx, "packageFile", u.PackageFile)
	putIfSet(ctx, "depType", u.DepType)
	putIfSet(ctx, "updateType", u.UpdateType)
	putIfSet(ctx, "currentValue", u.CurrentValue)
	putIfSet(ctx, "newValue", u.NewValue)
	putIfSet(ctx, "currentVersion", u.CurrentVersion)
	putIfSet(ctx, "newVersion", u.NewVersion)
	return ctx
}

// Keys returns the sorted keys of ctx, for logging.
func Keys(ctx map[string]any) []string {
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func putIfSet(ctx map[string]any, key, val string) {
	if val != "" {
		ctx[key] = val
	}
}
