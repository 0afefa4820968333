package instructions

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"mcpmux/internal/domain"
	"mcpmux/internal/filtering"
	"mcpmux/pkg/logging"
)

const defaultTemplateText = `{{if .HasServers}}You have access to {{.ServerCount}} {{pluralServers .ServerCount}}{{if .FilterContext}} ({{.FilterContext}}){{end}}, of which {{.ConnectedServerCount}} {{isAre .ConnectedServerCount}} connected.
{{if .HasInstructionalServers}}
{{.AggregatedInstructions}}
{{end}}
Tools are namespaced as {{.ToolPattern}}.
{{range .Servers}}- {{.Name}}{{if .HasInstructions}} (has specific instructions above){{end}}
{{end}}{{else}}No outbound servers are currently visible in this session.
{{end}}`

// Renderer renders instruction strings: filter -> build vars -> enforce a
// size limit on the custom template -> compile and execute, falling back
// to the default template on any failure.
type Renderer struct {
	SizeLimitBytes int
}

// NewRenderer creates a Renderer with the given template byte-size limit
// (0 selects the default of 1 MiB).
func NewRenderer(sizeLimitBytes int) *Renderer {
	if sizeLimitBytes <= 0 {
		sizeLimitBytes = DefaultTemplateSizeLimit
	}
	return &Renderer{SizeLimitBytes: sizeLimitBytes}
}

func funcMap() template.FuncMap {
	fm := sprig.TxtFuncMap()
	fm["pluralServers"] = pluralServers
	fm["isAre"] = isAre
	fm["unless"] = func(b bool) bool { return !b }
	return fm
}

// Render implements the full render contract. customTemplate may be empty,
// selecting the built-in default directly.
func (r *Renderer) Render(customTemplate string, spec domain.FilterSpec, connections []filtering.Server, connectedCount int, toolPattern, filterContext, title string, instructionsByServer map[string]string, resolvePreset filtering.PresetResolver) string {
	view, _, err := filtering.Apply(connections, spec, resolvePreset)
	if err != nil {
		// Filtering failure in the render path degrades to an empty view
		// rather than failing the whole instructions string.
		view = nil
	}

	vars := BuildVars(view, connectedCount, toolPattern, filterContext, title, instructionsByServer)

	tmplText := customTemplate
	if tmplText == "" {
		tmplText = defaultTemplateText
	} else if len(tmplText) > r.SizeLimitBytes {
		logging.Warn("instructions", "%v, falling back to default template", domainErrTemplateTooLarge(r.SizeLimitBytes))
		return r.renderDefault(vars)
	}

	out, err := r.execute(tmplText, vars)
	if err != nil {
		logging.Warn("instructions", "custom template failed to render, falling back to default: %v", err)
		return r.renderDefault(vars)
	}
	return out
}

func (r *Renderer) execute(tmplText string, vars Vars) (string, error) {
	tmpl, err := template.New("instructions").Funcs(funcMap()).Option("missingkey=zero").Parse(tmplText)
	if err != nil {
		return "", fmt.Errorf("instructions: compile template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("instructions: render template: %w", err)
	}
	return buf.String(), nil
}

func (r *Renderer) renderDefault(vars Vars) string {
	out, err := r.execute(defaultTemplateText, vars)
	if err != nil {
		return "Unable to render instructions for the currently visible servers."
	}
	return out
}
