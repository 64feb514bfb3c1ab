// Package prompt holds the dialogue system prompts and generates deployable agent prompts.
package prompt

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/BTreeMap/AgentBuilder/internal/models"
)

//go:embed stage_prompts.yaml
var defaultStagePrompts []byte

type catalogFile struct {
	Base   string            `yaml:"base"`
	Stages map[string]string `yaml:"stages"`
}

type stagePrompt struct {
	raw  string
	tmpl *template.Template
}

// Catalog renders the system prompt for each dialogue stage.
type Catalog struct {
	base   string
	stages map[models.Stage]stagePrompt
}

var templateFuncs = template.FuncMap{
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
}

// NewCatalog loads the built-in stage prompts.
func NewCatalog() (*Catalog, error) {
	return LoadCatalog(defaultStagePrompts)
}

// LoadCatalog parses a YAML prompt catalog with a base prompt and per-stage templates.
func LoadCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse prompt catalog: %w", err)
	}
	if strings.TrimSpace(f.Base) == "" {
		return nil, fmt.Errorf("prompt catalog has no base prompt")
	}

	c := &Catalog{base: f.Base, stages: make(map[models.Stage]stagePrompt, len(f.Stages))}
	for name, text := range f.Stages {
		stage, err := models.ParseStage(name)
		if err != nil {
			return nil, fmt.Errorf("prompt catalog: %w", err)
		}
		tmpl, err := template.New(name).Funcs(templateFuncs).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse prompt for stage %s: %w", name, err)
		}
		c.stages[stage] = stagePrompt{raw: text, tmpl: tmpl}
	}
	slog.Debug("Prompt catalog loaded", "stages", len(c.stages))
	return c, nil
}

// SystemPrompt returns the base prompt followed by the stage prompt rendered with
// ctx. When ctx lacks a key the stage prompt is used unformatted; stages without a
// prompt get the base prompt alone.
func (c *Catalog) SystemPrompt(stage models.Stage, ctx map[string]any) string {
	sp, ok := c.stages[stage]
	if !ok {
		return c.base + "\n\n"
	}
	var buf bytes.Buffer
	if err := sp.tmpl.Execute(&buf, ctx); err != nil {
		slog.Debug("Catalog SystemPrompt using unformatted stage prompt", "stage", stage, "error", err)
		return c.base + "\n\n" + sp.raw
	}
	return c.base + "\n\n" + buf.String()
}
