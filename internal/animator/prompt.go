// Package animator turns a description into a rendered Manim video: Gemini
// writes the scene code and the manim CLI renders it.
package animator

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompt.yaml
var defaultPrompt []byte

// Prompt is the scene-writing instruction sent to the model.
type Prompt struct {
	Model      string `yaml:"model"`
	Template   string `yaml:"template"`
	MaxSeconds int    `yaml:"max_seconds"`

	tmpl *template.Template
}

// LoadPrompt reads a prompt file, or the built-in prompt when path is empty.
// Fields missing from the file keep their built-in values.
func LoadPrompt(path string) (*Prompt, error) {
	p := &Prompt{}
	if err := yaml.Unmarshal(defaultPrompt, p); err != nil {
		return nil, fmt.Errorf("built-in prompt: %w", err)
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read prompt file: %w", err)
		}
		if err := yaml.Unmarshal(raw, p); err != nil {
			return nil, fmt.Errorf("parse prompt file %s: %w", path, err)
		}
	}

	tmpl, err := template.New("prompt").Option("missingkey=error").Parse(p.Template)
	if err != nil {
		return nil, fmt.Errorf("prompt template: %w", err)
	}
	p.tmpl = tmpl
	return p, nil
}

// Render fills the template for one description.
func (p *Prompt) Render(description string) (string, error) {
	var buf bytes.Buffer
	err := p.tmpl.Execute(&buf, struct {
		Description string
		MaxSeconds  int
	}{description, p.MaxSeconds})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
