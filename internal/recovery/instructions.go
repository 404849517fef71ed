package recovery

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed instructions.yaml
var instructionsYAML []byte

// Plan is a set of manual steps for the visitor.
type Plan struct {
	Title string   `yaml:"title"`
	Steps []string `yaml:"steps"`
}

type platformPlans struct {
	Default  Plan            `yaml:"default"`
	Browsers map[string]Plan `yaml:"browsers"`
}

type instructionTable struct {
	Default   Plan                     `yaml:"default"`
	Platforms map[string]platformPlans `yaml:"platforms"`
}

var table = mustLoadInstructions(instructionsYAML)

func mustLoadInstructions(data []byte) instructionTable {
	t, err := loadInstructions(data)
	if err != nil {
		panic(err)
	}
	return t
}

func loadInstructions(data []byte) (instructionTable, error) {
	var t instructionTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("parse instructions: %w", err)
	}
	if len(t.Default.Steps) == 0 {
		return t, fmt.Errorf("instructions: default plan has no steps")
	}
	return t, nil
}

// Instructions returns the manual plan for a platform and browser name.
// Browser names may be app names ("Instagram") or classifier names
// ("Instagram In-App"). Unknown combinations fall back to the platform
// default, then to the global default.
func Instructions(platform, browserName string) Plan {
	p, ok := table.Platforms[strings.ToLower(platform)]
	if !ok {
		return table.Default
	}
	key := strings.ToLower(strings.TrimSpace(strings.TrimSuffix(browserName, " In-App")))
	if plan, ok := p.Browsers[key]; ok {
		return plan
	}
	if len(p.Default.Steps) > 0 {
		return p.Default
	}
	return table.Default
}
