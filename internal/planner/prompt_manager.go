package planner

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

//go:embed prompts/*.md
var defaultPrompts embed.FS

const (
	stepPlannerPrompt  = "step_planner.md"
	intentParserPrompt = "intent_parser.md"

	capabilitiesPlaceholder = "{{capabilities}}"
)

// PromptManager loads system prompts. Files in Directory override the
// embedded defaults of the same name.
type PromptManager struct {
	Directory    string
	Capabilities []string
}

func NewPromptManager(dir string, capabilities []string) *PromptManager {
	return &PromptManager{Directory: dir, Capabilities: capabilities}
}

func (pm *PromptManager) GetStepPlannerPrompt() (string, error) {
	return pm.load(stepPlannerPrompt)
}

func (pm *PromptManager) GetIntentParserPrompt() (string, error) {
	return pm.load(intentParserPrompt)
}

func (pm *PromptManager) load(name string) (string, error) {
	var data []byte
	if pm.Directory != "" {
		b, err := os.ReadFile(filepath.Join(pm.Directory, name))
		switch {
		case err == nil:
			data = b
		case !os.IsNotExist(err):
			return "", fmt.Errorf("failed to read prompt %s: %w", name, err)
		}
	}
	if data == nil {
		b, err := defaultPrompts.ReadFile("prompts/" + name)
		if err != nil {
			return "", fmt.Errorf("failed to read default prompt %s: %w", name, err)
		}
		data = b
	}
	return pm.render(string(data)), nil
}

func (pm *PromptManager) render(prompt string) string {
	caps := "- get, describe, logs, top"
	if len(pm.Capabilities) > 0 {
		caps = "- " + strings.Join(pm.Capabilities, "\n- ")
	}
	return strings.ReplaceAll(prompt, capabilitiesPlaceholder, caps)
}
