package planner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptManager_Defaults(t *testing.T) {
	pm := NewPromptManager("", []string{"get: list things", "logs: read logs"})

	prompt, err := pm.GetStepPlannerPrompt()
	require.NoError(t, err)
	assert.Contains(t, prompt, "- get: list things\n- logs: read logs")
	assert.NotContains(t, prompt, capabilitiesPlaceholder)

	prompt, err = pm.GetIntentParserPrompt()
	require.NoError(t, err)
	assert.Contains(t, prompt, "show pods in operations namespace")
}

func TestPromptManager_DirectoryOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, intentParserPrompt), []byte("Custom parser\n{{capabilities}}"), 0o644))

	pm := NewPromptManager(dir, nil)

	prompt, err := pm.GetIntentParserPrompt()
	require.NoError(t, err)
	assert.Equal(t, "Custom parser\n- get, describe, logs, top", prompt)

	// Files missing from the directory fall back to the embedded copy.
	prompt, err = pm.GetStepPlannerPrompt()
	require.NoError(t, err)
	assert.Contains(t, prompt, "final_output")
}
