package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/idscan/internal/template"
)

func genericTemplate(t *testing.T) *template.Template {
	t.Helper()
	reg, err := template.LoadBuiltin()
	require.NoError(t, err)
	return reg.Generic()
}

func TestTemplatesCommand(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := executeCommand(t, "templates")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "us-driver-license-v1")
	assert.Contains(t, out, "passport-td3-v1")

	out, err = executeCommand(t, "templates", "--json")
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	assert.Len(t, rows, 5)
}

func TestTemplatesShowCommand(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := executeCommand(t, "templates", "show", "us-driver-license-v1")
	require.NoError(t, err)
	assert.Contains(t, out, "id: us-driver-license-v1")
	assert.Contains(t, out, "fields:")

	_, err = executeCommand(t, "templates", "show", "no-such-template")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown template")
}
