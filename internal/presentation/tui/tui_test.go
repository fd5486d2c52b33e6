package tui_test

import (
	"bytes"
	"testing"

	"github.com/aretw0/conductor/internal/presentation/tui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	tui.PrintBanner(&buf, "v1.2.3\n")
	out := buf.String()
	assert.Contains(t, out, "flow graph conductor v1.2.3")
	assert.NotContains(t, out, "\x1b[", "non-terminal output stays plain")
}

func TestRendererOnPipe(t *testing.T) {
	var buf bytes.Buffer
	assert.False(t, tui.IsTerminal(&buf))
	assert.Equal(t, 100, tui.Width(&buf))

	out, err := tui.NewRenderer(&buf)("## Run r1: done")
	require.NoError(t, err)
	assert.Equal(t, "## Run r1: done", out)
}

func TestStyledRenderer(t *testing.T) {
	render, err := tui.NewStyledRenderer("notty", 80)
	require.NoError(t, err)
	out, err := render("| Node | Status |\n|---|---|\n| start | success |\n")
	require.NoError(t, err)
	assert.Contains(t, out, "start")
	assert.Contains(t, out, "success")
}
