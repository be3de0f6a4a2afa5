package tui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/weave/pkg/domain"
)

func TestReportMarkdown(t *testing.T) {
	st := domain.NewState("robot")
	st.Ticks = 3
	st.Coherence = 0.75
	st.TensionHistory = []float64{1, 2, 3}
	st.Model["threshold"] = 5
	st.Model["light.created"] = 1
	st.VectorModel["position"] = []float64{1.5, 0}
	st.Primitives["turn"] = "rotate"

	md := ReportMarkdown(st)
	assert.True(t, strings.HasPrefix(md, "# Weave run `robot`\n"))
	for _, want := range []string{
		"- **Ticks:** 3",
		"- **Coherence:** 0.75",
		"- **Mean tension:** 2 (last 3)",
		"| `light.created` | 1 |\n| `threshold` | 5 |",
		"| `position` | [1.5, 0] |",
		"- `turn` as `rotate`",
	} {
		assert.Contains(t, md, want)
	}
}

func TestReportMarkdown_EmptyState(t *testing.T) {
	md := ReportMarkdown(domain.NewState(""))
	assert.Contains(t, md, "# Weave run\n")
	assert.NotContains(t, md, "## Model")
	assert.NotContains(t, md, "Mean tension")
}

func TestRenderer(t *testing.T) {
	out, err := NewRenderer(80)("# Title\n\nbody")
	require.NoError(t, err)
	assert.Contains(t, out, "Title")
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf)
	assert.Greater(t, strings.Count(buf.String(), "\n"), 4)
	assert.Contains(t, EventStyle("tension", "Tension: 1"), "Tension: 1")
}
