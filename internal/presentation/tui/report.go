package tui

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/aretw0/weave/pkg/domain"
)

// ReportMarkdown summarises a finished run as markdown: the scalar and vector
// models, primitives, coherence and a tension digest.
func ReportMarkdown(st *domain.State) string {
	var b strings.Builder
	title := "Weave run"
	if st.SessionID != "" {
		title += " `" + st.SessionID + "`"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "- **Ticks:** %d\n", st.Ticks)
	fmt.Fprintf(&b, "- **Coherence:** %s\n", num(st.Coherence))
	fmt.Fprintf(&b, "- **Tensions recorded:** %d\n", len(st.TensionHistory))
	if mean, ok := st.MeanTension(); ok {
		last := st.TensionHistory[len(st.TensionHistory)-1]
		fmt.Fprintf(&b, "- **Mean tension:** %s (last %s)\n", num(mean), num(last))
	}

	if len(st.Model) > 0 {
		b.WriteString("\n## Model\n\n| Parameter | Value |\n|---|---|\n")
		for _, k := range sorted(st.Model) {
			fmt.Fprintf(&b, "| `%s` | %s |\n", k, num(st.Model[k]))
		}
	}

	if len(st.VectorModel) > 0 {
		b.WriteString("\n## Vectors\n\n| Name | Value |\n|---|---|\n")
		for _, k := range sorted(st.VectorModel) {
			parts := make([]string, len(st.VectorModel[k]))
			for i, v := range st.VectorModel[k] {
				parts[i] = num(v)
			}
			fmt.Fprintf(&b, "| `%s` | [%s] |\n", k, strings.Join(parts, ", "))
		}
	}

	if len(st.Primitives) > 0 {
		b.WriteString("\n## Primitives\n\n")
		for _, k := range sorted(st.Primitives) {
			fmt.Fprintf(&b, "- `%s` as `%s`\n", k, st.Primitives[k])
		}
	}
	return b.String()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func sorted[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
