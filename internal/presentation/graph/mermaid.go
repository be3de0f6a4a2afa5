package graph

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/aretw0/weave/internal/compiler"
	"github.com/aretw0/weave/pkg/domain"
)

// GenerateMermaid produces a Mermaid flowchart of a program's data flow.
// Every statement becomes a node wired to the sensors, model parameters and actions it touches:
// - Sensor: ([Stadium])
// - Parameter: [Rectangle]
// - Action: [[Subroutine]]
// - Tension: {{Hexagon}}
// - Other statements: (Rounded)
// Loop bodies are drawn as subgraphs. If state is given, parameters are annotated
// with their current values and the coherence is shown in a note.
func GenerateMermaid(prog *compiler.Program, state *domain.State) string {
	g := &builder{
		sensors: map[string]bool{},
		params:  map[string]bool{},
		actions: map[string]bool{},
	}
	g.program(prog, 1)

	var sb strings.Builder
	sb.WriteString("graph LR\n")
	sb.WriteString(g.body.String())

	for _, name := range sortedKeys(g.sensors) {
		fmt.Fprintf(&sb, "    %s([\"%s\"])\n", nodeID("s", name), name)
	}
	for _, name := range sortedKeys(g.params) {
		label := name
		if state != nil {
			if v, ok := state.Model[name]; ok {
				label = fmt.Sprintf("%s = %s", name, strconv.FormatFloat(v, 'g', 6, 64))
			}
		}
		fmt.Fprintf(&sb, "    %s[\"%s\"]\n", nodeID("p", name), label)
	}
	for _, name := range sortedKeys(g.actions) {
		fmt.Fprintf(&sb, "    %s[[\"%s\"]]\n", nodeID("a", name), name)
	}
	sb.WriteString(g.edges.String())

	if state != nil {
		sb.WriteString("\n    %% State Overlay\n")
		fmt.Fprintf(&sb, "    coherence>\"coherence %s, %d tensions\"]\n",
			strconv.FormatFloat(state.Coherence, 'g', 4, 64), len(state.TensionHistory))
		sb.WriteString("    classDef written fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		for _, name := range sortedKeys(g.params) {
			if _, ok := state.Model[name]; ok {
				fmt.Fprintf(&sb, "    class %s written;\n", nodeID("p", name))
			}
		}
	}
	return sb.String()
}

type builder struct {
	body    strings.Builder // statement nodes and subgraphs
	edges   strings.Builder
	sensors map[string]bool
	params  map[string]bool
	actions map[string]bool
}

func (g *builder) program(p *compiler.Program, indent int) {
	pad := strings.Repeat("    ", indent)
	for _, s := range p.Statements {
		id := stmtID(s)
		switch st := s.(type) {
		case *compiler.FieldStmt:
			fmt.Fprintf(&g.body, "%s%s(\"field %s\")\n", pad, id, st.Name)
			g.edge(id, "-->", nodeID("p", g.param(st.Name+".created")))
		case *compiler.TensionStmt:
			fmt.Fprintf(&g.body, "%s%s{{\"tension %s\"}}\n", pad, id, st.Comparator)
			g.edge(nodeID("s", g.sensor(st.Sensor)), "-->", id)
			g.edge(nodeID("p", g.param(st.Param)), "-->", id)
			g.edge(id, fmt.Sprintf("-- \"%s\" -->", formatPair(st.Action.Value)), nodeID("a", g.action(st.Action.Name)))
		case *compiler.DriftStmt:
			fmt.Fprintf(&g.body, "%s%s(\"drift\")\n", pad, id)
			g.edge(nodeID("p", g.param(st.Param)), "-.->", id)
		case *compiler.ResolveStmt:
			fmt.Fprintf(&g.body, "%s%s(\"resolve\")\n", pad, id)
			g.edge(nodeID("s", g.sensor(st.Sensor)), "-->", id)
			g.edge(id, "==>", nodeID("p", g.param(st.Param)))
		case *compiler.MetaweaveStmt:
			fmt.Fprintf(&g.body, "%s%s(\"metaweave %s\")\n", pad, id, st.Primitive)
			g.edge(id, "-. \"as\" .->", nodeID("a", g.action(st.Action)))
		case *compiler.ExtendStmt:
			fmt.Fprintf(&g.body, "%s%s(\"extend %t\")\n", pad, id, st.Condition)
			g.edge(id, fmt.Sprintf("-- \"%s\" -->", strconv.FormatFloat(st.Value, 'g', -1, 64)), nodeID("p", g.param(st.Key())))
		case *compiler.LoopStmt:
			fmt.Fprintf(&g.body, "%ssubgraph %s[\"loop %d\"]\n", pad, id, st.Count)
			g.program(st.Body, indent+1)
			fmt.Fprintf(&g.body, "%send\n", pad)
		}
	}
}

func (g *builder) edge(from, arrow, to string) {
	fmt.Fprintf(&g.edges, "    %s %s %s\n", from, arrow, to)
}

func (g *builder) sensor(name string) string { g.sensors[name] = true; return name }
func (g *builder) param(name string) string  { g.params[name] = true; return name }
func (g *builder) action(name string) string { g.actions[name] = true; return name }

func stmtID(s compiler.Statement) string {
	pos := s.Pos()
	return fmt.Sprintf("%s_%d_%d", s.Kind(), pos.Line, pos.Col)
}

func nodeID(prefix, name string) string {
	return prefix + "_" + sanitizeMermaidID(name)
}

func formatPair(v [2]float64) string {
	return strconv.FormatFloat(v[0], 'g', -1, 64) + ", " + strconv.FormatFloat(v[1], 'g', -1, 64)
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
