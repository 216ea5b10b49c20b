package cfg

import (
	"fmt"
	"strconv"
	"strings"
)

// DOT renders g as a Graphviz digraph, one node per block labeled with
// its raw opcode listing and one styled edge per typed connection. It is
// a pure string-rendering function; callers are responsible for handing
// the output to a renderer or a file.
func (g *Graph) DOT() string {
	var b strings.Builder
	b.WriteString("digraph G {\n")
	b.WriteString("  labelloc=\"t\";\n")
	b.WriteString("  fontname=\"Arial\";\n")
	b.WriteString("  labelfontsize=20;\n")
	b.WriteString("  node [shape=box, fontname=\"Courier\"];\n")
	b.WriteString("  edge [fontname=\"Courier\", fontsize=9];\n")

	for i, blk := range g.Blocks {
		var lines []string
		for pc, op := range blk.Ops(g.Func) {
			lines = append(lines, fmt.Sprintf("%d: %s", blk.Start+pc, op.Name()))
		}
		label := strings.ReplaceAll(strings.Join(lines, "\\n"), "\"", "\\\"")
		style := "style=filled, fillcolor=lightblue"
		if i == 0 {
			style = "style=filled, fillcolor=pink1"
		} else if !blk.Reachable {
			style = "style=filled, fillcolor=gray"
		}
		fmt.Fprintf(&b, "  node_%d [label=\"%s\", %s, xlabel=\"%d.\"];\n", i, label, style, blk.Start)
	}

	for i, blk := range g.Blocks {
		for _, e := range blk.Edges {
			style := edgeStyle(e)
			fmt.Fprintf(&b, "  node_%d -> node_%d [%s];\n", i, e.To, style)
		}
	}

	b.WriteString("}")
	return b.String()
}

func edgeStyle(e Edge) string {
	switch e.Kind {
	case EdgeTrue:
		return `color="green", label="true"`
	case EdgeFalse:
		return `color="crimson", label="false"`
	case EdgeSwitchCase:
		return `color="purple", label="case ` + strconv.Itoa(int(e.Case)) + `"`
	case EdgeSwitchDefault:
		return `color="crimson", label="default"`
	case EdgeTrapCatch:
		return `color="yellow3", label="trap"`
	default:
		return `color="cornflowerblue"`
	}
}
