package nodelink

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/chainsat/pkg/graph"
)

// Format is an output format for [Render].
type Format string

const (
	DOT Format = "dot"
	SVG Format = "svg"
	PNG Format = "png"
)

// ParseFormat resolves a format name or file extension.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.TrimPrefix(strings.ToLower(s), ".")); f {
	case DOT, SVG, PNG:
		return f, nil
	case "gv":
		return DOT, nil
	default:
		return "", fmt.Errorf("unsupported format %q", s)
	}
}

// Options configures diagram generation.
type Options struct {
	// Detailed adds version and vulnerability counts to node labels.
	Detailed bool
}

type edge struct {
	from, to string
}

// ToDOT converts a subgraph to Graphviz DOT.
func ToDOT(sub *graph.Subgraph, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  edge [fontsize=10];\n")
	buf.WriteString("\n")

	root := rootNode(sub.Root)
	fmt.Fprintf(&buf, "  %q [label=%q, shape=folder, fillcolor=lightblue];\n", root, root)
	for _, name := range sub.Packages() {
		if name == root {
			continue
		}
		attrs := []string{fmt.Sprintf("label=%q", label(name, sub.Have[name], opts.Detailed))}
		if vulnerable(sub.Have[name]) {
			attrs = append(attrs, "fillcolor=mistyrose", "color=firebrick")
		}
		fmt.Fprintf(&buf, "  %q [%s];\n", name, strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	labels := map[edge][]string{}
	var order []edge
	add := func(e edge, c string) {
		if _, ok := labels[e]; !ok {
			order = append(order, e)
		}
		if c != "" && !slices.Contains(labels[e], c) {
			labels[e] = append(labels[e], c)
		}
	}
	for _, d := range sub.Direct {
		if d.Package == root {
			continue
		}
		add(edge{root, d.Package}, d.Constraints)
	}
	for _, r := range sub.Indirect {
		add(edge{r.ParentPackage, r.Package}, r.Constraints)
	}
	for _, e := range order {
		if l := labels[e]; len(l) > 0 {
			fmt.Fprintf(&buf, "  %q -> %q [label=%q];\n", e.from, e.to, strings.Join(l, " | "))
			continue
		}
		fmt.Fprintf(&buf, "  %q -> %q;\n", e.from, e.to)
	}

	buf.WriteString("}\n")
	return buf.String()
}

// rootNode names the root box. A Package root is drawn as the package
// itself.
func rootNode(r graph.Root) string {
	switch r.Kind {
	case graph.RootPackage:
		return r.Package.Name
	case graph.RootVersion:
		return r.Package.Name + "@" + r.Version
	default:
		return r.ID()
	}
}

func label(name string, versions []graph.VersionInfo, detailed bool) string {
	if !detailed {
		return name
	}
	vulns := 0
	for _, v := range versions {
		if len(v.Vulnerabilities) > 0 {
			vulns++
		}
	}
	return fmt.Sprintf("%s\nversions: %d\nvulnerable: %d", name, len(versions), vulns)
}

func vulnerable(versions []graph.VersionInfo) bool {
	for _, v := range versions {
		if len(v.Vulnerabilities) > 0 {
			return true
		}
	}
	return false
}

// Render lays out DOT source with Graphviz. DOT returns the source as is.
func Render(ctx context.Context, dot string, format Format) ([]byte, error) {
	var gvFormat graphviz.Format
	switch format {
	case DOT:
		return []byte(dot), nil
	case SVG:
		gvFormat = graphviz.SVG
	case PNG:
		gvFormat = graphviz.PNG
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}

	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, gvFormat, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	if format == SVG {
		return normalizeViewBox(buf.Bytes()), nil
	}
	return buf.Bytes(), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox rewrites the svg tag so the drawing scales with its
// container.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}
	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}
	tag := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`, w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(tag))
}
