// Package nodelink renders a dependency subgraph as a node-link diagram.
//
// [ToDOT] produces Graphviz DOT source: the root at the top, one rounded box
// per reachable package and one arrow per requiring package pair, labelled
// with the constraints. Packages with at least one vulnerable version are
// shaded. [Render] turns the DOT source into SVG or PNG in process using
// [github.com/goccy/go-graphviz].
//
//	sub, _ := store.Subgraph(ctx, graph.FileRoot(id), 3)
//	svg, err := nodelink.Render(ctx, nodelink.ToDOT(sub, nodelink.Options{}), nodelink.SVG)
package nodelink
