package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/chainsat/pkg/render/nodelink"
)

// graphCommand groups commands that inspect stored graphs.
func (c *CLI) graphCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Inspect stored dependency graphs",
	}
	cmd.AddCommand(c.graphRenderCommand())
	return cmd
}

func (c *CLI) graphRenderCommand() *cobra.Command {
	var (
		target   targetFlags
		output   string
		format   string
		detailed bool
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Draw a subgraph as DOT, SVG or PNG",
		Example: `  chainsat graph render --repo psf/requests -o requests.svg
  chainsat graph render -e cargo -p serde -d 2 --format dot`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f, err := renderFormat(format, output)
			if err != nil {
				return err
			}
			a, err := c.app(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			root, err := target.root(ctx, a)
			if err != nil {
				return err
			}
			sub, err := a.Graph.Subgraph(ctx, root, target.depth)
			if err != nil {
				return err
			}
			data, err := nodelink.Render(ctx, nodelink.ToDOT(sub, nodelink.Options{Detailed: detailed}), f)
			if err != nil {
				return err
			}

			if output == "" {
				_, err := os.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			printSuccess("Rendered %d packages", len(sub.Packages()))
			printFile(output)
			return nil
		},
	}
	target.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "dot, svg or png (default from --output extension, else dot)")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "label nodes with version and advisory counts")
	return cmd
}

// renderFormat picks the explicit format, else the output extension, else
// DOT.
func renderFormat(format, output string) (nodelink.Format, error) {
	if format != "" {
		return nodelink.ParseFormat(format)
	}
	if ext := filepath.Ext(output); ext != "" {
		return nodelink.ParseFormat(ext)
	}
	return nodelink.DOT, nil
}
