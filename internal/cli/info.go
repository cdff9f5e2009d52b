package cli

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/chainsat/pkg/graph"
	"github.com/matzehuels/chainsat/pkg/operation"
)

// infoCommand creates the "info" command summarizing a subgraph.
func (c *CLI) infoCommand() *cobra.Command {
	var (
		target targetFlags
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Summarize the dependencies of a file, package or version",
		Example: `  chainsat info --repo psf/requests --file setup.py
  chainsat info -e npm -p express -d 2
  chainsat info -e pypi -p django --version-name 4.2.0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.app(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			root, err := target.root(ctx, a)
			if err != nil {
				return err
			}
			var info *operation.Info
			switch root.Kind {
			case graph.RootFile:
				info, err = a.Ops.FileInfo(ctx, root.FileID, target.depth)
			case graph.RootPackage:
				info, err = a.Ops.PackageInfo(ctx, root.Package, target.depth)
			default:
				info, err = a.Ops.VersionInfo(ctx, root.Package, root.Version, target.depth)
			}
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(info)
			}
			printInfoSummary(root, info)
			return nil
		},
	}
	target.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printInfoSummary(root graph.Root, info *operation.Info) {
	fmt.Println(StyleTitle.Render(root.ID()))
	printKeyValue("direct", StyleNumber.Render(strconv.Itoa(info.TotalDirect)))
	printKeyValue("indirect", StyleNumber.Render(strconv.Itoa(info.TotalIndirect)))
	printKeyValue("versions", StyleNumber.Render(strconv.Itoa(info.TotalVersions)))
	printKeyValue("advisories", StyleNumber.Render(strconv.Itoa(len(info.Vulnerabilities))))

	if len(info.Direct) > 0 {
		printNewline()
		for _, d := range info.Direct {
			line := d.Package
			if d.Constraints != "" {
				line += " " + StyleDim.Render(d.Constraints)
			}
			printDetail("%s", line)
		}
	}

	depths := make([]int, 0, len(info.IndirectByDepth))
	for d := range info.IndirectByDepth {
		depths = append(depths, d)
	}
	sort.Ints(depths)
	for _, d := range depths {
		printKeyValue(fmt.Sprintf("depth %d", d), strings.Join(info.IndirectByDepth[d], ", "))
	}
	if len(info.Vulnerabilities) > 0 {
		printNewline()
		printWarning("%s", strings.Join(info.Vulnerabilities, ", "))
	}
}
