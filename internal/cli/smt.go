package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/chainsat/pkg/graph"
	"github.com/matzehuels/chainsat/pkg/operation"
	"github.com/matzehuels/chainsat/pkg/smt"
)

// smtOps lists the reasoning operations in the order shown in help.
var smtOps = []string{
	"valid_graph",
	"valid_config",
	"complete_config",
	"minimize_impact",
	"maximize_impact",
	"filter_configs",
	"config_by_impact",
}

type smtFlags struct {
	target     targetFlags
	aggregator string
	limit      int
	min, max   float64
	impact     float64
	config     map[string]string
	asJSON     bool
}

// smtCommand creates the "smt" command running a reasoning operation.
func (c *CLI) smtCommand() *cobra.Command {
	var f smtFlags
	cmd := &cobra.Command{
		Use:   "smt <operation>",
		Short: "Answer configuration questions with the SMT solver",
		Long: `Compile the dependency graph under the chosen root into an SMT formula and
run one operation against it:

  valid_graph        is there any consistent set of versions?
  valid_config       is the --pin assignment consistent?
  complete_config    extend --pin to a full configuration
  minimize_impact    lowest-risk configurations (--limit)
  maximize_impact    highest-risk configurations (--limit)
  filter_configs     configurations with risk in [--min, --max]
  config_by_impact   configuration with risk closest to --target`,
		Example: `  chainsat smt minimize_impact --repo psf/requests --limit 3
  chainsat smt complete_config -e pypi -p flask --pin werkzeug=2.3.0
  chainsat smt config_by_impact --file 0b9c... --target 4.5 --aggregator weighted_mean`,
		ValidArgs: smtOps,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.app(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			root, err := f.target.root(ctx, a)
			if err != nil {
				return err
			}
			req := operation.Request{Root: root, MaxDepth: f.target.depth, Aggregator: graph.Aggregator(f.aggregator)}
			prog := newProgress(a.Logger)
			result, err := runSMT(ctx, a.Ops, args[0], req, f)
			if err != nil {
				return err
			}
			prog.done(args[0])

			if f.asJSON {
				return writeJSON(result)
			}
			switch v := result.(type) {
			case bool:
				if v {
					printSuccess("satisfiable")
				} else {
					printError("unsatisfiable")
				}
			case []smt.Config:
				if len(v) == 0 {
					printInfo("No configurations")
					return nil
				}
				fmt.Println(renderConfigs(v))
			}
			return nil
		},
	}
	f.target.register(cmd)
	fl := cmd.Flags()
	fl.StringVarP(&f.aggregator, "aggregator", "a", string(graph.Mean), "impact aggregator (mean, weighted_mean)")
	fl.IntVarP(&f.limit, "limit", "n", 1, "number of configurations")
	fl.Float64Var(&f.min, "min", 0, "lower risk bound for filter_configs")
	fl.Float64Var(&f.max, "max", 10, "upper risk bound for filter_configs")
	fl.Float64Var(&f.impact, "target", 0, "risk target for config_by_impact")
	fl.StringToStringVar(&f.config, "pin", nil, "pinned package=version pairs")
	fl.BoolVar(&f.asJSON, "json", false, "print JSON")
	return cmd
}

func runSMT(ctx context.Context, ops *operation.Service, op string, req operation.Request, f smtFlags) (any, error) {
	switch op {
	case "valid_graph":
		return ops.ValidGraph(ctx, req)
	case "valid_config":
		return ops.ValidConfig(ctx, req, f.config)
	case "complete_config":
		return ops.CompleteConfig(ctx, req, f.config)
	case "minimize_impact":
		return ops.MinimizeImpact(ctx, req, f.limit)
	case "maximize_impact":
		return ops.MaximizeImpact(ctx, req, f.limit)
	case "filter_configs":
		return ops.FilterConfigs(ctx, req, f.min, f.max, f.limit)
	case "config_by_impact":
		return ops.ConfigByImpact(ctx, req, f.impact)
	}
	return nil, fmt.Errorf("unknown operation %q", op)
}
