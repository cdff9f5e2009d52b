// Package smt compiles dependency subgraphs into SMT formulas and reasons
// over them.
//
// [Transform] turns a [graph.Subgraph] into SMT-LIB text over linear
// integer and real arithmetic: one integer per package holding the serial
// number of the chosen version (-1 when absent), one real per package
// holding that version's impact score, and one real objective summing the
// impacts. The text is the unit of caching; [Convert] parses it back.
//
// An [Engine] runs the reasoning operations (valid_graph, valid_config,
// complete_config, minimize_impact, maximize_impact, filter_configs and
// config_by_impact) through a [Solver]. Two backends exist: [Z3] pipes the
// script into a z3 process, and [Enum] searches assignments in-process for
// small graphs and tests.
//
// Enumerating operations block each accepted model with a clause over the
// integer package variables only, so helper constants a solver introduces
// never constrain later answers.
package smt
