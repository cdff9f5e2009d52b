package neo4jstore

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/matzehuels/chainsat/pkg/graph"
	"github.com/matzehuels/chainsat/pkg/version"
)

// levelQuery expands one BFS level: for each frontier package it returns one
// row per (version, outgoing requirement) pair, with nulls where a version
// has no requirements.
const levelQuery = `
	UNWIND $frontier AS key
	MATCH (p:Package {ecosystem: key.eco, name: key.name})
	OPTIONAL MATCH (p)-[:HAVE]->(v:Version)
	OPTIONAL MATCH (v)-[r:REQUIRES]->(q:Package)
	WHERE $expand
	RETURN p.ecosystem AS ecosystem, p.name AS package, p.moment AS moment,
	       CASE WHEN $expand THEN v.edited_at END AS edited, v.name AS version, v.serial_number AS serial, v.mean AS mean,
	       v.weighted_mean AS weighted_mean, v.vulnerabilities AS vulnerabilities,
	       q.ecosystem AS child_ecosystem, q.name AS child, r.constraints AS constraints`

// Subgraph reads the neighbourhood of root in a single read transaction.
// Traversal runs level by level so that max depth is counted in package
// hops; direct dependencies are depth 1.
func (s *Store) Subgraph(ctx context.Context, root graph.Root, maxDepth int) (*graph.Subgraph, error) {
	v, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		sg, direct, err := readRoot(ctx, tx, root)
		if err != nil {
			return nil, err
		}
		if maxDepth <= 0 {
			return sg, nil
		}
		return sg, expand(ctx, tx, sg, direct, maxDepth)
	})
	if err != nil {
		return nil, err
	}
	sg := v.(*graph.Subgraph)
	sg.Sort()
	return sg, nil
}

func readRoot(ctx context.Context, tx neo4j.ManagedTransaction, root graph.Root) (*graph.Subgraph, []graph.Requirement, error) {
	switch root.Kind {
	case graph.RootFile:
		rows, err := collect(ctx, tx, `
			MATCH (f:RequirementFile {id: $id})
			OPTIONAL MATCH (f)-[r:REQUIRES]->(p:Package)
			RETURN f.ecosystem AS ecosystem, f.moment AS moment, f.edited_at AS edited,
			       p.ecosystem AS dep_ecosystem, p.name AS dep, r.constraints AS constraints`,
			map[string]any{"id": root.FileID})
		if err != nil {
			return nil, nil, err
		}
		if len(rows) == 0 {
			return nil, nil, fmt.Errorf("%w: requirement file %s", graph.ErrNotFound, root.FileID)
		}
		sg := graph.NewSubgraph(root, version.Ecosystem(asString(rows[0]["ecosystem"])))
		sg.Touch(asTime(rows[0]["moment"]))
		sg.Touch(asTime(rows[0]["edited"]))
		return sg, requirementRows(rows), nil

	case graph.RootPackage:
		rows, err := collect(ctx, tx, `
			MATCH (p:Package {ecosystem: $eco, name: $name})
			RETURN p.moment AS moment`, keyParams(root.Package))
		if err != nil {
			return nil, nil, err
		}
		if len(rows) == 0 {
			return nil, nil, fmt.Errorf("%w: package %s", graph.ErrNotFound, root.Package)
		}
		sg := graph.NewSubgraph(root, root.Package.Ecosystem)
		sg.Touch(asTime(rows[0]["moment"]))
		return sg, []graph.Requirement{{Package: root.Package}}, nil

	case graph.RootVersion:
		params := keyParams(root.Package)
		params["version"] = root.Version
		rows, err := collect(ctx, tx, `
			MATCH (p:Package {ecosystem: $eco, name: $name})-[:HAVE]->(v:Version {name: $version})
			OPTIONAL MATCH (v)-[r:REQUIRES]->(q:Package)
			RETURN p.moment AS moment, v.edited_at AS edited, q.ecosystem AS dep_ecosystem, q.name AS dep,
			       r.constraints AS constraints`, params)
		if err != nil {
			return nil, nil, err
		}
		if len(rows) == 0 {
			return nil, nil, fmt.Errorf("%w: version %s@%s", graph.ErrNotFound, root.Package, root.Version)
		}
		sg := graph.NewSubgraph(root, root.Package.Ecosystem)
		sg.Touch(asTime(rows[0]["moment"]))
		sg.Touch(asTime(rows[0]["edited"]))
		return sg, requirementRows(rows), nil
	}
	return nil, nil, fmt.Errorf("unknown root kind %q", root.Kind)
}

func requirementRows(rows []map[string]any) []graph.Requirement {
	var out []graph.Requirement
	for _, r := range rows {
		if r["dep"] == nil {
			continue
		}
		out = append(out, graph.Requirement{
			Package: graph.PackageKey{
				Ecosystem: version.Ecosystem(asString(r["dep_ecosystem"])),
				Name:      asString(r["dep"]),
			},
			Constraints: asString(r["constraints"]),
		})
	}
	return out
}

func expand(ctx context.Context, tx neo4j.ManagedTransaction, sg *graph.Subgraph, direct []graph.Requirement, maxDepth int) error {
	seen := map[graph.PackageKey]bool{}
	var frontier []graph.PackageKey
	reach := func(key graph.PackageKey, depth int) {
		if seen[key] {
			return
		}
		seen[key] = true
		sg.Depth[key.Name] = depth
		frontier = append(frontier, key)
	}
	for _, r := range direct {
		sg.Direct = append(sg.Direct, graph.DirectRequire{Package: r.Package.Name, Constraints: r.Constraints})
		reach(r.Package, 1)
	}

	for depth := 1; len(frontier) > 0; depth++ {
		keys := make([]map[string]any, len(frontier))
		for i, k := range frontier {
			keys[i] = map[string]any{"eco": string(k.Ecosystem), "name": k.Name}
		}
		frontier = nil

		rows, err := collect(ctx, tx, levelQuery,
			map[string]any{"frontier": keys, "expand": depth < maxDepth})
		if err != nil {
			return err
		}

		type vkey struct{ pkg, ver string }
		versions := map[vkey]bool{}
		for _, r := range rows {
			pkg := asString(r["package"])
			if _, ok := sg.Have[pkg]; !ok {
				sg.Have[pkg] = []graph.VersionInfo{}
				sg.Touch(asTime(r["moment"]))
			}
			if r["version"] == nil {
				continue
			}
			sg.Touch(asTime(r["edited"]))
			ver := asString(r["version"])
			serial := asInt(r["serial"])
			if k := (vkey{pkg, ver}); !versions[k] {
				versions[k] = true
				sg.Have[pkg] = append(sg.Have[pkg], graph.VersionInfo{
					Name:            ver,
					Serial:          serial,
					Mean:            asFloat(r["mean"]),
					WeightedMean:    asFloat(r["weighted_mean"]),
					Vulnerabilities: asStrings(r["vulnerabilities"]),
				})
			}
			if r["child"] == nil {
				continue
			}
			child := graph.PackageKey{
				Ecosystem: version.Ecosystem(asString(r["child_ecosystem"])),
				Name:      asString(r["child"]),
			}
			sg.Indirect = append(sg.Indirect, graph.IndirectRequire{
				Package:       child.Name,
				Constraints:   asString(r["constraints"]),
				ParentPackage: pkg,
				ParentVersion: ver,
				ParentSerial:  serial,
			})
			reach(child, depth+1)
		}
	}
	return nil
}
