// Package neo4jstore implements [graph.Store] on Neo4j.
//
// Nodes carry the labels Package, Version, RequirementFile and Repository;
// edges are HAVE (Package → Version), REQUIRES (RequirementFile|Version →
// Package) and USE (Repository → RequirementFile). Version ids are Neo4j
// element ids; RequirementFile ids are UUID properties.
//
// Every write is a MERGE on identity so concurrent workers converge. Reads
// run inside a managed read transaction bounded by the configured timeout;
// timeouts and memory-pool exhaustion surface as [graph.ErrMemoryExhausted].
package neo4jstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/matzehuels/chainsat/pkg/graph"
	"github.com/matzehuels/chainsat/pkg/version"
)

// DefaultTxTimeout bounds read transactions.
const DefaultTxTimeout = 3 * time.Second

// Config holds connection settings.
type Config struct {
	URI       string
	User      string
	Password  string
	Database  string
	TxTimeout time.Duration
}

// Store is a Neo4j-backed graph store.
type Store struct {
	driver    neo4j.DriverWithContext
	database  string
	txTimeout time.Duration
}

var _ graph.Store = (*Store)(nil)

// New connects to Neo4j, verifies connectivity and ensures the identity
// constraints exist.
func New(ctx context.Context, cfg Config) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connect %s: %w", cfg.URI, err)
	}
	s := &Store{driver: driver, database: cfg.Database, txTimeout: cfg.TxTimeout}
	if s.txTimeout <= 0 {
		s.txTimeout = DefaultTxTimeout
	}
	if err := s.ensureSchema(ctx); err != nil {
		driver.Close(ctx)
		return nil, err
	}
	return s, nil
}

var schema = []string{
	"CREATE CONSTRAINT package_identity IF NOT EXISTS FOR (p:Package) REQUIRE (p.ecosystem, p.name) IS UNIQUE",
	"CREATE CONSTRAINT repository_identity IF NOT EXISTS FOR (r:Repository) REQUIRE (r.owner, r.name) IS UNIQUE",
	"CREATE CONSTRAINT requirement_file_id IF NOT EXISTS FOR (f:RequirementFile) REQUIRE f.id IS UNIQUE",
}

func (s *Store) ensureSchema(ctx context.Context) error {
	for _, q := range schema {
		if _, err := s.run(ctx, q, nil); err != nil {
			return fmt.Errorf("neo4j schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error { return s.driver.Close(ctx) }

// run executes a write query and returns its records as maps.
func (s *Store) run(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	res, err := neo4j.ExecuteQuery(ctx, s.driver, query, params,
		neo4j.EagerResultTransformer, neo4j.ExecuteQueryWithDatabase(s.database))
	if err != nil {
		return nil, translate(err)
	}
	out := make([]map[string]any, len(res.Records))
	for i, r := range res.Records {
		out[i] = r.AsMap()
	}
	return out, nil
}

// read executes fn in a read transaction bounded by the tx timeout.
func (s *Store) read(ctx context.Context, fn func(tx neo4j.ManagedTransaction) (any, error)) (any, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)
	v, err := session.ExecuteRead(ctx, fn, neo4j.WithTxTimeout(s.txTimeout))
	if err != nil {
		return nil, translate(err)
	}
	return v, nil
}

func collect(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) ([]map[string]any, error) {
	res, err := tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, len(records))
	for i, r := range records {
		out[i] = r.AsMap()
	}
	return out, nil
}

// translate maps out-of-memory and transaction timeout failures to
// graph.ErrMemoryExhausted.
func translate(err error) error {
	var nerr *neo4j.Neo4jError
	if errors.As(err, &nerr) {
		if strings.Contains(nerr.Code, "MemoryPoolOutOfMemoryError") ||
			strings.Contains(nerr.Code, "TransactionTimedOut") {
			return fmt.Errorf("%w: %s", graph.ErrMemoryExhausted, nerr.Msg)
		}
	}
	return err
}

func keyParams(key graph.PackageKey) map[string]any {
	return map[string]any{"eco": string(key.Ecosystem), "name": key.Name}
}

func (s *Store) GetPackage(ctx context.Context, key graph.PackageKey) (*graph.Package, error) {
	rows, err := s.run(ctx, `
		MATCH (p:Package {ecosystem: $eco, name: $name})
		RETURN p.ecosystem AS ecosystem, p.name AS name, p.group_id AS group_id,
		       p.artifact_id AS artifact_id, p.vendor AS vendor,
		       p.repository_url AS repository_url, p.moment AS moment`, keyParams(key))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: package %s", graph.ErrNotFound, key)
	}
	r := rows[0]
	return &graph.Package{
		Ecosystem:     version.Ecosystem(asString(r["ecosystem"])),
		Name:          asString(r["name"]),
		GroupID:       asString(r["group_id"]),
		ArtifactID:    asString(r["artifact_id"]),
		Vendor:        asString(r["vendor"]),
		RepositoryURL: asString(r["repository_url"]),
		Moment:        asTime(r["moment"]),
	}, nil
}

func (s *Store) CreatePackage(ctx context.Context, pkg graph.Package, versions []graph.Version) (bool, error) {
	params := keyParams(pkg.Key())
	params["group_id"] = pkg.GroupID
	params["artifact_id"] = pkg.ArtifactID
	params["vendor"] = pkg.Vendor
	params["repository_url"] = pkg.RepositoryURL
	params["moment"] = pkg.Moment.UTC()
	params["versions"] = versionParams(versions)

	rows, err := s.run(ctx, `
		MERGE (p:Package {ecosystem: $eco, name: $name})
		ON CREATE SET p.group_id = $group_id, p.artifact_id = $artifact_id,
		              p.vendor = $vendor, p.repository_url = $repository_url,
		              p.moment = $moment, p._created = true
		WITH p, p._created IS NOT NULL AS created
		REMOVE p._created
		FOREACH (v IN CASE WHEN created THEN $versions ELSE [] END |
		  CREATE (p)-[:HAVE]->(:Version {
		    name: v.name, serial_number: v.serial_number, release_date: v.release_date,
		    vulnerabilities: v.vulnerabilities, mean: v.mean, weighted_mean: v.weighted_mean}))
		RETURN created`, params)
	if err != nil {
		return false, err
	}
	return len(rows) > 0 && asBool(rows[0]["created"]), nil
}

func versionParams(versions []graph.Version) []map[string]any {
	out := make([]map[string]any, len(versions))
	for i, v := range versions {
		vulns := v.Vulnerabilities
		if vulns == nil {
			vulns = []string{}
		}
		m := map[string]any{
			"name":            v.Name,
			"serial_number":   int64(v.Serial),
			"vulnerabilities": vulns,
			"mean":            v.Mean,
			"weighted_mean":   v.WeightedMean,
			"release_date":    nil,
		}
		if v.ReleaseDate != nil {
			m["release_date"] = v.ReleaseDate.UTC()
		}
		out[i] = m
	}
	return out
}

func (s *Store) UpdatePackage(ctx context.Context, pkg graph.Package) error {
	params := keyParams(pkg.Key())
	params["vendor"] = pkg.Vendor
	params["repository_url"] = pkg.RepositoryURL
	params["moment"] = pkg.Moment.UTC()
	rows, err := s.run(ctx, `
		MATCH (p:Package {ecosystem: $eco, name: $name})
		SET p.moment = $moment, p.vendor = $vendor, p.repository_url = $repository_url
		RETURN p.name AS name`, params)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("%w: package %s", graph.ErrNotFound, pkg.Key())
	}
	return nil
}

func (s *Store) AddVersions(ctx context.Context, key graph.PackageKey, versions []graph.Version) error {
	params := keyParams(key)
	params["versions"] = versionParams(versions)
	rows, err := s.run(ctx, `
		MATCH (p:Package {ecosystem: $eco, name: $name})
		UNWIND $versions AS v
		MERGE (p)-[:HAVE]->(n:Version {name: v.name})
		ON CREATE SET n.serial_number = v.serial_number, n.release_date = v.release_date,
		              n.vulnerabilities = v.vulnerabilities, n.mean = v.mean,
		              n.weighted_mean = v.weighted_mean
		RETURN count(n) AS n`, params)
	if err != nil {
		return err
	}
	if len(versions) > 0 && (len(rows) == 0 || asInt(rows[0]["n"]) == 0) {
		return fmt.Errorf("%w: package %s", graph.ErrNotFound, key)
	}
	return nil
}

func (s *Store) UpdateSerials(ctx context.Context, key graph.PackageKey, serials map[string]int) error {
	rows := make([]map[string]any, 0, len(serials))
	for name, serial := range serials {
		rows = append(rows, map[string]any{"name": name, "serial_number": int64(serial)})
	}
	params := keyParams(key)
	params["serials"] = rows
	_, err := s.run(ctx, `
		MATCH (p:Package {ecosystem: $eco, name: $name})
		UNWIND $serials AS s
		MATCH (p)-[:HAVE]->(v:Version {name: s.name})
		SET v.serial_number = s.serial_number`, params)
	return err
}

func (s *Store) Versions(ctx context.Context, key graph.PackageKey) ([]graph.VersionNode, error) {
	rows, err := s.run(ctx, `
		MATCH (p:Package {ecosystem: $eco, name: $name})
		OPTIONAL MATCH (p)-[:HAVE]->(v:Version)
		RETURN elementId(v) AS id, v.name AS name, v.serial_number AS serial_number,
		       v.release_date AS release_date, v.vulnerabilities AS vulnerabilities,
		       v.mean AS mean, v.weighted_mean AS weighted_mean
		ORDER BY v.serial_number, v.name`, keyParams(key))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: package %s", graph.ErrNotFound, key)
	}
	out := make([]graph.VersionNode, 0, len(rows))
	for _, r := range rows {
		if r["id"] == nil {
			continue
		}
		v := graph.VersionNode{ID: asString(r["id"]), Version: graph.Version{
			Name:            asString(r["name"]),
			Serial:          asInt(r["serial_number"]),
			Vulnerabilities: asStrings(r["vulnerabilities"]),
			Mean:            asFloat(r["mean"]),
			WeightedMean:    asFloat(r["weighted_mean"]),
		}}
		if t := asTime(r["release_date"]); !t.IsZero() {
			v.ReleaseDate = &t
		}
		out = append(out, v)
	}
	return out, nil
}

// parentMatch binds `parent` to a RequirementFile by id or a Version by
// element id.
const parentMatch = `
	CALL {
	  MATCH (f:RequirementFile {id: $parent}) RETURN f AS parent
	  UNION
	  MATCH (v:Version) WHERE elementId(v) = $parent RETURN v AS parent
	}`

func (s *Store) Relate(ctx context.Context, parentID string, req graph.Requirement) error {
	params := keyParams(req.Package)
	params["parent"] = parentID
	params["constraints"] = req.Constraints
	params["parent_version"] = req.ParentVersion
	params["now"] = time.Now().UTC()
	// edited_at marks the parent whenever its edge set changes so that
	// Subgraph moments advance past cached results.
	rows, err := s.run(ctx, parentMatch+`
		MATCH (p:Package {ecosystem: $eco, name: $name})
		MERGE (parent)-[r:REQUIRES]->(p)
		WITH parent, r, coalesce(r.constraints <> $constraints
		     OR r.parent_version_name <> $parent_version, true) AS changed
		SET r.constraints = $constraints, r.parent_version_name = $parent_version
		FOREACH (_ IN CASE WHEN changed THEN [1] ELSE [] END | SET parent.edited_at = $now)
		RETURN count(r) AS n`, params)
	if err != nil {
		return err
	}
	if len(rows) == 0 || asInt(rows[0]["n"]) == 0 {
		return fmt.Errorf("%w: requires %s → %s", graph.ErrNotFound, parentID, req.Package)
	}
	return nil
}

func (s *Store) Unrelate(ctx context.Context, parentID string, key graph.PackageKey) error {
	params := keyParams(key)
	params["parent"] = parentID
	params["now"] = time.Now().UTC()
	_, err := s.run(ctx, parentMatch+`
		MATCH (parent)-[r:REQUIRES]->(:Package {ecosystem: $eco, name: $name})
		DELETE r
		SET parent.edited_at = $now`, params)
	return err
}

func (s *Store) Requirements(ctx context.Context, parentID string) ([]graph.Requirement, error) {
	rows, err := s.run(ctx, parentMatch+`
		MATCH (parent)-[r:REQUIRES]->(p:Package)
		RETURN p.ecosystem AS ecosystem, p.name AS name, r.constraints AS constraints,
		       r.parent_version_name AS parent_version
		ORDER BY p.name, p.ecosystem`, map[string]any{"parent": parentID})
	if err != nil {
		return nil, err
	}
	out := make([]graph.Requirement, len(rows))
	for i, r := range rows {
		out[i] = graph.Requirement{
			Package: graph.PackageKey{
				Ecosystem: version.Ecosystem(asString(r["ecosystem"])),
				Name:      asString(r["name"]),
			},
			Constraints:   asString(r["constraints"]),
			ParentVersion: asString(r["parent_version"]),
		}
	}
	return out, nil
}

func (s *Store) GetRepository(ctx context.Context, owner, name string) (*graph.Repository, error) {
	rows, err := s.run(ctx, `
		MATCH (r:Repository {owner: $owner, name: $name})
		RETURN r.moment AS moment, r.is_complete AS is_complete, r.users AS users`,
		map[string]any{"owner": owner, "name": name})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: repository %s/%s", graph.ErrNotFound, owner, name)
	}
	return &graph.Repository{
		Owner:      owner,
		Name:       name,
		Moment:     asTime(rows[0]["moment"]),
		IsComplete: asBool(rows[0]["is_complete"]),
		Users:      asStrings(rows[0]["users"]),
	}, nil
}

func (s *Store) CreateRepository(ctx context.Context, repo graph.Repository) error {
	users := repo.Users
	if users == nil {
		users = []string{}
	}
	_, err := s.run(ctx, `
		MERGE (r:Repository {owner: $owner, name: $name})
		ON CREATE SET r.moment = $moment, r.is_complete = $is_complete, r.users = $users`,
		map[string]any{
			"owner": repo.Owner, "name": repo.Name, "moment": repo.Moment.UTC(),
			"is_complete": repo.IsComplete, "users": users,
		})
	return err
}

func (s *Store) UpdateRepository(ctx context.Context, owner, name string, complete bool, moment time.Time) error {
	rows, err := s.run(ctx, `
		MATCH (r:Repository {owner: $owner, name: $name})
		SET r.is_complete = $complete, r.moment = $moment
		RETURN r.name AS name`,
		map[string]any{"owner": owner, "name": name, "complete": complete, "moment": moment.UTC()})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("%w: repository %s/%s", graph.ErrNotFound, owner, name)
	}
	return nil
}

func (s *Store) AddRepositoryUser(ctx context.Context, owner, name, userID string) error {
	rows, err := s.run(ctx, `
		MATCH (r:Repository {owner: $owner, name: $name})
		SET r.users = CASE WHEN $user IN coalesce(r.users, []) THEN r.users
		                   ELSE coalesce(r.users, []) + $user END
		RETURN r.name AS name`,
		map[string]any{"owner": owner, "name": name, "user": userID})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("%w: repository %s/%s", graph.ErrNotFound, owner, name)
	}
	return nil
}

func (s *Store) CreateRequirementFile(ctx context.Context, owner, name string, f graph.RequirementFile) (string, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	rows, err := s.run(ctx, `
		MATCH (r:Repository {owner: $owner, name: $repo})
		CREATE (r)-[:USE]->(f:RequirementFile {id: $id, name: $name, ecosystem: $eco, moment: $moment})
		RETURN f.id AS id`,
		map[string]any{
			"owner": owner, "repo": name, "id": f.ID, "name": f.Name,
			"eco": string(f.Ecosystem), "moment": f.Moment.UTC(),
		})
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("%w: repository %s/%s", graph.ErrNotFound, owner, name)
	}
	return f.ID, nil
}

func fileFromRow(r map[string]any) graph.RequirementFile {
	return graph.RequirementFile{
		ID:        asString(r["id"]),
		Name:      asString(r["name"]),
		Ecosystem: version.Ecosystem(asString(r["ecosystem"])),
		Moment:    asTime(r["moment"]),
	}
}

func (s *Store) RequirementFiles(ctx context.Context, owner, name string) ([]graph.RequirementFile, error) {
	rows, err := s.run(ctx, `
		MATCH (:Repository {owner: $owner, name: $name})-[:USE]->(f:RequirementFile)
		RETURN f.id AS id, f.name AS name, f.ecosystem AS ecosystem, f.moment AS moment
		ORDER BY f.name, f.id`, map[string]any{"owner": owner, "name": name})
	if err != nil {
		return nil, err
	}
	out := make([]graph.RequirementFile, len(rows))
	for i, r := range rows {
		out[i] = fileFromRow(r)
	}
	return out, nil
}

func (s *Store) GetRequirementFile(ctx context.Context, id string) (*graph.RequirementFile, error) {
	rows, err := s.run(ctx, `
		MATCH (f:RequirementFile {id: $id})
		RETURN f.id AS id, f.name AS name, f.ecosystem AS ecosystem, f.moment AS moment`,
		map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: requirement file %s", graph.ErrNotFound, id)
	}
	f := fileFromRow(rows[0])
	return &f, nil
}

func (s *Store) DeleteRequirementFile(ctx context.Context, id string) error {
	_, err := s.run(ctx, `MATCH (f:RequirementFile {id: $id}) DETACH DELETE f`, map[string]any{"id": id})
	return err
}

func (s *Store) ReachablePackages(ctx context.Context, owner, name string) ([]graph.Package, error) {
	rows, err := s.run(ctx, `
		MATCH (:Repository {owner: $owner, name: $name})-[:USE]->(:RequirementFile)
		      -[:REQUIRES]->(d:Package)
		MATCH (d)-[:HAVE|REQUIRES*0..]->(p:Package)
		WITH DISTINCT p
		RETURN p.ecosystem AS ecosystem, p.name AS name, p.moment AS moment
		ORDER BY p.ecosystem, p.name`, map[string]any{"owner": owner, "name": name})
	if err != nil {
		return nil, err
	}
	out := make([]graph.Package, len(rows))
	for i, r := range rows {
		out[i] = graph.Package{
			Ecosystem: version.Ecosystem(asString(r["ecosystem"])),
			Name:      asString(r["name"]),
			Moment:    asTime(r["moment"]),
		}
	}
	return out, nil
}

func (s *Store) VersionNames(ctx context.Context, eco version.Ecosystem, serials map[string]int) (map[string]string, error) {
	pairs := make([]map[string]any, 0, len(serials))
	for name, serial := range serials {
		pairs = append(pairs, map[string]any{"name": name, "serial": int64(serial)})
	}
	rows, err := s.run(ctx, `
		UNWIND $pairs AS pair
		MATCH (:Package {ecosystem: $eco, name: pair.name})-[:HAVE]->(v:Version {serial_number: pair.serial})
		RETURN pair.name AS package, v.name AS version`,
		map[string]any{"eco": string(eco), "pairs": pairs})
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[asString(r["package"])] = asString(r["version"])
	}
	return out, nil
}

func (s *Store) VersionSerials(ctx context.Context, eco version.Ecosystem, names map[string]string) (map[string]int, error) {
	pairs := make([]map[string]any, 0, len(names))
	for pkg, ver := range names {
		pairs = append(pairs, map[string]any{"name": pkg, "version": ver})
	}
	rows, err := s.run(ctx, `
		UNWIND $pairs AS pair
		MATCH (:Package {ecosystem: $eco, name: pair.name})-[:HAVE]->(v:Version {name: pair.version})
		RETURN pair.name AS package, v.serial_number AS serial`,
		map[string]any{"eco": string(eco), "pairs": pairs})
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[asString(r["package"])] = asInt(r["serial"])
	}
	for pkg, ver := range names {
		if _, ok := out[pkg]; !ok {
			return nil, fmt.Errorf("%w: version %s@%s", graph.ErrNotFound, pkg, ver)
		}
	}
	return out, nil
}
