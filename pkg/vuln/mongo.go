package vuln

import (
	"context"
	"fmt"

	"github.com/moznion/go-optional"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/chainsat/pkg/version"
)

// CollectionName is the advisory collection in the document database.
const CollectionName = "cves"

// MongoSource reads and writes advisories in a MongoDB collection.
type MongoSource struct {
	coll *mongo.Collection
}

// NewMongoSource wraps the advisory collection of db and ensures the
// package-name index exists.
func NewMongoSource(ctx context.Context, db *mongo.Database) (*MongoSource, error) {
	coll := db.Collection(CollectionName)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "affected.package", Value: 1}},
	})
	if err != nil {
		return nil, fmt.Errorf("create advisory index: %w", err)
	}
	return &MongoSource{coll: coll}, nil
}

type advisoryDoc struct {
	ID          string        `bson:"_id"`
	Description string        `bson:"description,omitempty"`
	Severity    string        `bson:"severity,omitempty"`
	BaseScore   float64       `bson:"base_score,omitempty"`
	ImpactScore []float64     `bson:"impactScore"`
	Affected    []affectedDoc `bson:"affected"`
}

type affectedDoc struct {
	Ecosystem string     `bson:"ecosystem,omitempty"`
	Package   string     `bson:"package"`
	Ranges    []rangeDoc `bson:"ranges"`
}

type rangeDoc struct {
	Version        string  `bson:"version,omitempty"`
	StartIncluding *string `bson:"versionStartIncluding,omitempty"`
	StartExcluding *string `bson:"versionStartExcluding,omitempty"`
	EndIncluding   *string `bson:"versionEndIncluding,omitempty"`
	EndExcluding   *string `bson:"versionEndExcluding,omitempty"`
}

func (m *MongoSource) ForPackage(ctx context.Context, eco version.Ecosystem, pkg string) ([]Advisory, error) {
	cur, err := m.coll.Find(ctx, bson.M{"affected.package": pkg}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []advisoryDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]Advisory, 0, len(docs))
	for _, d := range docs {
		a := d.advisory()
		for _, af := range a.Affected {
			if af.appliesTo(eco, pkg) {
				out = append(out, a)
				break
			}
		}
	}
	return out, nil
}

// Upsert replaces advisories by id.
func (m *MongoSource) Upsert(ctx context.Context, advisories []Advisory) (int, error) {
	if len(advisories) == 0 {
		return 0, nil
	}
	models := make([]mongo.WriteModel, 0, len(advisories))
	for _, a := range advisories {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": a.ID}).
			SetReplacement(toDoc(a)).
			SetUpsert(true))
	}
	res, err := m.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, err
	}
	return int(res.UpsertedCount + res.MatchedCount), nil
}

func (d advisoryDoc) advisory() Advisory {
	a := Advisory{
		ID:          d.ID,
		Description: d.Description,
		Severity:    d.Severity,
		BaseScore:   d.BaseScore,
		ImpactScore: d.ImpactScore,
	}
	for _, af := range d.Affected {
		out := Affected{Ecosystem: version.Ecosystem(af.Ecosystem), Package: af.Package}
		for _, r := range af.Ranges {
			out.Ranges = append(out.Ranges, Range{
				Version:        r.Version,
				StartIncluding: fromPtr(r.StartIncluding),
				StartExcluding: fromPtr(r.StartExcluding),
				EndIncluding:   fromPtr(r.EndIncluding),
				EndExcluding:   fromPtr(r.EndExcluding),
			})
		}
		a.Affected = append(a.Affected, out)
	}
	return a
}

func toDoc(a Advisory) advisoryDoc {
	d := advisoryDoc{
		ID:          a.ID,
		Description: a.Description,
		Severity:    a.Severity,
		BaseScore:   a.BaseScore,
		ImpactScore: a.ImpactScore,
	}
	for _, af := range a.Affected {
		out := affectedDoc{Ecosystem: string(af.Ecosystem), Package: af.Package}
		for _, r := range af.Ranges {
			out.Ranges = append(out.Ranges, rangeDoc{
				Version:        r.Version,
				StartIncluding: ptr(r.StartIncluding),
				StartExcluding: ptr(r.StartExcluding),
				EndIncluding:   ptr(r.EndIncluding),
				EndExcluding:   ptr(r.EndExcluding),
			})
		}
		d.Affected = append(d.Affected, out)
	}
	return d
}

func ptr(o optional.Option[string]) *string {
	if v, err := o.Take(); err == nil {
		return &v
	}
	return nil
}

var _ Store = (*MongoSource)(nil)

func fromPtr(p *string) optional.Option[string] {
	if p == nil {
		return optional.None[string]()
	}
	return optional.Some(*p)
}
