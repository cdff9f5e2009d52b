package vuln

import (
	"context"
	"fmt"

	"github.com/matzehuels/chainsat/pkg/version"
)

// Attribution is the vulnerability data attached to one version.
type Attribution struct {
	Vulnerabilities []string `json:"vulnerabilities"`
	Mean            float64  `json:"mean"`
	WeightedMean    float64  `json:"weighted_mean"`
}

// Attributor maps versions of a package to the advisories that hit them.
type Attributor struct {
	source Source
}

// NewAttributor returns an attributor reading from src.
func NewAttributor(src Source) *Attributor {
	return &Attributor{source: src}
}

// Attribute returns an Attribution for every name in versions. Advisories
// for the package are fetched once.
func (a *Attributor) Attribute(ctx context.Context, eco version.Ecosystem, pkg string, versions []string) (map[string]Attribution, error) {
	alg, err := version.For(eco)
	if err != nil {
		return nil, err
	}
	advisories, err := a.source.ForPackage(ctx, eco, pkg)
	if err != nil {
		return nil, fmt.Errorf("advisories for %s/%s: %w", eco, pkg, err)
	}

	out := make(map[string]Attribution, len(versions))
	for _, v := range versions {
		out[v] = attribute(alg, eco, pkg, v, advisories)
	}
	return out, nil
}

func attribute(alg version.Algebra, eco version.Ecosystem, pkg, target string, advisories []Advisory) Attribution {
	at := Attribution{Vulnerabilities: []string{}}
	var impacts []float64
	for _, adv := range advisories {
		if !adv.affects(alg, eco, pkg, target) {
			continue
		}
		at.Vulnerabilities = append(at.Vulnerabilities, adv.ID)
		if s, err := adv.Impact().Take(); err == nil {
			impacts = append(impacts, s)
		}
	}
	at.Mean = Mean(impacts)
	at.WeightedMean = WeightedMean(impacts)
	return at
}
