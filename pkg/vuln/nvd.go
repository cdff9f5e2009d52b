package vuln

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/moznion/go-optional"

	"github.com/matzehuels/chainsat/pkg/version"
)

type nvdFeed struct {
	Vulnerabilities []struct {
		CVE nvdCVE `json:"cve"`
	} `json:"vulnerabilities"`
}

type nvdCVE struct {
	ID           string `json:"id"`
	Descriptions []struct {
		Lang  string `json:"lang"`
		Value string `json:"value"`
	} `json:"descriptions"`
	Metrics struct {
		V31 []nvdMetric `json:"cvssMetricV31"`
		V30 []nvdMetric `json:"cvssMetricV30"`
	} `json:"metrics"`
	Configurations []struct {
		Nodes []struct {
			CPEMatch []nvdMatch `json:"cpeMatch"`
		} `json:"nodes"`
	} `json:"configurations"`
}

type nvdMetric struct {
	Type     string `json:"type"`
	CvssData struct {
		BaseScore    float64 `json:"baseScore"`
		BaseSeverity string  `json:"baseSeverity"`
	} `json:"cvssData"`
	ImpactScore float64 `json:"impactScore"`
}

type nvdMatch struct {
	Vulnerable            bool                    `json:"vulnerable"`
	Criteria              string                  `json:"criteria"`
	VersionStartIncluding optional.Option[string] `json:"versionStartIncluding"`
	VersionStartExcluding optional.Option[string] `json:"versionStartExcluding"`
	VersionEndIncluding   optional.Option[string] `json:"versionEndIncluding"`
	VersionEndExcluding   optional.Option[string] `json:"versionEndExcluding"`
}

// targetEcosystems maps the CPE target_sw field to an ecosystem.
var targetEcosystems = map[string]version.Ecosystem{
	"python":  version.PyPI,
	"node.js": version.NPM,
	"rust":    version.Cargo,
	"ruby":    version.RubyGems,
	".net":    version.NuGet,
	"maven":   version.Maven,
}

// ParseNVD reads an NVD 2.0 CVE response or feed file. Every vulnerable
// CPE match becomes a range on the CPE product.
func ParseNVD(r io.Reader) ([]Advisory, error) {
	var feed nvdFeed
	if err := json.NewDecoder(r).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decode nvd feed: %w", err)
	}
	out := make([]Advisory, 0, len(feed.Vulnerabilities))
	for _, v := range feed.Vulnerabilities {
		if a, ok := v.CVE.advisory(); ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (c nvdCVE) advisory() (Advisory, bool) {
	if c.ID == "" {
		return Advisory{}, false
	}
	a := Advisory{ID: c.ID, ImpactScore: []float64{}}
	for _, d := range c.Descriptions {
		if d.Lang == "en" {
			a.Description = d.Value
			break
		}
	}

	metrics := append(slices.Clone(c.Metrics.V31), c.Metrics.V30...)
	slices.SortStableFunc(metrics, func(x, y nvdMetric) int {
		return boolRank(x.Type == "Primary") - boolRank(y.Type == "Primary")
	})
	for i, m := range metrics {
		if i == 0 {
			a.BaseScore = m.CvssData.BaseScore
			a.Severity = m.CvssData.BaseSeverity
		}
		a.ImpactScore = append(a.ImpactScore, m.ImpactScore)
	}

	index := make(map[string]int)
	for _, cfg := range c.Configurations {
		for _, node := range cfg.Nodes {
			for _, m := range node.CPEMatch {
				if !m.Vulnerable {
					continue
				}
				eco, product, ver, ok := parseCPE(m.Criteria)
				if !ok {
					continue
				}
				key := string(eco) + "/" + product
				i, seen := index[key]
				if !seen {
					i = len(a.Affected)
					index[key] = i
					a.Affected = append(a.Affected, Affected{Ecosystem: eco, Package: product})
				}
				a.Affected[i].Ranges = append(a.Affected[i].Ranges, Range{
					Version:        ver,
					StartIncluding: m.VersionStartIncluding,
					StartExcluding: m.VersionStartExcluding,
					EndIncluding:   m.VersionEndIncluding,
					EndExcluding:   m.VersionEndExcluding,
				})
			}
		}
	}
	return a, len(a.Affected) > 0
}

// boolRank sorts true before false.
func boolRank(b bool) int {
	if b {
		return 0
	}
	return 1
}

// parseCPE extracts product, version and target ecosystem from a CPE 2.3
// formatted string.
func parseCPE(uri string) (eco version.Ecosystem, product, ver string, ok bool) {
	if !strings.HasPrefix(uri, "cpe:2.3:") {
		return "", "", "", false
	}
	parts := strings.Split(uri, ":")
	if len(parts) < 13 {
		return "", "", "", false
	}
	product = strings.ReplaceAll(parts[4], `\`, "")
	ver = strings.ReplaceAll(parts[5], `\`, "")
	eco = targetEcosystems[strings.ToLower(parts[10])]
	return eco, product, ver, product != ""
}
