// Package vuln attributes known advisories to package versions.
//
// An [Advisory] lists affected packages, each with version [Range]s in the
// NVD CPE-match shape: either a single listed version (possibly a wildcard)
// or optional inclusive/exclusive start and end bounds. Bounds are evaluated
// with the ecosystem's version algebra; a bound that fails to parse skips
// the range.
//
// [Attributor] turns a package's version list into per-version advisory ids
// plus two impact aggregates: [Mean] and [WeightedMean].
//
// Advisories come from a [Source]: [MongoSource] over the "cves" collection
// in production, [MemorySource] in tests. [ParseNVD] reads NVD 2.0 CVE JSON
// for import.
package vuln
