// Package pypi provides an HTTP client for the Python Package Index JSON API.
//
// # Usage
//
//	markers, _ := version.NewMarkers("3.9")
//	client := pypi.NewClient(backend, 24*time.Hour, markers)
//
//	pv, err := client.GetVersions(ctx, "fastapi", false)
//	reqs, err := client.GetRequirement(ctx, "fastapi", "0.110.0")
//
// # Versions
//
// [Client.GetVersions] reads {name}/json. Every key of the releases map is a
// version; its release date is the earliest upload time of its files.
// Vendor is the author field and the repository URL is taken from
// project_urls, falling back to home_page.
//
// # Requirements
//
// [Client.GetRequirement] reads {name}/{version}/json and parses each
// requires_dist line as PEP 508. Lines whose environment marker cannot hold
// for any supported Python release are dropped, which also drops every
// extra. Specifiers are normalized and duplicate names are OR-ed.
//
// Package names are normalized following PEP 503.
package pypi
