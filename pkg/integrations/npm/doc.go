// Package npm provides an HTTP client for the npm registry API.
//
// # Usage
//
//	client := npm.NewClient(backend, 24*time.Hour)
//	pv, err := client.GetVersions(ctx, "express", false)
//	reqs, err := client.GetRequirement(ctx, "express", "4.18.2")
//
// [Client.GetVersions] reads the full package document ("packument") and
// takes release dates from its time map. [Client.GetRequirement] reads the
// per-version document and returns its "dependencies" field; dev, peer and
// optional dependencies are not part of the runtime graph.
//
// Scoped names ("@scope/name") are sent with the slash encoded as %2F.
package npm
