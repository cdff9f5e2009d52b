// Package nuget provides an HTTP client for the NuGet v3 registration API.
//
// Both operations read the registration index at
// registration5-gz-semver2/{id}/index.json. Pages that are not inlined in
// the index are fetched by their @id. The flattened catalog is cached once
// per package, so [Client.GetRequirement] for successive versions costs a
// single round of requests.
//
// Dependency ranges keep the NuGet interval syntax ("[1.0, 2.0)"); a bare
// version is an inclusive lower bound.
package nuget
