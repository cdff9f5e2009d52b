// Package crates provides an HTTP client for the crates.io API.
//
// [Client.GetVersions] reads crates/{name} and [Client.GetRequirement] reads
// crates/{name}/{version}/dependencies, keeping only normal, non-optional
// dependencies. Requirement strings are Cargo semver requirements; a bare
// "1.2" means "^1.2".
package crates
