// Package maven provides an HTTP client for Maven Central.
//
// Packages are named by their "groupId:artifactId" coordinate and the group
// id doubles as the vendor.
//
// [Client.GetVersions] pages the search API's gav core in blocks of 200.
// [Client.GetRequirement] downloads the version's POM from repo1 and keeps
// compile and runtime dependencies, resolving ${property} references
// against the POM's own properties. Versions are Maven constraint strings:
// a bare "1.2.3" is exact, brackets and parentheses denote ranges.
package maven
