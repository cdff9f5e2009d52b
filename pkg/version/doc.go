// Package version implements the per-ecosystem version algebras.
//
// Each [Algebra] parses version names and constraint strings for one
// ecosystem:
//
//   - PyPI: PEP 440 via go-pep440-version, with [NormalizeSpecifier]
//     rewriting wildcards, ~= and === first
//   - NPM and Cargo: SemVer via Masterminds (Cargo bare versions are caret)
//   - Maven: Maven ordering via go-mvn-version with bracket ranges; a bare
//     version means exactly that version
//   - NuGet: NuGet 4-part versions with bracket ranges; a bare version is
//     a minimum
//   - RubyGems: go-gem-version (~>, =, comparators)
//
// [AssignSerials] turns a package's version list into dense serial numbers
// ordered by the algebra. Unparseable names get serial -1 and sort first.
// Serials are what the SMT translator reasons about.
//
// # Usage
//
//	alg, _ := version.For(version.PyPI)
//	vs := version.AssignSerials(alg, []string{"1.0.0", "1.0.0.dev1", "1.1.0"})
//	serials := version.Matching(alg, vs, ">=1.0.0")
package version
