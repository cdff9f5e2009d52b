// Package rubygems provides an HTTP client for the RubyGems.org API.
//
// [Client.GetVersions] reads v1/versions/{gem}.json and keeps the "ruby"
// platform releases; vendor is the authors field of the newest release.
// [Client.GetRequirement] reads v2/rubygems/{gem}/versions/{v}.json and
// returns runtime dependencies only. Requirement strings keep the RubyGems
// syntax ("~> 1.2, >= 1.2.3").
package rubygems
