// Package github provides an HTTP client for the GitHub REST API.
//
// The dependency builder only needs to know when a repository last changed:
// [Client.Repository] returns the default branch, the clone URL and the
// head commit date, which is compared against the stored Repository moment
// to decide whether a rebuild is due.
//
//	client := github.NewClient(backend, token, time.Hour)
//	info, err := client.Repository(ctx, "securechaindev", "depex", true)
//	fmt.Println(info.LastCommitDate())
//
// # Authentication
//
// A personal access token is optional. Without one the API allows 60
// requests per hour.
//
// # Names
//
// [ValidateRepoRef], [ParseRepoRef] and [ParseRepoArg] check owner and
// repository names against GitHub's naming rules before any request is
// made.
package github
