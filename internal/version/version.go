// Package version holds the release version of the resolver.
package version

// Current is the released version, without a "v" prefix.
const Current = "0.1.0"

// UserAgent is the default User-Agent sent to providers and crawled sites.
func UserAgent() string {
	return "impressum-resolver/" + Current
}
