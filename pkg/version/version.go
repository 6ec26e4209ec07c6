// Package version provides version information for the token-prices application.
package version

// Version is the current version of the token-prices application.
const Version = "0.3.1"

// AgentString returns the full agent string with versioning.
// Format: token-prices/v{version}
func AgentString() string {
	return "token-prices/v" + Version
}
