// Package version provides version information for the pyth-publisher application.
package version

// Version is the current version of the pyth-publisher application.
const Version = "0.3.0"

// AgentString returns the full agent string with versioning.
// Format: pyth-publisher/v{version}
func AgentString() string {
	return "pyth-publisher/v" + Version
}
