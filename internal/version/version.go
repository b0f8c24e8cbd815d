// ABOUTME: Release identity constants for the vsyncfeed binaries
// ABOUTME: Bumped by hand when tagging a release
package version

const (
	// Version is the software release, shown in startup banners.
	Version = "0.3.0"

	// Product names the suite in logs and mDNS TXT records.
	Product = "vsyncfeed"
)
