// ABOUTME: Build and product identification
// ABOUTME: Reported to the server in client/hello device info
package version

// Version is overridden at build time with -ldflags "-X ...version.Version=..."
var Version = "0.1.0"

const (
	Product      = "Resonate Player"
	Manufacturer = "Resonate"
)
