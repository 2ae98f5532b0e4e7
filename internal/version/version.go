// ABOUTME: Version information for audiorelay binaries
// ABOUTME: Reported in logs and the TUI header
package version

const (
	Version      = "0.1.0"
	Product      = "AudioRelay"
	Manufacturer = "harperreed"
)

// String returns the product name with its version
func String() string {
	return Product + " " + Version
}
