// ABOUTME: Version and product identity for ttsplay
// ABOUTME: Reported in logs, telemetry resources and -version output
package version

// Version is overridden at build time with -ldflags "-X".
var Version = "0.3.0"

const (
	Product      = "ttsplay"
	Manufacturer = "speechkit"
)

// String renders the -version line.
func String() string {
	return Product + " " + Version + " (" + Manufacturer + ")"
}
