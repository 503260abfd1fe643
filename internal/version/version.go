package version

import "fmt"

// These variables are populated at build time using -ldflags
var (
	// Version is the semantic version of the application
	Version = "dev"

	// BuildTime is the time the binary was built
	BuildTime = "unknown"
)

// Info is the build metadata reported by the health endpoint and the version command.
type Info struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
}

// Get returns the build metadata of the running binary
func Get() Info {
	return Info{Version: Version, BuildTime: BuildTime}
}

func (i Info) String() string {
	return fmt.Sprintf("Otakuin v%s (built %s)", i.Version, i.BuildTime)
}
