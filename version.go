package monit

import (
	"fmt"
	"regexp"

	"github.com/hashicorp/go-version"
)

// Version is the current version of the go-monit library
const Version = "1.0.0"

// VersionInfo contains detailed version information
type VersionInfo struct {
	// Version is the semantic version
	Version string
	// Providers lists the install providers this build can resolve
	Providers []string
	// LatestSupervisor is the newest supervisor release the archive providers carry
	LatestSupervisor string
}

// GetVersion returns the current version information
func GetVersion() VersionInfo {
	providers := make([]string, 0, len(strategies))
	for _, s := range strategies {
		providers = append(providers, string(s.provider))
	}
	return VersionInfo{
		Version:          Version,
		Providers:        providers,
		LatestSupervisor: latestVersion(binariesVersions),
	}
}

var monitVersionPattern = regexp.MustCompile(`This is Monit version (\d+(?:\.\d+)*)`)

// ParseMonitVersion extracts the version from `monit -V` output
func ParseMonitVersion(out string) (*version.Version, error) {
	m := monitVersionPattern.FindStringSubmatch(out)
	if m == nil {
		return nil, fmt.Errorf("monit: no version in output %q", out)
	}
	return version.NewVersion(m[1])
}
