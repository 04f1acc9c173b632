package monit

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// TestHarnessEnv marks a host as a test harness; any non-empty value selects the stub strategy
const TestHarnessEnv = "MONIT_TEST_HARNESS"

// Facts are the host inputs to Resolve
type Facts struct {
	// KernelName is the uname system name, e.g. Linux, Darwin, AIX, SunOS
	KernelName string `json:"kernel_name" yaml:"kernel_name"`
	// KernelRelease is the uname release; the minor version on AIX
	KernelRelease string `json:"kernel_release" yaml:"kernel_release"`
	// KernelVersion is the uname version; the major version on AIX
	KernelVersion string `json:"kernel_version" yaml:"kernel_version"`
	// Machine is the raw CPU architecture
	Machine string `json:"machine" yaml:"machine"`
	// Platform is the distribution ID
	Platform string `json:"platform" yaml:"platform"`
	// PlatformFamily is debian, rhel, or the platform itself
	PlatformFamily string `json:"platform_family" yaml:"platform_family"`
	// Repositories lists registered yum repository IDs
	Repositories []string `json:"repositories,omitempty" yaml:"repositories,omitempty"`
	// TestHarness selects the no-op stub under auto
	TestHarness bool `json:"test_harness" yaml:"test_harness"`
}

// Default locations read by DetectFacts
const (
	OSReleasePath = "/etc/os-release"
	YumReposDir   = "/etc/yum.repos.d"
)

var (
	debianPlatforms = []string{"debian", "ubuntu", "linuxmint", "raspbian", "pop"}
	rhelPlatforms   = []string{"rhel", "redhat", "centos", "rocky", "almalinux", "ol", "oracle", "scientific", "amazon", "fedora"}
)

// DetectFacts gathers Facts for the running host
func DetectFacts() (Facts, error) {
	f, err := unameFacts()
	if err != nil {
		return Facts{}, err
	}
	f.TestHarness = os.Getenv(TestHarnessEnv) != ""

	if strings.EqualFold(f.KernelName, "linux") {
		id, like, err := readOSRelease(OSReleasePath)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Facts{}, err
		}
		f.Platform = id
		f.PlatformFamily = PlatformFamily(id, like)
		if f.PlatformFamily == FamilyRHEL {
			repos, err := ScanRepositories(YumReposDir)
			if err != nil {
				return Facts{}, err
			}
			f.Repositories = repos
		}
	} else {
		f.Platform = strings.ToLower(f.KernelName)
		f.PlatformFamily = f.Platform
	}
	return f, nil
}

// PlatformFamily maps an os-release ID and ID_LIKE list to a family
func PlatformFamily(id string, like []string) string {
	for _, candidate := range append([]string{id}, like...) {
		switch {
		case slices.Contains(debianPlatforms, candidate):
			return FamilyDebian
		case slices.Contains(rhelPlatforms, candidate):
			return FamilyRHEL
		}
	}
	return id
}

func readOSRelease(path string) (string, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, err
	}
	defer func() { _ = f.Close() }()
	return parseOSRelease(f)
}

// parseOSRelease returns ID and the ID_LIKE list from os-release content
func parseOSRelease(r io.Reader) (string, []string, error) {
	var id string
	var like []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok || strings.HasPrefix(key, "#") {
			continue
		}
		value = strings.ToLower(strings.Trim(value, `"'`))
		switch key {
		case "ID":
			id = value
		case "ID_LIKE":
			like = strings.Fields(value)
		}
	}
	if err := sc.Err(); err != nil {
		return "", nil, fmt.Errorf("reading os-release: %w", err)
	}
	return id, like, nil
}

// ScanRepositories lists the repository IDs declared in *.repo files under dir
func ScanRepositories(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.repo"))
	if err != nil {
		return nil, err
	}
	var repos []string
	for _, path := range files {
		ids, err := repoIDs(path)
		if err != nil {
			return nil, err
		}
		repos = append(repos, ids...)
	}
	slices.Sort(repos)
	return slices.Compact(repos), nil
}

func repoIDs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			ids = append(ids, strings.TrimSpace(line[1:len(line)-1]))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ids, nil
}
