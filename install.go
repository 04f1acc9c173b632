package monit

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hashicorp/go-version"
	"github.com/sirupsen/logrus"
)

// Provider names an install strategy
type Provider string

const (
	// ProviderAuto picks the first eligible strategy in priority order
	ProviderAuto Provider = "auto"
	// ProviderDummy installs nothing and reports a fixed binary
	ProviderDummy Provider = "dummy"
	// ProviderBinaries downloads a static archive from mmonit.com
	ProviderBinaries Provider = "binaries"
	// ProviderBinariesBitbucket downloads a static archive from bitbucket
	ProviderBinariesBitbucket Provider = "binaries_bitbucket"
	// ProviderSystem installs the OS package
	ProviderSystem Provider = "system"
)

// ParseProvider parses a provider name; the empty string means auto
func ParseProvider(s string) (Provider, error) {
	if s == "" {
		return ProviderAuto, nil
	}
	p := Provider(s)
	if p == ProviderAuto {
		return p, nil
	}
	for _, e := range strategies {
		if e.provider == p {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
}

// StrategyKind is the variant of an install strategy
type StrategyKind int

const (
	// KindStub installs nothing
	KindStub StrategyKind = iota
	// KindArchive fetches and extracts a static binary archive
	KindArchive
	// KindPackage installs an OS package
	KindPackage
)

// String returns the string representation of the kind
func (k StrategyKind) String() string {
	switch k {
	case KindArchive:
		return "archive"
	case KindPackage:
		return "package"
	default:
		return "stub"
	}
}

// Platform families with an OS package
const (
	FamilyDebian = "debian"
	FamilyRHEL   = "rhel"
)

// Package and repository names
const (
	PackageName = "monit"

	// RequiredRHELRepository must be registered for package installs on rhel hosts
	RequiredRHELRepository = "epel"
)

// Strategy is a resolved install strategy with every parameter computed
type Strategy struct {
	// Provider is the strategy that was chosen
	Provider Provider
	// Kind is the strategy variant
	Kind StrategyKind
	// Version is the supervisor version, empty for an unpinned package
	Version string
	// MachineLabel is the normalized OS and architecture for archives
	MachineLabel string
	// URL is the archive location
	URL string
	// InstallDir is where the archive is extracted
	InstallDir string
	// Package is the OS package name
	Package string
	// PlatformFamily selects the package manager
	PlatformFamily string
	// Binary is the supervisor executable once installed
	Binary string
}

// ResolveOptions are the operator inputs to Resolve
type ResolveOptions struct {
	// Provider forces a strategy; empty or auto evaluates them in priority order
	Provider Provider
	// Version requests a version; a dotted prefix such as "5" matches 5.17.1
	Version string
	// SkipRepository disables the third-party repository requirement
	SkipRepository bool
	// InstallRoot is the parent directory for archives, DefaultInstallRoot when empty
	InstallRoot string
}

const (
	binariesURL  = "https://mmonit.com/monit/dist/binary/%{version}/monit-%{version}-%{machine_label}.tar.gz"
	bitbucketURL = "https://bitbucket.org/tildeslash/monit/downloads/monit-%{version}-%{machine_label}.tar.gz"
)

var (
	binariesVersions  = []string{"5.17.1", "5.16", "5.15"}
	bitbucketVersions = []string{"5.15", "5.14"}

	staticMachines = []string{
		"aix5.3-ppc", "aix6.1-ppc", "aix-ppc",
		"freebsd-x64", "freebsd-x86",
		"linux-x64", "linux-x86", "linux-arm",
		"macosx-universal",
		"openbsd-x64", "openbsd-x86",
		"solaris-sparc", "solaris-x64",
	}

	machineAliases = map[string]string{
		"amd64":   "x64",
		"x86_64":  "x64",
		"i386":    "x86",
		"i686":    "x86",
		"powerpc": "ppc",
		"i86pc":   "x64",
		"sun4v":   "sparc",
		"sun4u":   "sparc",
		"sun4us":  "sparc",
	}

	// aixUnifiedLabel is the first release published with a single aix label
	aixUnifiedLabel = version.Must(version.NewVersion("5.16"))
)

// strategyEntry is one row of the priority table
type strategyEntry struct {
	provider Provider
	// auto reports eligibility when no provider is forced
	auto func(Facts, ResolveOptions) bool
	// build computes the strategy; it also runs when the provider is forced
	build func(Facts, ResolveOptions) (Strategy, error)
}

// strategies is evaluated top to bottom under ProviderAuto; first match wins
var strategies = []strategyEntry{
	{
		provider: ProviderDummy,
		auto:     func(f Facts, _ ResolveOptions) bool { return f.TestHarness },
		build:    buildStub,
	},
	{
		provider: ProviderBinaries,
		auto:     archiveEligible(binariesVersions),
		build:    buildArchive(ProviderBinaries, binariesVersions, binariesURL),
	},
	{
		provider: ProviderBinariesBitbucket,
		auto:     archiveEligible(bitbucketVersions),
		build:    buildArchive(ProviderBinariesBitbucket, bitbucketVersions, bitbucketURL),
	},
	{
		provider: ProviderSystem,
		auto:     func(f Facts, _ ResolveOptions) bool { return packageFamily(f) != "" },
		build:    buildPackage,
	},
}

// Resolve selects and parameterizes an install strategy for the host. It has
// no side effects.
func Resolve(facts Facts, opts ResolveOptions) (Strategy, error) {
	provider := opts.Provider
	if provider == "" {
		provider = ProviderAuto
	}
	for _, e := range strategies {
		if provider == ProviderAuto {
			if e.auto(facts, opts) {
				return e.build(facts, opts)
			}
			continue
		}
		if e.provider == provider {
			return e.build(facts, opts)
		}
	}
	if provider != ProviderAuto {
		return Strategy{}, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	return Strategy{}, fmt.Errorf("%w: kernel %s machine %s platform %s",
		ErrNoStrategy, facts.KernelName, facts.Machine, facts.Platform)
}

// MachineLabel normalizes kernel and architecture into an archive label.
// ver is the archive version; it selects the aix label form.
func MachineLabel(facts Facts, ver string) string {
	rawMachine := strings.ToLower(facts.Machine)
	if rawMachine == "" {
		rawMachine = "unknown"
	}
	machine, ok := machineAliases[rawMachine]
	if !ok {
		machine = rawMachine
	}

	kernel := strings.ToLower(facts.KernelName)
	switch kernel {
	case "":
		kernel = "unknown"
	case "aix":
		if !aixUnified(ver) {
			kernel = fmt.Sprintf("aix%s.%s", facts.KernelVersion, facts.KernelRelease)
		}
	case "sunos":
		kernel = "solaris"
	case "darwin":
		return "macosx-universal"
	}
	return kernel + "-" + machine
}

func aixUnified(ver string) bool {
	if ver == "" {
		return false
	}
	v, err := version.NewVersion(ver)
	if err != nil {
		return false
	}
	return v.GreaterThanOrEqual(aixUnifiedLabel)
}

// matchVersions returns the supported versions matching req, newest first
func matchVersions(supported []string, req string) []string {
	var out []string
	for _, v := range supported {
		if req == "" || v == req || strings.HasPrefix(v, req+".") {
			out = append(out, v)
		}
	}
	slices.SortFunc(out, func(a, b string) int {
		return version.Must(version.NewVersion(b)).Compare(version.Must(version.NewVersion(a)))
	})
	return out
}

func latestVersion(supported []string) string {
	if m := matchVersions(supported, ""); len(m) > 0 {
		return m[0]
	}
	return ""
}

func archiveEligible(versions []string) func(Facts, ResolveOptions) bool {
	return func(f Facts, o ResolveOptions) bool {
		matched := matchVersions(versions, o.Version)
		if len(matched) == 0 {
			return false
		}
		return slices.Contains(staticMachines, MachineLabel(f, matched[0]))
	}
}

func buildArchive(p Provider, versions []string, urlTemplate string) func(Facts, ResolveOptions) (Strategy, error) {
	return func(f Facts, o ResolveOptions) (Strategy, error) {
		ver := o.Version
		if matched := matchVersions(versions, o.Version); len(matched) > 0 {
			ver = matched[0]
		}
		label := MachineLabel(f, ver)
		if !slices.Contains(staticMachines, label) {
			return Strategy{}, fmt.Errorf("%w: %s has no archive for %s", ErrNoStrategy, p, label)
		}
		root := o.InstallRoot
		if root == "" {
			root = DefaultInstallRoot
		}
		dir := filepath.Join(root, PackageName+"-"+ver)
		return Strategy{
			Provider:     p,
			Kind:         KindArchive,
			Version:      ver,
			MachineLabel: label,
			URL:          renderURL(urlTemplate, ver, label),
			InstallDir:   dir,
			Binary:       filepath.Join(dir, "bin", PackageName),
		}, nil
	}
}

func renderURL(tmpl, ver, label string) string {
	return strings.NewReplacer("%{version}", ver, "%{machine_label}", label).Replace(tmpl)
}

func buildPackage(f Facts, o ResolveOptions) (Strategy, error) {
	family := packageFamily(f)
	if family == "" {
		return Strategy{}, fmt.Errorf("%w: no package for platform family %q", ErrNoStrategy, f.PlatformFamily)
	}
	if family == FamilyRHEL && !o.SkipRepository && !slices.Contains(f.Repositories, RequiredRHELRepository) {
		return Strategy{}, fmt.Errorf("%w: the %s package on %s needs the %q yum repository; "+
			"register it or set skip_repository if another repository provides the package",
			ErrRepositoryUnavailable, PackageName, f.Platform, RequiredRHELRepository)
	}
	return Strategy{
		Provider:       ProviderSystem,
		Kind:           KindPackage,
		Version:        o.Version,
		Package:        PackageName,
		PlatformFamily: family,
		Binary:         DefaultBinary,
	}, nil
}

func buildStub(_ Facts, o ResolveOptions) (Strategy, error) {
	return Strategy{
		Provider: ProviderDummy,
		Kind:     KindStub,
		Version:  o.Version,
		Binary:   DefaultBinary,
	}, nil
}

func packageFamily(f Facts) string {
	switch f.PlatformFamily {
	case FamilyDebian, FamilyRHEL:
		return f.PlatformFamily
	default:
		return ""
	}
}

// Installer performs the side effects of a resolved strategy
type Installer interface {
	// Install obtains the binary; it is a no-op when already installed
	Install(ctx context.Context) error
	// Uninstall removes what Install added
	Uninstall(ctx context.Context) error
	// Binary is the supervisor executable path
	Binary() string
}

// InstallerOption configures an Installer
type InstallerOption func(*installerConfig)

type installerConfig struct {
	logger   logrus.FieldLogger
	runner   *Runner
	fetch    FetchFunc
	initFile string
}

// WithInstallerLogger sets the installer logger
func WithInstallerLogger(l logrus.FieldLogger) InstallerOption {
	return func(c *installerConfig) {
		c.logger = l
	}
}

// WithInstallerRunner sets the runner used for package manager commands
func WithInstallerRunner(r *Runner) InstallerOption {
	return func(c *installerConfig) {
		c.runner = r
	}
}

// WithFetch replaces the archive downloader
func WithFetch(fn FetchFunc) InstallerOption {
	return func(c *installerConfig) {
		c.fetch = fn
	}
}

// WithInitFile sets the init script removed after a package install
func WithInitFile(path string) InstallerOption {
	return func(c *installerConfig) {
		c.initFile = path
	}
}

// NewInstaller returns the Installer for a resolved strategy
func NewInstaller(s Strategy, opts ...InstallerOption) Installer {
	cfg := &installerConfig{
		logger:   logrus.StandardLogger(),
		initFile: "/etc/init.d/monit",
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.runner == nil {
		cfg.runner = NewRunner(WithRunnerLogger(cfg.logger))
	}
	if cfg.fetch == nil {
		cfg.fetch = NewHTTPFetch(nil, cfg.logger)
	}
	log := cfg.logger.WithFields(logrus.Fields{"provider": string(s.Provider), "version": s.Version})

	switch s.Kind {
	case KindArchive:
		return &archiveInstaller{strategy: s, fetch: cfg.fetch, log: log}
	case KindPackage:
		return &packageInstaller{strategy: s, runner: cfg.runner, initFile: cfg.initFile, log: log}
	default:
		return &stubInstaller{binary: s.Binary}
	}
}
