package monit

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type packageInstaller struct {
	strategy Strategy
	runner   *Runner
	initFile string
	log      logrus.FieldLogger
}

func (p *packageInstaller) Binary() string {
	return p.strategy.Binary
}

// installArgs pins the version with the syntax of the family's package manager
func (p *packageInstaller) installArgs() []string {
	pkg := p.strategy.Package
	switch p.strategy.PlatformFamily {
	case FamilyDebian:
		if p.strategy.Version != "" {
			pkg += "=" + p.strategy.Version
		}
		return []string{"apt-get", "install", "-y", "-q", pkg}
	default:
		if p.strategy.Version != "" {
			pkg += "-" + p.strategy.Version
		}
		return []string{"yum", "install", "-y", "-q", pkg}
	}
}

func (p *packageInstaller) uninstallArgs() []string {
	if p.strategy.PlatformFamily == FamilyDebian {
		return []string{"apt-get", "purge", "-y", "-q", p.strategy.Package}
	}
	return []string{"yum", "remove", "-y", "-q", p.strategy.Package}
}

// queryArgs prints the installed version, exiting non-zero when absent
func (p *packageInstaller) queryArgs() []string {
	if p.strategy.PlatformFamily == FamilyDebian {
		return []string{"dpkg-query", "-W", "-f=${Version}", p.strategy.Package}
	}
	return []string{"rpm", "-q", "--qf", "%{VERSION}-%{RELEASE}", p.strategy.Package}
}

func (p *packageInstaller) exec(ctx context.Context, args []string) (*CommandResult, error) {
	cmd := Command{
		Op:   OpUnknown,
		Args: args,
		Env:  []string{"DEBIAN_FRONTEND=noninteractive"},
	}
	// Package managers hold a lock; one attempt, no retry.
	return p.runner.RunBudget(ctx, cmd, DefaultPredicate, Budget{Wait: DefaultWait})
}

// installed reports whether the package is present at the pinned version.
// Any version satisfies an unpinned strategy.
func (p *packageInstaller) installed(ctx context.Context) bool {
	res, err := p.exec(ctx, p.queryArgs())
	if err != nil {
		return false
	}
	have := strings.TrimSpace(res.Stdout)
	if have == "" {
		return false
	}
	want := p.strategy.Version
	return want == "" || have == want || strings.HasPrefix(have, want+"-")
}

func (p *packageInstaller) Install(ctx context.Context) error {
	log := p.log.WithField("package", p.strategy.Package)
	if p.installed(ctx) {
		log.Debug("system package already installed")
		return nil
	}
	log.Info("installing system package")
	if _, err := p.exec(ctx, p.installArgs()); err != nil {
		return err
	}
	// The package's own init script would start a second daemon. It is only
	// removed when the package changed, so a script restored by hand survives.
	if err := os.Remove(p.initFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", p.initFile, err)
	}
	return nil
}

func (p *packageInstaller) Uninstall(ctx context.Context) error {
	p.log.WithField("package", p.strategy.Package).Info("removing system package")
	_, err := p.exec(ctx, p.uninstallArgs())
	return err
}

type stubInstaller struct {
	binary string
}

func (s *stubInstaller) Binary() string {
	return s.binary
}

func (s *stubInstaller) Install(context.Context) error {
	return nil
}

func (s *stubInstaller) Uninstall(context.Context) error {
	return nil
}
