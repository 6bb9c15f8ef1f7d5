package host

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Repository is a package repository definition.
type Repository struct {
	Name         string
	URI          string
	Distribution string
	Components   []string
	Trusted      bool
}

// PlatformInstaller installs packages through the platform's package manager.
// It is chosen once per run from the detected platform.
type PlatformInstaller interface {
	// RepositoryFile returns the path and content that define repo.
	RepositoryFile(repo Repository) (string, []byte)

	// AddRepository writes the repository definition and refreshes metadata.
	AddRepository(ctx context.Context, repo Repository) error

	// Installed reports the installed version of a package.
	Installed(ctx context.Context, name string) (version string, ok bool, err error)

	// Outdated reports whether a newer version of an installed package is
	// available from the configured repositories.
	Outdated(ctx context.Context, name string) (bool, error)

	// Install installs a package, pinned when version is not empty.
	Install(ctx context.Context, name, version string) error

	// Upgrade upgrades a package to the latest available version.
	Upgrade(ctx context.Context, name string) error

	// JavaPackage names the Java runtime package for this platform.
	JavaPackage() string
}

// NewInstaller selects the installer for the platform family.
func NewInstaller(p Platform, runner Runner, fsys FS, logger zerolog.Logger) (PlatformInstaller, error) {
	if err := p.Supported(); err != nil {
		return nil, err
	}
	base := installerBase{
		runner: runner,
		fs:     fsys,
		logger: logger.With().Str("component", "installer").Str("family", string(p.Family)).Logger(),
	}
	if p.Family == FamilyDebian {
		return &AptInstaller{installerBase: base}, nil
	}
	return &YumInstaller{installerBase: base}, nil
}

// VersionMatches reports whether an installed version satisfies a pinned
// one. Package managers append release suffixes, so "3.0.9" matches
// "3.0.9-20181127".
func VersionMatches(installed, pinned string) bool {
	if installed == pinned {
		return true
	}
	return strings.HasPrefix(installed, pinned+"-") || strings.HasPrefix(installed, pinned+".")
}

type installerBase struct {
	runner Runner
	fs     FS
	logger zerolog.Logger
}

func (b *installerBase) run(ctx context.Context, name string, args ...string) (*Output, error) {
	return b.runner.Run(ctx, Command{
		Name: name,
		Args: args,
		Env:  map[string]string{"DEBIAN_FRONTEND": "noninteractive"},
	})
}

// AptInstaller manages packages with apt and dpkg.
type AptInstaller struct {
	installerBase
}

// RepositoryFile implements PlatformInstaller.
func (a *AptInstaller) RepositoryFile(repo Repository) (string, []byte) {
	var opts string
	if repo.Trusted {
		opts = "[trusted=yes] "
	}
	line := strings.TrimSpace(fmt.Sprintf("deb %s%s %s %s", opts, repo.URI, repo.Distribution, strings.Join(repo.Components, " ")))
	return "/etc/apt/sources.list.d/" + repo.Name + ".list", []byte(line + "\n")
}

// AddRepository implements PlatformInstaller.
func (a *AptInstaller) AddRepository(ctx context.Context, repo Repository) error {
	path, content := a.RepositoryFile(repo)
	if err := a.fs.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	a.logger.Info().Str("repository", repo.Name).Msg("Repository added")
	_, err := a.run(ctx, "apt-get", "update", "-q")
	return err
}

// Installed implements PlatformInstaller.
func (a *AptInstaller) Installed(ctx context.Context, name string) (string, bool, error) {
	out, err := a.runner.Run(ctx, Command{
		Name:             "dpkg-query",
		Args:             []string{"-W", "-f=${Status}\t${Version}", name},
		AllowedExitCodes: []int{1},
	})
	if err != nil {
		return "", false, err
	}
	status, version, _ := strings.Cut(strings.TrimSpace(string(out.Stdout)), "\t")
	if out.ExitCode != 0 || !strings.HasSuffix(status, "installed") || strings.HasSuffix(status, "not-installed") {
		return "", false, nil
	}
	return version, true, nil
}

// Outdated implements PlatformInstaller using the installed and candidate
// versions reported by apt-cache policy.
func (a *AptInstaller) Outdated(ctx context.Context, name string) (bool, error) {
	out, err := a.run(ctx, "apt-cache", "policy", name)
	if err != nil {
		return false, err
	}
	installed, candidate := parseAptPolicy(out.Stdout)
	return candidate != "" && candidate != "(none)" && installed != candidate, nil
}

func parseAptPolicy(data []byte) (installed, candidate string) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if v, ok := strings.CutPrefix(line, "Installed:"); ok {
			installed = strings.TrimSpace(v)
		}
		if v, ok := strings.CutPrefix(line, "Candidate:"); ok {
			candidate = strings.TrimSpace(v)
		}
	}
	return installed, candidate
}

// Install implements PlatformInstaller.
func (a *AptInstaller) Install(ctx context.Context, name, version string) error {
	spec := name
	if version != "" {
		spec = name + "=" + version
	}
	_, err := a.run(ctx, "apt-get", "install", "-y", "-q", "--allow-downgrades", spec)
	return err
}

// Upgrade implements PlatformInstaller.
func (a *AptInstaller) Upgrade(ctx context.Context, name string) error {
	_, err := a.run(ctx, "apt-get", "install", "-y", "-q", "--only-upgrade", name)
	return err
}

// JavaPackage implements PlatformInstaller.
func (a *AptInstaller) JavaPackage() string { return "openjdk-11-jre-headless" }

// YumInstaller manages packages with yum and rpm.
type YumInstaller struct {
	installerBase
}

// RepositoryFile implements PlatformInstaller.
func (y *YumInstaller) RepositoryFile(repo Repository) (string, []byte) {
	gpgcheck := 1
	if repo.Trusted {
		gpgcheck = 0
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n", repo.Name)
	fmt.Fprintf(&b, "name=%s\n", repo.Name)
	fmt.Fprintf(&b, "baseurl=%s\n", repo.URI)
	b.WriteString("enabled=1\n")
	fmt.Fprintf(&b, "gpgcheck=%d\n", gpgcheck)
	return "/etc/yum.repos.d/" + repo.Name + ".repo", []byte(b.String())
}

// AddRepository implements PlatformInstaller.
func (y *YumInstaller) AddRepository(ctx context.Context, repo Repository) error {
	path, content := y.RepositoryFile(repo)
	if err := y.fs.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	y.logger.Info().Str("repository", repo.Name).Msg("Repository added")
	_, err := y.run(ctx, "yum", "makecache", "-q", "--disablerepo=*", "--enablerepo="+repo.Name)
	return err
}

// Installed implements PlatformInstaller.
func (y *YumInstaller) Installed(ctx context.Context, name string) (string, bool, error) {
	out, err := y.runner.Run(ctx, Command{
		Name:             "rpm",
		Args:             []string{"-q", "--queryformat", "%{VERSION}-%{RELEASE}", name},
		AllowedExitCodes: []int{1},
	})
	if err != nil {
		return "", false, err
	}
	if out.ExitCode != 0 {
		return "", false, nil
	}
	return strings.TrimSpace(string(out.Stdout)), true, nil
}

// Outdated implements PlatformInstaller. yum check-update exits 100 when
// updates are available.
func (y *YumInstaller) Outdated(ctx context.Context, name string) (bool, error) {
	out, err := y.runner.Run(ctx, Command{
		Name:             "yum",
		Args:             []string{"check-update", "-q", name},
		AllowedExitCodes: []int{100},
	})
	if err != nil {
		return false, err
	}
	return out.ExitCode == 100, nil
}

// Install implements PlatformInstaller.
func (y *YumInstaller) Install(ctx context.Context, name, version string) error {
	spec := name
	if version != "" {
		spec = name + "-" + version
	}
	_, err := y.run(ctx, "yum", "install", "-y", "-q", spec)
	return err
}

// Upgrade implements PlatformInstaller.
func (y *YumInstaller) Upgrade(ctx context.Context, name string) error {
	_, err := y.run(ctx, "yum", "upgrade", "-y", "-q", name)
	return err
}

// JavaPackage implements PlatformInstaller.
func (y *YumInstaller) JavaPackage() string { return "java-11-openjdk-headless" }
