package host

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/openfroyo/deckhand/pkg/engine"
)

// Family is a platform family that decides which package installer is used.
type Family string

const (
	FamilyDebian  Family = "debian"
	FamilyRHEL    Family = "rhel"
	FamilyUnknown Family = "unknown"
)

// Platform describes the managed host's operating system.
type Platform struct {
	ID        string `json:"id"`
	VersionID string `json:"version_id"`
	Name      string `json:"name"`
	Family    Family `json:"family"`
}

const osReleasePath = "/etc/os-release"

// DetectPlatform reads /etc/os-release on the host.
func DetectPlatform(fsys FS) (Platform, error) {
	data, err := fsys.ReadFile(osReleasePath)
	if err != nil {
		return Platform{}, fmt.Errorf("failed to read %s: %w", osReleasePath, err)
	}
	return ParseOSRelease(data), nil
}

// ParseOSRelease parses os-release content. ID and ID_LIKE decide the
// family: debian/ubuntu map to debian, rhel/fedora/centos to rhel.
func ParseOSRelease(data []byte) Platform {
	fields := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		fields[k] = strings.Trim(v, `"'`)
	}

	p := Platform{
		ID:        fields["ID"],
		VersionID: fields["VERSION_ID"],
		Name:      fields["PRETTY_NAME"],
		Family:    FamilyUnknown,
	}

	candidates := append([]string{fields["ID"]}, strings.Fields(fields["ID_LIKE"])...)
	for _, id := range candidates {
		switch id {
		case "debian", "ubuntu":
			p.Family = FamilyDebian
			return p
		case "rhel", "fedora", "centos", "rocky", "almalinux":
			p.Family = FamilyRHEL
			return p
		}
	}
	return p
}

// Supported returns an unimplemented error for families without an
// installer.
func (p Platform) Supported() error {
	switch p.Family {
	case FamilyDebian, FamilyRHEL:
		return nil
	default:
		return engine.NewUnimplementedError(
			fmt.Sprintf("no package installer for platform %q (family %s)", p.ID, p.Family)).
			WithOperation("detect_platform")
	}
}
