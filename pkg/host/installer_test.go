package host_test

import (
	"context"
	"strings"
	"testing"

	"github.com/openfroyo/deckhand/pkg/engine"
	"github.com/openfroyo/deckhand/pkg/host"
	"github.com/openfroyo/deckhand/pkg/host/hosttest"
	"github.com/rs/zerolog"
)

func TestParseOSRelease(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		family host.Family
	}{
		{"debian", "ID=debian\nVERSION_ID=\"12\"\n", host.FamilyDebian},
		{"ubuntu", "ID=ubuntu\nID_LIKE=debian\n", host.FamilyDebian},
		{"rocky", "ID=\"rocky\"\nID_LIKE=\"rhel centos fedora\"\n", host.FamilyRHEL},
		{"amazon", "ID=\"amzn\"\nID_LIKE=\"centos rhel fedora\"\n", host.FamilyRHEL},
		{"arch", "ID=arch\n", host.FamilyUnknown},
		{"comments", "# comment\n\nID=fedora\n", host.FamilyRHEL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := host.ParseOSRelease([]byte(tt.data)).Family; got != tt.family {
				t.Errorf("Family = %s, want %s", got, tt.family)
			}
		})
	}
}

func TestUnknownPlatformIsUnimplemented(t *testing.T) {
	p := host.ParseOSRelease([]byte("ID=arch\n"))
	_, err := host.NewInstaller(p, hosttest.NewRunner(), hosttest.NewFS(), zerolog.Nop())
	if !engine.IsUnimplemented(err) {
		t.Fatalf("NewInstaller() error = %v, want unimplemented", err)
	}
}

func TestVersionMatches(t *testing.T) {
	tests := []struct {
		installed, pinned string
		want              bool
	}{
		{"3.0.9", "3.0.9", true},
		{"3.0.9-20181127", "3.0.9", true},
		{"3.0.9.1", "3.0.9", true},
		{"3.0.10", "3.0.1", false},
		{"2.6.2-1-GA", "2.6.1", false},
	}
	for _, tt := range tests {
		if got := host.VersionMatches(tt.installed, tt.pinned); got != tt.want {
			t.Errorf("VersionMatches(%q, %q) = %v, want %v", tt.installed, tt.pinned, got, tt.want)
		}
	}
}

func TestAptInstaller(t *testing.T) {
	ctx := context.Background()
	r := hosttest.NewRunner()
	f := hosttest.NewFS()
	inst, err := host.NewInstaller(host.Platform{ID: "debian", Family: host.FamilyDebian}, r, f, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	repo := host.Repository{Name: "rundeck-bintray", URI: "https://dl.bintray.com/rundeck/rundeck-deb", Distribution: "/", Trusted: true}
	if err := inst.AddRepository(ctx, repo); err != nil {
		t.Fatalf("AddRepository() error = %v", err)
	}
	want := "deb [trusted=yes] https://dl.bintray.com/rundeck/rundeck-deb /\n"
	if got := f.Content("/etc/apt/sources.list.d/rundeck-bintray.list"); got != want {
		t.Errorf("sources entry = %q, want %q", got, want)
	}

	r.Handle("dpkg-query", func(host.Command) (*host.Output, error) {
		return &host.Output{Stdout: []byte("install ok installed\t3.0.9-20181127")}, nil
	})
	v, ok, err := inst.Installed(ctx, "rundeck")
	if err != nil || !ok || v != "3.0.9-20181127" {
		t.Errorf("Installed() = %q, %v, %v", v, ok, err)
	}

	r.Handle("dpkg-query", func(host.Command) (*host.Output, error) {
		return &host.Output{ExitCode: 1, Stderr: []byte("dpkg-query: no packages found matching rundeck")}, nil
	})
	if _, ok, err := inst.Installed(ctx, "rundeck"); err != nil || ok {
		t.Errorf("Installed(absent) = %v, %v", ok, err)
	}

	r.Handle("apt-cache", func(host.Command) (*host.Output, error) {
		return &host.Output{Stdout: []byte("rundeck:\n  Installed: 3.0.8\n  Candidate: 3.0.9\n")}, nil
	})
	if outdated, err := inst.Outdated(ctx, "rundeck"); err != nil || !outdated {
		t.Errorf("Outdated() = %v, %v; want true", outdated, err)
	}

	if err := inst.Install(ctx, "rundeck", "3.0.9"); err != nil {
		t.Fatal(err)
	}
	if r.Count("apt-get install -y -q --allow-downgrades rundeck=3.0.9") != 1 {
		t.Errorf("pinned install not issued: %v", r.Commands())
	}
}

func TestYumInstaller(t *testing.T) {
	ctx := context.Background()
	r := hosttest.NewRunner()
	f := hosttest.NewFS()
	inst, err := host.NewInstaller(host.Platform{ID: "rocky", Family: host.FamilyRHEL}, r, f, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	repo := host.Repository{Name: "rundeck-bintray", URI: "https://dl.bintray.com/rundeck/rundeck-rpm", Trusted: true}
	if err := inst.AddRepository(ctx, repo); err != nil {
		t.Fatal(err)
	}
	content := f.Content("/etc/yum.repos.d/rundeck-bintray.repo")
	if !strings.Contains(content, "baseurl=https://dl.bintray.com/rundeck/rundeck-rpm\n") || !strings.Contains(content, "gpgcheck=0") {
		t.Errorf("unexpected repo file:\n%s", content)
	}

	r.Handle("yum", func(c host.Command) (*host.Output, error) {
		if c.Args[0] == "check-update" {
			return &host.Output{ExitCode: 100}, nil
		}
		return &host.Output{}, nil
	})
	if outdated, err := inst.Outdated(ctx, "rundeck"); err != nil || !outdated {
		t.Errorf("Outdated() = %v, %v; want true", outdated, err)
	}

	if err := inst.Install(ctx, "rundeck", "3.0.9"); err != nil {
		t.Fatal(err)
	}
	if r.Count("yum install -y -q rundeck-3.0.9") != 1 {
		t.Errorf("pinned install not issued: %v", r.Commands())
	}
}
