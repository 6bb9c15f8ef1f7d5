package providers_test

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/openfroyo/deckhand/pkg/host"
	"gopkg.in/yaml.v3"
)

// fakeInstaller keeps installed packages in memory. Repository files go to
// the shared file system like the real installers do.
type fakeInstaller struct {
	fs        host.FS
	installed map[string]string
	outdated  map[string]bool
	calls     []string
}

func newFakeInstaller(fsys host.FS) *fakeInstaller {
	return &fakeInstaller{fs: fsys, installed: make(map[string]string), outdated: make(map[string]bool)}
}

func (f *fakeInstaller) RepositoryFile(repo host.Repository) (string, []byte) {
	return "/etc/apt/sources.list.d/" + repo.Name + ".list", []byte("deb " + repo.URI + " " + repo.Distribution + "\n")
}

func (f *fakeInstaller) AddRepository(_ context.Context, repo host.Repository) error {
	f.calls = append(f.calls, "add-repository "+repo.Name)
	path, content := f.RepositoryFile(repo)
	return f.fs.WriteFile(path, content, 0o644)
}

func (f *fakeInstaller) Installed(_ context.Context, name string) (string, bool, error) {
	v, ok := f.installed[name]
	return v, ok, nil
}

func (f *fakeInstaller) Outdated(_ context.Context, name string) (bool, error) {
	return f.outdated[name], nil
}

func (f *fakeInstaller) Install(_ context.Context, name, version string) error {
	f.calls = append(f.calls, strings.TrimSpace("install "+name+" "+version))
	if version == "" {
		version = "1.0"
	}
	f.installed[name] = version
	return nil
}

func (f *fakeInstaller) Upgrade(_ context.Context, name string) error {
	f.calls = append(f.calls, "upgrade "+name)
	f.outdated[name] = false
	return nil
}

func (f *fakeInstaller) JavaPackage() string { return "openjdk-11-jre-headless" }

type fakeSupervisor struct {
	enabled  map[string]bool
	active   map[string]bool
	restarts int
	installs int
	events   *[]string
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{enabled: make(map[string]bool), active: make(map[string]bool)}
}

func (f *fakeSupervisor) UnitPath(name string) string { return "/etc/systemd/system/" + name + ".service" }

func (f *fakeSupervisor) Install(context.Context, string) error {
	f.installs++
	return nil
}

func (f *fakeSupervisor) IsEnabled(_ context.Context, name string) (bool, error) {
	return f.enabled[name], nil
}

func (f *fakeSupervisor) IsActive(_ context.Context, name string) (bool, error) {
	return f.active[name], nil
}

func (f *fakeSupervisor) Enable(_ context.Context, name string) error {
	f.enabled[name] = true
	return nil
}

func (f *fakeSupervisor) Start(_ context.Context, name string) error {
	f.active[name] = true
	return nil
}

func (f *fakeSupervisor) Restart(_ context.Context, name string) error {
	f.restarts++
	if f.events != nil {
		*f.events = append(*f.events, "restart")
	}
	f.active[name] = true
	return nil
}

func (f *fakeSupervisor) Stop(_ context.Context, name string) error {
	f.active[name] = false
	return nil
}

type fakeProber struct {
	mu    sync.Mutex
	waits []int
	err   error
}

func (f *fakeProber) WaitUntilUp(_ context.Context, port int, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits = append(f.waits, port)
	return f.err
}

// fakeJobs stores loaded YAML job documents by project and name.
type fakeJobs struct {
	stored map[string][]byte
	loads  int
	events *[]string
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{stored: make(map[string][]byte)}
}

func (f *fakeJobs) List(_ context.Context, project, name, _ string) ([]byte, error) {
	return f.stored[project+"/"+name], nil
}

func (f *fakeJobs) Load(_ context.Context, project string, content []byte, _ string) error {
	f.loads++
	if f.events != nil {
		*f.events = append(*f.events, "job-load")
	}
	var jobs []struct {
		Name string `yaml:"name"`
	}
	if err := yaml.Unmarshal(content, &jobs); err != nil {
		return err
	}
	if len(jobs) != 1 {
		return errors.New("expected one job")
	}
	f.stored[project+"/"+jobs[0].Name] = content
	return nil
}
