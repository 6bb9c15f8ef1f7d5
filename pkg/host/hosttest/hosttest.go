// Package hosttest provides in-memory host collaborators for tests.
package hosttest

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"

	"github.com/openfroyo/deckhand/pkg/host"
)

// HandlerFunc serves one fake command.
type HandlerFunc func(cmd host.Command) (*host.Output, error)

// Runner records commands and answers them from handlers keyed by program
// name. getent, groupadd and useradd are served from an in-memory account
// database. Unhandled commands succeed with empty output.
type Runner struct {
	mu       sync.Mutex
	Calls    []host.Command
	handlers map[string]HandlerFunc

	users  map[string]int
	groups map[string]int
	nextID int
}

// NewRunner creates a runner with an empty account database.
func NewRunner() *Runner {
	r := &Runner{
		handlers: make(map[string]HandlerFunc),
		users:    make(map[string]int),
		groups:   make(map[string]int),
		nextID:   900,
	}
	r.handlers["getent"] = r.getent
	r.handlers["groupadd"] = r.groupadd
	r.handlers["useradd"] = r.useradd
	return r
}

// Handle installs the handler for a program.
func (r *Runner) Handle(name string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = fn
}

// AddUser defines an account and returns its id, also used as its
// primary group id.
func (r *Runner) AddUser(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.users[name] = r.nextID
	return r.nextID
}

// AddGroup defines a group and returns its id.
func (r *Runner) AddGroup(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.groups[name] = r.nextID
	return r.nextID
}

// Run implements host.Runner.
func (r *Runner) Run(ctx context.Context, cmd host.Command) (*host.Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.Calls = append(r.Calls, cmd)
	h := r.handlers[cmd.Name]
	r.mu.Unlock()

	out := &host.Output{}
	if h != nil {
		var err error
		if out, err = h(cmd); err != nil {
			return out, err
		}
	}
	return out, host.CheckExit(cmd, out)
}

// Commands returns the recorded command lines.
func (r *Runner) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Calls))
	for i, c := range r.Calls {
		out[i] = c.String()
	}
	return out
}

// Count returns how many recorded commands start with prefix.
func (r *Runner) Count(prefix string) int {
	n := 0
	for _, c := range r.Commands() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// Reset forgets recorded commands.
func (r *Runner) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = nil
}

func (r *Runner) getent(cmd host.Command) (*host.Output, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(cmd.Args) != 2 {
		return &host.Output{ExitCode: 1}, nil
	}
	db, key := cmd.Args[0], cmd.Args[1]
	switch db {
	case "passwd":
		if id, ok := r.users[key]; ok {
			return &host.Output{Stdout: []byte(fmt.Sprintf("%s:x:%d:%d::/home/%s:/bin/false\n", key, id, id, key))}, nil
		}
	case "group":
		if id, ok := r.groups[key]; ok {
			return &host.Output{Stdout: []byte(fmt.Sprintf("%s:x:%d:\n", key, id))}, nil
		}
	}
	return &host.Output{ExitCode: 2}, nil
}

func (r *Runner) groupadd(cmd host.Command) (*host.Output, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := cmd.Args[len(cmd.Args)-1]
	if _, ok := r.groups[name]; ok {
		return &host.Output{ExitCode: 9, Stderr: []byte("groupadd: group '" + name + "' already exists")}, nil
	}
	r.nextID++
	r.groups[name] = r.nextID
	return &host.Output{}, nil
}

func (r *Runner) useradd(cmd host.Command) (*host.Output, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := cmd.Args[len(cmd.Args)-1]
	if _, ok := r.users[name]; ok {
		return &host.Output{ExitCode: 9, Stderr: []byte("useradd: user '" + name + "' already exists")}, nil
	}
	r.nextID++
	r.users[name] = r.nextID
	return &host.Output{}, nil
}

type entry struct {
	data []byte
	info host.FileInfo
}

// FS is an in-memory host.FS that counts mutations.
type FS struct {
	mu      sync.Mutex
	entries map[string]*entry
	writes  int
}

// NewFS creates an empty file system.
func NewFS() *FS {
	return &FS{entries: make(map[string]*entry)}
}

// Writes returns how many mutating calls succeeded.
func (f *FS) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

// Paths lists every file and directory, sorted.
func (f *FS) Paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.entries))
	for p := range f.entries {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Content returns a file's content, or "" when it does not exist.
func (f *FS) Content(path string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.entries[path]; ok {
		return string(e.data)
	}
	return ""
}

func notExist(op, path string) error {
	return &fs.PathError{Op: op, Path: path, Err: fs.ErrNotExist}
}

// ReadFile implements host.FS.
func (f *FS) ReadFile(path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[path]
	if !ok || e.info.IsDir {
		return nil, notExist("open", path)
	}
	return append([]byte(nil), e.data...), nil
}

// WriteFile implements host.FS. Ownership of an existing file is kept.
func (f *FS) WriteFile(path string, data []byte, mode fs.FileMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[path]
	if !ok {
		e = &entry{}
		f.entries[path] = e
	}
	e.data = append([]byte(nil), data...)
	e.info.Mode = mode
	f.writes++
	return nil
}

// Stat implements host.FS.
func (f *FS) Stat(path string) (*host.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[path]
	if !ok {
		return nil, notExist("stat", path)
	}
	info := e.info
	return &info, nil
}

// Mkdir implements host.FS.
func (f *FS) Mkdir(path string, mode fs.FileMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.entries[path]; ok {
		if !e.info.IsDir {
			return &fs.PathError{Op: "mkdir", Path: path, Err: fs.ErrExist}
		}
		e.info.Mode = mode
		f.writes++
		return nil
	}
	f.entries[path] = &entry{info: host.FileInfo{Mode: mode, IsDir: true}}
	f.writes++
	return nil
}

// Chmod implements host.FS.
func (f *FS) Chmod(path string, mode fs.FileMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[path]
	if !ok {
		return notExist("chmod", path)
	}
	e.info.Mode = mode
	f.writes++
	return nil
}

// Chown implements host.FS.
func (f *FS) Chown(path string, uid, gid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[path]
	if !ok {
		return notExist("chown", path)
	}
	e.info.UID, e.info.GID = uid, gid
	f.writes++
	return nil
}

// RemoveAll implements host.FS.
func (f *FS) RemoveAll(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	removed := false
	for p := range f.entries {
		if p == path || strings.HasPrefix(p, strings.TrimSuffix(path, "/")+"/") {
			delete(f.entries, p)
			removed = true
		}
	}
	if removed {
		f.writes++
	}
	return nil
}
