package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// UserSpec describes a system account.
type UserSpec struct {
	Name    string
	Group   string
	Home    string
	Shell   string
	Comment string
	System  bool
}

// Ownership is the owner, group and permission bits of a managed path.
type Ownership struct {
	Owner string
	Group string
	Mode  fs.FileMode
}

// System provides the OS primitives convergence is built from: accounts,
// directories and files with ownership. Every check method is free of side
// effects.
type System struct {
	runner Runner
	fs     FS
	logger zerolog.Logger
}

// NewSystem creates OS primitives over a runner and file system.
func NewSystem(runner Runner, fsys FS, logger zerolog.Logger) *System {
	return &System{
		runner: runner,
		fs:     fsys,
		logger: logger.With().Str("component", "system").Logger(),
	}
}

// FS returns the underlying file system.
func (s *System) FS() FS { return s.fs }

// Runner returns the underlying command runner.
func (s *System) Runner() Runner { return s.runner }

// getent looks up one database entry. ok is false when the key is absent.
func (s *System) getent(ctx context.Context, db, key string) ([]string, bool, error) {
	out, err := s.runner.Run(ctx, Command{
		Name:             "getent",
		Args:             []string{db, key},
		AllowedExitCodes: []int{2},
	})
	if err != nil {
		return nil, false, err
	}
	if out.ExitCode == 2 {
		return nil, false, nil
	}
	return strings.Split(strings.TrimSpace(string(out.Stdout)), ":"), true, nil
}

// GroupExists reports whether a group is defined.
func (s *System) GroupExists(ctx context.Context, name string) (bool, error) {
	_, ok, err := s.getent(ctx, "group", name)
	return ok, err
}

// EnsureGroup creates a system group when it does not exist.
func (s *System) EnsureGroup(ctx context.Context, name string) (bool, error) {
	ok, err := s.GroupExists(ctx, name)
	if err != nil || ok {
		return false, err
	}
	if _, err := s.runner.Run(ctx, Command{Name: "groupadd", Args: []string{"--system", name}}); err != nil {
		return false, err
	}
	s.logger.Info().Str("group", name).Msg("Group created")
	return true, nil
}

// UserExists reports whether a user account is defined.
func (s *System) UserExists(ctx context.Context, name string) (bool, error) {
	_, ok, err := s.getent(ctx, "passwd", name)
	return ok, err
}

// EnsureUser creates a user account when it does not exist.
func (s *System) EnsureUser(ctx context.Context, u UserSpec) (bool, error) {
	ok, err := s.UserExists(ctx, u.Name)
	if err != nil || ok {
		return false, err
	}

	args := []string{"--gid", u.Group, "--home-dir", u.Home, "--no-create-home"}
	if u.System {
		args = append(args, "--system")
	}
	if u.Shell != "" {
		args = append(args, "--shell", u.Shell)
	}
	if u.Comment != "" {
		args = append(args, "--comment", u.Comment)
	}
	args = append(args, u.Name)

	if _, err := s.runner.Run(ctx, Command{Name: "useradd", Args: args}); err != nil {
		return false, err
	}
	s.logger.Info().Str("user", u.Name).Msg("User created")
	return true, nil
}

// LookupIDs resolves owner and group names. ok is false when either does
// not exist yet.
func (s *System) LookupIDs(ctx context.Context, owner, group string) (uid, gid int, ok bool, err error) {
	pw, found, err := s.getent(ctx, "passwd", owner)
	if err != nil || !found {
		return 0, 0, false, err
	}
	gr, found, err := s.getent(ctx, "group", group)
	if err != nil || !found {
		return 0, 0, false, err
	}
	if len(pw) < 3 || len(gr) < 3 {
		return 0, 0, false, fmt.Errorf("malformed getent output for %s:%s", owner, group)
	}
	if uid, err = strconv.Atoi(pw[2]); err != nil {
		return 0, 0, false, fmt.Errorf("invalid uid for %s: %w", owner, err)
	}
	if gid, err = strconv.Atoi(gr[2]); err != nil {
		return 0, 0, false, fmt.Errorf("invalid gid for %s: %w", group, err)
	}
	return uid, gid, true, nil
}

// attrsMatch compares a path's metadata with the wanted ownership.
func (s *System) attrsMatch(ctx context.Context, info *FileInfo, own Ownership) (bool, error) {
	if info.Mode != own.Mode {
		return false, nil
	}
	if own.Owner == "" {
		return true, nil
	}
	uid, gid, ok, err := s.LookupIDs(ctx, own.Owner, own.Group)
	if err != nil || !ok {
		return false, err
	}
	return info.UID == uid && info.GID == gid, nil
}

func (s *System) applyAttrs(ctx context.Context, path string, own Ownership) error {
	if err := s.fs.Chmod(path, own.Mode); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	if own.Owner == "" {
		return nil
	}
	uid, gid, ok, err := s.LookupIDs(ctx, own.Owner, own.Group)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("cannot chown %s: %s:%s does not exist", path, own.Owner, own.Group)
	}
	if err := s.fs.Chown(path, uid, gid); err != nil {
		return fmt.Errorf("failed to chown %s: %w", path, err)
	}
	return nil
}

// DirMatches reports whether path is a directory with the wanted ownership.
func (s *System) DirMatches(ctx context.Context, path string, own Ownership) (bool, error) {
	info, err := s.fs.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !info.IsDir {
		return false, fmt.Errorf("%s exists and is not a directory", path)
	}
	return s.attrsMatch(ctx, info, own)
}

// EnsureDir creates path, or fixes its ownership and mode.
func (s *System) EnsureDir(ctx context.Context, path string, own Ownership) error {
	if err := s.fs.Mkdir(path, own.Mode); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return s.applyAttrs(ctx, path, own)
}

// ReadFile returns a file's content. ok is false when it does not exist.
func (s *System) ReadFile(path string) ([]byte, bool, error) {
	data, err := s.fs.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, true, nil
}

// FileMatches reports whether path holds exactly content with the wanted
// ownership.
func (s *System) FileMatches(ctx context.Context, path string, content []byte, own Ownership) (bool, error) {
	cur, ok, err := s.ReadFile(path)
	if err != nil || !ok {
		return false, err
	}
	if !bytes.Equal(cur, content) {
		return false, nil
	}
	info, err := s.fs.Stat(path)
	if err != nil {
		return false, err
	}
	return s.attrsMatch(ctx, info, own)
}

// WriteFile replaces path with content and sets its ownership.
func (s *System) WriteFile(ctx context.Context, path string, content []byte, own Ownership) error {
	if err := s.fs.WriteFile(path, content, own.Mode); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := s.applyAttrs(ctx, path, own); err != nil {
		return err
	}
	s.logger.Debug().Str("path", path).Int("bytes", len(content)).Msg("File written")
	return nil
}

// Exists reports whether path exists.
func (s *System) Exists(path string) (bool, error) {
	_, err := s.fs.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// Remove deletes path recursively.
func (s *System) Remove(path string) error {
	if err := s.fs.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	s.logger.Info().Str("path", path).Msg("Path removed")
	return nil
}
