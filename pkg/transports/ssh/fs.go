package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/openfroyo/deckhand/pkg/host"
	"github.com/pkg/sftp"
)

// RemoteFS implements host.FS on the remote host. Without sudo every
// operation goes over SFTP. With sudo, content is staged over SFTP in a
// scratch directory and moved into place with privileged commands, since
// the SFTP server runs as the login user.
type RemoteFS struct {
	c       *Client
	scratch string
}

// FS returns the remote file system behind c.
func (c *Client) FS() *RemoteFS {
	return &RemoteFS{c: c, scratch: "/tmp"}
}

func (r *RemoteFS) sudo() bool { return r.c.config.Sudo }

func (r *RemoteFS) run(name string, allowed []int, args ...string) (*host.Output, error) {
	return r.c.Run(context.Background(), host.Command{Name: name, Args: args, AllowedExitCodes: allowed})
}

func notExist(op, p string) error {
	return &fs.PathError{Op: op, Path: p, Err: fs.ErrNotExist}
}

// ReadFile implements host.FS.
func (r *RemoteFS) ReadFile(p string) ([]byte, error) {
	if r.sudo() {
		out, err := r.run("cat", []int{1}, "--", p)
		if err != nil {
			return nil, err
		}
		if out.ExitCode != 0 {
			return nil, notExist("open", p)
		}
		return out.Stdout, nil
	}

	s, err := r.c.getSFTP()
	if err != nil {
		return nil, err
	}
	f, err := s.Open(p)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: p, Err: err}
	}
	defer f.Close()
	return io.ReadAll(f)
}

// WriteFile implements host.FS. The content lands in a sibling (or
// scratch) file first and is renamed over the target.
func (r *RemoteFS) WriteFile(p string, data []byte, mode fs.FileMode) error {
	s, err := r.c.getSFTP()
	if err != nil {
		return err
	}

	tmp := p + ".deckhand-tmp"
	if r.sudo() {
		tmp = path.Join(r.scratch, "deckhand-"+uuid.NewString())
	}

	if err := writeSFTP(s, tmp, data, mode); err != nil {
		_ = s.Remove(tmp)
		return err
	}

	if r.sudo() {
		if _, err := r.run("mv", nil, "-f", "--", tmp, p); err != nil {
			_ = s.Remove(tmp)
			return err
		}
		return r.Chmod(p, mode)
	}

	if err := s.PosixRename(tmp, p); err != nil {
		_ = s.Remove(tmp)
		return fmt.Errorf("failed to rename %s: %w", tmp, err)
	}
	return nil
}

func writeSFTP(s *sftp.Client, p string, data []byte, mode fs.FileMode) error {
	f, err := s.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", p, err)
	}
	if err := f.Chmod(mode); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to chmod %s: %w", p, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	return f.Close()
}

// Stat implements host.FS without following symlinks.
func (r *RemoteFS) Stat(p string) (*host.FileInfo, error) {
	if r.sudo() {
		out, err := r.run("stat", []int{1}, "-c", "%a %u %g %F", "--", p)
		if err != nil {
			return nil, err
		}
		if out.ExitCode != 0 {
			return nil, notExist("stat", p)
		}
		return parseStat(p, string(out.Stdout))
	}

	s, err := r.c.getSFTP()
	if err != nil {
		return nil, err
	}
	fi, err := s.Lstat(p)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: p, Err: err}
	}
	info := &host.FileInfo{Mode: fi.Mode().Perm(), IsDir: fi.IsDir()}
	if st, ok := fi.Sys().(*sftp.FileStat); ok {
		info.UID, info.GID = int(st.UID), int(st.GID)
	}
	return info, nil
}

// parseStat reads "mode uid gid type" as printed by stat -c.
func parseStat(p, s string) (*host.FileInfo, error) {
	f := strings.Fields(s)
	if len(f) < 4 {
		return nil, fmt.Errorf("unexpected stat output for %s: %q", p, s)
	}
	mode, err := strconv.ParseUint(f[0], 8, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid mode for %s: %w", p, err)
	}
	uid, err := strconv.Atoi(f[1])
	if err != nil {
		return nil, fmt.Errorf("invalid uid for %s: %w", p, err)
	}
	gid, err := strconv.Atoi(f[2])
	if err != nil {
		return nil, fmt.Errorf("invalid gid for %s: %w", p, err)
	}
	return &host.FileInfo{
		Mode:  fs.FileMode(mode) & fs.ModePerm,
		UID:   uid,
		GID:   gid,
		IsDir: strings.Join(f[3:], " ") == "directory",
	}, nil
}

// Mkdir implements host.FS. An existing directory is not an error.
func (r *RemoteFS) Mkdir(p string, mode fs.FileMode) error {
	if r.sudo() {
		if _, err := r.run("mkdir", nil, "-p", "--", p); err != nil {
			return err
		}
		return r.Chmod(p, mode)
	}

	s, err := r.c.getSFTP()
	if err != nil {
		return err
	}
	if err := s.Mkdir(p); err != nil {
		if fi, serr := s.Lstat(p); serr != nil || !fi.IsDir() {
			return fmt.Errorf("failed to create %s: %w", p, err)
		}
	}
	return s.Chmod(p, mode)
}

// Chmod implements host.FS.
func (r *RemoteFS) Chmod(p string, mode fs.FileMode) error {
	if r.sudo() {
		_, err := r.run("chmod", nil, strconv.FormatUint(uint64(mode.Perm()), 8), "--", p)
		return err
	}
	s, err := r.c.getSFTP()
	if err != nil {
		return err
	}
	return s.Chmod(p, mode)
}

// Chown implements host.FS.
func (r *RemoteFS) Chown(p string, uid, gid int) error {
	if r.sudo() {
		_, err := r.run("chown", nil, "-h", fmt.Sprintf("%d:%d", uid, gid), "--", p)
		return err
	}
	s, err := r.c.getSFTP()
	if err != nil {
		return err
	}
	return s.Chown(p, uid, gid)
}

// RemoveAll implements host.FS.
func (r *RemoteFS) RemoveAll(p string) error {
	if r.sudo() {
		_, err := r.run("rm", nil, "-rf", "--", p)
		return err
	}
	s, err := r.c.getSFTP()
	if err != nil {
		return err
	}
	if err := s.RemoveAll(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
