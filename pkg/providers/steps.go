package providers

import (
	"context"
	"fmt"

	"github.com/openfroyo/deckhand/pkg/engine"
	"github.com/openfroyo/deckhand/pkg/host"
)

// Modes of managed artifacts.
const (
	dirMode     = 0o700
	fileMode    = 0o600
	publicMode  = 0o644
	defaultBits = 4096
)

func dirStep(sys *host.System, path string, own host.Ownership) engine.Step {
	return &engine.FuncStep{
		Label: "directory " + path,
		CheckFn: func(ctx context.Context) (bool, error) {
			ok, err := sys.DirMatches(ctx, path, own)
			return !ok, err
		},
		ApplyFn: func(ctx context.Context) error {
			return sys.EnsureDir(ctx, path, own)
		},
	}
}

// fileStep writes the content produced by render. render runs during
// Check so a dry run reports template errors too.
func fileStep(sys *host.System, path string, own host.Ownership, render func(context.Context) ([]byte, error), notifies ...engine.Notification) engine.Step {
	var content []byte
	return &engine.FuncStep{
		Label: "file " + path,
		CheckFn: func(ctx context.Context) (bool, error) {
			var err error
			if content, err = render(ctx); err != nil {
				return false, err
			}
			ok, err := sys.FileMatches(ctx, path, content, own)
			return !ok, err
		},
		ApplyFn: func(ctx context.Context) error {
			return sys.WriteFile(ctx, path, content, own)
		},
		Notifies: notifies,
	}
}

func templateStep(env *Env, path, id string, vars any, own host.Ownership, notifies ...engine.Notification) engine.Step {
	return fileStep(env.System, path, own, func(context.Context) ([]byte, error) {
		return env.Renderer.Render(id, vars)
	}, notifies...)
}

func contentStep(sys *host.System, path, content string, own host.Ownership, notifies ...engine.Notification) engine.Step {
	return fileStep(sys, path, own, func(context.Context) ([]byte, error) {
		return []byte(content), nil
	}, notifies...)
}

func removeStep(sys *host.System, path string) engine.Step {
	return &engine.FuncStep{
		Label: "remove " + path,
		CheckFn: func(ctx context.Context) (bool, error) {
			return sys.Exists(path)
		},
		ApplyFn: func(ctx context.Context) error {
			return sys.Remove(path)
		},
	}
}

func groupStep(sys *host.System, name string) engine.Step {
	return &engine.FuncStep{
		Label: "group " + name,
		CheckFn: func(ctx context.Context) (bool, error) {
			ok, err := sys.GroupExists(ctx, name)
			return !ok, err
		},
		ApplyFn: func(ctx context.Context) error {
			_, err := sys.EnsureGroup(ctx, name)
			return err
		},
	}
}

func userStep(sys *host.System, spec host.UserSpec) engine.Step {
	return &engine.FuncStep{
		Label: "user " + spec.Name,
		CheckFn: func(ctx context.Context) (bool, error) {
			ok, err := sys.UserExists(ctx, spec.Name)
			return !ok, err
		},
		ApplyFn: func(ctx context.Context) error {
			_, err := sys.EnsureUser(ctx, spec)
			return err
		},
	}
}

// packageStep installs name. A pinned version must match what is
// installed; without one the package is upgraded whenever the repositories
// offer something newer.
func packageStep(inst host.PlatformInstaller, name, version string) engine.Step {
	return &engine.FuncStep{
		Label: "package " + name,
		CheckFn: func(ctx context.Context) (bool, error) {
			installed, ok, err := inst.Installed(ctx, name)
			if err != nil || !ok {
				return !ok, err
			}
			if version != "" {
				return !host.VersionMatches(installed, version), nil
			}
			return inst.Outdated(ctx, name)
		},
		ApplyFn: func(ctx context.Context) error {
			_, ok, err := inst.Installed(ctx, name)
			if err != nil {
				return err
			}
			if ok && version == "" {
				return inst.Upgrade(ctx, name)
			}
			return inst.Install(ctx, name, version)
		},
	}
}

func repositoryStep(env *Env, repo host.Repository) engine.Step {
	path, content := env.Installer.RepositoryFile(repo)
	return &engine.FuncStep{
		Label: "repository " + repo.Name,
		CheckFn: func(ctx context.Context) (bool, error) {
			ok, err := env.System.FileMatches(ctx, path, content, host.Ownership{Mode: publicMode})
			return !ok, err
		},
		ApplyFn: func(ctx context.Context) error {
			return env.Installer.AddRepository(ctx, repo)
		},
	}
}

// keyStep generates an SSH key pair once. An existing valid private key is
// kept; only its ownership is repaired.
func keyStep(env *Env, path, comment string, own host.Ownership) engine.Step {
	sys := env.System
	return &engine.FuncStep{
		Label: "ssh key " + path,
		CheckFn: func(ctx context.Context) (bool, error) {
			data, ok, err := sys.ReadFile(path)
			if err != nil || !ok || !host.ValidPrivateKey(data) {
				return true, err
			}
			match, err := sys.FileMatches(ctx, path, data, own)
			return !match, err
		},
		ApplyFn: func(ctx context.Context) error {
			data, ok, err := sys.ReadFile(path)
			if err != nil {
				return err
			}
			if ok && host.ValidPrivateKey(data) {
				return sys.WriteFile(ctx, path, data, own)
			}

			bits := env.KeyBits
			if bits == 0 {
				bits = defaultBits
			}
			kp, err := host.GenerateKeyPair(bits, comment)
			if err != nil {
				return err
			}
			if err := sys.WriteFile(ctx, path, kp.Private, own); err != nil {
				return err
			}
			pub := own
			pub.Mode = publicMode
			if err := sys.WriteFile(ctx, path+".pub", kp.Public, pub); err != nil {
				return fmt.Errorf("failed to write public key: %w", err)
			}
			env.Logger.Info().Str("path", path).Msg("SSH key pair generated")
			return nil
		},
	}
}
