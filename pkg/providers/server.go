package providers

import (
	"context"
	"path"

	"github.com/openfroyo/deckhand/pkg/engine"
	"github.com/openfroyo/deckhand/pkg/host"
	"github.com/openfroyo/deckhand/pkg/resources"
)

// Package repositories. Both families share the repository name so the
// definition file is easy to find.
const (
	repositoryName = "rundeck-bintray"
	aptURI         = "https://dl.bintray.com/rundeck/rundeck-deb"
	yumURI         = "https://dl.bintray.com/rundeck/rundeck-rpm"
	packageName    = "rundeck"
)

// Init scripts shipped by the Debian package. The supervisor owns the
// service, so they are removed.
var debianInitScripts = []string{"/etc/init/rundeckd.conf", "/etc/init.d/rundeckd"}

// Config files rendered into the config directory. A change to any of them
// restarts the server.
var configTemplates = []string{
	host.TemplateLog4j,
	host.TemplateJaas,
	host.TemplateProfile,
	host.TemplateFramework,
	host.TemplateRundeckConfig,
}

func serverUnit(env *Env, tree *resources.Tree) *engine.Unit {
	s := tree.Server
	vars := map[string]any{"Server": s}
	restart := engine.Notification{Target: s.ID, Action: engine.ActionRestart, Trigger: engine.TriggerOnChange}

	steps := []engine.Step{
		groupStep(env.System, s.Group),
		userStep(env.System, host.UserSpec{
			Name:    s.User,
			Group:   s.Group,
			Home:    s.Path,
			Shell:   "/bin/false",
			Comment: "Rundeck service user for " + s.Path,
			System:  true,
		}),
	}
	for _, dir := range s.Directories() {
		steps = append(steps, dirStep(env.System, dir, s.Ownership(dirMode)))
	}
	steps = append(steps,
		keyStep(env, s.SSHKeyPath(), s.User+"@"+s.NodeName, s.Ownership(fileMode)),
		packageStep(env.Installer, env.Installer.JavaPackage(), ""),
	)
	steps = append(steps, packageSteps(env, tree.Platform, s)...)
	for _, id := range configTemplates {
		steps = append(steps, templateStep(env, s.ConfigFile(id), id, vars, s.Ownership(fileMode), restart))
	}
	steps = append(steps, serviceSteps(env, s, vars)...)

	u := &engine.Unit{
		Resource: s.ID,
		Action:   engine.ActionInstall,
		Steps:    steps,
		Handler:  serverHandler(env, s),
	}
	for _, p := range s.Projects {
		u.Children = append(u.Children, projectUnit(env, p))
	}
	for _, a := range s.Acls {
		u.Children = append(u.Children, aclUnit(env, a))
	}
	for _, usr := range s.Users {
		u.Children = append(u.Children, userUnit(usr))
	}
	return u
}

func packageSteps(env *Env, p host.Platform, s *resources.Server) []engine.Step {
	repo := host.Repository{Name: repositoryName, URI: yumURI, Trusted: true}
	if p.Family == host.FamilyDebian {
		repo.URI, repo.Distribution = aptURI, "/"
	}
	steps := []engine.Step{
		repositoryStep(env, repo),
		packageStep(env.Installer, packageName, s.Version),
	}
	if p.Family == host.FamilyDebian {
		for _, script := range debianInitScripts {
			steps = append(steps, removeStep(env.System, script))
		}
	}
	return steps
}

func serviceSteps(env *Env, s *resources.Server, vars map[string]any) []engine.Step {
	sup := env.Supervisor
	name := s.ServiceName
	unitPath := sup.UnitPath(name)
	unitOwn := host.Ownership{Mode: publicMode}

	definition := templateStep(env, unitPath, host.TemplateSystemdService, vars, unitOwn)
	return []engine.Step{
		&engine.FuncStep{
			Label:   "service " + path.Base(unitPath),
			CheckFn: definition.Check,
			ApplyFn: func(ctx context.Context) error {
				if err := definition.Apply(ctx); err != nil {
					return err
				}
				return sup.Install(ctx, name)
			},
		},
		&engine.FuncStep{
			Label: "enable " + name,
			CheckFn: func(ctx context.Context) (bool, error) {
				ok, err := sup.IsEnabled(ctx, name)
				return !ok, err
			},
			ApplyFn: func(ctx context.Context) error {
				return sup.Enable(ctx, name)
			},
		},
		&engine.FuncStep{
			Label: "start " + name,
			CheckFn: func(ctx context.Context) (bool, error) {
				ok, err := sup.IsActive(ctx, name)
				return !ok, err
			},
			ApplyFn: func(ctx context.Context) error {
				if err := sup.Start(ctx, name); err != nil {
					return err
				}
				return env.waitUntilUp(ctx, s.Port, s.HealthPath, s.StartupTimeout)
			},
		},
	}
}

// serverHandler serves the notifications children and config files queue
// on the server.
func serverHandler(env *Env, s *resources.Server) engine.Handler {
	return func(ctx context.Context, action engine.Action) (engine.Result, error) {
		switch action {
		case engine.ActionRestart:
			if err := env.Supervisor.Restart(ctx, s.ServiceName); err != nil {
				return engine.Result{}, err
			}
			if err := env.waitUntilUp(ctx, s.Port, s.HealthPath, s.StartupTimeout); err != nil {
				return engine.Result{}, err
			}
			return engine.Result{Changed: true}, nil
		case engine.ActionRebuildRealm:
			return rebuildRealm(ctx, env, s)
		case engine.ActionNothing:
			return engine.Result{}, nil
		}
		return engine.Result{}, engine.NewUnimplementedError("server does not support action " + string(action)).
			WithResource(s.ID.String()).
			WithOperation(string(action))
	}
}
