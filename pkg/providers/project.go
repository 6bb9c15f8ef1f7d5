package providers

import (
	"github.com/openfroyo/deckhand/pkg/engine"
	"github.com/openfroyo/deckhand/pkg/host"
	"github.com/openfroyo/deckhand/pkg/resources"
)

func projectUnit(env *Env, p *resources.Project) *engine.Unit {
	u := &engine.Unit{Resource: p.ID, Action: p.Action}
	own := p.Server.Ownership(fileMode)

	switch p.Action {
	case engine.ActionDisable:
		u.Steps = []engine.Step{removeStep(env.System, p.Path)}
		return u
	case engine.ActionReconfigure:
		u.Steps = []engine.Step{propertiesStep(env, p, own)}
	default:
		u.Steps = []engine.Step{
			dirStep(env.System, p.Path, p.Server.Ownership(dirMode)),
			dirStep(env.System, p.EtcDir(), p.Server.Ownership(dirMode)),
			propertiesStep(env, p, own),
		}
	}

	for _, j := range p.Jobs {
		u.Children = append(u.Children, jobUnit(env, j))
	}
	for _, n := range p.NodeSources {
		u.Children = append(u.Children, nodeSourceUnit(env, n))
	}
	return u
}

func propertiesStep(env *Env, p *resources.Project, own host.Ownership) engine.Step {
	if p.Content != "" {
		return contentStep(env.System, p.PropertiesPath(), p.Content, own)
	}
	return templateStep(env, p.PropertiesPath(), host.TemplateProject, map[string]any{"Project": p}, own)
}
