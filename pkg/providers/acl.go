package providers

import (
	"github.com/openfroyo/deckhand/pkg/engine"
	"github.com/openfroyo/deckhand/pkg/resources"
)

func aclUnit(env *Env, a *resources.Acl) *engine.Unit {
	u := &engine.Unit{Resource: a.ID, Action: a.Action}
	switch {
	case a.Action == engine.ActionDisable:
		u.Steps = []engine.Step{removeStep(env.System, a.Path())}
	case a.Template != "":
		u.Steps = []engine.Step{templateStep(env, a.Path(), a.Template, nil, a.Server.Ownership(fileMode))}
	default:
		u.Steps = []engine.Step{contentStep(env.System, a.Path(), a.Content, a.Server.Ownership(fileMode))}
	}
	return u
}

// userUnit has no steps of its own: realm lines only exist as part of the
// whole realm file, which the server rebuilds once all users converged.
func userUnit(u *resources.User) *engine.Unit {
	return &engine.Unit{
		Resource: u.ID,
		Action:   u.Action,
		Notifies: []engine.Notification{{
			Target:  u.Server.ID,
			Action:  engine.ActionRebuildRealm,
			Trigger: engine.TriggerAlways,
			Delayed: true,
		}},
	}
}
