package providers

import (
	"context"

	"github.com/openfroyo/deckhand/pkg/engine"
	"github.com/openfroyo/deckhand/pkg/host"
	"github.com/openfroyo/deckhand/pkg/resources"
)

func nodeSourceUnit(env *Env, n *resources.NodeSource) *engine.Unit {
	u := &engine.Unit{Resource: n.ID, Action: n.Action}
	if n.Action == engine.ActionDisable {
		u.Steps = []engine.Step{removeStep(env.System, n.Path())}
		return u
	}

	own := n.Project.Server.Ownership(fileMode)
	u.Steps = []engine.Step{fileStep(env.System, n.Path(), own, func(ctx context.Context) ([]byte, error) {
		nodes, err := selectNodes(ctx, env, n)
		if err != nil {
			return nil, err
		}
		return env.Renderer.Render(host.TemplateResourcesXML, map[string]any{
			"Nodes":    nodes,
			"Username": n.Username,
		})
	})}
	return u
}

// selectNodes lists the nodes a source describes. Nodes declared on the
// source win, then nodes declared on the server, then the local machine in
// solo mode; otherwise the inventory is searched.
func selectNodes(ctx context.Context, env *Env, n *resources.NodeSource) ([]host.Node, error) {
	s := n.Project.Server
	limit := 0
	if n.HasLimit {
		limit = n.Limit
	}

	switch {
	case len(n.ManualNodes) > 0:
		return host.Filter(n.ManualNodes, "", limit)
	case len(s.Nodes) > 0:
		return host.Filter(s.Nodes, n.Query, limit)
	case s.Solo:
		return []host.Node{s.Self.Projected()}, nil
	case env.Inventory == nil:
		return nil, nil
	}

	nodes, err := env.Inventory.Search(ctx, n.Query, limit)
	if err != nil {
		return nil, err
	}
	for i := range nodes {
		nodes[i] = nodes[i].Projected()
	}
	return nodes, nil
}
