package policy

import (
	"time"

	"github.com/openfroyo/deckhand/pkg/resources"
)

// NewInput flattens a resolved tree into policy input, parents before
// children.
func NewInput(tree *resources.Tree, c Context) *Input {
	in := &Input{Context: c, Resources: []Resource{}}
	if c.Timestamp.IsZero() {
		in.Context.Timestamp = time.Now().UTC()
	}
	if tree == nil || tree.Server == nil {
		return in
	}

	s := tree.Server
	if in.Context.Environment == "" {
		in.Context.Environment = s.Environment
	}
	in.Resources = append(in.Resources, Resource{
		ID:     s.ID.String(),
		Kind:   string(s.ID.Kind),
		Name:   s.ID.Name,
		Action: "install",
		Attributes: map[string]any{
			"version":        s.Version,
			"install_method": s.InstallMethod,
			"port":           s.Port,
			"public_rss":     s.PublicRSS,
			"logging_level":  s.LoggingLevel,
			"environment":    s.Environment,
			"default_acls":   s.EnableDefaultACLs,
			"admin": map[string]any{
				"username": s.Admin.Username,
				"password": s.Admin.Password,
			},
			"proxy": map[string]any{
				"hostname": s.Proxy.Hostname,
				"port":     s.Proxy.Port,
				"scheme":   s.Proxy.Scheme,
			},
			"mail": map[string]any{
				"hostname": s.Mail.Hostname,
				"tls":      s.Mail.TLS,
			},
		},
	})

	parent := s.ID.String()
	for _, p := range s.Projects {
		in.Resources = append(in.Resources, Resource{
			ID:     p.ID.String(),
			Kind:   string(p.ID.Kind),
			Name:   p.Name,
			Action: string(p.Action),
			Parent: parent,
			Attributes: map[string]any{
				"path":               p.Path,
				"ssh_authentication": p.SSHAuthentication,
				"executor":           p.Executor,
				"file_copier":        p.FileCopier,
				"jobs":               len(p.Jobs),
				"node_sources":       len(p.NodeSources),
			},
		})
		for _, j := range p.Jobs {
			in.Resources = append(in.Resources, Resource{
				ID:     j.ID.String(),
				Kind:   string(j.ID.Kind),
				Name:   j.Name,
				Action: string(j.Action),
				Parent: p.ID.String(),
				Attributes: map[string]any{
					"project": p.Name,
					"format":  j.Format,
				},
			})
		}
		for _, n := range p.NodeSources {
			in.Resources = append(in.Resources, Resource{
				ID:     n.ID.String(),
				Kind:   string(n.ID.Kind),
				Name:   n.ID.Name,
				Action: string(n.Action),
				Parent: p.ID.String(),
				Attributes: map[string]any{
					"type":         n.Type,
					"query":        n.Query,
					"limit":        n.Limit,
					"username":     n.Username,
					"manual_nodes": len(n.ManualNodes),
				},
			})
		}
	}
	for _, a := range s.Acls {
		in.Resources = append(in.Resources, Resource{
			ID:     a.ID.String(),
			Kind:   string(a.ID.Kind),
			Name:   a.Name,
			Action: string(a.Action),
			Parent: parent,
			Attributes: map[string]any{
				"template": a.Template,
			},
		})
	}
	for _, u := range s.Users {
		roles := append([]string{}, u.Roles...)
		in.Resources = append(in.Resources, Resource{
			ID:     u.ID.String(),
			Kind:   string(u.ID.Kind),
			Name:   u.Username,
			Action: string(u.Action),
			Parent: parent,
			Attributes: map[string]any{
				"format": u.Format,
				"roles":  roles,
			},
		})
	}
	return in
}
