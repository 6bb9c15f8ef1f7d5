// Package config loads deckhand declarations and tool settings.
//
// A declaration describes one server and the projects, jobs, node
// sources, ACL policies and users it owns. It can be written as CUE, as
// plain YAML (or JSON), or computed by a Starlark script; any mix of the
// three may be loaded together:
//
//	loader := config.NewLoader(log.Logger)
//	decl, err := loader.Load(ctx, []string{"site.cue", "users.yaml"})
//
// Every source is unified with the built-in CUE schema (see SchemaSource),
// so unknown fields, out-of-domain values and missing required fields are
// reported with their file and position. CUE files are unified with each
// other before decoding; other sources are decoded on their own and
// appended in the order given. Exactly one source may declare the server.
//
// Starlark scripts export the globals server, projects, acls and users.
// The predeclared vars dict carries values set with Loader.SetVar, and the
// helpers short_name(name) and node(name, **fields) are available.
//
// Settings (deckhand.yaml) configure the tool: state database, template
// overrides, policy files, inventory and telemetry.
package config
