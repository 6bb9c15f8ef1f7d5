// Package resources builds the ownership tree of a declaration.
//
// Build takes a decoded config.Declaration, an explicit Defaults value and
// the detected platform, and returns a Tree whose Server owns its Projects
// (each owning Jobs and NodeSources), Acls and Users. Parent links are
// plain pointers set during the single construction pass.
//
// Every attribute resolves as explicit value, then lazy default, then
// static default. Lazy defaults run at most once and may read sibling or
// ancestor attributes:
//
//	project path = server path + "/projects/" + project name
//	node source username = server ssh_user = server user
//
// Construction fails with a ValidationError for a missing or out-of-domain
// attribute, an unsafe name or a duplicate identity, and with an
// UnimplementedError when the platform has no package installer or the
// install method has no implementation. Nothing is applied before Build
// succeeds.
package resources
