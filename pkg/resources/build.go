package resources

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/openfroyo/deckhand/pkg/config"
	"github.com/openfroyo/deckhand/pkg/engine"
	"github.com/openfroyo/deckhand/pkg/host"
)

var loggingLevels = []string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

// Build resolves a declaration into its ownership tree. It fails with a
// ValidationError for missing or out-of-domain attributes, bad names and
// duplicate identities, and with an UnimplementedError when the platform
// or install method has no backing installer.
func Build(decl *config.Declaration, def Defaults, platform host.Platform) (*Tree, error) {
	if decl == nil || decl.Server == nil {
		return nil, engine.NewValidationError("a server must be declared", nil).
			WithCode(engine.ErrCodeRequired).
			WithOperation("build")
	}

	server, err := buildServer(decl.Server, def)
	if err != nil {
		return nil, err
	}

	if err := platform.Supported(); err != nil {
		return nil, engine.Attach(err, server.ID.String(), "build")
	}

	for i := range decl.Projects {
		p, err := buildProject(server, &decl.Projects[i], def)
		if err != nil {
			return nil, err
		}
		server.Projects = append(server.Projects, p)
	}

	if server.EnableDefaultACLs {
		server.Acls = append(server.Acls,
			&Acl{ID: engine.ResourceID{Kind: engine.KindAcl, Name: "admin"}, Server: server, Action: engine.ActionEnable, Name: "admin", Template: host.TemplateAdminACL},
			&Acl{ID: engine.ResourceID{Kind: engine.KindAcl, Name: "apitoken"}, Server: server, Action: engine.ActionEnable, Name: "apitoken", Template: host.TemplateAPITokenACL},
		)
	}
	for i := range decl.Acls {
		a, err := buildAcl(server, &decl.Acls[i])
		if err != nil {
			return nil, err
		}
		server.Acls = append(server.Acls, a)
	}

	// The admin account is the first realm user.
	admin, err := buildUser(server, &config.UserDecl{
		Name:     server.Admin.Username,
		Password: server.Admin.Password,
		Roles:    def.AdminRoles,
	}, def)
	if err != nil {
		return nil, err
	}
	server.Users = append(server.Users, admin)
	for i := range decl.Users {
		u, err := buildUser(server, &decl.Users[i], def)
		if err != nil {
			return nil, err
		}
		server.Users = append(server.Users, u)
	}

	if err := checkUnique(server); err != nil {
		return nil, err
	}

	return &Tree{Server: server, Platform: platform}, nil
}

func buildServer(d *config.ServerDecl, def Defaults) (*Server, error) {
	nodeName := NewAttr("node_name", def.NodeName).SetIf(d.NodeName != "", d.NodeName).
		Check(required("node_name"))
	r := &resolver{id: engine.ResourceID{Kind: engine.KindServer, Name: d.NodeName}}
	if !nodeName.Explicit() {
		r.id.Name = def.NodeName
	}

	user := NewAttr("user", def.User).SetIf(d.User != "", d.User).Check(validateAccountName)
	group := NewAttr("group", def.Group).SetIf(d.Group != "", d.Group).Check(validateAccountName)
	sshUser := NewAttr("ssh_user", "").SetIf(d.SSHUser != "", d.SSHUser).
		Default(user.Get)

	startupTimeout := NewAttr("startup_timeout", def.StartupTimeout).Check(func(t time.Duration) error {
		if t <= 0 {
			return engine.NewValidationError("startup_timeout must be positive", nil)
		}
		return nil
	})
	if d.StartupTimeout != "" {
		t, err := time.ParseDuration(d.StartupTimeout)
		if err != nil {
			startupTimeout.Default(func() (time.Duration, error) {
				return 0, engine.NewValidationError(fmt.Sprintf("invalid startup_timeout %q", d.StartupTimeout), err)
			})
		} else {
			startupTimeout.Set(t)
		}
	}

	installMethod := NewAttr("install_method", def.InstallMethod).SetIf(d.InstallMethod != "", d.InstallMethod).
		Check(func(m string) error {
			switch m {
			case InstallPackage:
				return nil
			case InstallJar:
				return engine.NewUnimplementedError("install_method jar has no installer")
			}
			return oneOf("install_method", []string{InstallPackage, InstallJar})(m)
		})

	s := &Server{
		ID:          r.id,
		NodeName:    get(r, nodeName),
		Version:     d.Version,
		ServiceName: get(r, NewAttr("service_name", def.ServiceName).SetIf(d.ServiceName != "", d.ServiceName).Check(validateAccountName)),
		Path:        get(r, NewAttr("path", def.Path).SetIf(d.Path != "", d.Path).Check(absolute("path"))),
		ConfigPath:  get(r, NewAttr("config_path", def.ConfigPath).SetIf(d.ConfigPath != "", d.ConfigPath).Check(absolute("config_path"))),
		LogPath:     get(r, NewAttr("log_path", def.LogPath).SetIf(d.LogPath != "", d.LogPath).Check(absolute("log_path"))),
		User:        get(r, user),
		Group:       get(r, group),
		SSHUser:     get(r, sshUser),
		Port:        get(r, NewAttr("port", def.Port).SetIf(d.Port != 0, d.Port).Check(port("port"))),
		Log4jPort:   get(r, NewAttr("log4j_port", def.Log4jPort).SetIf(d.Log4jPort != 0, d.Log4jPort).Check(port("log4j_port"))),
		PublicRSS:   get(r, NewAttr("public_rss", false).SetIf(d.PublicRSS != nil, deref(d.PublicRSS))),
		LoggingLevel: get(r, NewAttr("logging_level", def.LoggingLevel).SetIf(d.LoggingLevel != "", d.LoggingLevel).
			Check(oneOf("logging_level", loggingLevels))),
		Hostname:          get(r, NewAttr("hostname", def.Hostname).SetIf(d.Hostname != "", d.Hostname)),
		JVMOptions:        d.JVMOptions,
		EnableDefaultACLs: get(r, NewAttr("enable_default_acls", true).SetIf(d.EnableDefaultACLs != nil, deref(d.EnableDefaultACLs))),
		InstallMethod:     get(r, installMethod),
		Environment:       get(r, NewAttr("environment", def.Environment).SetIf(d.Environment != "", d.Environment)),
		HealthPath:        get(r, NewAttr("health_path", def.HealthPath).SetIf(d.HealthPath != "", d.HealthPath).Check(absolute("health_path"))),
		StartupTimeout:    get(r, startupTimeout),
		Nodes:             d.Nodes,
		Solo:              def.Solo,
		Self:              def.Self,
	}

	mail := d.Mail
	if mail == nil {
		mail = &config.MailDecl{}
	}
	s.Mail = Mail{
		Hostname: get(r, NewAttr("mail.hostname", def.MailHostname).SetIf(mail.Hostname != "", mail.Hostname)),
		Port:     get(r, NewAttr("mail.port", def.MailPort).SetIf(mail.Port != 0, mail.Port).Check(port("mail.port"))),
		Username: mail.Username,
		Password: mail.Password,
		From:     get(r, NewAttr("mail.from", def.MailFrom).SetIf(mail.From != "", mail.From)),
		TLS:      deref(mail.TLS),
	}

	proxy := d.Proxy
	if proxy == nil {
		proxy = &config.ProxyDecl{}
	}
	s.Proxy = Proxy{
		Hostname: get(r, NewAttr("proxy.hostname", def.ProxyHostname).SetIf(proxy.Hostname != "", proxy.Hostname)),
		Port:     get(r, NewAttr("proxy.port", def.ProxyPort).SetIf(proxy.Port != 0, proxy.Port).Check(port("proxy.port"))),
		Scheme: get(r, NewAttr("proxy.scheme", def.ProxyScheme).SetIf(proxy.Scheme != "", proxy.Scheme).
			Check(oneOf("proxy.scheme", []string{"http", "https"}))),
	}

	s.Admin = Admin{
		Username: get(r, NewAttr("admin.username", def.AdminUsername).SetIf(d.Admin.Username != "", d.Admin.Username).Check(validateRealmName)),
		Password: get(r, NewAttr("admin.password", d.Admin.Password).Check(required("admin.password"))),
	}

	if r.err != nil {
		return nil, r.err
	}

	// Interpolated once, after every other attribute is resolved.
	launcher := def.LauncherURL
	if d.LauncherURL != "" {
		launcher = d.LauncherURL
	}
	s.LauncherURL = strings.ReplaceAll(launcher, "%{version}", s.Version)

	for _, n := range s.Nodes {
		if n.Name == "" {
			return nil, engine.NewValidationError("server node without a name", nil).
				WithCode(engine.ErrCodeRequired).
				WithResource(s.ID.String()).
				WithOperation("resolve")
		}
	}

	return s, nil
}

func buildProject(s *Server, d *config.ProjectDecl, def Defaults) (*Project, error) {
	r := &resolver{id: engine.ResourceID{Kind: engine.KindProject, Name: d.Name}}

	name := NewAttr("project_name", "").SetIf(d.ProjectName != "", d.ProjectName).
		Default(func() (string, error) { return ShortName(d.Name), nil }).
		Check(ValidateProjectName)
	projectPath := NewAttr("path", "").Default(func() (string, error) {
		n, err := name.Get()
		if err != nil {
			return "", err
		}
		return path.Join(s.ProjectsDir(), n), nil
	})

	p := &Project{
		ID:     r.id,
		Server: s,
		Action: get(r, action(d.Action, engine.ActionEnable, engine.ActionEnable, engine.ActionDisable, engine.ActionReconfigure)),
		Name:   get(r, name),
		Path:   get(r, projectPath),
		SSHAuthentication: get(r, NewAttr("ssh_authentication", def.SSHAuthentication).SetIf(d.SSHAuthentication != "", d.SSHAuthentication).
			Check(oneOf("ssh_authentication", []string{"privateKey", "password"}))),
		SSHKey: get(r, NewAttr("ssh_key", "").SetIf(d.SSHKey != "", d.SSHKey).
			Default(func() (string, error) { return s.SSHKeyPath(), nil })),
		Executor: get(r, NewAttr("executor", def.Executor).SetIf(d.Executor != "", d.Executor).
			Check(oneOf("executor", []string{"jsch-ssh", "stub"}))),
		FileCopier: get(r, NewAttr("file_copier", def.FileCopier).SetIf(d.FileCopier != "", d.FileCopier).
			Check(oneOf("file_copier", []string{"jsch-scp", "stub"}))),
		Content: d.Content,
	}
	if r.err != nil {
		return nil, r.err
	}

	for i := range d.Jobs {
		j, err := buildJob(p, &d.Jobs[i], def)
		if err != nil {
			return nil, err
		}
		p.Jobs = append(p.Jobs, j)
	}
	for i := range d.NodeSources {
		n, err := buildNodeSource(p, &d.NodeSources[i], i)
		if err != nil {
			return nil, err
		}
		p.NodeSources = append(p.NodeSources, n)
	}
	return p, nil
}

func buildJob(p *Project, d *config.JobDecl, def Defaults) (*Job, error) {
	r := &resolver{id: engine.ResourceID{Kind: engine.KindJob, Name: d.Name}}
	j := &Job{
		ID:      r.id,
		Project: p,
		Action:  get(r, action(d.Action, engine.ActionEnable, engine.ActionEnable, engine.ActionDisable)),
		Name: get(r, NewAttr("job_name", "").SetIf(d.JobName != "", d.JobName).
			Default(func() (string, error) { return ShortName(d.Name), nil }).
			Check(required("job_name"))),
		Format: get(r, NewAttr("format", def.JobFormat).SetIf(d.Format != "", d.Format).
			Check(oneOf("format", []string{"yaml", "xml"}))),
		Content: get(r, NewAttr("content", d.Content).Check(required("content"))),
	}
	if r.err != nil {
		return nil, r.err
	}
	return j, nil
}

func buildNodeSource(p *Project, d *config.NodeSourceDecl, index int) (*NodeSource, error) {
	r := &resolver{id: engine.ResourceID{Kind: engine.KindNodeSource, Name: d.Name}}
	s := p.Server

	n := &NodeSource{
		ID:      r.id,
		Project: p,
		Action:  get(r, action(d.Action, engine.ActionEnable, engine.ActionEnable, engine.ActionDisable)),
		Type: get(r, NewAttr("type", "file").SetIf(d.Type != "", d.Type).
			Check(oneOf("type", []string{"file"}))),
		Query: get(r, NewAttr("query", "").SetIf(d.Query != "", d.Query).
			Default(func() (string, error) { return "environment:" + s.Environment, nil })),
		Username: get(r, NewAttr("username", "").SetIf(d.Username != "", d.Username).
			Default(func() (string, error) { return s.SSHUser, nil })),
		ManualNodes: d.ManualNodes,
	}
	if d.Limit != nil {
		n.Limit = get(r, NewAttr("limit", 0).Set(*d.Limit).Check(func(l int) error {
			if l < 0 {
				return engine.NewValidationError("limit must not be negative", nil)
			}
			return nil
		}))
		n.HasLimit = true
	}

	n.File = "resources.xml"
	if index > 0 {
		short := ShortName(d.Name)
		if err := validateFileName("node source", short); err != nil && r.err == nil {
			r.err = engine.Attach(err, r.id.String(), "resolve")
		}
		n.File = "resources-" + short + ".xml"
	}

	if r.err != nil {
		return nil, r.err
	}
	return n, nil
}

func buildAcl(s *Server, d *config.AclDecl) (*Acl, error) {
	r := &resolver{id: engine.ResourceID{Kind: engine.KindAcl, Name: d.Name}}
	a := &Acl{
		ID:     r.id,
		Server: s,
		Action: get(r, action(d.Action, engine.ActionEnable, engine.ActionEnable, engine.ActionDisable)),
		Name: get(r, NewAttr("acl_name", "").SetIf(d.AclName != "", d.AclName).
			Default(func() (string, error) { return ShortName(d.Name), nil }).
			Check(func(n string) error { return validateFileName("acl", n) })),
		Content: get(r, NewAttr("content", d.Content).Check(required("content"))),
	}
	if r.err != nil {
		return nil, r.err
	}
	return a, nil
}

func buildUser(s *Server, d *config.UserDecl, def Defaults) (*User, error) {
	r := &resolver{id: engine.ResourceID{Kind: engine.KindUser, Name: d.Name}}
	u := &User{
		ID:     r.id,
		Server: s,
		Action: get(r, action(d.Action, engine.ActionEnable, engine.ActionEnable)),
		Username: get(r, NewAttr("username", "").SetIf(d.Username != "", d.Username).
			Default(func() (string, error) { return ShortName(d.Name), nil }).
			Check(validateRealmName)),
		Password: get(r, NewAttr("password", d.Password).Check(required("password")).Check(validateRealmPassword)),
		Format: get(r, NewAttr("format", def.PasswordFormat).SetIf(d.Format != "", d.Format).
			Check(oneOf("format", passwordFormats))),
		Roles: get(r, NewAttr("roles", d.Roles).Check(validateRealmRoles)),
	}
	if r.err != nil {
		return nil, r.err
	}
	return u, nil
}

// checkUnique rejects duplicate identities and two resources sharing one
// artifact.
func checkUnique(s *Server) error {
	seen := make(map[engine.ResourceID]bool)
	var dup engine.ResourceID
	s.Walk(func(id engine.ResourceID) {
		if seen[id] && dup.IsZero() {
			dup = id
		}
		seen[id] = true
	})
	if !dup.IsZero() {
		return engine.NewValidationError(fmt.Sprintf("%s is declared more than once", dup), nil).
			WithResource(dup.String()).
			WithOperation("build")
	}

	artifacts := make(map[string]engine.ResourceID)
	claim := func(key string, id engine.ResourceID) error {
		if other, ok := artifacts[key]; ok {
			return engine.NewValidationError(fmt.Sprintf("%s and %s both manage %s", other, id, key), nil).
				WithResource(id.String()).
				WithOperation("build")
		}
		artifacts[key] = id
		return nil
	}
	for _, p := range s.Projects {
		if err := claim(p.Path, p.ID); err != nil {
			return err
		}
		for _, n := range p.NodeSources {
			if err := claim(n.Path(), n.ID); err != nil {
				return err
			}
		}
	}
	for _, a := range s.Acls {
		if err := claim(a.Path(), a.ID); err != nil {
			return err
		}
	}
	for _, u := range s.Users {
		if err := claim("realm user "+u.Username, u.ID); err != nil {
			return err
		}
	}
	return nil
}

func required(name string) func(string) error {
	return func(v string) error {
		if v == "" {
			return engine.NewValidationError(name+" is required", nil).WithCode(engine.ErrCodeRequired)
		}
		return nil
	}
}

func oneOf(name string, allowed []string) func(string) error {
	return func(v string) error {
		for _, a := range allowed {
			if v == a {
				return nil
			}
		}
		return engine.NewValidationError(
			fmt.Sprintf("%s must be one of %s, got %q", name, strings.Join(allowed, ", "), v), nil)
	}
}

func absolute(name string) func(string) error {
	return func(v string) error {
		if !path.IsAbs(v) {
			return engine.NewValidationError(fmt.Sprintf("%s must be an absolute path, got %q", name, v), nil)
		}
		return nil
	}
}

func port(name string) func(int) error {
	return func(v int) error {
		if v < 1 || v > 65535 {
			return engine.NewValidationError(fmt.Sprintf("%s out of range: %d", name, v), nil)
		}
		return nil
	}
}

func action(declared string, def engine.Action, allowed ...engine.Action) *Attr[engine.Action] {
	names := make([]string, len(allowed))
	for i, a := range allowed {
		names[i] = string(a)
	}
	return NewAttr("action", def).SetIf(declared != "", engine.Action(declared)).
		Check(func(a engine.Action) error { return oneOf("action", names)(string(a)) })
}

func deref(b *bool) bool {
	return b != nil && *b
}
