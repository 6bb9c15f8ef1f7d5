package resources

import (
	"io/fs"
	"net"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/openfroyo/deckhand/pkg/engine"
	"github.com/openfroyo/deckhand/pkg/host"
)

// Install methods.
const (
	InstallPackage = "package"
	InstallJar     = "jar"
)

// Tree is the ownership tree of one declaration, fully resolved. Slices
// keep declaration order.
type Tree struct {
	Server   *Server
	Platform host.Platform
}

// Server is the root resource.
type Server struct {
	ID engine.ResourceID

	NodeName          string
	Version           string
	LauncherURL       string
	ServiceName       string
	Path              string
	ConfigPath        string
	LogPath           string
	User              string
	Group             string
	SSHUser           string
	Port              int
	Log4jPort         int
	PublicRSS         bool
	LoggingLevel      string
	Hostname          string
	JVMOptions        string
	EnableDefaultACLs bool
	InstallMethod     string
	Environment       string
	HealthPath        string
	StartupTimeout    time.Duration
	Mail              Mail
	Proxy             Proxy
	Admin             Admin
	Nodes             []host.Node

	// Solo and Self come from Defaults; see Defaults.Solo.
	Solo bool
	Self host.Node

	Projects []*Project
	Acls     []*Acl
	Users    []*User
}

// Mail configures outgoing mail.
type Mail struct {
	Hostname string
	Port     int
	Username string
	Password string
	From     string
	TLS      bool
}

// Proxy is the front end the server is reached through.
type Proxy struct {
	Hostname string
	Port     int
	Scheme   string
}

// Admin is the account the job CLI authenticates with. It is also
// declared as the first realm user.
type Admin struct {
	Username string
	Password string
}

// URL is the externally visible server URL.
func (s *Server) URL() string {
	u := url.URL{
		Scheme: s.Proxy.Scheme,
		Host:   net.JoinHostPort(s.Proxy.Hostname, strconv.Itoa(s.Proxy.Port)),
	}
	return u.String()
}

// SSHKeyPath is the service account's private key.
func (s *Server) SSHKeyPath() string { return path.Join(s.Path, ".ssh", "id_rsa") }

// ProjectsDir holds one directory per project.
func (s *Server) ProjectsDir() string { return path.Join(s.Path, "projects") }

// ConfigFile returns the path of a file under the config directory.
func (s *Server) ConfigFile(name string) string { return path.Join(s.ConfigPath, name) }

// RealmPath is the authentication realm file.
func (s *Server) RealmPath() string { return s.ConfigFile("realm.properties") }

// Directories lists the directories the server owns, parents first.
func (s *Server) Directories() []string {
	return []string{
		s.Path,
		s.ConfigPath,
		s.LogPath,
		path.Join(s.Path, "projects"),
		path.Join(s.Path, "var"),
		path.Join(s.Path, "var", "tmp"),
		path.Join(s.Path, "libext"),
		path.Join(s.Path, "data"),
		path.Join(s.Path, ".ssh"),
	}
}

// Ownership returns the service identity with mode.
func (s *Server) Ownership(mode fs.FileMode) host.Ownership {
	return host.Ownership{Owner: s.User, Group: s.Group, Mode: mode}
}

// Walk calls fn for every resource under the server, parents before
// children, in declaration order.
func (s *Server) Walk(fn func(id engine.ResourceID)) {
	fn(s.ID)
	for _, p := range s.Projects {
		fn(p.ID)
		for _, j := range p.Jobs {
			fn(j.ID)
		}
		for _, n := range p.NodeSources {
			fn(n.ID)
		}
	}
	for _, a := range s.Acls {
		fn(a.ID)
	}
	for _, u := range s.Users {
		fn(u.ID)
	}
}

// Project is a project directory and its properties file.
type Project struct {
	ID     engine.ResourceID
	Server *Server
	Action engine.Action

	Name              string
	Path              string
	SSHAuthentication string
	SSHKey            string
	Executor          string
	FileCopier        string

	// Content replaces the rendered project.properties when set.
	Content string

	Jobs        []*Job
	NodeSources []*NodeSource
}

// EtcDir holds the project's configuration files.
func (p *Project) EtcDir() string { return path.Join(p.Path, "etc") }

// PropertiesPath is project.properties.
func (p *Project) PropertiesPath() string { return path.Join(p.EtcDir(), "project.properties") }

// Job is a job definition stored on the server through the job CLI.
type Job struct {
	ID      engine.ResourceID
	Project *Project
	Action  engine.Action

	Name    string
	Format  string
	Content string
}

// NodeSource is a project's node inventory file.
type NodeSource struct {
	ID      engine.ResourceID
	Project *Project
	Action  engine.Action

	Type        string
	File        string
	Query       string
	Limit       int
	HasLimit    bool
	Username    string
	ManualNodes []host.Node
}

// Path is the resources file the source writes. The first source of a
// project writes etc/resources.xml; later ones are named after themselves.
func (n *NodeSource) Path() string { return path.Join(n.Project.EtcDir(), n.File) }

// Acl is an ACL policy file.
type Acl struct {
	ID     engine.ResourceID
	Server *Server
	Action engine.Action

	Name    string
	Content string

	// Template, when set, names a built-in template rendered instead of
	// Content.
	Template string
}

// Path is the policy file.
func (a *Acl) Path() string { return a.Server.ConfigFile(a.Name + ".aclpolicy") }

// User is one line of the authentication realm.
type User struct {
	ID     engine.ResourceID
	Server *Server
	Action engine.Action

	Username string
	Password string
	Format   string
	Roles    []string
}
