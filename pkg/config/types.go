package config

import (
	"strconv"
	"time"

	"github.com/openfroyo/deckhand/pkg/host"
)

// Declaration is the desired state of one server and everything it owns.
// Every field left unset resolves to its default when the resource tree is
// built.
type Declaration struct {
	// Server is the root of the ownership tree.
	Server *ServerDecl `json:"server" yaml:"server" validate:"required"`

	// Projects are declared in order; their jobs and node sources follow
	// their project.
	Projects []ProjectDecl `json:"projects,omitempty" yaml:"projects,omitempty" validate:"dive"`

	// Acls are additional ACL policy files next to the default ones.
	Acls []AclDecl `json:"acls,omitempty" yaml:"acls,omitempty" validate:"dive"`

	// Users make up the authentication realm, in declaration order.
	Users []UserDecl `json:"users,omitempty" yaml:"users,omitempty" validate:"dive"`

	// Sources are the files the declaration was loaded from.
	Sources []string `json:"-" yaml:"-"`
}

// ServerDecl declares the server.
type ServerDecl struct {
	NodeName          string      `json:"node_name,omitempty" yaml:"node_name,omitempty"`
	Version           string      `json:"version,omitempty" yaml:"version,omitempty"`
	LauncherURL       string      `json:"launcher_url,omitempty" yaml:"launcher_url,omitempty"`
	ServiceName       string      `json:"service_name,omitempty" yaml:"service_name,omitempty"`
	Path              string      `json:"path,omitempty" yaml:"path,omitempty" validate:"omitempty,startswith=/"`
	ConfigPath        string      `json:"config_path,omitempty" yaml:"config_path,omitempty" validate:"omitempty,startswith=/"`
	LogPath           string      `json:"log_path,omitempty" yaml:"log_path,omitempty" validate:"omitempty,startswith=/"`
	User              string      `json:"user,omitempty" yaml:"user,omitempty"`
	Group             string      `json:"group,omitempty" yaml:"group,omitempty"`
	SSHUser           string      `json:"ssh_user,omitempty" yaml:"ssh_user,omitempty"`
	Port              int         `json:"port,omitempty" yaml:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	Log4jPort         int         `json:"log4j_port,omitempty" yaml:"log4j_port,omitempty" validate:"omitempty,min=1,max=65535"`
	PublicRSS         *bool       `json:"public_rss,omitempty" yaml:"public_rss,omitempty"`
	LoggingLevel      string      `json:"logging_level,omitempty" yaml:"logging_level,omitempty" validate:"omitempty,oneof=TRACE DEBUG INFO WARN ERROR FATAL"`
	Hostname          string      `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	JVMOptions        string      `json:"jvm_options,omitempty" yaml:"jvm_options,omitempty"`
	EnableDefaultACLs *bool       `json:"enable_default_acls,omitempty" yaml:"enable_default_acls,omitempty"`
	InstallMethod     string      `json:"install_method,omitempty" yaml:"install_method,omitempty" validate:"omitempty,oneof=package jar"`
	Environment       string      `json:"environment,omitempty" yaml:"environment,omitempty"`
	HealthPath        string      `json:"health_path,omitempty" yaml:"health_path,omitempty" validate:"omitempty,startswith=/"`
	StartupTimeout    string      `json:"startup_timeout,omitempty" yaml:"startup_timeout,omitempty"`
	Mail              *MailDecl   `json:"mail,omitempty" yaml:"mail,omitempty"`
	Proxy             *ProxyDecl  `json:"proxy,omitempty" yaml:"proxy,omitempty"`
	Admin             AdminDecl   `json:"admin" yaml:"admin"`
	Nodes             []host.Node `json:"nodes,omitempty" yaml:"nodes,omitempty" validate:"dive"`
}

// MailDecl configures outgoing notification mail.
type MailDecl struct {
	Hostname string `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	Port     int    `json:"port,omitempty" yaml:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	From     string `json:"from,omitempty" yaml:"from,omitempty"`
	TLS      *bool  `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// ProxyDecl describes the front end the server is reached through; it
// builds the grails server URL.
type ProxyDecl struct {
	Hostname string `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	Port     int    `json:"port,omitempty" yaml:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	Scheme   string `json:"scheme,omitempty" yaml:"scheme,omitempty" validate:"omitempty,oneof=http https"`
}

// AdminDecl is the account the job CLI authenticates with.
type AdminDecl struct {
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password" yaml:"password" validate:"required"`
}

// ProjectDecl declares a project.
type ProjectDecl struct {
	// Name identifies the project within the declaration. ProjectName,
	// when empty, is the last "::" segment of Name.
	Name              string           `json:"name" yaml:"name" validate:"required"`
	ProjectName       string           `json:"project_name,omitempty" yaml:"project_name,omitempty"`
	Action            string           `json:"action,omitempty" yaml:"action,omitempty" validate:"omitempty,oneof=enable disable reconfigure"`
	SSHAuthentication string           `json:"ssh_authentication,omitempty" yaml:"ssh_authentication,omitempty" validate:"omitempty,oneof=privateKey password"`
	SSHKey            string           `json:"ssh_key,omitempty" yaml:"ssh_key,omitempty"`
	Executor          string           `json:"executor,omitempty" yaml:"executor,omitempty" validate:"omitempty,oneof=jsch-ssh stub"`
	FileCopier        string           `json:"file_copier,omitempty" yaml:"file_copier,omitempty" validate:"omitempty,oneof=jsch-scp stub"`
	Content           string           `json:"content,omitempty" yaml:"content,omitempty"`
	Jobs              []JobDecl        `json:"jobs,omitempty" yaml:"jobs,omitempty" validate:"dive"`
	NodeSources       []NodeSourceDecl `json:"node_sources,omitempty" yaml:"node_sources,omitempty" validate:"dive"`
}

// JobDecl declares a job definition loaded through the job CLI.
type JobDecl struct {
	Name    string `json:"name" yaml:"name" validate:"required"`
	JobName string `json:"job_name,omitempty" yaml:"job_name,omitempty"`
	Action  string `json:"action,omitempty" yaml:"action,omitempty" validate:"omitempty,oneof=enable disable"`
	Format  string `json:"format,omitempty" yaml:"format,omitempty" validate:"omitempty,oneof=yaml xml"`
	Content string `json:"content" yaml:"content" validate:"required"`
}

// NodeSourceDecl declares where a project's nodes come from.
type NodeSourceDecl struct {
	Name        string      `json:"name" yaml:"name" validate:"required"`
	Type        string      `json:"type,omitempty" yaml:"type,omitempty" validate:"omitempty,oneof=file"`
	Action      string      `json:"action,omitempty" yaml:"action,omitempty" validate:"omitempty,oneof=enable disable"`
	Query       string      `json:"query,omitempty" yaml:"query,omitempty"`
	Limit       *int        `json:"limit,omitempty" yaml:"limit,omitempty" validate:"omitempty,min=0"`
	Username    string      `json:"username,omitempty" yaml:"username,omitempty"`
	ManualNodes []host.Node `json:"manual_nodes,omitempty" yaml:"manual_nodes,omitempty" validate:"dive"`
}

// AclDecl declares an ACL policy file.
type AclDecl struct {
	Name    string `json:"name" yaml:"name" validate:"required"`
	AclName string `json:"acl_name,omitempty" yaml:"acl_name,omitempty"`
	Action  string `json:"action,omitempty" yaml:"action,omitempty" validate:"omitempty,oneof=enable disable"`
	Content string `json:"content" yaml:"content" validate:"required"`
}

// UserDecl declares a realm user.
type UserDecl struct {
	Name     string   `json:"name" yaml:"name" validate:"required"`
	Username string   `json:"username,omitempty" yaml:"username,omitempty"`
	Action   string   `json:"action,omitempty" yaml:"action,omitempty" validate:"omitempty,oneof=enable"`
	Password string   `json:"password" yaml:"password" validate:"required"`
	Format   string   `json:"format,omitempty" yaml:"format,omitempty" validate:"omitempty,oneof=md5 crypt plain bcrypt"`
	Roles    []string `json:"roles,omitempty" yaml:"roles,omitempty"`
}

// ValidationError is a single problem found while loading a declaration,
// with its location when one is known.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the field path (e.g., "projects[0].jobs[1].content").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}

func (v ValidationError) String() string {
	loc := v.File
	if v.Line > 0 {
		loc = loc + ":" + strconv.Itoa(v.Line) + ":" + strconv.Itoa(v.Column)
	}
	switch {
	case loc != "" && v.Path != "":
		return loc + ": " + v.Path + ": " + v.Message
	case loc != "":
		return loc + ": " + v.Message
	case v.Path != "":
		return v.Path + ": " + v.Message
	}
	return v.Message
}

// StarlarkResult represents the result of Starlark execution.
type StarlarkResult struct {
	// Output holds the script's exported globals.
	Output map[string]interface{} `json:"output,omitempty"`

	// ExecutionTime is how long the script took to execute.
	ExecutionTime time.Duration `json:"execution_time"`

	// Error is any error that occurred.
	Error string `json:"error,omitempty"`
}
