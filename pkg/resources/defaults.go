package resources

import (
	"os"
	"time"

	"github.com/openfroyo/deckhand/pkg/host"
)

// DefaultLauncherURL is the launcher download location; %{version} is
// replaced with the server version once the server is resolved.
const DefaultLauncherURL = "https://download.rundeck.org/jar/rundeck-launcher-%{version}.jar"

// Defaults are the static defaults applied to undeclared attributes.
// Build never reads process-wide state; everything it needs is here.
type Defaults struct {
	NodeName       string
	LauncherURL    string
	ServiceName    string
	Path           string
	ConfigPath     string
	LogPath        string
	User           string
	Group          string
	Port           int
	Log4jPort      int
	LoggingLevel   string
	Hostname       string
	InstallMethod  string
	Environment    string
	HealthPath     string
	StartupTimeout time.Duration

	MailHostname string
	MailPort     int
	MailFrom     string

	ProxyHostname string
	ProxyPort     int
	ProxyScheme   string

	AdminUsername string
	AdminRoles    []string

	SSHAuthentication string
	Executor          string
	FileCopier        string
	JobFormat         string
	PasswordFormat    string

	// Solo makes file node sources describe the local machine when no
	// other nodes are declared.
	Solo bool

	// Self is the node describing the managed host, used by Solo.
	Self host.Node
}

// DefaultDefaults returns the stock defaults. NodeName is the local host
// name.
func DefaultDefaults() Defaults {
	name, _ := os.Hostname()
	return Defaults{
		NodeName:       name,
		LauncherURL:    DefaultLauncherURL,
		ServiceName:    "rundeck",
		Path:           "/var/lib/rundeck",
		ConfigPath:     "/etc/rundeck",
		LogPath:        "/var/log/rundeck",
		User:           "rundeck",
		Group:          "rundeck",
		Port:           4440,
		Log4jPort:      4435,
		LoggingLevel:   "INFO",
		Hostname:       "localhost",
		InstallMethod:  InstallPackage,
		Environment:    "_default",
		HealthPath:     "/",
		StartupTimeout: host.DefaultStartupTimeout,

		MailHostname: "localhost",
		MailPort:     25,
		MailFrom:     "ops@example.com",

		ProxyHostname: "localhost",
		ProxyPort:     4440,
		ProxyScheme:   "http",

		AdminUsername: "admin",
		AdminRoles:    []string{"admin", "user"},

		SSHAuthentication: "privateKey",
		Executor:          "jsch-ssh",
		FileCopier:        "jsch-scp",
		JobFormat:         "yaml",
		PasswordFormat:    PasswordMD5,
	}
}
