package policy

// Builtins returns the policies every engine starts with.
func Builtins() []Policy {
	return []Policy{
		adminCredentialsPolicy(),
		realmPasswordsPolicy(),
		destructiveActionsPolicy(),
		serviceExposurePolicy(),
	}
}

// adminCredentialsPolicy rejects guessable job CLI credentials outside of
// throwaway environments.
func adminCredentialsPolicy() Policy {
	return Policy{
		Name:        "admin-credentials",
		Description: "Rejects guessable admin credentials in production",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"security", "credentials"},
		Rego: `package deckhand.policies.admin

import rego.v1

weak_passwords := {"admin", "password", "changeme", "rundeck"}

deny contains violation if {
	input.context.environment == "production"
	some r in input.resources
	r.kind == "server"
	admin := r.attributes.admin
	admin.password in weak_passwords
	violation := {
		"message": sprintf("Admin account %s uses a well-known password", [admin.username]),
		"severity": "error",
		"resource": r.id,
	}
}

deny contains violation if {
	input.context.environment == "production"
	some r in input.resources
	r.kind == "server"
	admin := r.attributes.admin
	admin.password == admin.username
	violation := {
		"message": sprintf("Admin account %s uses its name as password", [admin.username]),
		"severity": "error",
		"resource": r.id,
	}
}`,
	}
}

// realmPasswordsPolicy flags passwords stored in clear text.
func realmPasswordsPolicy() Policy {
	return Policy{
		Name:        "realm-passwords",
		Description: "Warns about realm users stored in clear text",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"security", "realm"},
		Rego: `package deckhand.policies.realm

import rego.v1

deny contains violation if {
	some r in input.resources
	r.kind == "user"
	r.action != "disable"
	r.attributes.format == "plain"
	violation := {
		"message": sprintf("User %s is stored in clear text", [r.name]),
		"severity": "warning",
		"resource": r.id,
	}
}

deny contains violation if {
	input.context.environment == "production"
	some r in input.resources
	r.kind == "user"
	r.attributes.format == "plain"
	"admin" in r.attributes.roles
	violation := {
		"message": sprintf("Administrator %s must not be stored in clear text in production", [r.name]),
		"severity": "error",
		"resource": r.id,
	}
}`,
	}
}

// destructiveActionsPolicy reviews runs that remove things from the server.
func destructiveActionsPolicy() Policy {
	return Policy{
		Name:        "destructive-actions",
		Description: "Reviews disabled projects and large removals",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"operations", "safety"},
		Rego: `package deckhand.policies.operations

import rego.v1

max_removals := 5

deny contains violation if {
	input.context.environment == "production"
	some r in input.resources
	r.kind == "project"
	r.action == "disable"
	violation := {
		"message": sprintf("Project %s and its history will be removed", [r.name]),
		"severity": "warning",
		"resource": r.id,
	}
}

deny contains violation if {
	removals := count([r |
		some r in input.resources
		r.action == "disable"
	])
	removals > max_removals
	violation := {
		"message": sprintf("Run disables %d resources, please review carefully", [removals]),
		"severity": "warning",
	}
}`,
	}
}

// serviceExposurePolicy reviews what the server exposes publicly.
func serviceExposurePolicy() Policy {
	return Policy{
		Name:        "service-exposure",
		Description: "Reviews anonymous feeds and clear text front ends in production",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"security", "network"},
		Rego: `package deckhand.policies.exposure

import rego.v1

deny contains violation if {
	input.context.environment == "production"
	some r in input.resources
	r.kind == "server"
	r.attributes.public_rss
	violation := {
		"message": "The job RSS feed is readable without authentication",
		"severity": "warning",
		"resource": r.id,
	}
}

deny contains violation if {
	input.context.environment == "production"
	some r in input.resources
	r.kind == "server"
	r.attributes.proxy.scheme == "http"
	violation := {
		"message": sprintf("Server is reached over clear text http at %s", [r.attributes.proxy.hostname]),
		"severity": "warning",
		"resource": r.id,
	}
}`,
	}
}
