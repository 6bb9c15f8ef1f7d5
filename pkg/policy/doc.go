// Package policy checks declarations against Open Policy Agent policies
// before a run touches the host.
//
// Every policy is a Rego module defining a "deny" set. Entries are either
// strings or objects with "message", "severity" and "resource" keys. The
// input document is an Input: the run context plus the resolved resources,
// parents first:
//
//	{
//	  "context": {"operation": "converge", "environment": "production", "dry_run": false},
//	  "resources": [
//	    {"id": "server[rundeck01]", "kind": "server", "action": "install", "attributes": {...}},
//	    {"id": "project[cron]", "kind": "project", "parent": "server[rundeck01]", ...}
//	  ]
//	}
//
// Violations with severity error or critical block the run; Engine.Check
// reports them as a POLICY_DENIED validation error. Lower severities are
// logged as warnings.
//
// # Built-in Policies
//
//   - admin-credentials: guessable admin passwords in production
//   - realm-passwords: clear text realm users
//   - destructive-actions: disabled projects and large removals
//   - service-exposure: anonymous RSS and clear text front ends
//
// Custom policies are loaded from .rego files, named after the file, or
// from .json files holding a Policy. A custom policy replaces a built-in
// of the same name. Loader.Watch reloads them when they change.
package policy
