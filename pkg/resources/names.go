package resources

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/openfroyo/deckhand/pkg/engine"
)

var projectNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ShortName returns the last "::" segment of a declared name, the default
// for job, ACL and user names.
func ShortName(name string) string {
	if i := strings.LastIndex(name, "::"); i >= 0 {
		return name[i+2:]
	}
	return name
}

// ValidateProjectName rejects names that are unusable as a directory under
// the projects root.
func ValidateProjectName(name string) error {
	if name == "." || name == ".." || !projectNamePattern.MatchString(name) {
		return engine.NewValidationError(
			fmt.Sprintf("invalid project name %q: must match %s and not be . or ..", name, projectNamePattern),
			nil,
		).WithCode(engine.ErrCodeInvalidName)
	}
	return nil
}

// validateFileName rejects names that would escape their directory.
func validateFileName(kind, name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\x00") {
		return engine.NewValidationError(fmt.Sprintf("invalid %s name %q", kind, name), nil).
			WithCode(engine.ErrCodeInvalidName)
	}
	return nil
}

// validateAccountName rejects user and group names the account tools
// would refuse or misparse.
func validateAccountName(name string) error {
	if name == "" || strings.ContainsAny(name, ":/ \t\n") {
		return engine.NewValidationError(fmt.Sprintf("invalid account name %q", name), nil).
			WithCode(engine.ErrCodeInvalidName)
	}
	return nil
}

// validateRealmRoles rejects roles that would split or end a realm line.
func validateRealmRoles(roles []string) error {
	for _, role := range roles {
		if strings.TrimSpace(role) == "" || strings.ContainsAny(role, ",\n\r") {
			return engine.NewValidationError(fmt.Sprintf("invalid role %q", role), nil).
				WithCode(engine.ErrCodeInvalidName)
		}
	}
	return nil
}

// validateRealmPassword rejects passwords that would end a realm line.
func validateRealmPassword(pw string) error {
	if strings.ContainsAny(pw, "\n\r") {
		return engine.NewValidationError("password must not contain line breaks", nil)
	}
	return nil
}

// validateRealmName rejects realm user names that would corrupt
// realm.properties.
func validateRealmName(name string) error {
	if name == "" || strings.ContainsAny(name, ":=,\n\r \t") {
		return engine.NewValidationError(fmt.Sprintf("invalid user name %q", name), nil).
			WithCode(engine.ErrCodeInvalidName)
	}
	return nil
}
