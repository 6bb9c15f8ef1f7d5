package resources

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/openfroyo/deckhand/pkg/engine"
	"github.com/openfroyo/deckhand/pkg/host"
	"golang.org/x/crypto/bcrypt"
)

// Password formats of realm.properties entries.
const (
	PasswordMD5    = "md5"
	PasswordCrypt  = "crypt"
	PasswordPlain  = "plain"
	PasswordBcrypt = "bcrypt"
)

var passwordFormats = []string{PasswordMD5, PasswordCrypt, PasswordPlain, PasswordBcrypt}

// cryptSalt is fixed so the realm is stable across runs.
const cryptSalt = "rb"

// Prefixes the server recognises in realm.properties.
var passwordPrefixes = []string{"MD5:", "CRYPT:", "BCRYPT:", "OBF:"}

// FormatPassword returns the realm.properties form of u's password.
// Passwords already carrying a scheme prefix are written unchanged.
// previous is the entry currently in the realm, if any; a bcrypt entry
// that still verifies is kept so an unchanged password does not rewrite
// the realm.
func FormatPassword(ctx context.Context, runner host.Runner, u *User, previous string) (string, error) {
	for _, p := range passwordPrefixes {
		if strings.HasPrefix(u.Password, p) {
			return u.Password, nil
		}
	}

	switch u.Format {
	case PasswordMD5, "":
		sum := md5.Sum([]byte(u.Password))
		return "MD5:" + hex.EncodeToString(sum[:]), nil

	case PasswordCrypt:
		hash, err := host.Crypt(ctx, runner, u.Password, cryptSalt)
		if err != nil {
			return "", engine.Attach(err, u.ID.String(), "format_password")
		}
		return "CRYPT:" + hash, nil

	case PasswordBcrypt:
		if old, ok := strings.CutPrefix(previous, "BCRYPT:"); ok {
			if bcrypt.CompareHashAndPassword([]byte(old), []byte(u.Password)) == nil {
				return previous, nil
			}
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			return "", engine.NewInternalError("failed to hash password", err).
				WithResource(u.ID.String()).
				WithOperation("format_password")
		}
		return "BCRYPT:" + string(hash), nil

	case PasswordPlain:
		return u.Password, nil
	}

	return "", engine.NewValidationError(fmt.Sprintf("unknown password format %q", u.Format), nil).
		WithResource(u.ID.String()).
		WithOperation("format_password")
}
