package host

import (
	"context"
	"fmt"
	"strings"
)

const cryptScript = `local $/; my $p = <STDIN>; print crypt($p, $ARGV[0]);`

// Crypt computes the traditional crypt(3) hash of password on the host.
// The password is passed on stdin so it never shows up in a process list.
func Crypt(ctx context.Context, runner Runner, password, salt string) (string, error) {
	if len(salt) != 2 {
		return "", fmt.Errorf("crypt salt must be two characters, got %q", salt)
	}
	out, err := runner.Run(ctx, Command{
		Name:  "perl",
		Args:  []string{"-e", cryptScript, salt},
		Stdin: []byte(password),
	})
	if err != nil {
		return "", err
	}
	hash := strings.TrimSpace(string(out.Stdout))
	if hash == "" {
		return "", fmt.Errorf("crypt produced no output")
	}
	return hash, nil
}
