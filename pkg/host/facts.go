package host

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// DescribeLocal returns the self-description of the machine deckhand runs
// on, used by node sources in standalone mode.
func DescribeLocal() (Node, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return Node{}, fmt.Errorf("uname failed: %w", err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		return Node{}, fmt.Errorf("failed to read hostname: %w", err)
	}

	sysname := unix.ByteSliceToString(uts.Sysname[:])
	return Node{
		Name:          hostname,
		FQDN:          hostname,
		OS:            strings.ToLower(sysname),
		KernelName:    sysname,
		KernelRelease: unix.ByteSliceToString(uts.Release[:]),
		KernelMachine: unix.ByteSliceToString(uts.Machine[:]),
	}, nil
}

// Describe returns the self-description of the host behind runner. The
// local runner reads uname directly; remote runners run uname(1).
func Describe(ctx context.Context, runner Runner) (Node, error) {
	if _, ok := runner.(*LocalRunner); ok {
		return DescribeLocal()
	}

	out, err := runner.Run(ctx, Command{Name: "uname", Args: []string{"-n", "-s", "-r", "-m"}})
	if err != nil {
		return Node{}, err
	}
	f := strings.Fields(string(out.Stdout))
	if len(f) < 4 {
		return Node{}, fmt.Errorf("unexpected uname output %q", strings.TrimSpace(string(out.Stdout)))
	}

	n := Node{
		Name:          f[1],
		FQDN:          f[1],
		OS:            strings.ToLower(f[0]),
		KernelName:    f[0],
		KernelRelease: f[2],
		KernelMachine: f[3],
	}

	if out, err := runner.Run(ctx, Command{Name: "hostname", Args: []string{"-f"}}); err == nil {
		if fqdn := strings.TrimSpace(string(out.Stdout)); fqdn != "" {
			n.FQDN = fqdn
		}
	}
	return n, nil
}
