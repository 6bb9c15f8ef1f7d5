package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/openfroyo/deckhand/pkg/readiness"
	"github.com/spf13/cobra"
)

func newProbeCommand() *cobra.Command {
	var (
		host     string
		port     int
		path     string
		timeout  time.Duration
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Wait until the server answers HTTP requests",
		Long: `Wait for the scheduling server to come up.

The port is polled until it accepts connections, then the health path is
requested until it answers with a success, a redirect or 403 Forbidden.`,
		Example: `  # Wait up to five minutes for the local server
  deckhand probe

  # Probe a remote server with a shorter deadline
  deckhand probe --host rundeck01 --port 4440 --timeout 2m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(appOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			prober := readiness.NewProber(readiness.Options{
				Host:     host,
				Interval: interval,
				Logger:   a.logger,
				Metrics:  a.tel.Metrics,
				Tracer:   a.tel.Tracer,
			})
			start := time.Now()
			if err := prober.WaitUntilUp(ctx, port, path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Server on port %d is up after %s\n", port, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "host to probe")
	cmd.Flags().IntVar(&port, "port", 4440, "server port")
	cmd.Flags().StringVar(&path, "path", "/", "HTTP path to request")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "give up after this long")
	cmd.Flags().DurationVar(&interval, "interval", readiness.DefaultInterval, "pause between attempts")

	return cmd
}
