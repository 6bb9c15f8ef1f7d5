// Package readiness waits for the scheduling server to answer requests.
package readiness

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/openfroyo/deckhand/pkg/engine"
	"github.com/openfroyo/deckhand/pkg/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Probe phases.
const (
	PhaseListen = "listen"
	PhaseHTTP   = "http"
)

// Attempt outcomes.
const (
	OutcomeUp     = "up"
	OutcomeNotYet = "not_yet"
)

// DefaultInterval is the pause between two attempts of a phase.
const DefaultInterval = time.Second

// Options configures a Prober.
type Options struct {
	// Host is dialed for both phases. Defaults to 127.0.0.1.
	Host string

	// Interval defaults to DefaultInterval.
	Interval time.Duration

	// RequestTimeout bounds a single attempt. Defaults to the interval
	// times five.
	RequestTimeout time.Duration

	// OnAttempt, when set, observes every attempt.
	OnAttempt func(phase, outcome string)

	Logger  zerolog.Logger
	Metrics *telemetry.Metrics
	Tracer  *telemetry.Tracer
}

// Prober polls a port until something listens on it, then polls an HTTP
// endpoint on the same port until it answers.
type Prober struct {
	opts   Options
	client *http.Client
	dialer net.Dialer
	logger zerolog.Logger
}

// NewProber creates a prober.
func NewProber(opts Options) *Prober {
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * opts.Interval
	}

	return &Prober{
		opts: opts,
		client: &http.Client{
			Timeout:   opts.RequestTimeout,
			Transport: &http.Transport{DisableKeepAlives: true},
			// A redirect already proves the server answers.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		dialer: net.Dialer{Timeout: opts.RequestTimeout},
		logger: opts.Logger.With().Str("component", "readiness").Logger(),
	}
}

// WaitUntilUp blocks until port accepts connections and healthPath answers
// with a success, a redirect or 403 Forbidden. Refused connections, resets
// and other status codes mean "not yet". There is no built-in deadline:
// when ctx is done the wait ends with a TimeoutError.
func (p *Prober) WaitUntilUp(ctx context.Context, port int, healthPath string) error {
	addr := net.JoinHostPort(p.opts.Host, strconv.Itoa(port))
	if healthPath == "" || healthPath[0] != '/' {
		healthPath = "/" + healthPath
	}
	url := "http://" + addr + healthPath

	log := p.logger.With().Str("addr", addr).Logger()
	start := time.Now()

	if err := p.poll(ctx, PhaseListen, addr, func(ctx context.Context) error {
		return p.listening(ctx, addr)
	}); err != nil {
		return p.timeout(port, PhaseListen, err)
	}
	log.Debug().Dur("elapsed", time.Since(start)).Msg("Port is listening")

	if err := p.poll(ctx, PhaseHTTP, addr, func(ctx context.Context) error {
		return p.answering(ctx, url)
	}); err != nil {
		return p.timeout(port, PhaseHTTP, err)
	}

	log.Info().Str("url", url).Dur("elapsed", time.Since(start)).Msg("Server is up")
	return nil
}

// poll runs check immediately and then on every tick until it succeeds or
// ctx is done. It only returns ctx's error.
func (p *Prober) poll(ctx context.Context, phase, addr string, check func(context.Context) error) error {
	if p.opts.Tracer != nil {
		var span trace.Span
		ctx, span = p.opts.Tracer.StartProbeSpan(ctx, phase, addr)
		defer span.End()
	}

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := check(ctx)
		outcome := OutcomeUp
		if err != nil {
			outcome = OutcomeNotYet
		}
		p.opts.Metrics.RecordProbeAttempt(phase, outcome)
		if p.opts.OnAttempt != nil {
			p.opts.OnAttempt(phase, outcome)
		}
		if err == nil {
			return nil
		}
		p.logger.Debug().Err(err).Str("phase", phase).Int("attempt", attempt).Msg("Not up yet")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Prober) listening(ctx context.Context, addr string) error {
	conn, err := p.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}

func (p *Prober) answering(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if Up(resp.StatusCode) {
		return nil
	}
	return fmt.Errorf("unexpected status %s", resp.Status)
}

// Up reports whether an HTTP status proves the server is serving
// requests. 403 counts: the server answered, it just refused us.
func Up(status int) bool {
	return (status >= 200 && status < 400) || status == http.StatusForbidden
}

func (p *Prober) timeout(port int, phase string, err error) error {
	return engine.NewTimeoutError(fmt.Sprintf("server on port %d did not come up", port), err).
		WithOperation("wait_until_up").
		WithDetail("phase", phase)
}
