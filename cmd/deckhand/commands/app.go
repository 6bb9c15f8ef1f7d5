package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/openfroyo/deckhand/pkg/config"
	"github.com/openfroyo/deckhand/pkg/drift"
	"github.com/openfroyo/deckhand/pkg/host"
	"github.com/openfroyo/deckhand/pkg/policy"
	"github.com/openfroyo/deckhand/pkg/providers"
	"github.com/openfroyo/deckhand/pkg/readiness"
	"github.com/openfroyo/deckhand/pkg/resources"
	"github.com/openfroyo/deckhand/pkg/stores"
	"github.com/openfroyo/deckhand/pkg/telemetry"
	sshtransport "github.com/openfroyo/deckhand/pkg/transports/ssh"
	"github.com/rs/zerolog"
)

const defaultSettingsHint = config.DefaultSettingsPath

// app is the per-invocation wiring shared by the commands: settings,
// telemetry, the managed host and the state database.
type app struct {
	settings *config.Settings
	tel      *telemetry.Telemetry
	logger   zerolog.Logger

	runner     host.Runner
	fs         host.FS
	remoteHost string

	store    *stores.SQLiteStore
	policies *policy.Engine

	closers []func() error
}

// appOptions are command flags that override the settings file.
type appOptions struct {
	metricsAddr  string
	probeTimeout time.Duration
	solo         bool
}

func newApp(opts appOptions) (*app, error) {
	path, optional := configPath, false
	if path == "" {
		path, optional = config.DefaultSettingsPath, true
	}
	settings, err := config.LoadSettings(path, optional)
	if err != nil {
		return nil, err
	}

	if statePath != "" {
		settings.StateDB = statePath
	}
	if opts.metricsAddr != "" {
		settings.Telemetry.MetricsListen = opts.metricsAddr
	}
	if opts.probeTimeout > 0 {
		settings.ProbeTimeout = opts.probeTimeout
	}
	if opts.solo {
		settings.Solo = true
	}

	cfg := settings.TelemetryConfig(version)
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}

	a := &app{
		settings: settings,
		tel:      tel,
		logger:   tel.Logger.NewComponentLogger("cli").Zerolog(),
	}
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tel.Shutdown(ctx)
	})
	return a, nil
}

// close releases everything in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn().Err(err).Msg("Cleanup failed")
		}
	}
	a.closers = nil
}

// connect reaches the managed host: the local machine, or --target over
// ssh.
func (a *app) connect(ctx context.Context) error {
	if a.runner != nil {
		return nil
	}
	if target == "" {
		a.runner = host.NewLocalRunner(a.logger)
		a.fs = host.LocalFS{}
		return nil
	}

	cfg, err := sshtransport.ParseTarget(target)
	if err != nil {
		return err
	}
	switch {
	case identity != "":
		cfg.PrivateKeyPath = identity
	case os.Getenv("SSH_AUTH_SOCK") != "":
		cfg.AuthMethod = sshtransport.AuthMethodAgent
	}

	client, err := sshtransport.NewClient(cfg, a.logger)
	if err != nil {
		return err
	}
	if err := client.Connect(ctx); err != nil {
		return err
	}
	a.closers = append(a.closers, client.Close)

	a.runner = client
	a.fs = client.FS()
	a.remoteHost = cfg.Host
	a.logger = a.tel.Logger.NewComponentLogger("cli").WithTarget(cfg.Host).Zerolog()
	return nil
}

// openStore opens and migrates the state database.
func (a *app) openStore(ctx context.Context) (*stores.SQLiteStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	if err := os.MkdirAll(filepath.Dir(a.settings.StateDB), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	store, err := stores.Open(ctx, a.settings.StateDB)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)
	return store, nil
}

// loadTree loads the declaration and resolves it against the managed
// host. strict requires a supported platform; otherwise an undetectable
// one falls back to Debian so declarations can be checked anywhere.
func (a *app) loadTree(ctx context.Context, sources []string, strict bool) (*config.Declaration, *resources.Tree, error) {
	decl, err := config.NewLoader(a.logger).Load(ctx, sources)
	if err != nil {
		return nil, nil, err
	}
	if len(decl.Sources) == 0 {
		decl.Sources = sources
	}

	if err := a.connect(ctx); err != nil {
		return nil, nil, err
	}

	platform, err := host.DetectPlatform(a.fs)
	if err == nil {
		err = platform.Supported()
	}
	if err != nil {
		if strict {
			return nil, nil, err
		}
		a.logger.Warn().Err(err).Msg("Platform not detected, assuming Debian")
		platform = host.Platform{ID: "debian", Family: host.FamilyDebian}
	}

	def := resources.DefaultDefaults()
	self, err := host.Describe(ctx, a.runner)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to describe host: %w", err)
	}
	if target != "" {
		def.NodeName = self.Name
	}
	def.Solo = a.settings.Solo
	def.Self = self

	tree, err := resources.Build(decl, def, platform)
	if err != nil {
		return nil, nil, err
	}
	return decl, tree, nil
}

func (a *app) policyEngine(ctx context.Context) (*policy.Engine, error) {
	if a.policies != nil {
		return a.policies, nil
	}
	eng, err := policy.NewEngine(a.logger)
	if err != nil {
		return nil, err
	}
	if len(a.settings.PolicyPaths) > 0 {
		if err := eng.LoadPolicies(ctx, a.settings.PolicyPaths); err != nil {
			return nil, err
		}
	}
	a.policies = eng
	return eng, nil
}

// checkPolicy stops the run when a blocking policy is violated.
func (a *app) checkPolicy(ctx context.Context, tree *resources.Tree, operation string, dryRun bool) (*policy.Result, error) {
	eng, err := a.policyEngine(ctx)
	if err != nil {
		return nil, err
	}
	return eng.Check(ctx, policy.NewInput(tree, policy.Context{
		Operation: operation,
		DryRun:    dryRun,
		Target:    target,
	}))
}

func (a *app) detector(tree *resources.Tree) *drift.Detector {
	jobs := host.NewRdJobs(a.runner, a.fs, tree.Server.Path, "", a.logger)
	return drift.NewDetector(jobs, a.tel.Metrics, a.logger)
}

// providerEnv wires the collaborators the convergence units run through.
func (a *app) providerEnv(tree *resources.Tree) (*providers.Env, error) {
	installer, err := host.NewInstaller(tree.Platform, a.runner, a.fs, a.logger)
	if err != nil {
		return nil, err
	}

	env := &providers.Env{
		System:     host.NewSystem(a.runner, a.fs, a.logger),
		Renderer:   host.NewTemplateRenderer(a.settings.TemplateDir),
		Installer:  installer,
		Supervisor: host.NewSystemd(a.runner, tree.Server.StartupTimeout, a.logger),
		Detector:   a.detector(tree),
		Prober: readiness.NewProber(readiness.Options{
			Host:    a.remoteHost,
			Logger:  a.logger,
			Metrics: a.tel.Metrics,
			Tracer:  a.tel.Tracer,
		}),
		ProbeTimeout: a.settings.ProbeTimeout,
		Logger:       a.logger,
	}

	switch {
	case a.settings.InventoryFile != "":
		env.Inventory = &host.FileInventory{Path: a.settings.InventoryFile}
	case a.store != nil:
		env.Inventory = a.store
	}
	return env, nil
}
