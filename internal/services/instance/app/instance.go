package server

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/homebook/internal/platform/errors"
	"github.com/louisbranch/homebook/internal/platform/fsys"
	"github.com/louisbranch/homebook/internal/platform/hashing"
	"github.com/louisbranch/homebook/internal/platform/logging"
	platformotel "github.com/louisbranch/homebook/internal/platform/otel"
	"github.com/louisbranch/homebook/internal/platform/paths"
	"github.com/louisbranch/homebook/internal/services/instance/database"
	"github.com/louisbranch/homebook/internal/services/instance/envconfig"
	"github.com/louisbranch/homebook/internal/services/instance/maintenance"
	"github.com/louisbranch/homebook/internal/services/instance/metrics"
	"github.com/louisbranch/homebook/internal/services/instance/migrate"
	"github.com/louisbranch/homebook/internal/services/instance/settings"
	"github.com/louisbranch/homebook/internal/services/instance/setup"
	"github.com/louisbranch/homebook/internal/services/instance/state"
	"github.com/louisbranch/homebook/internal/services/instance/storage"
	"github.com/louisbranch/homebook/internal/services/instance/updates"
)

// Options configure an Instance.
type Options struct {
	Root    string
	Version string
	Env     envconfig.Configuration

	FS       fsys.FileSystem
	Logger   logrus.FieldLogger
	Metrics  *metrics.Collectors
	Tracer   trace.Tracer
	Hashing  *hashing.Factory
	Detector setup.Detector
}

// Instance owns the lifecycle of one HomeBook installation.
type Instance struct {
	paths    paths.Provider
	version  string
	env      envconfig.Configuration
	fs       fsys.FileSystem
	logger   logrus.FieldLogger
	metrics  *metrics.Collectors
	tracer   trace.Tracer
	tracker  *state.Tracker
	settings *settings.Store
	setup    *setup.Service
	detector setup.Detector

	running atomic.Bool
	mu      sync.Mutex
	onReady []func()
}

// NewInstance wires the setup and maintenance collaborators for opts.Root.
func NewInstance(opts Options) (*Instance, error) {
	if strings.TrimSpace(opts.Root) == "" {
		return nil, fmt.Errorf("instance root is required")
	}
	if strings.TrimSpace(opts.Version) == "" {
		return nil, fmt.Errorf("running version is required")
	}
	if opts.FS == nil {
		opts.FS = fsys.NewOS()
	}
	logger := logging.OrDiscard(opts.Logger)
	if opts.Tracer == nil {
		opts.Tracer = platformotel.Tracer("internal/services/instance/app")
	}
	if opts.Detector == nil {
		opts.Detector = database.NewResolver(
			database.DefaultProbes(),
			database.WithProbeObserver(opts.Metrics),
			database.WithResolverLogger(logger),
		)
	}

	p := paths.New(opts.Root)
	tracker := state.NewTracker(opts.FS, p, opts.Version, logger)
	settingsStore := settings.NewStore(opts.FS, p)
	orchestrator, err := setup.NewOrchestrator(setup.Dependencies{
		FS:      opts.FS,
		Paths:   p,
		Version: opts.Version,
		Hashing: opts.Hashing,
		Logger:  logger,
		Metrics: opts.Metrics,
		Tracer:  opts.Tracer,
	})
	if err != nil {
		return nil, fmt.Errorf("setup orchestrator: %w", err)
	}

	return &Instance{
		paths:    p,
		version:  opts.Version,
		env:      opts.Env,
		fs:       opts.FS,
		logger:   logger,
		metrics:  opts.Metrics,
		tracer:   opts.Tracer,
		tracker:  tracker,
		settings: settingsStore,
		setup:    setup.NewService(tracker, settingsStore, orchestrator, opts.Detector, logger),
		detector: opts.Detector,
	}, nil
}

// OnReady registers fn to run once the instance is running. fn runs
// immediately when the instance already is.
func (i *Instance) OnReady(fn func()) {
	if fn == nil {
		return
	}
	i.mu.Lock()
	if !i.running.Load() {
		i.onReady = append(i.onReady, fn)
		i.mu.Unlock()
		return
	}
	i.mu.Unlock()
	fn()
}

// Ready reports whether the instance finished setup or maintenance.
func (i *Instance) Ready() bool {
	return i.running.Load()
}

// Version returns the running application version.
func (i *Instance) Version() string {
	return i.version
}

// State returns the lifecycle state recorded on disk.
func (i *Instance) State(ctx context.Context) (state.State, error) {
	return i.setup.State(ctx)
}

// Start brings the instance up. A provisioned instance runs a maintenance
// pass; an unconfigured one with a complete environment runs unattended
// setup; otherwise the instance waits for an operator.
func (i *Instance) Start(ctx context.Context) error {
	current, err := i.tracker.State(ctx)
	if err != nil {
		return fmt.Errorf("read instance state: %w", err)
	}
	logger := i.logger.WithField("state", string(current))

	switch {
	case current == state.Running:
		if required, err := i.tracker.IsUpdateRequired(ctx); err == nil && required {
			logger.WithField("version", i.version).Info("update required")
		}
		if err := i.Maintain(ctx); err != nil {
			return err
		}
	case i.env.Unattended():
		logger.Info("running unattended setup")
		cfg, err := setup.FromEnvironment(ctx, i.env, i.detector, i.settings.DefaultSQLitePath())
		if err != nil {
			return err
		}
		if err := i.RunSetup(ctx, cfg); err != nil {
			return err
		}
		return nil
	default:
		logger.Info("waiting for setup")
		return nil
	}
	i.markRunning()
	return nil
}

// Maintain runs one maintenance pass against the persisted database
// settings. Resolving and opening the store are part of the pass.
func (i *Instance) Maintain(ctx context.Context) error {
	runner, err := maintenance.NewRunner(maintenance.Config{
		Tracker:  i.tracker,
		Open:     i.openBackend,
		Logger:   i.logger,
		Observer: i.metrics,
		Tracer:   i.tracer,
	})
	if err != nil {
		return err
	}
	return runner.RunMaintenancePass(ctx)
}

func (i *Instance) openBackend(ctx context.Context) (maintenance.Backend, error) {
	conn, err := i.settings.Resolve(ctx, i.env)
	if err != nil {
		return maintenance.Backend{}, fmt.Errorf("resolve database settings: %w", err)
	}
	if conn.Provider == "" {
		return maintenance.Backend{}, apperrors.New(apperrors.CodeProviderNotConfigured, "database provider is not configured")
	}
	store, err := storage.Open(ctx, conn)
	if err != nil {
		return maintenance.Backend{}, fmt.Errorf("open store: %w", err)
	}
	manager, err := updates.NewManager(
		updates.NewJournal(i.fs, i.paths),
		updates.Builtin(updates.Deps{
			Store:           store,
			FS:              i.fs,
			Paths:           i.paths,
			DefaultLanguage: i.env.DefaultLanguage,
		}),
		updates.WithLogger(i.logger),
		updates.WithObserver(i.metrics),
	)
	if err != nil {
		_ = store.Close()
		return maintenance.Backend{}, err
	}
	return maintenance.Backend{
		Provider:  conn.Provider,
		Migrators: migrate.NewFactory(conn, migrate.WithLogger(i.logger)),
		Updates:   manager,
		Close:     store.Close,
	}, nil
}

// RunSetup provisions the instance with cfg and marks it running.
func (i *Instance) RunSetup(ctx context.Context, cfg setup.Configuration) error {
	if err := i.setup.Run(ctx, cfg); err != nil {
		return err
	}
	i.markRunning()
	return nil
}

// Detect reports which network backend accepts candidate.
func (i *Instance) Detect(ctx context.Context, candidate database.Candidate) (database.Provider, bool) {
	return i.setup.Detect(ctx, candidate)
}

func (i *Instance) markRunning() {
	i.mu.Lock()
	if i.running.Swap(true) {
		i.mu.Unlock()
		return
	}
	callbacks := i.onReady
	i.onReady = nil
	i.mu.Unlock()

	i.metrics.SetProvisioned(true)
	i.logger.WithField("version", i.version).Info("instance running")
	for _, fn := range callbacks {
		fn()
	}
}
