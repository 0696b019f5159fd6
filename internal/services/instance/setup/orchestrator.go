package setup

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/homebook/internal/platform/errors"
	"github.com/louisbranch/homebook/internal/platform/fsys"
	"github.com/louisbranch/homebook/internal/platform/hashing"
	"github.com/louisbranch/homebook/internal/platform/i18n"
	"github.com/louisbranch/homebook/internal/platform/logging"
	platformotel "github.com/louisbranch/homebook/internal/platform/otel"
	"github.com/louisbranch/homebook/internal/platform/paths"
	"github.com/louisbranch/homebook/internal/services/instance/database"
	"github.com/louisbranch/homebook/internal/services/instance/maintenance"
	"github.com/louisbranch/homebook/internal/services/instance/metrics"
	"github.com/louisbranch/homebook/internal/services/instance/migrate"
	"github.com/louisbranch/homebook/internal/services/instance/state"
	"github.com/louisbranch/homebook/internal/services/instance/storage"
	"github.com/louisbranch/homebook/internal/services/instance/updates"
	"github.com/louisbranch/homebook/internal/services/instance/user"
)

// Store is the persistence a bootstrap runtime needs.
type Store interface {
	updates.Store
	CreateUser(ctx context.Context, u user.User) error
	GetUserByUsername(ctx context.Context, username string) (user.User, error)
	Close() error
}

// Dependencies are the primitives Provision builds its runtime from.
type Dependencies struct {
	FS      fsys.FileSystem
	Paths   paths.Provider
	Version string
	Hashing *hashing.Factory
	Logger  logrus.FieldLogger
	Metrics *metrics.Collectors
	Tracer  trace.Tracer

	// Migrators returns the migrator factory of a connection. Defaults to
	// migrate.NewFactory.
	Migrators func(conn database.Connection) migrate.MigratorFactory
	// OpenStore connects to a migrated backend. Defaults to storage.Open.
	OpenStore func(ctx context.Context, conn database.Connection) (Store, error)
	// Updates lists the versioned updates. Defaults to updates.Builtin.
	Updates func(deps updates.Deps) []updates.Update
}

// Orchestrator provisions instances.
type Orchestrator struct {
	deps Dependencies
}

// NewOrchestrator fills defaults and returns an Orchestrator.
func NewOrchestrator(deps Dependencies) (*Orchestrator, error) {
	if deps.FS == nil {
		return nil, fmt.Errorf("file system is required")
	}
	if strings.TrimSpace(deps.Version) == "" {
		return nil, fmt.Errorf("running version is required")
	}
	if deps.Hashing == nil {
		deps.Hashing = hashing.NewFactory()
	}
	deps.Logger = logging.OrDiscard(deps.Logger)
	if deps.Tracer == nil {
		deps.Tracer = platformotel.Tracer("internal/services/instance/setup")
	}
	if deps.Migrators == nil {
		deps.Migrators = func(conn database.Connection) migrate.MigratorFactory {
			return migrate.NewFactory(conn, migrate.WithLogger(deps.Logger))
		}
	}
	if deps.OpenStore == nil {
		deps.OpenStore = func(ctx context.Context, conn database.Connection) (Store, error) {
			return storage.Open(ctx, conn)
		}
	}
	if deps.Updates == nil {
		deps.Updates = updates.Builtin
	}
	return &Orchestrator{deps: deps}, nil
}

// Provision runs first-time setup against settings. Each failure aborts the
// sequence; steps already completed are not rolled back.
func (o *Orchestrator) Provision(ctx context.Context, settings database.Connection, cfg Configuration) error {
	ctx, span := o.deps.Tracer.Start(ctx, "setup.provision",
		trace.WithAttributes(attribute.String("db.provider", settings.Provider.String())))
	defer span.End()

	err := o.provision(ctx, settings, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "setup failed")
		o.deps.Logger.WithError(err).WithField("code", string(apperrors.CodeOf(err))).Error("setup failed")
		return err
	}
	o.deps.Logger.WithField("provider", settings.Provider.String()).Info("instance provisioned")
	return nil
}

func (o *Orchestrator) provision(ctx context.Context, settings database.Connection, cfg Configuration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if settings.Provider == "" {
		return apperrors.New(apperrors.CodeProviderNotConfigured, "database provider is not configured")
	}
	if err := settings.Validate(); err != nil {
		return setupError("invalid database settings", err)
	}

	factory := o.deps.Migrators(settings)
	migrator, err := factory.CreateMigrator(settings.Provider)
	if err != nil {
		return err
	}
	if err := migrator.Migrate(ctx); err != nil {
		return setupError("migrate schema", err)
	}

	if strings.TrimSpace(cfg.AdminUsername) == "" || cfg.AdminPassword == "" {
		return ErrAdminCredentialsMissing
	}

	rt, err := o.newRuntime(ctx, settings, factory, cfg)
	if err != nil {
		return setupError("assemble bootstrap runtime", err)
	}
	defer rt.close()

	if err := rt.createAdministrator(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		return setupError("create administrator", err)
	}
	if err := rt.storeIdentity(ctx, cfg.InstanceName, cfg.DefaultLanguage); err != nil {
		return setupError("store instance identity", err)
	}
	return rt.runner.RunMaintenancePass(ctx)
}

// runtime is the composition root of one Provision call.
type runtime struct {
	logger  logrus.FieldLogger
	fs      fsys.FileSystem
	paths   paths.Provider
	hasher  hashing.Hasher
	store   Store
	tracker *state.Tracker
	updates *updates.Manager
	runner  *maintenance.Runner
}

func (o *Orchestrator) newRuntime(ctx context.Context, settings database.Connection, factory migrate.MigratorFactory, cfg Configuration) (*runtime, error) {
	logger := o.deps.Logger.WithField("phase", "bootstrap")
	store, err := o.deps.OpenStore(ctx, settings)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	tracker := state.NewTracker(o.deps.FS, o.deps.Paths, o.deps.Version, logger)
	registered := o.deps.Updates(updates.Deps{
		Store:           store,
		FS:              o.deps.FS,
		Paths:           o.deps.Paths,
		DefaultLanguage: cfg.DefaultLanguage,
	})
	manager, err := updates.NewManager(
		updates.NewJournal(o.deps.FS, o.deps.Paths),
		registered,
		updates.WithLogger(logger),
		updates.WithObserver(o.deps.Metrics),
	)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	runner, err := maintenance.NewRunner(maintenance.Config{
		Provider:  settings.Provider,
		Tracker:   tracker,
		Migrators: factory,
		Updates:   manager,
		Logger:    logger,
		Observer:  o.deps.Metrics,
		Tracer:    o.deps.Tracer,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &runtime{
		logger:  logger,
		fs:      o.deps.FS,
		paths:   o.deps.Paths,
		hasher:  o.deps.Hashing.Default(),
		store:   store,
		tracker: tracker,
		updates: manager,
		runner:  runner,
	}, nil
}

func (rt *runtime) close() {
	if err := rt.store.Close(); err != nil {
		rt.logger.WithError(err).Warn("close bootstrap store")
	}
}

// createAdministrator is skipped when the account already exists so a
// failed setup can be retried.
func (rt *runtime) createAdministrator(ctx context.Context, username, password string) error {
	normalized := user.NormalizeUsername(username)
	if _, err := rt.store.GetUserByUsername(ctx, normalized); err == nil {
		rt.logger.WithField("username", normalized).Info("administrator already exists")
		return nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	admin, err := user.CreateUser(user.CreateUserInput{
		Username: username,
		Password: password,
		IsAdmin:  true,
	}, rt.hasher, nil, nil)
	if err != nil {
		return err
	}
	if err := rt.store.CreateUser(ctx, admin); err != nil {
		return err
	}
	rt.logger.WithField("username", admin.Username).Info("administrator created")
	return nil
}

func (rt *runtime) storeIdentity(ctx context.Context, name, language string) error {
	if err := validateInstanceName(name); err != nil {
		return apperrors.Wrap(apperrors.CodeConfigInvalid, "invalid instance name", err)
	}
	tag, ok := i18n.ParseTag(language)
	if !ok {
		return apperrors.New(apperrors.CodeConfigInvalid, fmt.Sprintf("unsupported language %q", language))
	}
	if err := rt.store.SetConfiguration(ctx, storage.ConfigInstanceName, strings.TrimSpace(name)); err != nil {
		return err
	}
	return rt.store.SetConfiguration(ctx, storage.ConfigDefaultLanguage, tag.String())
}

func setupError(step string, cause error) error {
	return apperrors.Wrap(apperrors.CodeSetupFailed, step, cause)
}
