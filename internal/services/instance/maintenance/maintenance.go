// Package maintenance runs the per-start maintenance pass that repairs
// directories, migrates the schema, applies pending updates and stamps the
// provisioned version.
package maintenance

import (
	"context"
	"fmt"

	"github.com/juju/version/v2"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/homebook/internal/platform/errors"
	"github.com/louisbranch/homebook/internal/platform/logging"
	platformotel "github.com/louisbranch/homebook/internal/platform/otel"
	"github.com/louisbranch/homebook/internal/services/instance/database"
	"github.com/louisbranch/homebook/internal/services/instance/migrate"
)

// Tracker is the part of the state tracker a pass needs.
type Tracker interface {
	CreateRequiredDirectories(ctx context.Context) error
	MarkProvisioned(ctx context.Context) error
}

// Updater applies pending versioned updates.
type Updater interface {
	ExecuteAvailableUpdates(ctx context.Context) ([]version.Number, error)
}

// Observer records pass outcomes.
type Observer interface {
	ObserveMaintenancePass(ok bool)
}

// Backend is the database a pass runs against.
type Backend struct {
	Provider  database.Provider
	Migrators migrate.MigratorFactory
	Updates   Updater
	// Close releases the backend once the pass ends. Optional.
	Close func() error
}

// Opener resolves and connects the backend at the start of a pass. Its
// failures abort the pass like any other step.
type Opener func(ctx context.Context) (Backend, error)

// Config wires a Runner. Open takes precedence over a fixed backend.
type Config struct {
	Provider  database.Provider
	Tracker   Tracker
	Migrators migrate.MigratorFactory
	Updates   Updater
	Open      Opener
	Logger    logrus.FieldLogger
	Observer  Observer
	Tracer    trace.Tracer
}

// Runner executes maintenance passes.
type Runner struct {
	tracker  Tracker
	open     Opener
	logger   logrus.FieldLogger
	observer Observer
	tracer   trace.Tracer
}

// NewRunner validates cfg and returns a Runner.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Tracker == nil {
		return nil, fmt.Errorf("state tracker is required")
	}
	open := cfg.Open
	if open == nil {
		if cfg.Migrators == nil {
			return nil, fmt.Errorf("migrator factory is required")
		}
		if cfg.Updates == nil {
			return nil, fmt.Errorf("update manager is required")
		}
		backend := Backend{Provider: cfg.Provider, Migrators: cfg.Migrators, Updates: cfg.Updates}
		open = func(context.Context) (Backend, error) { return backend, nil }
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = platformotel.Tracer("internal/services/instance/maintenance")
	}
	return &Runner{
		tracker:  cfg.Tracker,
		open:     open,
		logger:   logging.OrDiscard(cfg.Logger),
		observer: cfg.Observer,
		tracer:   tracer,
	}, nil
}

// RunMaintenancePass brings the instance up to date. Any failure is logged
// and returned as a single UPDATE_ABORTED error wrapping the cause.
func (r *Runner) RunMaintenancePass(ctx context.Context) error {
	ctx, span := r.tracer.Start(ctx, "maintenance.pass")
	defer span.End()

	applied, err := r.run(ctx)
	if r.observer != nil {
		r.observer.ObserveMaintenancePass(err == nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update process aborted")
		r.logger.WithError(err).Error("maintenance pass failed")
		return apperrors.Wrap(apperrors.CodeUpdateAborted, "update process aborted", err)
	}

	span.SetAttributes(attribute.Int("updates.applied", len(applied)))
	r.logger.WithField("applied", len(applied)).Info("maintenance pass completed")
	return nil
}

func (r *Runner) run(ctx context.Context) ([]version.Number, error) {
	backend, err := r.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if backend.Close != nil {
		defer func() {
			if err := backend.Close(); err != nil {
				r.logger.WithError(err).Warn("close database")
			}
		}()
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("db.provider", backend.Provider.String()))
	if backend.Provider == "" {
		return nil, apperrors.New(apperrors.CodeProviderNotConfigured, "database provider is not configured")
	}
	if err := r.tracker.CreateRequiredDirectories(ctx); err != nil {
		return nil, fmt.Errorf("create directories: %w", err)
	}
	migrator, err := backend.Migrators.CreateMigrator(backend.Provider)
	if err != nil {
		return nil, err
	}
	if err := migrator.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	applied, err := backend.Updates.ExecuteAvailableUpdates(ctx)
	if err != nil {
		return applied, fmt.Errorf("execute updates: %w", err)
	}
	if err := r.tracker.MarkProvisioned(ctx); err != nil {
		return applied, fmt.Errorf("mark provisioned: %w", err)
	}
	return applied, nil
}
