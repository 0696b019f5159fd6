package setup

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	apperrors "github.com/louisbranch/homebook/internal/platform/errors"
	"github.com/louisbranch/homebook/internal/platform/logging"
	"github.com/louisbranch/homebook/internal/services/instance/database"
	"github.com/louisbranch/homebook/internal/services/instance/settings"
	"github.com/louisbranch/homebook/internal/services/instance/state"
)

// Provisioner runs Provision.
type Provisioner interface {
	Provision(ctx context.Context, settings database.Connection, cfg Configuration) error
}

// Service is the setup entry point used by the HTTP layer and unattended
// setup. Runs are serialized within the process.
type Service struct {
	mu          sync.Mutex
	tracker     *state.Tracker
	settings    *settings.Store
	provisioner Provisioner
	detector    Detector
	logger      logrus.FieldLogger
}

// NewService returns a Service.
func NewService(tracker *state.Tracker, store *settings.Store, provisioner Provisioner, detector Detector, logger logrus.FieldLogger) *Service {
	return &Service{
		tracker:     tracker,
		settings:    store,
		provisioner: provisioner,
		detector:    detector,
		logger:      logging.OrDiscard(logger),
	}
}

// State returns the lifecycle state of the instance.
func (s *Service) State(ctx context.Context) (state.State, error) {
	return s.tracker.State(ctx)
}

// Detect probes candidate against every network backend.
func (s *Service) Detect(ctx context.Context, candidate database.Candidate) (database.Provider, bool) {
	if s.detector == nil {
		return "", false
	}
	return s.detector.Resolve(ctx, candidate)
}

// Run persists the database settings, marks setup as started and provisions
// the instance. A provisioned instance is rejected with ALREADY_CONFIGURED.
func (s *Service) Run(ctx context.Context, cfg Configuration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	provisioned, err := s.tracker.IsProvisioned(ctx)
	if err != nil {
		return setupError("read instance state", err)
	}
	if provisioned {
		return apperrors.New(apperrors.CodeAlreadyConfigured, "instance is already configured")
	}

	conn := cfg.Connection
	if conn.Provider == database.ProviderSQLite && strings.TrimSpace(conn.File) == "" {
		conn.File = s.settings.DefaultSQLitePath()
	}
	cfg.Connection = conn
	if err := cfg.Validate(); err != nil {
		return err
	}
	if conn.Provider == "" {
		return apperrors.New(apperrors.CodeProviderNotConfigured, "database provider is not configured")
	}

	if err := s.tracker.CreateRequiredDirectories(ctx); err != nil {
		return setupError("create directories", err)
	}
	if err := s.settings.Save(ctx, conn); err != nil {
		if apperrors.HasCode(err, apperrors.CodeConfigInvalid) {
			return err
		}
		return setupError("save database settings", err)
	}
	if err := s.tracker.MarkSetupCreated(ctx); err != nil {
		return setupError("mark setup created", err)
	}
	s.logger.WithField("provider", conn.Provider.String()).Info("setup started")
	return s.provisioner.Provision(ctx, conn, cfg)
}
