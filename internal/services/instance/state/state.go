// Package state tracks instance lifecycle markers on disk.
package state

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/juju/version/v2"
	"github.com/sirupsen/logrus"

	"github.com/louisbranch/homebook/internal/platform/fsys"
	"github.com/louisbranch/homebook/internal/platform/logging"
	"github.com/louisbranch/homebook/internal/platform/paths"
)

// Marker file names.
const (
	SetupMarker       = ".setup"
	ProvisionedMarker = ".homebook"
	InstanceMarker    = "instance.txt"
)

// State is the lifecycle position of an instance.
type State string

const (
	Unconfigured State = "unconfigured"
	Provisioning State = "provisioning"
	Running      State = "running"
)

// Tracker reads and writes the lifecycle markers of one instance.
type Tracker struct {
	fs      fsys.FileSystem
	paths   paths.Provider
	version string
	logger  logrus.FieldLogger
}

// NewTracker returns a Tracker stamping markers with runningVersion.
func NewTracker(fs fsys.FileSystem, p paths.Provider, runningVersion string, logger logrus.FieldLogger) *Tracker {
	return &Tracker{
		fs:      fs,
		paths:   p,
		version: strings.TrimSpace(runningVersion),
		logger:  logging.OrDiscard(logger),
	}
}

// RunningVersion returns the version this process stamps.
func (t *Tracker) RunningVersion() string {
	return t.version
}

// CreateRequiredDirectories creates any missing operational directory.
// Existing directories are left untouched.
func (t *Tracker) CreateRequiredDirectories(ctx context.Context) error {
	for _, dir := range t.paths.RequiredDirectories() {
		exists, err := t.fs.DirectoryExists(ctx, dir)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := t.fs.CreateDirectory(ctx, dir); err != nil {
			return err
		}
		t.logger.WithField("path", dir).Info("created directory")
	}
	return nil
}

// IsSetupCreated reports whether setup has started on this instance.
func (t *Tracker) IsSetupCreated(ctx context.Context) (bool, error) {
	return t.fs.Exists(ctx, t.setupPath())
}

// IsProvisioned reports whether setup and a first maintenance pass completed.
func (t *Tracker) IsProvisioned(ctx context.Context) (bool, error) {
	return t.fs.Exists(ctx, t.provisionedPath())
}

// MarkSetupCreated writes the setup marker and, when absent, the instance
// marker stamped with the running version.
func (t *Tracker) MarkSetupCreated(ctx context.Context) error {
	if err := t.fs.WriteAllText(ctx, t.setupPath(), ""); err != nil {
		return fmt.Errorf("write setup marker: %w", err)
	}
	exists, err := t.fs.Exists(ctx, t.instancePath())
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := t.fs.WriteAllText(ctx, t.instancePath(), t.version); err != nil {
		return fmt.Errorf("write instance marker: %w", err)
	}
	return nil
}

// MarkProvisioned stamps the provisioned marker with the running version,
// replacing any previous stamp.
func (t *Tracker) MarkProvisioned(ctx context.Context) error {
	if err := t.fs.WriteAllText(ctx, t.provisionedPath(), t.version); err != nil {
		return fmt.Errorf("write provisioned marker: %w", err)
	}
	return nil
}

// ProvisionedVersion returns the stamped version, or "" when not provisioned.
func (t *Tracker) ProvisionedVersion(ctx context.Context) (string, error) {
	exists, err := t.IsProvisioned(ctx)
	if err != nil || !exists {
		return "", err
	}
	text, err := t.fs.ReadAllText(ctx, t.provisionedPath())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// InstanceVersion returns the version recorded when setup first wrote to
// this instance, or "".
func (t *Tracker) InstanceVersion(ctx context.Context) (string, error) {
	exists, err := t.fs.Exists(ctx, t.instancePath())
	if err != nil || !exists {
		return "", err
	}
	text, err := t.fs.ReadAllText(ctx, t.instancePath())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// IsUpdateRequired reports whether the running version is newer than the
// provisioned stamp. A missing marker or an unparseable version is not an
// update.
func (t *Tracker) IsUpdateRequired(ctx context.Context) (bool, error) {
	stamped, err := t.ProvisionedVersion(ctx)
	if err != nil {
		return false, err
	}
	if stamped == "" {
		return false, nil
	}
	running, err := version.Parse(t.version)
	if err != nil {
		t.logger.WithField("version", t.version).Warn("running version is not a semantic version")
		return false, nil
	}
	provisioned, err := version.Parse(stamped)
	if err != nil {
		t.logger.WithField("version", stamped).Warn("provisioned version is not a semantic version")
		return false, nil
	}
	return running.Compare(provisioned) > 0, nil
}

// State derives the lifecycle state from the markers.
func (t *Tracker) State(ctx context.Context) (State, error) {
	provisioned, err := t.IsProvisioned(ctx)
	if err != nil {
		return "", err
	}
	if provisioned {
		return Running, nil
	}
	created, err := t.IsSetupCreated(ctx)
	if err != nil {
		return "", err
	}
	if created {
		return Provisioning, nil
	}
	return Unconfigured, nil
}

func (t *Tracker) setupPath() string {
	return filepath.Join(t.paths.ConfigDir(), SetupMarker)
}

func (t *Tracker) provisionedPath() string {
	return filepath.Join(t.paths.ConfigDir(), ProvisionedMarker)
}

func (t *Tracker) instancePath() string {
	return filepath.Join(t.paths.DataDir(), InstanceMarker)
}
