// Package updates runs versioned one-time maintenance steps exactly once per
// instance, in ascending version order.
package updates

import (
	"context"
	"fmt"
	"sort"

	"github.com/juju/version/v2"
	"github.com/sirupsen/logrus"

	"github.com/louisbranch/homebook/internal/platform/logging"
)

// Update is one versioned maintenance step. Run must tolerate being
// executed again after a crash that happened before the journal write.
type Update struct {
	Version     version.Number
	Description string
	Run         func(ctx context.Context) error
}

// Observer records applied updates.
type Observer interface {
	ObserveUpdateApplied(version string)
}

// Manager computes and executes pending updates.
type Manager struct {
	journal  *Journal
	updates  []Update
	logger   logrus.FieldLogger
	observer Observer
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the update logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithObserver records every applied update.
func WithObserver(observer Observer) Option {
	return func(m *Manager) {
		m.observer = observer
	}
}

// NewManager registers updates. Duplicate versions and updates without an
// action are rejected.
func NewManager(journal *Journal, registered []Update, opts ...Option) (*Manager, error) {
	if journal == nil {
		return nil, fmt.Errorf("update journal is required")
	}
	seen := make(map[version.Number]bool, len(registered))
	updates := make([]Update, 0, len(registered))
	for _, update := range registered {
		if update.Run == nil {
			return nil, fmt.Errorf("update %s has no action", update.Version)
		}
		if seen[update.Version] {
			return nil, fmt.Errorf("update %s is registered twice", update.Version)
		}
		seen[update.Version] = true
		updates = append(updates, update)
	}
	sortUpdates(updates)

	m := &Manager{journal: journal, updates: updates}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.OrDiscard(m.logger)
	return m, nil
}

// GetPendingUpdates returns the registered updates missing from the
// journal, in ascending version order.
func (m *Manager) GetPendingUpdates(ctx context.Context) ([]Update, error) {
	applied, err := m.journal.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load update journal: %w", err)
	}
	done := make(map[version.Number]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	pending := make([]Update, 0, len(m.updates))
	for _, update := range m.updates {
		if !done[update.Version] {
			pending = append(pending, update)
		}
	}
	return pending, nil
}

// ExecuteAvailableUpdates runs pending updates one at a time. Each version
// is journaled as soon as its action succeeds; the first failure stops the
// pass. It returns the versions applied by this call.
func (m *Manager) ExecuteAvailableUpdates(ctx context.Context) ([]version.Number, error) {
	pending, err := m.GetPendingUpdates(ctx)
	if err != nil {
		return nil, err
	}

	var applied []version.Number
	for _, update := range pending {
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		logger := m.logger.WithField("version", update.Version.String())
		logger.WithField("description", update.Description).Info("applying update")

		if err := update.Run(ctx); err != nil {
			logger.WithError(err).Error("update failed")
			return applied, fmt.Errorf("update %s: %w", update.Version, err)
		}
		if err := m.journal.Append(ctx, update.Version); err != nil {
			return applied, fmt.Errorf("record update %s: %w", update.Version, err)
		}
		applied = append(applied, update.Version)
		if m.observer != nil {
			m.observer.ObserveUpdateApplied(update.Version.String())
		}
	}
	return applied, nil
}

func sortUpdates(updates []Update) {
	sort.SliceStable(updates, func(i, k int) bool {
		return updates[i].Version.Compare(updates[k].Version) < 0
	})
}
