package scheduler

import (
	"context"
	"time"

	"github.com/fadedpez/wagerline/internal/logging"
)

// DefaultPruneInterval is how often audit indices are checked for expiry
const DefaultPruneInterval = 24 * time.Hour

// IndexPruner deletes indices older than its retention period
type IndexPruner interface {
	PruneOldIndices(ctx context.Context) ([]string, error)
}

// AuditMaintenance runs housekeeping for the audit index on a scheduler
type AuditMaintenance struct {
	scheduler *Scheduler
	pruner    IndexPruner
	interval  time.Duration
	logger    *logging.Logger
}

// NewAuditMaintenance registers pruning on scheduler. A non-positive
// interval uses DefaultPruneInterval.
func NewAuditMaintenance(scheduler *Scheduler, pruner IndexPruner, interval time.Duration, logger *logging.Logger) *AuditMaintenance {
	if interval <= 0 {
		interval = DefaultPruneInterval
	}
	if logger == nil {
		logger = logging.Discard()
	}
	m := &AuditMaintenance{
		scheduler: scheduler,
		pruner:    pruner,
		interval:  interval,
		logger:    logger.Component("audit_maintenance"),
	}
	scheduler.AddTask("audit_index_pruning", interval, m.pruneOldIndices)
	return m
}

func (m *AuditMaintenance) pruneOldIndices(ctx context.Context) error {
	deleted, err := m.pruner.PruneOldIndices(ctx)
	if len(deleted) > 0 {
		m.logger.Info("pruned audit indices", "count", len(deleted))
	}
	return err
}
