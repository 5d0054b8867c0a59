// Package reconcile keeps a medication's persisted occurrences and
// platform alerts in sync with its recurrence rule.
package reconcile

import (
	"time"

	"go.uber.org/zap"

	"github.com/avelar-dev/medikit/internal/medication"
	"github.com/avelar-dev/medikit/internal/metrics"
	"github.com/avelar-dev/medikit/internal/notify"
	"github.com/avelar-dev/medikit/internal/schedule"
)

// Outcome reports a completed reconciliation. Warnings carries the
// alerts that failed to register; the run still counts as successful
// because the persisted state is consistent.
type Outcome struct {
	Medication *medication.Medication
	Warnings   []string
}

// Reconciler applies rule changes with cancel-before-reschedule
// ordering so a crash mid-run never leaves handles pointing at alerts
// for a rule that no longer exists.
type Reconciler struct {
	repo      *medication.Repository
	scheduler *notify.Scheduler
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func New(repo *medication.Repository, scheduler *notify.Scheduler, logger *zap.Logger, m *metrics.Metrics) *Reconciler {
	return &Reconciler{
		repo:      repo,
		scheduler: scheduler,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// WithClock overrides the reconciler's notion of now.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// Apply replaces the medication's rule, occurrences and alerts:
//
//  1. load the current record
//  2. cancel every stored handle, best-effort
//  3. persist empty handles so a crash leaves none stale
//  4. materialize and persist the new occurrences and rule
//  5. reload the committed record
//  6. schedule alerts from the reloaded record, fail-soft
//  7. persist the surviving handles
//
// An invalid rule fails before any side effect. If the process dies
// between steps 3 and 7 the record has occurrences but no handles,
// which ListNeedingReschedule and Repair detect.
func (r *Reconciler) Apply(id string, rule medication.Rule) (*Outcome, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	start := r.now()
	r.metrics.ReconcileRuns.Inc()
	defer func() {
		r.metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
	}()

	unlock := r.repo.Lock(id)
	defer unlock()

	med, err := r.repo.Get(id)
	if err != nil {
		r.metrics.ReconcileFailures.Inc()
		return nil, err
	}

	r.scheduler.CancelAll(med.ID, med.AlertHandles)

	if _, err := r.repo.Update(id, func(m *medication.Medication) error {
		m.AlertHandles = nil
		return nil
	}); err != nil {
		r.metrics.ReconcileFailures.Inc()
		return nil, err
	}

	occs, err := schedule.Materialize(rule, start, schedule.HorizonFor(rule.Kind))
	if err != nil {
		r.metrics.ReconcileFailures.Inc()
		return nil, err
	}
	if _, err := r.repo.Update(id, func(m *medication.Medication) error {
		m.Rule = rule
		m.FrequencyLabel = rule.Describe()
		m.Occurrences = occs
		return nil
	}); err != nil {
		r.metrics.ReconcileFailures.Inc()
		return nil, err
	}

	// Reload so scheduling reads committed data, not a stale copy.
	med, err = r.repo.Get(id)
	if err != nil {
		r.metrics.ReconcileFailures.Inc()
		return nil, err
	}

	res := r.scheduler.Schedule(med, start)

	med, err = r.repo.Update(id, func(m *medication.Medication) error {
		m.AlertHandles = res.Handles
		return nil
	})
	if err != nil {
		r.metrics.ReconcileFailures.Inc()
		return nil, err
	}

	if res.Partial() {
		r.logger.Warn("Reconciliation completed with partial alert batch",
			zap.String("medication_id", id),
			zap.Int("scheduled", len(res.Handles)),
			zap.Int("failed", len(res.Warnings)),
		)
	} else {
		r.logger.Info("Regimen reconciled",
			zap.String("medication_id", id),
			zap.String("rule", rule.Describe()),
			zap.Int("occurrences", len(med.Occurrences)),
			zap.Int("alerts", len(med.AlertHandles)),
		)
	}
	return &Outcome{Medication: med, Warnings: res.Warnings}, nil
}

// Delete cancels the medication's alerts and then removes it. Handle
// cancellation always runs first so deletion never strands a live
// platform alert behind a missing record.
func (r *Reconciler) Delete(id string) error {
	unlock := r.repo.Lock(id)
	defer unlock()

	med, err := r.repo.Get(id)
	if err != nil {
		return err
	}
	r.scheduler.CancelAll(med.ID, med.AlertHandles)
	return r.repo.Delete(id)
}

// ListNeedingReschedule reports medications whose occurrences exist
// but whose alert handles were lost, the state an aborted Apply or a
// reinstall leaves behind.
func (r *Reconciler) ListNeedingReschedule() ([]medication.Medication, error) {
	list, err := r.repo.List()
	if err != nil {
		return nil, err
	}
	var out []medication.Medication
	for _, m := range list {
		if m.NeedsReschedule() {
			out = append(out, m)
		}
	}
	return out, nil
}

// Repair re-runs scheduling for a medication stuck without handles.
// The stored rule and occurrences are kept as-is; only steps 5 to 7
// of Apply run. Records that do not need repair pass through
// unchanged.
func (r *Reconciler) Repair(id string) (*Outcome, error) {
	unlock := r.repo.Lock(id)
	defer unlock()

	med, err := r.repo.Get(id)
	if err != nil {
		return nil, err
	}
	if !med.NeedsReschedule() {
		return &Outcome{Medication: med}, nil
	}

	res := r.scheduler.Schedule(med, r.now())
	med, err = r.repo.Update(id, func(m *medication.Medication) error {
		m.AlertHandles = res.Handles
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("Medication alerts repaired",
		zap.String("medication_id", id),
		zap.Int("alerts", len(res.Handles)),
	)
	return &Outcome{Medication: med, Warnings: res.Warnings}, nil
}

// ClearStaleHandles drops every stored handle. Run at process start,
// before anything is scheduled: handles written by a previous process
// do not refer to live alerts in this one, and keeping them would
// mask the needs-reschedule state.
func (r *Reconciler) ClearStaleHandles() error {
	list, err := r.repo.List()
	if err != nil {
		return err
	}
	for _, med := range list {
		if len(med.AlertHandles) == 0 {
			continue
		}
		if _, err := r.repo.Update(med.ID, func(m *medication.Medication) error {
			m.AlertHandles = nil
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// RepairAll repairs every medication flagged by ListNeedingReschedule
// and returns how many were touched. Used at startup, where stored
// handles never survive a process restart.
func (r *Reconciler) RepairAll() (int, error) {
	list, err := r.ListNeedingReschedule()
	if err != nil {
		return 0, err
	}
	for _, m := range list {
		if _, err := r.Repair(m.ID); err != nil {
			return 0, err
		}
	}
	return len(list), nil
}
