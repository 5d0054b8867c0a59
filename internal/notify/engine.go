package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	apperrors "github.com/avelar-dev/medikit/internal/errors"
	"github.com/avelar-dev/medikit/internal/medication"
	"github.com/avelar-dev/medikit/internal/metrics"
)

// Engine is the platform alert registry. Handles are opaque strings;
// callers persist them and hand them back for cancellation.
type Engine interface {
	// ScheduleDaily registers a repeating alert fired every day at the
	// given clock time.
	ScheduleDaily(at medication.TimeOfDay, alert Alert) (string, error)
	// ScheduleWeekly registers a repeating alert fired on one weekday.
	ScheduleWeekly(day time.Weekday, at medication.TimeOfDay, alert Alert) (string, error)
	// ScheduleAt registers a one-shot alert for a future instant.
	// Instants in the past are rejected.
	ScheduleAt(when time.Time, alert Alert) (string, error)
	// Cancel removes one alert. Unknown handles are an error so stale
	// state is visible, but callers treat cancellation as best-effort.
	Cancel(handle string) error
	// Handles lists every currently registered handle, sorted.
	Handles() []string
}

const (
	handleRecurring = "cron:"
	handleOneShot   = "at:"
)

// PlatformEngine backs Engine with an in-process cron runner for
// repeating alerts and a timer map for one-shot, date-specific ones.
type PlatformEngine struct {
	cron    *cron.Cron
	sink    Sink
	logger  *zap.Logger
	metrics *metrics.Metrics
	loc     *time.Location

	mu      sync.Mutex
	entries map[string]cron.EntryID
	timers  map[string]*time.Timer
	nextID  int
}

func NewPlatformEngine(sink Sink, logger *zap.Logger, m *metrics.Metrics, loc *time.Location) *PlatformEngine {
	if loc == nil {
		loc = time.Local
	}
	return &PlatformEngine{
		cron:    cron.New(cron.WithLocation(loc)),
		sink:    sink,
		logger:  logger,
		metrics: m,
		loc:     loc,
		entries: make(map[string]cron.EntryID),
		timers:  make(map[string]*time.Timer),
	}
}

// Start begins firing alerts. Scheduling before Start is allowed.
func (e *PlatformEngine) Start() {
	e.cron.Start()
}

// Stop halts the cron runner and stops every pending one-shot timer.
func (e *PlatformEngine) Stop() {
	ctx := e.cron.Stop()
	<-ctx.Done()

	e.mu.Lock()
	defer e.mu.Unlock()
	for handle, timer := range e.timers {
		timer.Stop()
		delete(e.timers, handle)
	}
}

func (e *PlatformEngine) scheduleSpec(spec string, alert Alert) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id, err := e.cron.AddFunc(spec, func() { e.fire(alert) })
	if err != nil {
		e.metrics.AlertsFailed.Inc()
		return "", apperrors.Wrap(err, apperrors.ErrScheduling, "platform rejected alert spec")
	}

	e.nextID++
	handle := fmt.Sprintf("%s%d", handleRecurring, e.nextID)
	e.entries[handle] = id
	e.metrics.AlertsScheduled.Inc()
	e.metrics.ActiveAlerts.Inc()
	e.logger.Debug("Recurring alert registered",
		zap.String("handle", handle),
		zap.String("spec", spec),
		zap.String("medication_id", alert.MedicationID),
	)
	return handle, nil
}

func (e *PlatformEngine) ScheduleDaily(at medication.TimeOfDay, alert Alert) (string, error) {
	if !at.Valid() {
		return "", apperrors.Wrap(fmt.Errorf("time %+v", at), apperrors.ErrScheduling, "invalid alert time")
	}
	return e.scheduleSpec(fmt.Sprintf("%d %d * * *", at.Minute, at.Hour), alert)
}

func (e *PlatformEngine) ScheduleWeekly(day time.Weekday, at medication.TimeOfDay, alert Alert) (string, error) {
	if !at.Valid() {
		return "", apperrors.Wrap(fmt.Errorf("time %+v", at), apperrors.ErrScheduling, "invalid alert time")
	}
	return e.scheduleSpec(fmt.Sprintf("%d %d * * %d", at.Minute, at.Hour, int(day)), alert)
}

func (e *PlatformEngine) ScheduleAt(when time.Time, alert Alert) (string, error) {
	delay := time.Until(when)
	if delay <= 0 {
		e.metrics.AlertsFailed.Inc()
		return "", apperrors.Wrap(fmt.Errorf("instant %s", when.Format(time.RFC3339)), apperrors.ErrScheduling, "alert time is in the past")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	handle := handleOneShot + uuid.NewString()
	e.timers[handle] = time.AfterFunc(delay, func() {
		e.mu.Lock()
		delete(e.timers, handle)
		e.mu.Unlock()
		e.metrics.ActiveAlerts.Dec()
		e.fire(alert)
	})
	e.metrics.AlertsScheduled.Inc()
	e.metrics.ActiveAlerts.Inc()
	e.logger.Debug("One-shot alert registered",
		zap.String("handle", handle),
		zap.Time("at", when),
		zap.String("medication_id", alert.MedicationID),
	)
	return handle, nil
}

func (e *PlatformEngine) Cancel(handle string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case strings.HasPrefix(handle, handleRecurring):
		id, ok := e.entries[handle]
		if !ok {
			return apperrors.Wrap(fmt.Errorf("handle %s", handle), apperrors.ErrCancellation, "unknown alert handle")
		}
		e.cron.Remove(id)
		delete(e.entries, handle)
	case strings.HasPrefix(handle, handleOneShot):
		timer, ok := e.timers[handle]
		if !ok {
			return apperrors.Wrap(fmt.Errorf("handle %s", handle), apperrors.ErrCancellation, "unknown alert handle")
		}
		timer.Stop()
		delete(e.timers, handle)
	default:
		return apperrors.Wrap(fmt.Errorf("handle %s", handle), apperrors.ErrCancellation, "malformed alert handle")
	}

	e.metrics.AlertsCancelled.Inc()
	e.metrics.ActiveAlerts.Dec()
	return nil
}

func (e *PlatformEngine) Handles() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]string, 0, len(e.entries)+len(e.timers))
	for h := range e.entries {
		out = append(out, h)
	}
	for h := range e.timers {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

func (e *PlatformEngine) fire(alert Alert) {
	alert.FiredAt = time.Now().In(e.loc)
	e.metrics.AlertsFired.Inc()
	if err := e.sink.Deliver(context.Background(), alert); err != nil {
		e.logger.Warn("Alert delivery failed",
			zap.String("medication_id", alert.MedicationID),
			zap.Error(err),
		)
	}
}
