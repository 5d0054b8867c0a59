package notify

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/avelar-dev/medikit/internal/medication"
)

// Result is the outcome of scheduling one medication's rule. Handles
// holds every alert that did register; Warnings describes the ones
// that did not. A partial result is still usable.
type Result struct {
	Handles  []string
	Warnings []string
}

// Partial reports whether any alert in the batch failed.
func (r Result) Partial() bool { return len(r.Warnings) > 0 }

// Scheduler maps recurrence rules onto platform alerts. Daily and
// weekday rules become repeating alerts keyed by clock time; interval
// in days and cyclic rules become one-shot alerts per future
// occurrence because the platform cannot repeat every N days.
type Scheduler struct {
	engine Engine
	logger *zap.Logger
	loc    *time.Location
}

func NewScheduler(engine Engine, logger *zap.Logger, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{engine: engine, logger: logger, loc: loc}
}

// Schedule registers every alert the medication's rule calls for and
// returns the handles that succeeded. One failed alert never aborts
// the rest of the batch.
func (s *Scheduler) Schedule(med *medication.Medication, now time.Time) Result {
	alert := Alert{
		MedicationID: med.ID,
		Title:        fmt.Sprintf("Time to take %s", med.Name),
		Body:         strings.TrimSpace(fmt.Sprintf("%s %s", med.Name, med.Dose)),
	}

	var res Result
	record := func(handle string, err error) {
		if err != nil {
			s.logger.Warn("Alert failed to schedule, continuing batch",
				zap.String("medication_id", med.ID),
				zap.Error(err),
			)
			res.Warnings = append(res.Warnings, err.Error())
			return
		}
		res.Handles = append(res.Handles, handle)
	}

	rule := med.Rule
	switch rule.Kind {
	case medication.KindOnceDaily, medication.KindNTimesDaily:
		for _, at := range rule.SortedTimes() {
			record(s.engine.ScheduleDaily(at, alert))
		}
	case medication.KindInterval:
		if rule.Unit == medication.UnitHours {
			for i := 0; i < 24/rule.Every; i++ {
				at := medication.TimeOfDay{Hour: (rule.Start.Hour + i*rule.Every) % 24, Minute: rule.Start.Minute}
				record(s.engine.ScheduleDaily(at, alert))
			}
			break
		}
		s.scheduleOneShots(med, now, alert, record)
	case medication.KindCyclic:
		s.scheduleOneShots(med, now, alert, record)
	case medication.KindWeekdaySet:
		for _, day := range rule.Weekdays {
			record(s.engine.ScheduleWeekly(day, rule.Start, alert))
		}
	case medication.KindAdHoc, medication.KindNone:
		// No reminders.
	}
	return res
}

// scheduleOneShots registers a date-specific alert per future
// occurrence. Occurrences already in the past are skipped, not
// treated as failures.
func (s *Scheduler) scheduleOneShots(med *medication.Medication, now time.Time, alert Alert, record func(string, error)) {
	for _, occ := range med.Occurrences {
		when, err := occ.At(s.loc)
		if err != nil {
			record("", err)
			continue
		}
		if !when.After(now) {
			continue
		}
		record(s.engine.ScheduleAt(when, alert))
	}
}

// CancelAll cancels every handle best-effort and returns the handles
// that could not be cancelled. Stale platform alerts are harmless;
// they carry no dose-mutation capability.
func (s *Scheduler) CancelAll(medID string, handles []string) []string {
	var stale []string
	for _, h := range handles {
		if err := s.engine.Cancel(h); err != nil {
			s.logger.Warn("Alert cancellation failed, ignoring",
				zap.String("medication_id", medID),
				zap.String("handle", h),
				zap.Error(err),
			)
			stale = append(stale, h)
		}
	}
	return stale
}
