// Package schedule turns recurrence rules into dated dose occurrences.
package schedule

import (
	"fmt"
	"sort"
	"time"

	apperrors "github.com/avelar-dev/medikit/internal/errors"
	"github.com/avelar-dev/medikit/internal/medication"
)

// Horizon lengths in days. Daily rules get a full month so the today
// view stays populated between edits; interval and weekday rules use a
// shorter window because they re-materialize on every save anyway.
const (
	HorizonDaily = 30
	HorizonShort = 14
)

// HorizonFor returns the materialization window for a rule kind.
func HorizonFor(kind medication.RuleKind) int {
	switch kind {
	case medication.KindOnceDaily, medication.KindNTimesDaily:
		return HorizonDaily
	case medication.KindInterval, medication.KindWeekdaySet, medication.KindCyclic:
		return HorizonShort
	default:
		return 0
	}
}

// Materialize expands a rule into the ordered occurrence sequence for
// the window [anchor, anchor+horizonDays). The result is sorted by
// (date, time) with the rule's own ordering breaking ties. Ad hoc
// rules produce no occurrences.
func Materialize(rule medication.Rule, anchor time.Time, horizonDays int) ([]medication.Occurrence, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if horizonDays < 0 {
		return nil, apperrors.Wrap(fmt.Errorf("horizon %d", horizonDays), apperrors.ErrValidation, "horizon must be non-negative")
	}
	if horizonDays == 0 {
		return []medication.Occurrence{}, nil
	}

	day0 := time.Date(anchor.Year(), anchor.Month(), anchor.Day(), 0, 0, 0, 0, anchor.Location())

	var out []medication.Occurrence
	switch rule.Kind {
	case medication.KindOnceDaily, medication.KindNTimesDaily:
		out = materializeDaily(rule.SortedTimes(), day0, horizonDays)
	case medication.KindInterval:
		if rule.Unit == medication.UnitDays {
			out = materializeEveryDays(rule.Start, rule.Every, day0, horizonDays)
		} else {
			out = materializeEveryHours(rule.Start, rule.Every, day0, horizonDays)
		}
	case medication.KindWeekdaySet:
		out = materializeWeekdays(rule.Weekdays, rule.Start, day0, horizonDays)
	case medication.KindCyclic:
		start, err := time.ParseInLocation(medication.DateLayout, rule.StartDate, anchor.Location())
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrValidation, "invalid cycle start date")
		}
		out = materializeCycle(rule.Start, rule.OnDays, start)
	case medication.KindAdHoc, medication.KindNone:
		out = []medication.Occurrence{}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	return out, nil
}

// MaterializeDefault applies the per-kind horizon from HorizonFor.
func MaterializeDefault(rule medication.Rule, anchor time.Time) ([]medication.Occurrence, error) {
	return Materialize(rule, anchor, HorizonFor(rule.Kind))
}

func occurrence(day time.Time, at medication.TimeOfDay) medication.Occurrence {
	return medication.Occurrence{
		Date:   day.Format(medication.DateLayout),
		Time:   at.String(),
		Status: medication.StatusPending,
	}
}

func materializeDaily(times []medication.TimeOfDay, day0 time.Time, horizon int) []medication.Occurrence {
	out := make([]medication.Occurrence, 0, horizon*len(times))
	for d := 0; d < horizon; d++ {
		day := day0.AddDate(0, 0, d)
		for _, at := range times {
			out = append(out, occurrence(day, at))
		}
	}
	return out
}

func materializeEveryDays(at medication.TimeOfDay, every int, day0 time.Time, horizon int) []medication.Occurrence {
	out := make([]medication.Occurrence, 0, horizon/every+1)
	for d := 0; d < horizon; d += every {
		out = append(out, occurrence(day0.AddDate(0, 0, d), at))
	}
	return out
}

func materializeEveryHours(from medication.TimeOfDay, every int, day0 time.Time, horizon int) []medication.Occurrence {
	perDay := 24 / every
	out := make([]medication.Occurrence, 0, horizon*perDay)
	for d := 0; d < horizon; d++ {
		day := day0.AddDate(0, 0, d)
		for i := 0; i < perDay; i++ {
			// Wrapped hours stay on the same calendar date.
			at := medication.TimeOfDay{Hour: (from.Hour + i*every) % 24, Minute: from.Minute}
			out = append(out, occurrence(day, at))
		}
	}
	return out
}

func materializeWeekdays(days []time.Weekday, at medication.TimeOfDay, day0 time.Time, horizon int) []medication.Occurrence {
	wanted := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		wanted[d] = true
	}
	out := make([]medication.Occurrence, 0, horizon)
	for d := 0; d < horizon; d++ {
		day := day0.AddDate(0, 0, d)
		if wanted[day.Weekday()] {
			out = append(out, occurrence(day, at))
		}
	}
	return out
}

// materializeCycle emits only the first on-phase of the cycle. The
// off phase produces nothing; re-saving the rule after the pause
// materializes the next on-phase from its new start date.
func materializeCycle(at medication.TimeOfDay, onDays int, start time.Time) []medication.Occurrence {
	out := make([]medication.Occurrence, 0, onDays)
	for d := 0; d < onDays; d++ {
		out = append(out, occurrence(start.AddDate(0, 0, d), at))
	}
	return out
}
