package medication

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/avelar-dev/medikit/internal/errors"
)

// RuleKind discriminates the recurrence union. Exactly one parameter set
// applies per kind; the constructors below are the only intended way to
// build a Rule.
type RuleKind string

const (
	KindNone        RuleKind = ""
	KindOnceDaily   RuleKind = "once_daily"
	KindNTimesDaily RuleKind = "n_times_daily"
	KindInterval    RuleKind = "interval"
	KindWeekdaySet  RuleKind = "weekday_set"
	KindCyclic      RuleKind = "cyclic"
	KindAdHoc       RuleKind = "adhoc"
)

// IntervalUnit selects the interval dimension.
type IntervalUnit string

const (
	UnitDays  IntervalUnit = "days"
	UnitHours IntervalUnit = "hours"
)

// Rule is the user-chosen dosing pattern. Field applicability by kind:
//
//	once_daily, n_times_daily: Times
//	interval:                  Unit, Every, Start
//	weekday_set:               Weekdays, Start
//	cyclic:                    OnDays, OffDays, StartDate, Start
//	adhoc:                     nothing
type Rule struct {
	Kind RuleKind `json:"kind"`

	Times []TimeOfDay `json:"times,omitempty"`

	Unit  IntervalUnit `json:"unit,omitempty"`
	Every int          `json:"every,omitempty"`
	Start TimeOfDay    `json:"start,omitempty"`

	Weekdays []time.Weekday `json:"weekdays,omitempty"`

	OnDays    int    `json:"on_days,omitempty"`
	OffDays   int    `json:"off_days,omitempty"`
	StartDate string `json:"start_date,omitempty"` // "2006-01-02"
}

// OnceDaily is one fixed dose per day.
func OnceDaily(at TimeOfDay) Rule {
	return Rule{Kind: KindOnceDaily, Times: []TimeOfDay{at}}
}

// NTimesDaily is the same set of clock times every day.
func NTimesDaily(times ...TimeOfDay) Rule {
	return Rule{Kind: KindNTimesDaily, Times: times}
}

// EveryDays is one dose at a fixed time every n days.
func EveryDays(n int, at TimeOfDay) Rule {
	return Rule{Kind: KindInterval, Unit: UnitDays, Every: n, Start: at}
}

// EveryHours is a dose every n hours starting at from, wrapping within the
// same calendar day.
func EveryHours(n int, from TimeOfDay) Rule {
	return Rule{Kind: KindInterval, Unit: UnitHours, Every: n, Start: from}
}

// OnWeekdays is one dose at a fixed time on each selected weekday.
func OnWeekdays(days []time.Weekday, at TimeOfDay) Rule {
	return Rule{Kind: KindWeekdaySet, Weekdays: days, Start: at}
}

// Cyclic is onDays daily doses from startDate followed by offDays of pause.
func Cyclic(onDays, offDays int, startDate string, at TimeOfDay) Rule {
	return Rule{Kind: KindCyclic, OnDays: onDays, OffDays: offDays, StartDate: startDate, Start: at}
}

// AdHoc is "when needed": no occurrences, no reminders.
func AdHoc() Rule {
	return Rule{Kind: KindAdHoc}
}

// Validate rejects malformed parameters before anything is persisted or
// scheduled.
func (r Rule) Validate() error {
	switch r.Kind {
	case KindOnceDaily:
		if len(r.Times) != 1 {
			return errors.Wrap(nil, errors.ErrValidation, "once daily requires exactly one time of day")
		}
		if !r.Times[0].Valid() {
			return errors.Wrap(nil, errors.ErrValidation, fmt.Sprintf("invalid time of day %v", r.Times[0]))
		}
	case KindNTimesDaily:
		if len(r.Times) == 0 {
			return errors.Wrap(nil, errors.ErrValidation, "at least one time of day is required")
		}
		for _, t := range r.Times {
			if !t.Valid() {
				return errors.Wrap(nil, errors.ErrValidation, fmt.Sprintf("invalid time of day %v", t))
			}
		}
	case KindInterval:
		if r.Unit != UnitDays && r.Unit != UnitHours {
			return errors.Wrap(nil, errors.ErrValidation, fmt.Sprintf("unknown interval unit %q", r.Unit))
		}
		if r.Every <= 0 {
			return errors.Wrap(nil, errors.ErrValidation, "interval magnitude must be positive")
		}
		if r.Unit == UnitHours && r.Every > 24 {
			return errors.Wrap(nil, errors.ErrValidation, "hourly interval cannot exceed 24")
		}
		if !r.Start.Valid() {
			return errors.Wrap(nil, errors.ErrValidation, "invalid start time")
		}
	case KindWeekdaySet:
		for _, d := range r.Weekdays {
			if d < time.Sunday || d > time.Saturday {
				return errors.Wrap(nil, errors.ErrValidation, fmt.Sprintf("invalid weekday %d", d))
			}
		}
		if !r.Start.Valid() {
			return errors.Wrap(nil, errors.ErrValidation, "invalid start time")
		}
	case KindCyclic:
		if r.OnDays <= 0 {
			return errors.Wrap(nil, errors.ErrValidation, "cycle on-days must be positive")
		}
		if r.OffDays < 0 {
			return errors.Wrap(nil, errors.ErrValidation, "cycle off-days cannot be negative")
		}
		if _, err := time.Parse(DateLayout, r.StartDate); err != nil {
			return errors.Wrap(err, errors.ErrValidation, fmt.Sprintf("invalid cycle start date %q", r.StartDate))
		}
		if !r.Start.Valid() {
			return errors.Wrap(nil, errors.ErrValidation, "invalid start time")
		}
	case KindAdHoc:
		// nothing to check
	default:
		return errors.Wrap(nil, errors.ErrValidation, fmt.Sprintf("unknown recurrence kind %q", r.Kind))
	}
	return nil
}

// SortedTimes returns the daily times in clock order without mutating the
// rule. Duplicate times are preserved.
func (r Rule) SortedTimes() []TimeOfDay {
	out := make([]TimeOfDay, len(r.Times))
	copy(out, r.Times)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MinuteOfDay() < out[j].MinuteOfDay()
	})
	return out
}

// Describe renders the rule the way medication lists show it.
func (r Rule) Describe() string {
	switch r.Kind {
	case KindOnceDaily:
		return fmt.Sprintf("Once a day at %s", r.Times[0])
	case KindNTimesDaily:
		parts := make([]string, len(r.Times))
		for i, t := range r.Times {
			parts[i] = t.String()
		}
		return fmt.Sprintf("%d times a day at %s", len(r.Times), strings.Join(parts, ", "))
	case KindInterval:
		if r.Unit == UnitDays {
			return fmt.Sprintf("Every %d day(s) at %s", r.Every, r.Start)
		}
		return fmt.Sprintf("Every %d hour(s) starting at %s", r.Every, r.Start)
	case KindWeekdaySet:
		parts := make([]string, len(r.Weekdays))
		for i, d := range r.Weekdays {
			parts[i] = d.String()
		}
		return fmt.Sprintf("On %s at %s", strings.Join(parts, ", "), r.Start)
	case KindCyclic:
		return fmt.Sprintf("Cycle: %d days on, %d days off, starting %s at %s", r.OnDays, r.OffDays, r.StartDate, r.Start)
	case KindAdHoc:
		return "When needed (no reminder)"
	}
	return ""
}
