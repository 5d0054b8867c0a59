package medication

import (
	"fmt"
	"time"
)

const (
	// DateLayout is the normalized calendar-date form stored on occurrences.
	DateLayout = "2006-01-02"
	// ClockLayout is the time-of-day form stored on occurrences.
	ClockLayout = "15:04"
)

// DoseStatus is the completion state of one occurrence.
type DoseStatus string

const (
	StatusPending DoseStatus = "pending"
	StatusTaken   DoseStatus = "taken"
	StatusSkipped DoseStatus = "skipped"
)

// ValidStatus reports whether s is one of the three known states.
func ValidStatus(s DoseStatus) bool {
	return s == StatusPending || s == StatusTaken || s == StatusSkipped
}

// Occurrence is one concrete, dated, timed dose instance within the
// materialization horizon.
type Occurrence struct {
	Date   string     `json:"date"` // "2006-01-02"
	Time   string     `json:"time"` // "15:04"
	Status DoseStatus `json:"status"`
}

// At returns the wall-clock moment of the occurrence in loc.
func (o Occurrence) At(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout+" "+ClockLayout, o.Date+" "+o.Time, loc)
}

// TimeOfDay is an hour:minute pair with no date attached.
type TimeOfDay struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour < 24 && t.Minute >= 0 && t.Minute < 60
}

// MinuteOfDay orders times within a day.
func (t TimeOfDay) MinuteOfDay() int {
	return t.Hour*60 + t.Minute
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parsed, err := time.Parse(ClockLayout, s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: parsed.Hour(), Minute: parsed.Minute()}, nil
}

// Medication is the stored record: descriptive fields, the active
// recurrence rule, the materialized occurrences, and the platform alert
// handles currently scheduled for it.
type Medication struct {
	ID string `json:"id"`

	// Descriptive fields, free text. The lookup service fills most of
	// them when the user scans a package code.
	Name             string `json:"name"`
	Dose             string `json:"dose,omitempty"`
	Form             string `json:"form,omitempty"`
	Route            string `json:"route,omitempty"`
	Lab              string `json:"lab,omitempty"`
	ActiveIngredient string `json:"active_ingredient,omitempty"`
	LeafletURL       string `json:"leaflet_url,omitempty"`
	PhotoURL         string `json:"photo_url,omitempty"`
	Notes            string `json:"notes,omitempty"`

	// Rule is the active recurrence rule; zero-valued until the user picks
	// a frequency.
	Rule Rule `json:"rule"`
	// FrequencyLabel is the human-readable description shown in lists.
	FrequencyLabel string `json:"frequency_label,omitempty"`

	// Occurrences covers a rolling horizon anchored at the last
	// materialization; re-materialization replaces the whole slice.
	Occurrences []Occurrence `json:"occurrences,omitempty"`

	// AlertHandles identifies the platform alerts currently scheduled for
	// this medication. Empty exactly when nothing is scheduled.
	AlertHandles []string `json:"alert_handles,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasRule reports whether a recurrence has been chosen yet.
func (m *Medication) HasRule() bool {
	return m.Rule.Kind != KindNone
}

// NeedsReschedule detects the aborted-reconciliation state: occurrences
// were persisted but no alert handles made it back. Re-saving the
// frequency (or Repair) heals it; nothing heals it automatically.
func (m *Medication) NeedsReschedule() bool {
	return len(m.Occurrences) > 0 && len(m.AlertHandles) == 0
}
