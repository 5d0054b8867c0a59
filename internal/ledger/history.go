package ledger

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	apperrors "github.com/avelar-dev/medikit/internal/errors"
	"github.com/avelar-dev/medikit/internal/medication"
)

// DoseEvent is one recorded status change, kept in SQLite so
// adherence statistics survive occurrence re-materialization.
type DoseEvent struct {
	ID             string    `json:"id" gorm:"primaryKey"`
	MedicationID   string    `json:"medication_id" gorm:"index"`
	MedicationName string    `json:"medication_name"`
	Date           string    `json:"date" gorm:"index"`
	Time           string    `json:"time"`
	Status         string    `json:"status"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// AdherenceStats summarizes recorded dose outcomes over a date range.
type AdherenceStats struct {
	Taken   int64   `json:"taken"`
	Skipped int64   `json:"skipped"`
	Pending int64   `json:"pending"`
	Rate    float64 `json:"rate"` // taken / (taken + skipped)
}

// History persists dose events.
type History struct {
	db *gorm.DB
}

func NewHistory(db *gorm.DB) (*History, error) {
	if err := db.AutoMigrate(&DoseEvent{}); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStorage, "failed to migrate dose history")
	}
	return &History{db: db}, nil
}

// Record appends one event for a status change.
func (h *History) Record(med *medication.Medication, index int, occ medication.Occurrence) error {
	event := DoseEvent{
		ID:             uuid.NewString(),
		MedicationID:   med.ID,
		MedicationName: med.Name,
		Date:           occ.Date,
		Time:           occ.Time,
		Status:         string(occ.Status),
		RecordedAt:     time.Now(),
	}
	if err := h.db.Create(&event).Error; err != nil {
		return apperrors.Wrap(err, apperrors.ErrStorage, "failed to record dose event")
	}
	return nil
}

// Events returns the recorded events for one medication, newest
// first, capped at limit.
func (h *History) Events(medID string, limit int) ([]DoseEvent, error) {
	var events []DoseEvent
	q := h.db.Where("medication_id = ?", medID).Order("recorded_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&events).Error; err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStorage, "failed to load dose events")
	}
	return events, nil
}

// Stats aggregates the latest recorded outcome per dose slot within
// [from, to] inclusive. A slot toggled several times counts once,
// with its final status.
func (h *History) Stats(from, to string) (AdherenceStats, error) {
	var events []DoseEvent
	err := h.db.
		Where("date >= ? AND date <= ?", from, to).
		Order("recorded_at ASC").
		Find(&events).Error
	if err != nil {
		return AdherenceStats{}, apperrors.Wrap(err, apperrors.ErrStorage, "failed to load dose events")
	}

	final := make(map[string]string, len(events))
	for _, e := range events {
		final[e.MedicationID+"|"+e.Date+"|"+e.Time] = e.Status
	}

	var stats AdherenceStats
	for _, status := range final {
		switch medication.DoseStatus(status) {
		case medication.StatusTaken:
			stats.Taken++
		case medication.StatusSkipped:
			stats.Skipped++
		case medication.StatusPending:
			stats.Pending++
		}
	}
	if decided := stats.Taken + stats.Skipped; decided > 0 {
		stats.Rate = float64(stats.Taken) / float64(decided)
	}
	return stats, nil
}
