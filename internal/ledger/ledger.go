// Package ledger reads and toggles dose occurrences for the daily
// review. It never recomputes dates or times; only status moves.
package ledger

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/avelar-dev/medikit/internal/errors"
	"github.com/avelar-dev/medikit/internal/medication"
	"github.com/avelar-dev/medikit/internal/metrics"
)

// Entry is one dose slot on a given date, with enough medication
// context to render a review row. Index addresses the occurrence
// inside its medication for status updates.
type Entry struct {
	MedicationID string                `json:"medicationId"`
	Name         string                `json:"name"`
	Dose         string                `json:"dose"`
	Index        int                   `json:"index"`
	Occurrence   medication.Occurrence `json:"occurrence"`
}

// Ledger flattens medications into per-date dose entries and records
// status changes, mirroring them into the history table.
type Ledger struct {
	repo    *medication.Repository
	history *History
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func New(repo *medication.Repository, history *History, logger *zap.Logger, m *metrics.Metrics) *Ledger {
	return &Ledger{repo: repo, history: history, logger: logger, metrics: m}
}

// ListForDate returns every dose slot whose date matches exactly,
// across all medications, in (medication, occurrence) order.
func (l *Ledger) ListForDate(date string) ([]Entry, error) {
	if _, err := time.Parse(medication.DateLayout, date); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrValidation, "invalid date")
	}

	meds, err := l.repo.List()
	if err != nil {
		return nil, err
	}

	entries := []Entry{}
	for _, med := range meds {
		for i, occ := range med.Occurrences {
			if occ.Date != date {
				continue
			}
			entries = append(entries, Entry{
				MedicationID: med.ID,
				Name:         med.Name,
				Dose:         med.Dose,
				Index:        i,
				Occurrence:   occ,
			})
		}
	}
	return entries, nil
}

// SetStatus replaces the status of one occurrence and persists the
// medication back. The occurrence's date and time stay untouched.
func (l *Ledger) SetStatus(medID string, index int, status medication.DoseStatus) (*medication.Medication, error) {
	if !medication.ValidStatus(status) {
		return nil, apperrors.Wrap(fmt.Errorf("status %q", status), apperrors.ErrValidation, "unknown dose status")
	}

	unlock := l.repo.Lock(medID)
	defer unlock()

	var changed medication.Occurrence
	med, err := l.repo.Update(medID, func(m *medication.Medication) error {
		if index < 0 || index >= len(m.Occurrences) {
			return apperrors.Wrap(fmt.Errorf("index %d of %d", index, len(m.Occurrences)), apperrors.ErrValidation, "occurrence index out of range")
		}
		m.Occurrences[index].Status = status
		changed = m.Occurrences[index]
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.metrics.DosesRecorded.WithLabelValues(string(status)).Inc()
	if l.history != nil {
		if herr := l.history.Record(med, index, changed); herr != nil {
			// History is advisory; the status change already committed.
			l.logger.Warn("Dose history write failed",
				zap.String("medication_id", medID),
				zap.Error(herr),
			)
		}
	}

	l.logger.Info("Dose status updated",
		zap.String("medication_id", medID),
		zap.Int("index", index),
		zap.String("status", string(status)),
	)
	return med, nil
}

// ResetStatus puts an occurrence back to pending.
func (l *Ledger) ResetStatus(medID string, index int) (*medication.Medication, error) {
	return l.SetStatus(medID, index, medication.StatusPending)
}
