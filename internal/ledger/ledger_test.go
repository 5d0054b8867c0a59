package ledger

import (
	stderrors "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	apperrors "github.com/avelar-dev/medikit/internal/errors"
	"github.com/avelar-dev/medikit/internal/medication"
	"github.com/avelar-dev/medikit/internal/metrics"
)

type memBlobStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (s *memBlobStore) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte{}, v...), nil
}

func (s *memBlobStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte{}, value...)
	return nil
}

func (s *memBlobStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func setupTestLedger(t *testing.T) (*Ledger, *medication.Repository, *History) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	history, err := NewHistory(db)
	require.NoError(t, err)

	logger, _ := zap.NewDevelopment()
	repo := medication.NewRepository(&memBlobStore{data: make(map[string][]byte)}, logger)
	return New(repo, history, logger, metrics.New()), repo, history
}

func addMedWithDoses(t *testing.T, repo *medication.Repository, name string, occs []medication.Occurrence) string {
	med := &medication.Medication{Name: name, Dose: "500mg"}
	require.NoError(t, repo.Add(med))
	_, err := repo.Update(med.ID, func(m *medication.Medication) error {
		m.Occurrences = occs
		return nil
	})
	require.NoError(t, err)
	return med.ID
}

func TestListForDate(t *testing.T) {
	l, repo, _ := setupTestLedger(t)

	a := addMedWithDoses(t, repo, "Paracetamol", []medication.Occurrence{
		{Date: "2026-08-29", Time: "09:00", Status: medication.StatusPending},
		{Date: "2026-08-30", Time: "09:00", Status: medication.StatusPending},
	})
	addMedWithDoses(t, repo, "Ibuprofen", []medication.Occurrence{
		{Date: "2026-08-29", Time: "14:00", Status: medication.StatusTaken},
	})

	entries, err := l.ListForDate("2026-08-29")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, a, entries[0].MedicationID)
	assert.Equal(t, 0, entries[0].Index)
	assert.Equal(t, "Paracetamol", entries[0].Name)
	assert.Equal(t, "Ibuprofen", entries[1].Name)
	assert.Equal(t, medication.StatusTaken, entries[1].Occurrence.Status)
}

func TestListForDate_NoMatches(t *testing.T) {
	l, repo, _ := setupTestLedger(t)
	addMedWithDoses(t, repo, "Paracetamol", []medication.Occurrence{
		{Date: "2026-08-29", Time: "09:00", Status: medication.StatusPending},
	})

	entries, err := l.ListForDate("2026-09-15")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestListForDate_BadDate(t *testing.T) {
	l, _, _ := setupTestLedger(t)

	_, err := l.ListForDate("29/08/2026")
	assert.True(t, stderrors.Is(err, apperrors.ErrValidation))
}

func TestSetStatus(t *testing.T) {
	l, repo, history := setupTestLedger(t)
	id := addMedWithDoses(t, repo, "Paracetamol", []medication.Occurrence{
		{Date: "2026-08-29", Time: "09:00", Status: medication.StatusPending},
		{Date: "2026-08-29", Time: "21:00", Status: medication.StatusPending},
	})

	med, err := l.SetStatus(id, 1, medication.StatusTaken)
	require.NoError(t, err)

	// Only the targeted occurrence changed; date and time untouched.
	assert.Equal(t, medication.StatusPending, med.Occurrences[0].Status)
	assert.Equal(t, medication.StatusTaken, med.Occurrences[1].Status)
	assert.Equal(t, "21:00", med.Occurrences[1].Time)

	events, err := history.Events(id, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "taken", events[0].Status)
	assert.Equal(t, "2026-08-29", events[0].Date)
}

func TestSetStatus_IndexOutOfRange(t *testing.T) {
	l, repo, _ := setupTestLedger(t)
	id := addMedWithDoses(t, repo, "Paracetamol", []medication.Occurrence{
		{Date: "2026-08-29", Time: "09:00", Status: medication.StatusPending},
	})

	_, err := l.SetStatus(id, 5, medication.StatusTaken)
	assert.True(t, stderrors.Is(err, apperrors.ErrValidation))
	_, err = l.SetStatus(id, -1, medication.StatusTaken)
	assert.True(t, stderrors.Is(err, apperrors.ErrValidation))
}

func TestSetStatus_UnknownStatus(t *testing.T) {
	l, repo, _ := setupTestLedger(t)
	id := addMedWithDoses(t, repo, "Paracetamol", nil)

	_, err := l.SetStatus(id, 0, medication.DoseStatus("eaten"))
	assert.True(t, stderrors.Is(err, apperrors.ErrValidation))
}

func TestSetStatus_UnknownMedication(t *testing.T) {
	l, _, _ := setupTestLedger(t)

	_, err := l.SetStatus("nope", 0, medication.StatusTaken)
	assert.True(t, stderrors.Is(err, apperrors.ErrNotFound))
}

func TestResetStatus(t *testing.T) {
	l, repo, _ := setupTestLedger(t)
	id := addMedWithDoses(t, repo, "Paracetamol", []medication.Occurrence{
		{Date: "2026-08-29", Time: "09:00", Status: medication.StatusPending},
	})

	_, err := l.SetStatus(id, 0, medication.StatusSkipped)
	require.NoError(t, err)

	med, err := l.ResetStatus(id, 0)
	require.NoError(t, err)
	assert.Equal(t, medication.StatusPending, med.Occurrences[0].Status)
}

func TestHistory_StatsLatestOutcomeWins(t *testing.T) {
	l, repo, history := setupTestLedger(t)
	id := addMedWithDoses(t, repo, "Paracetamol", []medication.Occurrence{
		{Date: "2026-08-29", Time: "09:00", Status: medication.StatusPending},
		{Date: "2026-08-29", Time: "21:00", Status: medication.StatusPending},
		{Date: "2026-08-30", Time: "09:00", Status: medication.StatusPending},
	})

	_, err := l.SetStatus(id, 0, medication.StatusSkipped)
	require.NoError(t, err)
	// User corrects themselves: the dose was actually taken.
	_, err = l.SetStatus(id, 0, medication.StatusTaken)
	require.NoError(t, err)
	_, err = l.SetStatus(id, 1, medication.StatusSkipped)
	require.NoError(t, err)
	_, err = l.SetStatus(id, 2, medication.StatusTaken)
	require.NoError(t, err)

	stats, err := history.Stats("2026-08-29", "2026-08-29")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Taken)
	assert.Equal(t, int64(1), stats.Skipped)
	assert.InDelta(t, 0.5, stats.Rate, 1e-9)
}
