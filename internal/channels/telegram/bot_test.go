package telegram

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/avelar-dev/medikit/internal/config"
	"github.com/avelar-dev/medikit/internal/ledger"
	"github.com/avelar-dev/medikit/internal/medication"
	"github.com/avelar-dev/medikit/internal/metrics"
	"github.com/avelar-dev/medikit/internal/notify"
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

func setupBot(t *testing.T) (*Bot, *medication.Repository) {
	logger, _ := zap.NewDevelopment()
	repo := medication.NewRepository(&memBlobStore{data: make(map[string][]byte)}, logger)
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	history, err := ledger.NewHistory(db)
	require.NoError(t, err)
	l := ledger.New(repo, history, logger, metrics.New())

	return &Bot{ledger: l, logger: logger, loc: time.UTC}, repo
}

func TestNewBot_DisabledIsInert(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	bot, err := NewBot(config.TelegramConfig{Enabled: false}, nil, logger, time.UTC)
	require.NoError(t, err)

	assert.False(t, bot.Enabled())
	assert.NoError(t, bot.Start())
	assert.NoError(t, bot.Deliver(context.Background(), notify.Alert{Title: "x"}))
	bot.Stop()
}

func TestBot_TodayText(t *testing.T) {
	bot, repo := setupBot(t)
	today := time.Now().UTC().Format(medication.DateLayout)

	med := &medication.Medication{Name: "Paracetamol", Dose: "500mg"}
	require.NoError(t, repo.Add(med))
	_, err := repo.Update(med.ID, func(m *medication.Medication) error {
		m.Occurrences = []medication.Occurrence{
			{Date: today, Time: "09:00", Status: medication.StatusPending},
		}
		return nil
	})
	require.NoError(t, err)

	text := bot.todayText()
	assert.Contains(t, text, "Paracetamol 500mg at 09:00")
}

func TestBot_TodayTextEmpty(t *testing.T) {
	bot, _ := setupBot(t)
	assert.Equal(t, "No doses scheduled today.", bot.todayText())
}

func TestBot_SetStatusByPosition(t *testing.T) {
	bot, repo := setupBot(t)
	today := time.Now().UTC().Format(medication.DateLayout)

	med := &medication.Medication{Name: "Ibuprofen", Dose: "400mg"}
	require.NoError(t, repo.Add(med))
	_, err := repo.Update(med.ID, func(m *medication.Medication) error {
		m.Occurrences = []medication.Occurrence{
			{Date: today, Time: "08:00", Status: medication.StatusPending},
			{Date: today, Time: "20:00", Status: medication.StatusPending},
		}
		return nil
	})
	require.NoError(t, err)

	reply := bot.setStatus("2", medication.StatusTaken)
	assert.Contains(t, reply, "Ibuprofen at 20:00 marked taken")

	got, err := repo.Get(med.ID)
	require.NoError(t, err)
	assert.Equal(t, medication.StatusPending, got.Occurrences[0].Status)
	assert.Equal(t, medication.StatusTaken, got.Occurrences[1].Status)
}

func TestBot_SetStatusBadArgument(t *testing.T) {
	bot, _ := setupBot(t)

	assert.Contains(t, bot.setStatus("abc", medication.StatusTaken), "dose number")
	assert.Contains(t, bot.setStatus("9", medication.StatusTaken), "not on today's list")
}

func TestBot_Allowed(t *testing.T) {
	bot := &Bot{chatIDs: []int64{42}}
	assert.True(t, bot.allowed(42))
	assert.False(t, bot.allowed(7))

	open := &Bot{}
	assert.True(t, open.allowed(7))
}
