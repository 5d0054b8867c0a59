package schedule

import (
	stderrors "errors"
	"testing"
	"time"

	apperrors "github.com/avelar-dev/medikit/internal/errors"
	"github.com/avelar-dev/medikit/internal/medication"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Saturday 2026-08-29, mid-afternoon, so day boundaries matter.
var anchor = time.Date(2026, 8, 29, 15, 42, 0, 0, time.UTC)

func TestMaterialize_OnceDaily(t *testing.T) {
	rule := medication.OnceDaily(medication.TimeOfDay{Hour: 9})

	occs, err := Materialize(rule, anchor, HorizonDaily)
	require.NoError(t, err)
	require.Len(t, occs, 30)

	assert.Equal(t, "2026-08-29", occs[0].Date)
	assert.Equal(t, "2026-09-27", occs[29].Date)
	for _, o := range occs {
		assert.Equal(t, "09:00", o.Time)
		assert.Equal(t, medication.StatusPending, o.Status)
	}
}

func TestMaterialize_NTimesDaily(t *testing.T) {
	rule := medication.NTimesDaily(
		medication.TimeOfDay{Hour: 21},
		medication.TimeOfDay{Hour: 8, Minute: 30},
		medication.TimeOfDay{Hour: 14},
	)

	occs, err := Materialize(rule, anchor, HorizonDaily)
	require.NoError(t, err)
	require.Len(t, occs, 3*30)

	// Within each day the times come out sorted.
	assert.Equal(t, "08:30", occs[0].Time)
	assert.Equal(t, "14:00", occs[1].Time)
	assert.Equal(t, "21:00", occs[2].Time)
	assert.Equal(t, occs[0].Date, occs[2].Date)
	assert.Less(t, occs[2].Date, occs[3].Date)
}

func TestMaterialize_ChronologicalOrder(t *testing.T) {
	rule := medication.NTimesDaily(
		medication.TimeOfDay{Hour: 22},
		medication.TimeOfDay{Hour: 7},
	)

	occs, err := Materialize(rule, anchor, 5)
	require.NoError(t, err)
	for i := 1; i < len(occs); i++ {
		prev, cur := occs[i-1], occs[i]
		assert.True(t, prev.Date < cur.Date || (prev.Date == cur.Date && prev.Time < cur.Time),
			"out of order at %d: %v then %v", i, prev, cur)
	}
}

func TestMaterialize_IntervalDays(t *testing.T) {
	rule := medication.EveryDays(2, medication.TimeOfDay{Hour: 8})

	occs, err := Materialize(rule, anchor, HorizonShort)
	require.NoError(t, err)
	require.Len(t, occs, 7)

	wantDates := []string{
		"2026-08-29", "2026-08-31", "2026-09-02", "2026-09-04",
		"2026-09-06", "2026-09-08", "2026-09-10",
	}
	for i, o := range occs {
		assert.Equal(t, wantDates[i], o.Date)
		assert.Equal(t, "08:00", o.Time)
	}
}

func TestMaterialize_IntervalHours(t *testing.T) {
	rule := medication.EveryHours(8, medication.TimeOfDay{Hour: 22, Minute: 15})

	occs, err := Materialize(rule, anchor, 2)
	require.NoError(t, err)
	require.Len(t, occs, 6)

	// 22:15 wraps to 06:15 and 14:15 on the same calendar date.
	assert.Equal(t, medication.Occurrence{Date: "2026-08-29", Time: "06:15", Status: medication.StatusPending}, occs[0])
	assert.Equal(t, "14:15", occs[1].Time)
	assert.Equal(t, "22:15", occs[2].Time)
	assert.Equal(t, "2026-08-29", occs[2].Date)
	assert.Equal(t, "2026-08-30", occs[3].Date)
}

func TestMaterialize_IntervalHoursUneven(t *testing.T) {
	// floor(24/7) = 3 doses per day.
	rule := medication.EveryHours(7, medication.TimeOfDay{Hour: 9})

	occs, err := Materialize(rule, anchor, 1)
	require.NoError(t, err)
	require.Len(t, occs, 3)
	assert.Equal(t, "09:00", occs[0].Time)
	assert.Equal(t, "16:00", occs[1].Time)
	assert.Equal(t, "23:00", occs[2].Time)
}

func TestMaterialize_WeekdaySet(t *testing.T) {
	rule := medication.OnWeekdays(
		[]time.Weekday{time.Monday, time.Thursday},
		medication.TimeOfDay{Hour: 10},
	)

	occs, err := Materialize(rule, anchor, HorizonShort)
	require.NoError(t, err)
	require.Len(t, occs, 4)

	loc := time.UTC
	for _, o := range occs {
		day, err := time.ParseInLocation(medication.DateLayout, o.Date, loc)
		require.NoError(t, err)
		wd := day.Weekday()
		assert.True(t, wd == time.Monday || wd == time.Thursday, "unexpected weekday %s", wd)
		assert.Equal(t, "10:00", o.Time)
	}
	assert.Equal(t, "2026-08-31", occs[0].Date)
}

func TestMaterialize_WeekdaySetEmpty(t *testing.T) {
	rule := medication.OnWeekdays(nil, medication.TimeOfDay{Hour: 10})

	occs, err := Materialize(rule, anchor, HorizonShort)
	require.NoError(t, err)
	assert.Empty(t, occs)
}

func TestMaterialize_Cyclic(t *testing.T) {
	rule := medication.Cyclic(21, 7, "2026-09-01", medication.TimeOfDay{Hour: 9})

	occs, err := Materialize(rule, anchor, HorizonShort)
	require.NoError(t, err)
	require.Len(t, occs, 21)

	assert.Equal(t, "2026-09-01", occs[0].Date)
	assert.Equal(t, "2026-09-21", occs[20].Date)
	for _, o := range occs {
		assert.Equal(t, "09:00", o.Time)
	}
}

func TestMaterialize_CyclicBadStartDate(t *testing.T) {
	rule := medication.Cyclic(5, 2, "01/09/2026", medication.TimeOfDay{Hour: 9})

	_, err := Materialize(rule, anchor, HorizonShort)
	assert.True(t, stderrors.Is(err, apperrors.ErrValidation))
}

func TestMaterialize_AdHoc(t *testing.T) {
	occs, err := Materialize(medication.AdHoc(), anchor, HorizonDaily)
	require.NoError(t, err)
	assert.Empty(t, occs)
}

func TestMaterialize_ZeroHorizon(t *testing.T) {
	rule := medication.OnceDaily(medication.TimeOfDay{Hour: 9})

	occs, err := Materialize(rule, anchor, 0)
	require.NoError(t, err)
	assert.Empty(t, occs)
}

func TestMaterialize_InvalidRule(t *testing.T) {
	rule := medication.EveryDays(0, medication.TimeOfDay{Hour: 8})

	_, err := Materialize(rule, anchor, HorizonShort)
	assert.True(t, stderrors.Is(err, apperrors.ErrValidation))
}

func TestMaterializeDefault_PicksHorizonPerKind(t *testing.T) {
	daily, err := MaterializeDefault(medication.OnceDaily(medication.TimeOfDay{Hour: 9}), anchor)
	require.NoError(t, err)
	assert.Len(t, daily, HorizonDaily)

	weekly, err := MaterializeDefault(medication.OnWeekdays([]time.Weekday{time.Monday}, medication.TimeOfDay{Hour: 9}), anchor)
	require.NoError(t, err)
	assert.Len(t, weekly, 2)
}

func TestHorizonFor(t *testing.T) {
	assert.Equal(t, HorizonDaily, HorizonFor(medication.KindNTimesDaily))
	assert.Equal(t, HorizonShort, HorizonFor(medication.KindInterval))
	assert.Equal(t, HorizonShort, HorizonFor(medication.KindCyclic))
	assert.Equal(t, 0, HorizonFor(medication.KindAdHoc))
}
