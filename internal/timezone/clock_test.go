package timezone

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-sql/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPersister struct {
	saved []string
	err   error
}

func (p *recordingPersister) SaveTimezone(_ context.Context, id string) error {
	p.saved = append(p.saved, id)
	return p.err
}

type panickingPersister struct{}

func (panickingPersister) SaveTimezone(context.Context, string) error { panic("disk on fire") }

var zonesUnderTest = []string{
	"UTC",
	"America/Halifax",
	"America/New_York",
	"America/Havana",
	"America/Santiago",
	"Europe/Berlin",
	"Asia/Kolkata",
	"Australia/Lord_Howe",
	"Pacific/Chatham",
	"Pacific/Kiritimati",
}

func TestCivilDateRoundTrip(t *testing.T) {
	for _, zone := range zonesUnderTest {
		t.Run(zone, func(t *testing.T) {
			clock := NewClock(zone)
			require.Equal(t, zone, clock.Timezone())
			loc, err := time.LoadLocation(zone)
			require.NoError(t, err)

			start := civil.Date{Year: 2023, Month: time.January, Day: 1}
			for i := 0; i < 3*366; i++ {
				d := start.AddDays(i)
				instant := clock.CivilDateToInstant(d)

				require.Equal(t, d, clock.InstantToCivilDate(instant), "round trip of %s", d)
				require.Equal(t, d.AddDays(-1), civil.DateOf(instant.Add(-time.Nanosecond).In(loc)),
					"%s should map to the first instant of the day", d)
			}
		})
	}
}

func TestCivilDateToInstantAroundDST(t *testing.T) {
	clock := NewClock("America/New_York")

	tests := []struct {
		date civil.Date
		want time.Time
	}{
		{civil.Date{Year: 2024, Month: time.March, Day: 9}, time.Date(2024, 3, 9, 5, 0, 0, 0, time.UTC)},
		{civil.Date{Year: 2024, Month: time.March, Day: 10}, time.Date(2024, 3, 10, 5, 0, 0, 0, time.UTC)},
		{civil.Date{Year: 2024, Month: time.March, Day: 11}, time.Date(2024, 3, 11, 4, 0, 0, 0, time.UTC)},
		{civil.Date{Year: 2024, Month: time.November, Day: 3}, time.Date(2024, 11, 3, 4, 0, 0, 0, time.UTC)},
		{civil.Date{Year: 2024, Month: time.November, Day: 4}, time.Date(2024, 11, 4, 5, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.date.String(), func(t *testing.T) {
			assert.True(t, tt.want.Equal(clock.CivilDateToInstant(tt.date)),
				"got %s", clock.CivilDateToInstant(tt.date).UTC())
		})
	}
}

func TestInstantToCivilDateUsesConfiguredZone(t *testing.T) {
	instant := time.Date(2024, 3, 1, 2, 30, 0, 0, time.UTC)

	assert.Equal(t, civil.Date{Year: 2024, Month: time.March, Day: 1}, NewClock("UTC").InstantToCivilDate(instant))
	assert.Equal(t, civil.Date{Year: 2024, Month: time.February, Day: 29}, NewClock("America/Halifax").InstantToCivilDate(instant))
	assert.Equal(t, 1, NewClock("America/Halifax").InstantToMonthIndex(instant))
	assert.Equal(t, 2, NewClock("Asia/Tokyo").InstantToMonthIndex(instant))
}

func TestSetTimezone(t *testing.T) {
	t.Run("valid id is applied and persisted", func(t *testing.T) {
		p := &recordingPersister{}
		clock := NewClock("UTC", WithPersister(p))

		require.NoError(t, clock.SetTimezone(context.Background(), "America/Halifax"))
		assert.Equal(t, "America/Halifax", clock.Timezone())
		assert.Equal(t, []string{"America/Halifax"}, p.saved)
	})

	t.Run("invalid id falls back to the host zone", func(t *testing.T) {
		t.Setenv("TZ", "Asia/Tokyo")
		p := &recordingPersister{}
		clock := NewClock("America/Halifax", WithPersister(p))

		err := clock.SetTimezone(context.Background(), "Mars/Olympus_Mons")
		assert.True(t, errors.Is(err, ErrInvalidTimezone))
		assert.Equal(t, "Asia/Tokyo", clock.Timezone())
		assert.Equal(t, []string{"Asia/Tokyo"}, p.saved)
	})

	t.Run("Local and empty are rejected", func(t *testing.T) {
		assert.False(t, ValidTimezone(""))
		assert.False(t, ValidTimezone("Local"))
		assert.True(t, ValidTimezone("Europe/Berlin"))
	})

	t.Run("persistence failures are swallowed", func(t *testing.T) {
		clock := NewClock("UTC", WithPersister(&recordingPersister{err: errors.New("read-only")}))
		assert.NoError(t, clock.SetTimezone(context.Background(), "Europe/Berlin"))
		assert.Equal(t, "Europe/Berlin", clock.Timezone())

		clock = NewClock("UTC", WithPersister(panickingPersister{}))
		assert.NotPanics(t, func() {
			assert.NoError(t, clock.SetTimezone(context.Background(), "Asia/Kolkata"))
		})
		assert.Equal(t, "Asia/Kolkata", clock.Timezone())
	})

	t.Run("changing zones moves today", func(t *testing.T) {
		now := time.Date(2024, 6, 30, 23, 30, 0, 0, time.UTC)
		clock := NewClock("UTC", WithNow(func() time.Time { return now }))
		assert.Equal(t, civil.Date{Year: 2024, Month: time.June, Day: 30}, clock.Today())

		require.NoError(t, clock.SetTimezone(context.Background(), "Europe/Berlin"))
		assert.Equal(t, civil.Date{Year: 2024, Month: time.July, Day: 1}, clock.Today())
	})
}

func TestNewClockWithInvalidIDUsesUTC(t *testing.T) {
	assert.Equal(t, "UTC", NewClock("nope").Timezone())
}

func TestResolveInitial(t *testing.T) {
	t.Setenv("TZ", "Asia/Tokyo")

	assert.Equal(t, "America/Halifax", ResolveInitial("America/Halifax", "Europe/Berlin"))
	assert.Equal(t, "Europe/Berlin", ResolveInitial("", "Europe/Berlin"))
	assert.Equal(t, "Europe/Berlin", ResolveInitial("garbage", "Europe/Berlin"))
	assert.Equal(t, "Asia/Tokyo", ResolveInitial("", ""))
}
