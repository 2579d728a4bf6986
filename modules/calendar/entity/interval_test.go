package entity

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOverlapsHalfOpen(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	at := func(h int) time.Time { return base.Add(time.Duration(h) * time.Hour) }

	assert.True(t, Overlaps(at(0), at(2), at(1), at(3)))
	assert.True(t, Overlaps(at(0), at(3), at(1), at(2)), "containment")
	assert.False(t, Overlaps(at(0), at(1), at(1), at(2)), "touching end is free")
	assert.False(t, Overlaps(at(2), at(3), at(1), at(2)), "touching start is free")
	assert.False(t, Overlaps(at(0), at(1), at(2), at(3)))
}

func TestSlotAvailableMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	minute := func(n int) time.Time { return base.Add(time.Duration(n) * time.Minute) }

	for i := 0; i < 500; i++ {
		var busy []BusyInterval
		n := rng.Intn(6)
		for j := 0; j < n; j++ {
			s := rng.Intn(600)
			busy = append(busy, BusyInterval{Start: minute(s), End: minute(s + 1 + rng.Intn(120)), Busy: true})
		}
		s := rng.Intn(600)
		start, end := minute(s), minute(s+1+rng.Intn(120))

		want := true
		for _, b := range busy {
			if b.Start.Before(end) && b.End.After(start) {
				want = false
			}
		}
		assert.Equal(t, want, SlotAvailable(busy, start, end))
	}
}

func TestAllDayAndFreeIntervalsNeverBlock(t *testing.T) {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	intervals := []BusyInterval{
		{ID: "holiday", Start: day, End: day.Add(24 * time.Hour), AllDay: true, Busy: true},
		{ID: "tentative", Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour), Busy: false},
	}

	assert.True(t, SlotAvailable(intervals, day.Add(9*time.Hour), day.Add(9*time.Hour+30*time.Minute)))
}
