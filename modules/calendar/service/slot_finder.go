package service

import (
	"sort"
	"time"

	"github.com/SunnyC0d3/booking-system-sub009/modules/calendar/dto"
)

// SlotFinder computes free gaps between busy intervals.
type SlotFinder struct {
	// MinGapMinutes drops gaps shorter than this; default 15.
	MinGapMinutes int
}

func NewSlotFinder() *SlotFinder {
	return &SlotFinder{MinGapMinutes: 15}
}

// FreeGaps returns the parts of [start, end) not covered by busy, keeping
// only gaps of at least minMinutes (the finder default when <= 0).
func (sf *SlotFinder) FreeGaps(start, end time.Time, busy []dto.TimeSlot, minMinutes int) []dto.TimeSlot {
	if minMinutes <= 0 {
		minMinutes = sf.MinGapMinutes
	}
	minGap := time.Duration(minMinutes) * time.Minute

	gaps := []dto.TimeSlot{}
	cursor := start
	for _, b := range sf.mergeOverlappingSlots(busy) {
		if !b.End.After(start) || !b.Start.Before(end) {
			continue
		}
		if b.Start.After(cursor) && b.Start.Sub(cursor) >= minGap {
			gaps = append(gaps, dto.TimeSlot{Start: cursor, End: b.Start})
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}
	if end.After(cursor) && end.Sub(cursor) >= minGap {
		gaps = append(gaps, dto.TimeSlot{Start: cursor, End: end})
	}
	return gaps
}

// mergeOverlappingSlots merges overlapping or touching busy slots.
func (sf *SlotFinder) mergeOverlappingSlots(slots []dto.TimeSlot) []dto.TimeSlot {
	if len(slots) == 0 {
		return slots
	}

	sorted := make([]dto.TimeSlot, len(slots))
	copy(sorted, slots)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := []dto.TimeSlot{sorted[0]}
	for i := 1; i < len(sorted); i++ {
		last := &merged[len(merged)-1]
		current := sorted[i]

		if current.Start.Before(last.End) || current.Start.Equal(last.End) {
			if current.End.After(last.End) {
				last.End = current.End
			}
		} else {
			merged = append(merged, current)
		}
	}
	return merged
}
