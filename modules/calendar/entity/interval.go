package entity

import "time"

// BusyInterval is one entry returned by a provider listing.
type BusyInterval struct {
	ID     string    `json:"id"`
	Title  string    `json:"title"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	AllDay bool      `json:"all_day"`
	Busy   bool      `json:"busy"`
}

// Blocks reports whether the interval should make a slot unavailable.
// Free (transparent) and all-day entries never block.
func (b BusyInterval) Blocks() bool {
	return b.Busy && !b.AllDay
}

// Overlaps is the half-open test: [s1,e1) and [s2,e2) conflict iff s1 < e2 and e1 > s2.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && e1.After(s2)
}

// SlotAvailable reports whether [start,end) is clear of every blocking interval.
func SlotAvailable(intervals []BusyInterval, start, end time.Time) bool {
	for _, iv := range intervals {
		if !iv.Blocks() {
			continue
		}
		if Overlaps(iv.Start, iv.End, start, end) {
			return false
		}
	}
	return true
}
