package ical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

const defaultMaxOccurrences = 500

// ParsedEvent is one concrete occurrence found in a feed.
type ParsedEvent struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	AllDay      bool
	Transparent bool
}

// Parser is a lenient line-oriented VEVENT reader. Events it cannot make
// sense of are skipped rather than reported.
type Parser struct {
	// Location applies to floating times and dates when no TZID or
	// X-WR-TIMEZONE is given. Defaults to UTC.
	Location       *time.Location
	MaxOccurrences int
}

type property struct {
	value  string
	params map[string]string
}

type rawEvent struct {
	props   map[string]property
	exdates []property
}

// Parse returns the events of data that intersect [from, to).
func (p *Parser) Parse(data string, from, to time.Time) []ParsedEvent {
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}

	var (
		events  []rawEvent
		current *rawEvent
		depth   int
	)

	for _, line := range unfold(data) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name, params := splitKey(key)

		switch {
		case name == "BEGIN" && strings.EqualFold(value, "VEVENT"):
			current = &rawEvent{props: map[string]property{}}
			depth = 0
			continue
		case name == "END" && strings.EqualFold(value, "VEVENT"):
			if current != nil {
				events = append(events, *current)
			}
			current = nil
			continue
		case name == "X-WR-TIMEZONE" && current == nil && p.Location == nil:
			if tz, err := time.LoadLocation(strings.TrimSpace(value)); err == nil {
				loc = tz
			}
			continue
		}

		if current == nil {
			continue
		}
		// VALARM and friends nest inside VEVENT; their properties are not the event's.
		if name == "BEGIN" {
			depth++
			continue
		}
		if name == "END" {
			if depth > 0 {
				depth--
			}
			continue
		}
		if depth > 0 {
			continue
		}

		prop := property{value: value, params: params}
		if name == "EXDATE" {
			current.exdates = append(current.exdates, prop)
			continue
		}
		if _, seen := current.props[name]; !seen {
			current.props[name] = prop
		}
	}

	overrides := map[string]map[int64]bool{}
	for _, ev := range events {
		rid, ok := ev.props["RECURRENCE-ID"]
		if !ok {
			continue
		}
		t, _, err := decodeTime(rid.value, rid.params, loc)
		if err != nil {
			continue
		}
		uid := ev.props["UID"].value
		if overrides[uid] == nil {
			overrides[uid] = map[int64]bool{}
		}
		overrides[uid][t.Unix()] = true
	}

	var out []ParsedEvent
	for _, ev := range events {
		out = append(out, p.materialize(ev, from, to, loc, overrides)...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

func (p *Parser) materialize(ev rawEvent, from, to time.Time, loc *time.Location, overrides map[string]map[int64]bool) []ParsedEvent {
	dtstart, okStart := ev.props["DTSTART"]
	dtend, okEnd := ev.props["DTEND"]
	if !okStart || !okEnd {
		return nil
	}
	if strings.EqualFold(ev.props["STATUS"].value, "CANCELLED") {
		return nil
	}

	start, allDay, err := decodeTime(dtstart.value, dtstart.params, loc)
	if err != nil {
		return nil
	}
	end, _, err := decodeTime(dtend.value, dtend.params, loc)
	if err != nil || end.Before(start) {
		return nil
	}

	base := ParsedEvent{
		UID:         ev.props["UID"].value,
		Summary:     UnescapeText(ev.props["SUMMARY"].value),
		Description: UnescapeText(ev.props["DESCRIPTION"].value),
		Location:    UnescapeText(ev.props["LOCATION"].value),
		Start:       start,
		End:         end,
		AllDay:      allDay,
		Transparent: strings.EqualFold(strings.TrimSpace(ev.props["TRANSP"].value), "TRANSPARENT"),
	}
	if base.UID == "" {
		base.UID = syntheticUID(dtstart.value, base.Summary)
	}
	if rid, ok := ev.props["RECURRENCE-ID"]; ok {
		if t, _, err := decodeTime(rid.value, rid.params, loc); err == nil {
			base.UID += "/" + t.UTC().Format(LayoutUTC)
		}
	}

	rule, recurring := ev.props["RRULE"]
	if !recurring {
		if !intersects(start, end, from, to) {
			return nil
		}
		return []ParsedEvent{base}
	}

	starts := p.expand(rule.value, start, end.Sub(start), ev.exdates, from, to, loc)
	if starts == nil {
		// unparseable rule: fall back to the first instance
		if intersects(start, end, from, to) {
			return []ParsedEvent{base}
		}
		return nil
	}

	duration := end.Sub(start)
	skip := overrides[base.UID]
	out := make([]ParsedEvent, 0, len(starts))
	for _, s := range starts {
		if skip[s.Unix()] {
			continue
		}
		e := s.Add(duration)
		if !intersects(s, e, from, to) {
			continue
		}
		occ := base
		occ.Start, occ.End = s, e
		if !s.Equal(start) {
			occ.UID = base.UID + "/" + s.UTC().Format(LayoutUTC)
		}
		out = append(out, occ)
	}
	return out
}

func (p *Parser) expand(value string, start time.Time, duration time.Duration, exdates []property, from, to time.Time, loc *time.Location) []time.Time {
	opt, err := rrule.StrToROption(value)
	if err != nil {
		return nil
	}
	opt.Dtstart = start
	rule, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil
	}

	set := &rrule.Set{}
	set.RRule(rule)
	for _, ex := range exdates {
		for _, v := range strings.Split(ex.value, ",") {
			if t, _, err := decodeTime(strings.TrimSpace(v), ex.params, loc); err == nil {
				set.ExDate(t)
			}
		}
	}

	limit := p.MaxOccurrences
	if limit <= 0 {
		limit = defaultMaxOccurrences
	}
	starts := set.Between(from.Add(-duration), to, true)
	if len(starts) > limit {
		starts = starts[:limit]
	}
	if starts == nil {
		starts = []time.Time{}
	}
	return starts
}

// splitKey separates the property name from its parameters.
func splitKey(key string) (string, map[string]string) {
	parts := strings.Split(key, ";")
	name := strings.ToUpper(strings.TrimSpace(parts[0]))
	if len(parts) == 1 {
		return name, nil
	}
	params := make(map[string]string, len(parts)-1)
	for _, p := range parts[1:] {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		params[strings.ToUpper(strings.TrimSpace(k))] = strings.Trim(strings.TrimSpace(v), `"`)
	}
	return name, params
}

// decodeTime interprets DTSTART/DTEND style values. Eight characters is a
// date (all-day), a trailing Z is UTC, fifteen characters is a floating
// local time; anything else gets a best-effort parse.
func decodeTime(value string, params map[string]string, loc *time.Location) (time.Time, bool, error) {
	v := strings.TrimSpace(value)
	if tzid := params["TZID"]; tzid != "" {
		if tz, err := time.LoadLocation(tzid); err == nil {
			loc = tz
		}
	}

	switch {
	case len(v) == len(LayoutDateOnly):
		t, err := time.ParseInLocation(LayoutDateOnly, v, loc)
		return t, true, err
	case strings.HasSuffix(v, "Z") && len(v) == len(LayoutUTC):
		t, err := time.Parse(LayoutUTC, v)
		return t, false, err
	case len(v) == len(LayoutLocal):
		t, err := time.ParseInLocation(LayoutLocal, v, loc)
		return t, false, err
	}

	for _, layout := range []string{time.RFC3339, "20060102T1504Z", "20060102T1504", "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, false, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("ical: unrecognised date value %q", v)
}

func intersects(start, end, from, to time.Time) bool {
	if end.Equal(start) {
		return !start.Before(from) && start.Before(to)
	}
	return start.Before(to) && end.After(from)
}

func syntheticUID(dtstart, summary string) string {
	sum := sha256.Sum256([]byte(dtstart + "|" + summary))
	return "generated-" + hex.EncodeToString(sum[:8])
}
