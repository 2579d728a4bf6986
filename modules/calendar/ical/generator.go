package ical

import (
	"fmt"
	"strings"
	"time"
)

const (
	LayoutUTC      = "20060102T150405Z"
	LayoutLocal    = "20060102T150405"
	LayoutDateOnly = "20060102"
)

type Person struct {
	Name  string
	Email string
}

// Event is the input to the generator.
type Event struct {
	UID             string
	Summary         string
	Description     string
	Location        string
	Organizer       *Person
	Attendees       []Person
	Start           time.Time
	End             time.Time
	ReminderMinutes []int
}

type Generator struct {
	ProdID string
	Now    func() time.Time
}

func NewGenerator(prodID string) *Generator {
	return &Generator{ProdID: prodID, Now: time.Now}
}

// BookingUID derives a globally unique UID from a booking id and the install origin.
func BookingUID(bookingID, origin string) string {
	return fmt.Sprintf("%s@%s", bookingID, origin)
}

// Calendar renders a VCALENDAR holding the given events, CRLF-terminated.
func (g *Generator) Calendar(events ...Event) string {
	var lines []string
	lines = append(lines,
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:"+g.ProdID,
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
	)
	stamp := g.Now().UTC().Format(LayoutUTC)
	for _, ev := range events {
		lines = append(lines, g.event(ev, stamp)...)
	}
	lines = append(lines, "END:VCALENDAR")

	var b strings.Builder
	for _, l := range lines {
		b.WriteString(fold(l))
		b.WriteString("\r\n")
	}
	return b.String()
}

func (g *Generator) event(ev Event, stamp string) []string {
	lines := []string{
		"BEGIN:VEVENT",
		"UID:" + ev.UID,
		"DTSTAMP:" + stamp,
		"DTSTART:" + ev.Start.UTC().Format(LayoutUTC),
		"DTEND:" + ev.End.UTC().Format(LayoutUTC),
		"SUMMARY:" + EscapeText(ev.Summary),
	}
	if ev.Description != "" {
		lines = append(lines, "DESCRIPTION:"+EscapeText(ev.Description))
	}
	if ev.Location != "" {
		lines = append(lines, "LOCATION:"+EscapeText(ev.Location))
	}
	if ev.Organizer != nil && ev.Organizer.Email != "" {
		lines = append(lines, personLine("ORGANIZER", *ev.Organizer, ""))
	}
	for _, a := range ev.Attendees {
		if a.Email == "" {
			continue
		}
		lines = append(lines, personLine("ATTENDEE", a, ";ROLE=REQ-PARTICIPANT"))
	}
	lines = append(lines, "STATUS:CONFIRMED", "TRANSP:OPAQUE")

	for _, minutes := range ev.ReminderMinutes {
		if minutes <= 0 {
			continue
		}
		lines = append(lines,
			"BEGIN:VALARM",
			fmt.Sprintf("TRIGGER:-PT%dM", minutes),
			"ACTION:DISPLAY",
			"DESCRIPTION:"+EscapeText(ev.Summary),
			"END:VALARM",
		)
	}
	return append(lines, "END:VEVENT")
}

func personLine(prop string, p Person, extra string) string {
	line := prop
	if p.Name != "" {
		line += ";CN=" + paramValue(p.Name)
	}
	return line + extra + ":mailto:" + p.Email
}
