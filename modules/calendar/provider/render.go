package provider

import (
	"fmt"
	"strings"

	bookingEntity "github.com/SunnyC0d3/booking-system-sub009/modules/booking/entity"
)

const DefaultTitleTemplate = "{service} - {client}"

// RenderTitle fills {service}, {client} and {reference} in tpl.
func RenderTitle(tpl string, b *bookingEntity.Booking) string {
	if strings.TrimSpace(tpl) == "" {
		tpl = DefaultTitleTemplate
	}
	title := strings.NewReplacer(
		"{service}", b.ServiceName,
		"{client}", b.ClientName,
		"{reference}", b.Reference,
	).Replace(tpl)
	title = strings.Trim(strings.TrimSpace(title), "- ")
	if title == "" {
		return "Booking"
	}
	return title
}

// Describe builds the event body shown in the external calendar.
func Describe(b *bookingEntity.Booking) string {
	var lines []string
	add := func(label, v string) {
		if strings.TrimSpace(v) != "" {
			lines = append(lines, fmt.Sprintf("%s: %s", label, v))
		}
	}
	add("Service", b.ServiceName)
	add("Client", b.ClientName)
	add("Email", b.ClientEmail)
	add("Phone", b.ClientPhone)
	add("Reference", b.Reference)
	add("Add-ons", b.AddonsDescription)
	return strings.Join(lines, "\n")
}
