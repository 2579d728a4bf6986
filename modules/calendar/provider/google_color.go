package provider

import (
	"strconv"
	"strings"
)

// FallbackColorID is used when a configured color is not close to any palette entry.
const FallbackColorID = "9"

// nearestColorMaxDistance bounds the squared RGB distance accepted as a match.
const nearestColorMaxDistance = 60 * 60 * 3

var googleEventColors = []struct {
	id  string
	hex string
}{
	{"1", "#7986cb"},
	{"2", "#33b679"},
	{"3", "#8e24aa"},
	{"4", "#e67c73"},
	{"5", "#f6bf26"},
	{"6", "#f4511e"},
	{"7", "#039be5"},
	{"8", "#616161"},
	{"9", "#3f51b5"},
	{"10", "#0b8043"},
	{"11", "#d50000"},
}

// GoogleColorID maps a hex color to a Google event colorId. An empty input
// yields "" so the calendar default applies.
func GoogleColorID(hex string) string {
	hex = strings.ToLower(strings.TrimSpace(hex))
	if hex == "" {
		return ""
	}
	if !strings.HasPrefix(hex, "#") {
		hex = "#" + hex
	}
	r, g, b, ok := parseHex(hex)
	if !ok {
		return FallbackColorID
	}

	best, bestDist := "", -1
	for _, c := range googleEventColors {
		if c.hex == hex {
			return c.id
		}
		cr, cg, cb, _ := parseHex(c.hex)
		d := (r-cr)*(r-cr) + (g-cg)*(g-cg) + (b-cb)*(b-cb)
		if bestDist < 0 || d < bestDist {
			best, bestDist = c.id, d
		}
	}
	if bestDist > nearestColorMaxDistance {
		return FallbackColorID
	}
	return best
}

func parseHex(hex string) (int, int, int, bool) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return 0, 0, 0, false
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return int(uint8(v >> 16)), int(uint8(v >> 8)), int(uint8(v)), true
}

func ValidHexColor(hex string) bool {
	_, _, _, ok := parseHex(strings.TrimSpace(hex))
	return ok
}
