package feed

import (
	"regexp"
	"strings"
	"time"
)

// farFuture is the timestamp of Atom feeds that don't say when they changed.
var farFuture = time.Date(9999, time.January, 1, 0, 0, 0, 0, time.UTC)

// Zone names are left to sanitizeRFC2822: time.Parse gives unknown
// abbreviations a zero offset.
var strictLayouts = []string{
	time.RFC1123Z,
	"Mon, 2 Jan 2006 15:04:05 -0700",
}

var lenientLayouts = []string{
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04 -0700",
	"2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04 -0700",
	"Mon, 2 Jan 06 15:04:05 -0700",
	"Mon, 2 Jan 06 15:04 -0700",
	"2 Jan 06 15:04:05 -0700",
	"2 Jan 06 15:04 -0700",
	"Mon, 2 Jan 2006 15:04:05",
	"2 Jan 2006 15:04:05",
	"Mon, 2 Jan 2006 15:04:05 -07:00",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
}

// Obsolete and common zone names, mapped to numeric offsets.
var zoneOffsets = map[string]string{
	"UT": "+0000", "UTC": "+0000", "GMT": "+0000", "Z": "+0000", "Z0": "+0000",
	"EST": "-0500", "EDT": "-0400", "CST": "-0600", "CDT": "-0500",
	"MST": "-0700", "MDT": "-0600", "PST": "-0800", "PDT": "-0700",
	"CET": "+0100", "CEST": "+0200", "MET": "+0100", "MEST": "+0200",
	"BST": "+0100", "IST": "+0530", "JST": "+0900", "AEST": "+1000",
}

var (
	dayNames = strings.NewReplacer(
		"Monday", "Mon", "Tuesday", "Tue", "Wednesday", "Wed", "Thursday", "Thu",
		"Friday", "Fri", "Saturday", "Sat", "Sunday", "Sun",
		"Tues", "Tue", "Thurs", "Thu", "Thur", "Thu",
	)
	monthNames = strings.NewReplacer(
		"January", "Jan", "February", "Feb", "March", "Mar", "April", "Apr",
		"June", "Jun", "July", "Jul", "August", "Aug", "September", "Sep",
		"Sept", "Sep", "October", "Oct", "November", "Nov", "December", "Dec",
	)
	spaces   = regexp.MustCompile(`\s+`)
	comments = regexp.MustCompile(`\s*\([^)]*\)\s*$`)
	// "Tue,10 Jun 2003"
	commaNoSpace = regexp.MustCompile(`^([A-Za-z]{3}),(\S)`)
	zoneName     = regexp.MustCompile(`\s([A-Za-z]{1,5}\d?)$`)
	// "+01:00" style offsets at the end of an RFC-2822 looking date
	colonOffset = regexp.MustCompile(`([+-]\d\d):(\d\d)$`)
)

// parseRFC2822 tries the strict RFC-2822 layouts.
func parseRFC2822(value string) (time.Time, bool) {
	for _, layout := range strictLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// sanitizeRFC2822 normalizes the mistakes commonly found in feed dates: full
// day and month names, missing commas, comments, zone names.
func sanitizeRFC2822(value string) string {
	s := strings.TrimSpace(spaces.ReplaceAllString(value, " "))
	s = comments.ReplaceAllString(s, "")
	s = dayNames.Replace(s)
	s = monthNames.Replace(s)
	if len(s) > 4 && s[3] == ' ' && isLetters(s[:3]) {
		s = s[:3] + "," + s[3:]
	}
	s = commaNoSpace.ReplaceAllString(s, "$1, $2")
	if m := zoneName.FindStringSubmatch(s); m != nil {
		if offset, ok := zoneOffsets[strings.ToUpper(m[1])]; ok {
			s = strings.TrimSuffix(s, m[1]) + offset
		}
	}
	s = colonOffset.ReplaceAllString(s, "$1$2")
	return s
}

func parseLenientRFC2822(value string) (time.Time, bool) {
	s := sanitizeRFC2822(value)
	if t, ok := parseRFC2822(s); ok {
		return t, true
	}
	for _, layout := range lenientLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseRFC3339(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, &DateError{Value: value, Err: ErrDateIsNotRFC3339}
	}
	return t, nil
}

// tryHardToParse parses an RFC-2822 date strictly, then after sanitizing it,
// and finally as RFC-3339.
func tryHardToParse(value string) (time.Time, error) {
	if t, ok := parseRFC2822(value); ok {
		return t, nil
	}
	if t, ok := parseLenientRFC2822(value); ok {
		return t, nil
	}
	if t, err := parseRFC3339(value); err == nil {
		return t, nil
	}
	return time.Time{}, &DateError{Value: value, Err: ErrDateIsNeitherRFC2822NorRFC3339}
}

func isLetters(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
