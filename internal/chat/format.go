package chat

import (
	"time"

	"github.com/R-koma/calendar-chat/internal/model"
)

// Display timestamps are always rendered in JST regardless of the machine's
// locale, matching the original UI. JST has no DST, so a fixed offset is exact.
var jst = time.FixedZone("JST", 9*60*60)

const invalidDate = "Invalid date"

// timestampLayouts covers RFC 3339 and the zone-less ISO strings older
// backends emit (those are taken as UTC).
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func parseTimestamp(ts string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, ts, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatTime renders a message timestamp as 24-hour "HH:MM" in JST, or the
// literal "Invalid date" when the timestamp does not parse.
func FormatTime(ts string) string {
	t, ok := parseTimestamp(ts)
	if !ok {
		return invalidDate
	}
	return t.In(jst).Format("15:04")
}

// FormatDate renders a message timestamp as "MM/DD" in JST, or "Invalid date"
// when it does not parse.
func FormatDate(ts string) string {
	t, ok := parseTimestamp(ts)
	if !ok {
		return invalidDate
	}
	return t.In(jst).Format("01/02")
}

// DayGroup is a run of consecutive messages sharing a JST calendar day,
// rendered under one day separator.
type DayGroup struct {
	Date     string
	Messages []model.Message
}

// dayKey identifies a JST calendar day including the year, so the same
// month/day in different years never merges.
func dayKey(ts string) string {
	t, ok := parseTimestamp(ts)
	if !ok {
		return invalidDate
	}
	return t.In(jst).Format("2006/01/02")
}

// GroupByDay splits the log into day groups in arrival order. A new group
// starts whenever the JST day differs from the previous message's day;
// messages are never reordered. Unparsable timestamps group under
// "Invalid date".
func GroupByDay(msgs []model.Message) []DayGroup {
	groups := make([]DayGroup, 0, 4)
	lastKey := ""
	for _, m := range msgs {
		key := dayKey(m.Timestamp)
		if len(groups) == 0 || key != lastKey {
			groups = append(groups, DayGroup{Date: FormatDate(m.Timestamp)})
			lastKey = key
		}
		g := &groups[len(groups)-1]
		g.Messages = append(g.Messages, m)
	}
	return groups
}
