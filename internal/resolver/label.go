package resolver

import (
	"fmt"
	"time"
)

// nominalPublishTime is a presentation constant: the hour the authority
// nominally publishes, not a computed value.
const nominalPublishTime = "5:00 PM"

var weekdayNames = [...]string{
	"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday",
}

// FormatUpdateLabel renders the fixed last-updated label rules:
// today → "Today, {publish time}", yesterday → "Yesterday, {publish time}",
// anything else → "{Weekday} {D}/{M}/{YY}, {publish time}".
func (r *Resolver) FormatUpdateLabel(recordDate, today time.Time) string {
	record := r.DayKey(recordDate)
	today = r.DayKey(today)

	switch {
	case record.Equal(today):
		return fmt.Sprintf("Today, %s", nominalPublishTime)
	case record.Equal(today.AddDate(0, 0, -1)):
		return fmt.Sprintf("Yesterday, %s", nominalPublishTime)
	default:
		return fmt.Sprintf("%s %d/%d/%02d, %s",
			weekdayNames[record.Weekday()],
			record.Day(),
			int(record.Month()),
			record.Year()%100,
			nominalPublishTime,
		)
	}
}
