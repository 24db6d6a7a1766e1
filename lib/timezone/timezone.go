package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Europe/London")
	if err != nil {
		panic(err)
	}
}

// force the timezone to be London because every storefront is queried
// for the GB market and release dates are calendar dates in that market;
// a server ending up in another region would otherwise shift dates when
// manipulating them through <time.Time>.Year()/Month()/Day()
func Now() time.Time {
	return time.Now().In(Location)
}

// StartOfDay truncates t to midnight in the catalog timezone.
func StartOfDay(t time.Time) time.Time {
	t = t.In(Location)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, Location)
}

// DaysBetween counts the calendar days from one date to another.
// Dividing wall-clock hours by 24 undercounts across the 23-hour
// spring-forward day, so the count is corrected by stepping whole
// calendar days.
func DaysBetween(from, to time.Time) int {
	from, to = StartOfDay(from), StartOfDay(to)
	days := int(to.Sub(from).Hours() / 24)
	for from.AddDate(0, 0, days).Before(to) {
		days++
	}
	for from.AddDate(0, 0, days).After(to) {
		days--
	}
	return days
}
