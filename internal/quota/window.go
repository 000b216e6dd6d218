package quota

import "time"

// Window holds the start instants of the minute and calendar day containing
// a timestamp.
type Window struct {
	MinuteStart time.Time
	DayStart    time.Time
}

// WindowAt floors t to the containing minute and calendar day in t's
// location. Pure; both guards derive their accounting ranges from it.
func WindowAt(t time.Time) Window {
	return Window{
		MinuteStart: time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location()),
		DayStart:    time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()),
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
