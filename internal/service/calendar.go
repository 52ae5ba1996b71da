package service

import (
	"alcyxob/fitness-billing/internal/domain"
	"time"
)

// Calendar fixes the time zone used for day and month boundaries and the
// clock used for "now". Tests replace Now.
type Calendar struct {
	Location *time.Location
	Now      func() time.Time
}

func NewCalendar(loc *time.Location) Calendar {
	return Calendar{Location: loc, Now: time.Now}
}

// Today is the first instant of the current local day.
func (c Calendar) Today() time.Time {
	return domain.StartOfDay(c.Now(), c.Location)
}
