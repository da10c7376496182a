package dates

import "time"

// Service performs calendar-day arithmetic pinned to a single timezone.
// All rule evaluation happens in the business timezone, not UTC, so a deal
// whose deadline is "today" in Los Angeles is treated as due regardless of
// the server clock's offset.
type Service struct {
	loc *time.Location
}

func NewService(loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{loc: loc}
}

// Today returns the civil date containing now in the service timezone,
// as midnight UTC of that date.
func (s *Service) Today(now time.Time) time.Time {
	return s.Civil(now)
}

// Civil truncates a timestamp to its civil date in the service timezone.
// The result is midnight UTC of that date, so two timestamps on the same
// local day always map to the same value.
func (s *Service) Civil(t time.Time) time.Time {
	local := t.In(s.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysUntil returns the number of whole calendar days from "from" until
// "target". Negative when the target is in the past.
func (s *Service) DaysUntil(target, from time.Time) int {
	a := s.Civil(from)
	b := s.Civil(target)
	return int(b.Sub(a).Hours() / 24)
}

// DaysSince returns the number of whole calendar days elapsed since
// "since", floored at zero.
func (s *Service) DaysSince(since, from time.Time) int {
	d := s.DaysUntil(from, since)
	if d < 0 {
		return 0
	}
	return d
}

// SameDay reports whether two timestamps fall on the same civil date.
func (s *Service) SameDay(a, b time.Time) bool {
	return s.Civil(a).Equal(s.Civil(b))
}

// AddDays shifts a timestamp by n calendar days, preserving its time of day.
func (s *Service) AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// Location exposes the pinned timezone.
func (s *Service) Location() *time.Location {
	return s.loc
}
