package pkg

import (
	"fmt"
	"time"
)

// Core types shared by the chatbot services

// Date is a calendar date without a clock or zone
type Date struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
	Day   int        `json:"day"`
}

// NewDate builds a Date and reports whether the parts form a real calendar day
func NewDate(year int, month time.Month, day int) (Date, bool) {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return Date{}, false
	}
	return Date{Year: year, Month: month, Day: day}, true
}

// DateOf returns the calendar date of t in t's location
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) asTime() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// AddDays shifts the date by n days (n may be negative)
func (d Date) AddDays(n int) Date {
	return DateOf(d.asTime().AddDate(0, 0, n))
}

// Weekday returns the day of the week
func (d Date) Weekday() time.Weekday {
	return d.asTime().Weekday()
}

// Equal reports whether both dates denote the same day
func (d Date) Equal(other Date) bool {
	return d == other
}

// Before reports whether d is strictly earlier than other
func (d Date) Before(other Date) bool {
	return d.asTime().Before(other.asTime())
}

// IsZero reports whether the date is unset
func (d Date) IsZero() bool {
	return d == Date{}
}

// At combines the date with a clock into minutes since the Unix epoch day
func (d Date) At(c Clock) int64 {
	return d.asTime().Unix()/60 + int64(c)
}

// String formats the date as DD.MM.YYYY, the spreadsheet format
func (d Date) String() string {
	return fmt.Sprintf("%02d.%02d.%04d", d.Day, int(d.Month), d.Year)
}

// Clock is a time of day in minutes since midnight (0..1439)
type Clock int

const (
	// EndOfDay is the last minute of a day
	EndOfDay Clock = 23*60 + 59
)

// NewClock builds a Clock and reports whether hour and minute are in range
func NewClock(hour, minute int) (Clock, bool) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, false
	}
	return Clock(hour*60 + minute), true
}

// ClockOf returns the minute-precision time of day of t
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

// Hour returns the hour component
func (c Clock) Hour() int { return int(c) / 60 }

// Minute returns the minute component
func (c Clock) Minute() int { return int(c) % 60 }

// String formats the clock as HH:MM
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// PlaylistRecord is one logged airing of a song
type PlaylistRecord struct {
	Title    string `json:"title"`
	AirDate  Date   `json:"air_date"`
	AirTime  Clock  `json:"air_time"`
	Likes    int    `json:"likes"`
	Dislikes int    `json:"dislikes"`
}

// PlaylistSnapshot is the full in-memory copy of the spreadsheet, replaced wholesale on refresh
type PlaylistSnapshot struct {
	Records   []PlaylistRecord `json:"records"`
	FetchedAt time.Time        `json:"fetched_at"`
	Source    string           `json:"source"`
}

// Len returns the number of records, tolerating a nil snapshot
func (s *PlaylistSnapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// PriceEntry maps a lowercase keyword to a price text
type PriceEntry struct {
	Keyword   string `json:"keyword" yaml:"keyword"`
	PriceText string `json:"price" yaml:"price"`
}

// TimeWindow bounds a playlist query; Start <= End always holds
type TimeWindow struct {
	Date  Date  `json:"date"`
	Start Clock `json:"start"`
	End   Clock `json:"end"`
}

// IsPoint reports whether the window collapses to a single minute
func (w TimeWindow) IsPoint() bool {
	return w.Start == w.End
}

// Contains reports whether a record aired inside the window (inclusive)
func (w TimeWindow) Contains(r PlaylistRecord) bool {
	return r.AirDate.Equal(w.Date) && r.AirTime >= w.Start && r.AirTime <= w.End
}

func (w TimeWindow) String() string {
	if w.IsPoint() {
		return fmt.Sprintf("%s %s", w.Date, w.Start)
	}
	return fmt.Sprintf("%s %s-%s", w.Date, w.Start, w.End)
}

// Intent names the branch a message was routed to
type Intent string

const (
	IntentPrice    Intent = "price"
	IntentPlaylist Intent = "playlist"
	IntentFallback Intent = "fallback"
)

// ChatReply is the single output of one request; it is never stored
type ChatReply struct {
	Text   string `json:"reply"`
	Intent Intent `json:"-"`
}
