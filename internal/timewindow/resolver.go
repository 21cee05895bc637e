package timewindow

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"ruwave_bot/pkg"
)

// DateRule names the rule that produced the window date
type DateRule string

const (
	DateExplicit DateRule = "explicit"
	DateRelative DateRule = "relative"
	DateWeekday  DateRule = "weekday"
	DateMonthDay DateRule = "month_day"
	DateToday    DateRule = "today"
	// DateModel is set by resolvers backed by a language model
	DateModel DateRule = "model"
)

// TimeRule names the rule that produced the window bounds
type TimeRule string

const (
	TimeRange     TimeRule = "range"
	TimeSingle    TimeRule = "single"
	TimeNow       TimeRule = "now"
	TimePartOfDay TimeRule = "part_of_day"
	TimeWholeDay  TimeRule = "whole_day"
	TimeModel     TimeRule = "model"
)

// Resolution is a resolved window together with the rules that built it
type Resolution struct {
	Window   pkg.TimeWindow
	DateRule DateRule
	TimeRule TimeRule
}

// Resolver turns free-form text into a playlist time window
type Resolver interface {
	Resolve(ctx context.Context, text string, now time.Time) (Resolution, error)
}

// RuleResolver is the deterministic resolver. Date and time are resolved
// independently, each by the first applicable rule.
type RuleResolver struct {
	loc *time.Location
}

// NewRuleResolver creates a resolver that reads now in loc
func NewRuleResolver(loc *time.Location) *RuleResolver {
	if loc == nil {
		loc = time.UTC
	}
	return &RuleResolver{loc: loc}
}

// Location returns the station time zone
func (r *RuleResolver) Location() *time.Location {
	return r.loc
}

// Resolve implements Resolver
func (r *RuleResolver) Resolve(ctx context.Context, text string, now time.Time) (Resolution, error) {
	now = now.In(r.loc)
	s := normalize(text)

	date, dateRule, err := resolveDate(s, pkg.DateOf(now))
	if err != nil {
		return Resolution{}, err
	}

	start, end, timeRule, err := resolveTime(stripDates(s), pkg.ClockOf(now))
	if err != nil {
		return Resolution{}, err
	}

	return Resolution{
		Window:   pkg.TimeWindow{Date: date, Start: start, End: end},
		DateRule: dateRule,
		TimeRule: timeRule,
	}, nil
}

func normalize(text string) string {
	return strings.ReplaceAll(strings.ToLower(text), "ё", "е")
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// mentions matches single words against whole tokens and multi-word phrases as substrings
func mentions(s string, tokens []string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(w, " ") {
			if strings.Contains(s, w) {
				return true
			}
			continue
		}
		for _, t := range tokens {
			if t == w {
				return true
			}
		}
	}
	return false
}

func hasTokenPrefix(tokens []string, prefixes ...string) bool {
	for _, t := range tokens {
		for _, p := range prefixes {
			if strings.HasPrefix(t, p) {
				return true
			}
		}
	}
	return false
}

// ---- date ----

var (
	// one expression per separator so "10.00-11.00" is never read as a date
	numericDateREs = []*regexp.Regexp{
		regexp.MustCompile(`(?:^|[^\d])(\d{1,2})\.(\d{1,2})\.(\d{4}|\d{2})(?:[^\d]|$)`),
		regexp.MustCompile(`(?:^|[^\d])(\d{1,2})/(\d{1,2})/(\d{4}|\d{2})(?:[^\d]|$)`),
		regexp.MustCompile(`(?:^|[^\d])(\d{1,2})-(\d{1,2})-(\d{4}|\d{2})(?:[^\d]|$)`),
	}
	daysAgoRE  = regexp.MustCompile(`(\d{1,3})\s*(?:дня|дней|день|days|day|gün)\s*(?:назад|ago|önce)`)
	monthDayRE = regexp.MustCompile(`(?:^|[^\d:.])(\d{1,2})\s+(\pL+)`)
)

var relativeDays = []struct {
	words  []string
	offset int
}{
	{[]string{"позавчера", "day before yesterday", "evvelsi gün", "önceki gün"}, -2},
	{[]string{"вчера", "yesterday", "dün"}, -1},
	{[]string{"сегодня", "today", "bugün"}, 0},
}

// checked in order so "pazartesi" wins over "pazar" and "cumartesi" over "cuma"
var weekdays = []struct {
	prefixes []string
	day      time.Weekday
}{
	{[]string{"понедельник", "monday", "pazartesi"}, time.Monday},
	{[]string{"вторник", "tuesday", "salı"}, time.Tuesday},
	{[]string{"среда", "среду", "среды", "wednesday", "çarşamba"}, time.Wednesday},
	{[]string{"четверг", "thursday", "perşembe"}, time.Thursday},
	{[]string{"пятниц", "friday"}, time.Friday},
	{[]string{"суббот", "saturday", "cumartesi"}, time.Saturday},
	{[]string{"воскресень", "sunday"}, time.Sunday},
	{[]string{"cuma"}, time.Friday},
	{[]string{"pazar"}, time.Sunday},
}

// Russian and Turkish month names inflect, so their stems match by prefix.
// English names are whole words: "may" must not catch "maybe".
var months = []struct {
	prefixes []string
	names    []string
	month    time.Month
}{
	{[]string{"январ", "ocak"}, []string{"january", "jan"}, time.January},
	{[]string{"феврал", "şubat"}, []string{"february", "feb"}, time.February},
	{[]string{"март", "mart"}, []string{"march"}, time.March},
	{[]string{"апрел", "nisan"}, []string{"april", "apr"}, time.April},
	{[]string{"мая", "май", "mayıs"}, []string{"may"}, time.May},
	{[]string{"июн", "haziran"}, []string{"june"}, time.June},
	{[]string{"июл", "temmuz"}, []string{"july"}, time.July},
	{[]string{"август", "ağustos"}, []string{"august", "aug"}, time.August},
	{[]string{"сентябр", "eylül"}, []string{"september", "sept", "sep"}, time.September},
	{[]string{"октябр", "ekim"}, []string{"october", "oct"}, time.October},
	{[]string{"ноябр", "kasım"}, []string{"november", "nov"}, time.November},
	{[]string{"декабр", "aralık"}, []string{"december", "dec"}, time.December},
}

func monthOf(word string) (time.Month, bool) {
	for _, m := range months {
		for _, n := range m.names {
			if word == n {
				return m.month, true
			}
		}
		for _, p := range m.prefixes {
			if strings.HasPrefix(word, p) {
				return m.month, true
			}
		}
	}
	return 0, false
}

func resolveDate(s string, today pkg.Date) (pkg.Date, DateRule, error) {
	for _, re := range numericDateREs {
		m := re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if len(m[3]) == 2 {
			year += 2000
		}
		date, ok := pkg.NewDate(year, time.Month(month), day)
		if !ok {
			return pkg.Date{}, "", fmt.Errorf("%w: invalid date %q", pkg.ErrNoTimeWindowFound, strings.TrimSpace(m[0]))
		}
		return date, DateExplicit, nil
	}

	if m := daysAgoRE.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		return today.AddDays(-n), DateRelative, nil
	}

	tokens := tokenize(s)
	for _, rel := range relativeDays {
		if mentions(s, tokens, rel.words...) {
			return today.AddDays(rel.offset), DateRelative, nil
		}
	}

	for _, wd := range weekdays {
		if hasTokenPrefix(tokens, wd.prefixes...) {
			back := (int(today.Weekday()) - int(wd.day) + 7) % 7
			return today.AddDays(-back), DateWeekday, nil
		}
	}

	for _, m := range monthDayRE.FindAllStringSubmatch(s, -1) {
		month, ok := monthOf(m[2])
		if !ok {
			continue
		}
		day, _ := strconv.Atoi(m[1])
		date, ok := pkg.NewDate(today.Year, month, day)
		if !ok {
			return pkg.Date{}, "", fmt.Errorf("%w: invalid date %q", pkg.ErrNoTimeWindowFound, strings.TrimSpace(m[0]))
		}
		return date, DateMonthDay, nil
	}

	return today, DateToday, nil
}

// stripDates blanks out every date phrase so its digits are not read as a clock time
func stripDates(s string) string {
	for _, re := range numericDateREs {
		s = re.ReplaceAllString(s, " ")
	}
	s = daysAgoRE.ReplaceAllString(s, " ")
	return monthDayRE.ReplaceAllStringFunc(s, func(match string) string {
		m := monthDayRE.FindStringSubmatch(match)
		if _, ok := monthOf(m[2]); ok {
			return " "
		}
		return match
	})
}

// ---- time ----

const (
	suffixExpr   = `(?:\s*(p\.?m\.?|a\.?m\.?|вечером|вечера|утром|утра|дня|ночью|ночи))?`
	boundaryExpr = `(?:[^\pL\d]|$)`
)

var (
	rangeREs = []*regexp.Regexp{
		regexp.MustCompile(`(?:^|[^\pL\d])(?:с|со|от|from|between)\s*(\d{1,2})(?:[:.](\d{2}))?\s*(?:-|–|—|до|по|to|till|until|and)\s*(\d{1,2})(?:[:.](\d{2}))?` + suffixExpr + boundaryExpr),
		regexp.MustCompile(`(?:^|[^\d])(\d{1,2})[:.](\d{2})\s*[-–—]\s*(\d{1,2})[:.](\d{2})` + suffixExpr + boundaryExpr),
		regexp.MustCompile(`(?:^|[^\d])(\d{1,2})(?:[:.](\d{2}))?\s*(?:-|–|ile)\s*(\d{1,2})(?:[:.](\d{2}))?()\s*aras`),
	}
	singleREs = []*regexp.Regexp{
		regexp.MustCompile(`(?:^|[^\pL\d])(?:в|во|at|around|около|saat)\s*(\d{1,2})(?:[:.](\d{2}))?` + suffixExpr + boundaryExpr),
		regexp.MustCompile(`(?:^|[^\d])(\d{1,2})[:.](\d{2})` + suffixExpr + boundaryExpr),
		regexp.MustCompile(`(?:^|[^\pL\d])(\d{1,2})()\s*(p\.?m\.?|a\.?m\.?|вечера|утра|ночи)` + boundaryExpr),
	}
)

var partsOfDay = []struct {
	prefixes   []string
	phrases    []string
	start, end pkg.Clock
}{
	{[]string{"утр", "morning", "sabah"}, nil, 6 * 60, 11*60 + 59},
	{[]string{"днем", "afternoon", "öğleden"}, []string{"после обеда"}, 12 * 60, 17*60 + 59},
	{[]string{"вечер", "evening", "tonight", "akşam"}, nil, 18 * 60, pkg.EndOfDay},
	{[]string{"ноч", "night", "gece"}, nil, 0, 5*60 + 59},
}

var nowWords = []string{"сейчас", "щас", "now", "currently", "şimdi", "в данный момент", "на данный момент"}

func resolveTime(s string, now pkg.Clock) (pkg.Clock, pkg.Clock, TimeRule, error) {
	for _, re := range rangeREs {
		m := re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		// a trailing am/pm word belongs to the end bound; the start takes it
		// only while it stays at or before the end ("from 9 to 11 pm")
		end, err := clockFrom(m[3], m[4], m[5])
		if err != nil {
			return 0, 0, "", err
		}
		start, err := clockFrom(m[1], m[2], "")
		if err != nil {
			return 0, 0, "", err
		}
		if shifted, err := clockFrom(m[1], m[2], m[5]); err == nil && shifted <= end {
			start = shifted
		}
		if start > end {
			start, end = end, start
		}
		return start, end, TimeRange, nil
	}

	for _, re := range singleREs {
		m := re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		at, err := clockFrom(m[1], m[2], m[3])
		if err != nil {
			return 0, 0, "", err
		}
		return at, at, TimeSingle, nil
	}

	tokens := tokenize(s)
	if mentions(s, tokens, nowWords...) {
		return now, now, TimeNow, nil
	}

	for _, part := range partsOfDay {
		if hasTokenPrefix(tokens, part.prefixes...) || mentions(s, tokens, part.phrases...) {
			return part.start, part.end, TimePartOfDay, nil
		}
	}

	return 0, pkg.EndOfDay, TimeWholeDay, nil
}

// clockFrom builds a clock from regexp groups; minutes default to 00
func clockFrom(hourStr, minuteStr, suffix string) (pkg.Clock, error) {
	hour, _ := strconv.Atoi(hourStr)
	minute := 0
	if minuteStr != "" {
		minute, _ = strconv.Atoi(minuteStr)
	}

	switch strings.ReplaceAll(suffix, ".", "") {
	case "pm", "вечера", "вечером", "дня":
		if hour < 12 {
			hour += 12
		}
	case "am", "ночи", "ночью", "утра", "утром":
		if hour == 12 {
			hour = 0
		}
	}

	c, ok := pkg.NewClock(hour, minute)
	if !ok {
		return 0, fmt.Errorf("%w: invalid time %s:%02d", pkg.ErrNoTimeWindowFound, hourStr, minute)
	}
	return c, nil
}
