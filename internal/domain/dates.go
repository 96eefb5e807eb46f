package domain

import (
	"errors"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// AllStores is the store scope sentinel accepted on report endpoints.
const AllStores = "all"

var ErrInvalidDateRange = errors.New("invalid date range")

// StoreScope selects a single store or every store, optionally narrowed to
// one terminal.
type StoreScope struct {
	StoreID    string
	TerminalID string
}

func ParseStoreScope(raw string) StoreScope {
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, AllStores) {
		return StoreScope{}
	}
	return StoreScope{StoreID: raw}
}

func (s StoreScope) All() bool {
	return s.StoreID == ""
}

func (s StoreScope) Matches(storeID string) bool {
	return s.All() || s.StoreID == storeID
}

// Includes reports whether tx falls inside the scope.
func (s StoreScope) Includes(tx Transaction) bool {
	if !s.Matches(tx.StoreID) {
		return false
	}
	return s.TerminalID == "" || s.TerminalID == tx.TerminalID
}

func (s StoreScope) String() string {
	if s.All() {
		return AllStores
	}
	return s.StoreID
}

// DateRange is an inclusive range of calendar dates in the business location.
type DateRange struct {
	From     time.Time
	To       time.Time
	Location *time.Location
}

func NewDateRange(from string, to string, loc *time.Location) (DateRange, error) {
	if loc == nil {
		loc = time.UTC
	}
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if to == "" {
		to = from
	}
	start, err := time.ParseInLocation(DateLayout, from, loc)
	if err != nil {
		return DateRange{}, ErrInvalidDateRange
	}
	end, err := time.ParseInLocation(DateLayout, to, loc)
	if err != nil {
		return DateRange{}, ErrInvalidDateRange
	}
	if end.Before(start) {
		return DateRange{}, ErrInvalidDateRange
	}
	return DateRange{From: start, To: end, Location: loc}, nil
}

// SingleDay returns the range covering the calendar day of t in loc.
func SingleDay(t time.Time, loc *time.Location) DateRange {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return DateRange{From: day, To: day, Location: loc}
}

func (r DateRange) loc() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}

// Start is from-date 00:00:00 local time.
func (r DateRange) Start() time.Time {
	return time.Date(r.From.Year(), r.From.Month(), r.From.Day(), 0, 0, 0, 0, r.loc())
}

// End is to-date 23:59:59.999999999 local time.
func (r DateRange) End() time.Time {
	return time.Date(r.To.Year(), r.To.Month(), r.To.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), r.loc())
}

func (r DateRange) FromString() string {
	return r.From.Format(DateLayout)
}

func (r DateRange) ToString() string {
	return r.To.Format(DateLayout)
}

// DateOf returns the calendar date of t in the range's location.
func (r DateRange) DateOf(t time.Time) string {
	return t.In(r.loc()).Format(DateLayout)
}

// ContainsDate compares only the date component of t in the business location.
func (r DateRange) ContainsDate(t time.Time) bool {
	d := r.DateOf(t)
	return d >= r.FromString() && d <= r.ToString()
}
