package engine

import "fmt"

// =============================================================================
// DATE RANGE - Half-open stay interval [Start, End)
// =============================================================================

// DateRange is a half-open interval: the start date is the first night,
// the end date is checkout day and belongs to the next guest. A stay from
// Oct 10 to Oct 15 occupies the nights of Oct 10..14.
type DateRange struct {
	Start TimePoint
	End   TimePoint
}

func NewDateRange(start, end TimePoint) (DateRange, error) {
	r := DateRange{Start: start, End: end}
	if !start.Before(end) {
		return DateRange{}, ErrInvalidRange
	}
	return r, nil
}

// Nights returns the number of nights the range spans.
func (r DateRange) Nights() int {
	return r.Start.DaysUntil(r.End)
}

// Overlaps reports whether two half-open intervals intersect:
// [s1,e1) and [s2,e2) overlap iff s1 < e2 AND s2 < e1. A reservation
// ending on date D never conflicts with one starting on date D.
func (r DateRange) Overlaps(other DateRange) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}

// Contains reports whether the date falls within the range (end excluded).
func (r DateRange) Contains(t TimePoint) bool {
	return t.AfterOrEqual(r.Start) && t.Before(r.End)
}

func (r DateRange) String() string {
	return fmt.Sprintf("[%s, %s)", r.Start, r.End)
}
