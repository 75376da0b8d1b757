package date

// Range represents a range of dates, boundaries included.
type Range struct{ From, To Date }

// Contains return true date is included in the range (boundaries included)
func (r Range) Contains(date Date) bool { return !date.Before(r.From) && !date.After(r.To) }

// Extend returns the smallest range that contains both r and d.
// Extending the zero Range yields the single day d.
func (r Range) Extend(d Date) Range {
	if r.From.IsZero() || d.Before(r.From) {
		r.From = d
	}
	if r.To.IsZero() || d.After(r.To) {
		r.To = d
	}
	return r
}

// IsSingleDay reports whether the range covers exactly one day.
func (r Range) IsSingleDay() bool { return r.From == r.To }

// String returns "from" for single day ranges and "from..to" otherwise.
func (r Range) String() string {
	if r.IsSingleDay() {
		return r.From.String()
	}
	return r.From.String() + ".." + r.To.String()
}
