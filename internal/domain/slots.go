package domain

// GenerateSlots returns candidate start times t, t+(duration+buffer), ... for as long as a
// slot of duration still ends at or before end. It returns nil when duration is not positive
// or the step would not advance.
func GenerateSlots(start, end ClockTime, duration, buffer int) []ClockTime {
	if duration <= 0 {
		return nil
	}
	step := duration + buffer
	if step <= 0 {
		return nil
	}
	if start.Add(duration) > end {
		return nil
	}

	out := make([]ClockTime, 0, (end.Minutes()-start.Minutes()-duration)/step+1)
	for t := start; t.Add(duration) <= end; t = t.Add(step) {
		out = append(out, t)
	}
	return out
}

// Overlaps reports whether the half-open ranges [aStart, aEnd) and [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd ClockTime) bool {
	return aStart < bEnd && aEnd > bStart
}
