package rcs

import (
	"bytes"
	"fmt"
	"strconv"
)

// parseDate decodes the "Y.mm.dd.hh.mm.ss" date token (spec §4.2 "Date
// parsing").
//
// The source text's year component is ambiguous between a pre-2000,
// 2-digit CVS convention ("96" meaning 1996) and a post-2000, full
// 4-digit convention ("2004" meaning 2004 outright) written by newer RCS
// implementations. This resolves spec §4.2's "subtract 1900 if >= 100"
// phrasing the same way rcs(1) itself does: values below 100 are treated
// as already being years-since-1900 (so the calendar year is 1900+Y),
// and values at or above 100 are treated as a full calendar year written
// out (so no offset is applied). Year below always holds the resolved
// four-digit calendar year; Raw preserves the original bytes untouched.
func parseDate(lit []byte) (Date, error) {
	parts := bytes.Split(lit, []byte("."))
	if len(parts) != 6 {
		return Date{}, fmt.Errorf("%w: date %q does not have 6 components", errGrammar, lit)
	}
	nums := make([]int, 6)
	for i, p := range parts {
		n, err := strconv.Atoi(string(p))
		if err != nil || n < 0 {
			return Date{}, fmt.Errorf("%w: date %q has a non-numeric component", errGrammar, lit)
		}
		nums[i] = n
	}

	year := nums[0]
	if year < 100 {
		year += 1900
	}
	month, day, hour, min, sec := nums[1], nums[2], nums[3], nums[4], nums[5]

	switch {
	case month < 1 || month > 12:
		return Date{}, fmt.Errorf("%w: date %q has month out of range", errGrammar, lit)
	case day < 1 || day > 31:
		return Date{}, fmt.Errorf("%w: date %q has day out of range", errGrammar, lit)
	case hour < 0 || hour > 23:
		return Date{}, fmt.Errorf("%w: date %q has hour out of range", errGrammar, lit)
	case min < 0 || min > 59:
		return Date{}, fmt.Errorf("%w: date %q has minute out of range", errGrammar, lit)
	case sec < 0 || sec > 60:
		return Date{}, fmt.Errorf("%w: date %q has second out of range", errGrammar, lit)
	}

	raw := make([]byte, len(lit))
	copy(raw, lit)
	return Date{Year: year, Month: month, Day: day, Hour: hour, Min: min, Sec: sec, Raw: raw}, nil
}
