// Package triage holds the static symptom keyword tables used to surface
// supplementary guidance alongside the AI conversation. The tables are
// read-only configuration: lookup is the only behavior.
package triage

import "strings"

// ConditionInfo maps a set of symptom keywords to canned guidance text and
// a flag indicating whether offering to book an appointment is appropriate.
type ConditionInfo struct {
	Keywords     []string
	Response     string
	OfferBooking bool
}

// Lookup scans the major table first, then the minor table, and returns the
// first record with a keyword contained in the input. Matching is
// case-insensitive substring matching; table order is significant.
func Lookup(input string) (ConditionInfo, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return ConditionInfo{}, false
	}
	for _, table := range [][]ConditionInfo{MajorConditions, MinorConditions} {
		for _, info := range table {
			for _, kw := range info.Keywords {
				if strings.Contains(normalized, kw) {
					return info, true
				}
			}
		}
	}
	return ConditionInfo{}, false
}
