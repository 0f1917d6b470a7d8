package pricing

import (
	"strings"
	"unicode"
)

type matchKind int

const (
	matchNone matchKind = iota
	matchContainsReverse
	matchContains
	matchExactReverse
	matchExact
)

// MatchFixedPrice picks the fixed route for a trip. Exact text beats contained text,
// and the booked direction beats the reverse of a reversible route. Among contained
// matches the longest route text wins; remaining ties go to the lowest ID.
func MatchFixedPrice(routes []FixedPrice, pickup, dropoff, vehicleType string) (FixedPrice, bool) {
	np, nd := normalizePlace(pickup), normalizePlace(dropoff)
	if np == "" || nd == "" {
		return FixedPrice{}, false
	}

	var best FixedPrice
	bestKind, bestLen := matchNone, 0
	for _, r := range routes {
		if !strings.EqualFold(strings.TrimSpace(r.VehicleType), strings.TrimSpace(vehicleType)) {
			continue
		}
		rp, rd := normalizePlace(r.Pickup), normalizePlace(r.Dropoff)
		if rp == "" || rd == "" {
			continue
		}
		kind := classify(np, nd, rp, rd, r.IsReverse)
		if kind == matchNone {
			continue
		}
		length := len(rp) + len(rd)
		if kind > bestKind ||
			(kind == bestKind && length > bestLen) ||
			(kind == bestKind && length == bestLen && r.ID < best.ID) {
			best, bestKind, bestLen = r, kind, length
		}
	}
	return best, bestKind != matchNone
}

func classify(np, nd, rp, rd string, reversible bool) matchKind {
	switch {
	case np == rp && nd == rd:
		return matchExact
	case reversible && np == rd && nd == rp:
		return matchExactReverse
	case containsWords(np, rp) && containsWords(nd, rd):
		return matchContains
	case reversible && containsWords(np, rd) && containsWords(nd, rp):
		return matchContainsReverse
	}
	return matchNone
}

// containsWords reports whether needle appears in text on word boundaries.
func containsWords(text, needle string) bool {
	return strings.Contains(" "+text+" ", " "+needle+" ")
}

// normalizePlace lower-cases, turns punctuation into spaces and collapses whitespace.
func normalizePlace(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}
