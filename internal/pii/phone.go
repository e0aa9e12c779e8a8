package pii

import "regexp"

// regionRule is a coarse validity check for a phone-number candidate
// against one region's national numbering plan. No phone-number parsing
// library exists anywhere in the dependency set this project draws from,
// so these are hand-rolled length/prefix heuristics rather than a full
// E.164 implementation — sufficient to decide "does this look like a
// real phone number" for redaction purposes, not to validate dialability.
type regionRule struct {
	region string
	re     *regexp.Regexp
}

var digitsOnly = regexp.MustCompile(`\D`)

var regionRules = []regionRule{
	{"IN", regexp.MustCompile(`^(91)?[6-9]\d{9}$`)},
	{"US", regexp.MustCompile(`^1?[2-9]\d{9}$`)},
	{"CA", regexp.MustCompile(`^1?[2-9]\d{9}$`)},
	{"GB", regexp.MustCompile(`^44?7\d{9}$|^0?7\d{9}$`)},
	{"AU", regexp.MustCompile(`^61?4\d{8}$|^0?4\d{8}$`)},
	{"DE", regexp.MustCompile(`^49?1\d{9,10}$|^0?1\d{9,10}$`)},
	{"FR", regexp.MustCompile(`^33?[67]\d{8}$|^0?[67]\d{8}$`)},
	{"JP", regexp.MustCompile(`^81?[789]0\d{8}$|^0?[789]0\d{8}$`)},
	{"SG", regexp.MustCompile(`^65?[89]\d{7}$`)},
}

// looksLikePhone reports whether a candidate substring is plausibly a
// phone number in any of the supported regions.
func looksLikePhone(candidate string) bool {
	digits := digitsOnly.ReplaceAllString(candidate, "")
	if len(digits) < 7 || len(digits) > 15 {
		return false
	}
	for _, rule := range regionRules {
		if rule.re.MatchString(digits) {
			return true
		}
	}
	return false
}
