// Package pii walks an outgoing JSON response body and masks sensitive
// fields before transmission, unless the caller holds the view_pii
// permission.
package pii

import (
	"regexp"
	"strings"
)

// sensitiveKeys is matched case-insensitively against map keys; any string
// value under a matching key is replaced outright regardless of content.
var sensitiveKeys = map[string]struct{}{
	"customer_name": {}, "customername": {},
	"phone": {}, "phone_number": {}, "mobile": {},
	"email":   {},
	"address": {}, "delivery_address": {},
	"gst_number": {}, "gstnumber": {}, "gst": {},
	"aadhaar": {}, "aadhaar_number": {},
	"pan": {}, "pan_number": {},
	"cvv":      {},
	"password": {},
	"secret":   {},
	"token":    {}, "access_token": {}, "api_key": {}, "apikey": {},
}

const redacted = "[REDACTED]"

// valuePattern is one value-based scan rule: match anywhere in a string
// value and replace the matched substring with a pattern-specific token.
type valuePattern struct {
	name    string
	re      *regexp.Regexp
	replace string
}

var valuePatterns = []valuePattern{
	{"email", regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`), "[EMAIL REDACTED]"},
	{"credit card", regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`), "[CARD REDACTED]"},
	{"aadhaar", regexp.MustCompile(`\b\d{4}\s?\d{4}\s?\d{4}\b`), "[AADHAAR REDACTED]"},
	{"pan", regexp.MustCompile(`\b[A-Z]{5}\d{4}[A-Z]\b`), "[PAN REDACTED]"},
	{"gst", regexp.MustCompile(`\b\d{2}[A-Z]{5}\d{4}[A-Z][A-Z\d]Z[A-Z\d]\b`), "[GST REDACTED]"},
	{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[SSN REDACTED]"},
	{"uk ni", regexp.MustCompile(`\b[A-CEGHJ-PR-TW-Z]{2}\d{6}[A-D]\b`), "[NI REDACTED]"},
	{"ipv4", regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`), "[IP REDACTED]"},
}

// phoneCandidate finds substrings shaped like a phone number; validity
// against a region is then checked by looksLikePhone.
var phoneCandidate = regexp.MustCompile(`[+]?[\d\s\-()]{7,20}`)

// Redactor masks sensitive data in arbitrary decoded-JSON values
// (map[string]any / []any / scalars), as produced by encoding/json's
// default decode-into-interface{} behavior.
type Redactor struct{}

// New constructs a Redactor. It holds no state; methods are pure functions
// of their input.
func New() *Redactor { return &Redactor{} }

// Redact returns a redacted copy of v; the original is never mutated.
func (r *Redactor) Redact(v interface{}) interface{} {
	return r.walk(v, "")
}

func (r *Redactor) walk(v interface{}, key string) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = r.walk(val, k)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = r.walk(val, key)
		}
		return out
	case string:
		return r.redactString(t, key)
	default:
		// numbers, bools, nil pass through untouched.
		return v
	}
}

func (r *Redactor) redactString(s, key string) string {
	if isSensitiveKey(key) {
		return redacted
	}
	for _, p := range valuePatterns {
		if p.re.MatchString(s) {
			return p.re.ReplaceAllString(s, p.replace)
		}
	}
	if masked, ok := redactPhone(s); ok {
		return masked
	}
	return s
}

func isSensitiveKey(key string) bool {
	if key == "" {
		return false
	}
	_, ok := sensitiveKeys[strings.ToLower(key)]
	return ok
}

func redactPhone(s string) (string, bool) {
	matches := phoneCandidate.FindAllString(s, -1)
	out := s
	found := false
	for _, m := range matches {
		if looksLikePhone(m) {
			out = strings.Replace(out, m, "[PHONE REDACTED]", 1)
			found = true
		}
	}
	return out, found
}
