package pii

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactSensitiveKeyRegardlessOfContent(t *testing.T) {
	r := New()
	in := map[string]interface{}{
		"customer_name": "Ramesh Kumar",
		"order_id":      "ord_123",
	}
	out := r.Redact(in).(map[string]interface{})
	assert.Equal(t, redacted, out["customer_name"])
	assert.Equal(t, "ord_123", out["order_id"])
}

func TestRedactEmailValuePattern(t *testing.T) {
	r := New()
	out := r.Redact(map[string]interface{}{"notes": "contact ramesh@example.com for details"}).(map[string]interface{})
	assert.Contains(t, out["notes"], "[EMAIL REDACTED]")
	assert.NotContains(t, out["notes"], "ramesh@example.com")
}

func TestRedactGSTNumberPattern(t *testing.T) {
	r := New()
	out := r.Redact(map[string]interface{}{"note": "GST is 27AAAAA0000A1Z5 on file"}).(map[string]interface{})
	assert.Contains(t, out["note"], "[GST REDACTED]")
}

func TestRedactWalksNestedSlicesAndMaps(t *testing.T) {
	r := New()
	in := map[string]interface{}{
		"items": []interface{}{
			map[string]interface{}{"phone": "9876543210"},
		},
	}
	out := r.Redact(in).(map[string]interface{})
	items := out["items"].([]interface{})
	first := items[0].(map[string]interface{})
	assert.Equal(t, redacted, first["phone"])
}

func TestRedactLeavesNonStringScalarsUntouched(t *testing.T) {
	r := New()
	in := map[string]interface{}{"total_amount_ps": float64(22000), "is_interstate": false, "meta": nil}
	out := r.Redact(in).(map[string]interface{})
	assert.Equal(t, float64(22000), out["total_amount_ps"])
	assert.Equal(t, false, out["is_interstate"])
	assert.Nil(t, out["meta"])
}
