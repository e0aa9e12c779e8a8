package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNullableStringMapsEmptyToNil(t *testing.T) {
	assert.Nil(t, nullableString(""))
	phone := "9876543210"
	assert.Equal(t, &phone, nullableString("9876543210"))
}

func TestNextSequenceStartsAtOneForAnOrgWithNoInvoicesYet(t *testing.T) {
	assert.Equal(t, 1, nextSequence(nil))
}

func TestNextSequenceIsMonotonicPerOrg(t *testing.T) {
	// Invariant: sequence numbers never repeat or go backward within an org.
	seq := 1
	for i := 0; i < 5; i++ {
		next := nextSequence(&seq)
		assert.Equal(t, seq+1, next)
		seq = next
	}
	assert.Equal(t, 6, seq)
}

func TestNextSequenceIsIndependentAcrossOrgs(t *testing.T) {
	// Invariant: two orgs' sequences never interact — each org's next value
	// depends only on its own max, never on another org's allocations.
	orgAMax := 12
	orgBMax := 1

	assert.Equal(t, 13, nextSequence(&orgAMax))
	assert.Equal(t, 2, nextSequence(&orgBMax))
}
