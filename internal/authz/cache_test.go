package authz

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwnerCache_GetSet(t *testing.T) {
	c := NewOwnerCache(16)
	id := uuid.New()
	hospital := uuid.New()

	// Miss on empty cache.
	_, ok := c.Patient(id)
	assert.False(t, ok)

	c.SetPatient(id, hospital)

	got, ok := c.Patient(id)
	require.True(t, ok)
	assert.Equal(t, hospital, got)

	// Patients and cases are separate namespaces.
	_, ok = c.Case(id)
	assert.False(t, ok, "patient entry must not answer case lookups")
}

func TestOwnerCache_NilIsValid(t *testing.T) {
	var c *OwnerCache

	c.SetPatient(uuid.New(), uuid.New())
	c.SetCase(uuid.New(), uuid.New())

	_, ok := c.Patient(uuid.New())
	assert.False(t, ok)
	_, ok = c.Case(uuid.New())
	assert.False(t, ok)
}

func TestOwnerCache_Eviction(t *testing.T) {
	c := NewOwnerCache(2)
	first := uuid.New()
	hospital := uuid.New()

	c.SetCase(first, hospital)
	c.SetCase(uuid.New(), hospital)
	c.SetCase(uuid.New(), hospital)

	_, ok := c.Case(first)
	assert.False(t, ok, "oldest entry should be evicted at capacity")
}
