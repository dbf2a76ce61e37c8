package authz

import (
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultCacheSize bounds each per-resource LRU when no size is given.
const defaultCacheSize = 4096

// OwnerCache memoizes resource-to-hospital ownership lookups, saving one DB
// round trip per authorized request. Ownership never changes after creation
// (patients and cases do not move between hospitals), so entries have no
// TTL; the LRU bound caps memory. A deleted row can leave a stale entry
// behind, which is harmless: the follow-up scoped query returns not-found
// anyway.
//
// A nil *OwnerCache is valid and caches nothing.
type OwnerCache struct {
	patients *lru.Cache[uuid.UUID, uuid.UUID]
	cases    *lru.Cache[uuid.UUID, uuid.UUID]
}

// NewOwnerCache creates a cache holding up to size entries per resource
// type. Non-positive sizes fall back to the default.
func NewOwnerCache(size int) *OwnerCache {
	if size <= 0 {
		size = defaultCacheSize
	}
	patients, _ := lru.New[uuid.UUID, uuid.UUID](size) // errs only when size <= 0
	cases, _ := lru.New[uuid.UUID, uuid.UUID](size)
	return &OwnerCache{patients: patients, cases: cases}
}

// Patient returns the cached owning hospital for a patient row ID.
func (c *OwnerCache) Patient(id uuid.UUID) (uuid.UUID, bool) {
	if c == nil {
		return uuid.Nil, false
	}
	return c.patients.Get(id)
}

// SetPatient records the owning hospital for a patient row ID.
func (c *OwnerCache) SetPatient(id, hospitalID uuid.UUID) {
	if c == nil {
		return
	}
	c.patients.Add(id, hospitalID)
}

// Case returns the cached owning hospital for a case ID.
func (c *OwnerCache) Case(id uuid.UUID) (uuid.UUID, bool) {
	if c == nil {
		return uuid.Nil, false
	}
	return c.cases.Get(id)
}

// SetCase records the owning hospital for a case ID.
func (c *OwnerCache) SetCase(id, hospitalID uuid.UUID) {
	if c == nil {
		return
	}
	c.cases.Add(id, hospitalID)
}
