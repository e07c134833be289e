package governor

import "sync/atomic"

// resourceLimiter tracks a running total against a fixed limit with atomic
// try-add/remove, the way the storage engine bounds in-flight RAM: add
// speculatively, then back out if the new total overshoots.
type resourceLimiter struct {
	value int64
	limit int64
}

func newResourceLimiter(limit int64) *resourceLimiter {
	return &resourceLimiter{limit: limit}
}

// tryAdd attempts to reserve count units. Returns false, without mutating
// state, if doing so would exceed the limit.
func (r *resourceLimiter) tryAdd(count int64) bool {
	if atomic.AddInt64(&r.value, count) <= r.limit {
		return true
	}
	atomic.AddInt64(&r.value, -count)
	return false
}

func (r *resourceLimiter) remove(count int64) {
	atomic.AddInt64(&r.value, -count)
}

func (r *resourceLimiter) used() int64 {
	return atomic.LoadInt64(&r.value)
}

func (r *resourceLimiter) available() int64 {
	return r.limit - atomic.LoadInt64(&r.value)
}

func (r *resourceLimiter) setLimit(limit int64) {
	atomic.StoreInt64(&r.limit, limit)
}

func (r *resourceLimiter) getLimit() int64 {
	return atomic.LoadInt64(&r.limit)
}
