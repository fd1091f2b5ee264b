// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package equipment

import "time"

// Cache lifetimes for controller state
const (
	ShortExpiry = 10 * time.Second // status, heat
	LongExpiry  = 10 * time.Minute // circuits, schedules
)

// expiring holds the last known value and when it was stored.
type expiring[T any] struct {
	ttl   time.Duration
	value T
	at    time.Time
	set   bool
}

func newExpiring[T any](ttl time.Duration) expiring[T] {
	return expiring[T]{ttl: ttl}
}

func (c *expiring[T]) put(v T, now time.Time) {
	c.value, c.at, c.set = v, now, true
}

// fresh returns the value if it has not expired.
func (c *expiring[T]) fresh(now time.Time) (T, bool) {
	if !c.set || now.Sub(c.at) >= c.ttl {
		var zero T
		return zero, false
	}
	return c.value, true
}

// last returns the last known value regardless of age.
func (c *expiring[T]) last() (T, bool) {
	return c.value, c.set
}
