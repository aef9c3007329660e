/*
Copyright (c) BlueBridge contributors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package boatdata is the freshness-indexed in-memory boat-state
// snapshot (spec C6): a flat collection of measurement fields, each a
// {value, observed_at_ms} pair, safe for concurrent field-granular
// access. It deliberately avoids a single process-wide lock (spec.md
// §9's design note): each field gets its own small mutex instead, so
// the bus ingestor, the NMEA decoders and the publisher never block on
// each other over unrelated fields.
package boatdata

import "sync"

// sentinelObservedAtMs is the "long ago" sentinel every cell starts
// with. The original firmware fills the timestamp with repeated 0x7F
// bytes, which works there because its freshness check subtracts with
// unsigned wraparound. The dual freshness predicate below is
// implemented literally (both branches, no reliance on wraparound), so
// a byte-for-byte translation of that sentinel would make every field
// read as fresh at startup (a huge value is always "> T"). Using a
// large negative value instead keeps both branches false until a real
// write happens, which is the behavior spec.md §4.4 actually calls for.
const sentinelObservedAtMs int64 = -(int64(1) << 62)

// Fresh implements the dual freshness predicate from spec.md §3: a
// field is fresh w.r.t. window w (ms) at time now (ms) when either the
// normal case holds, or the wrap-around tolerance holds (a
// future-timestamped observation is always fresh until the clock
// catches up). This one function backs every cell type below and is
// exercised directly by snapshot_test.go and indirectly by every
// consumer package.
func Fresh(observedAtMs, nowMs, windowMs int64) bool {
	if observedAtMs > nowMs {
		return true
	}
	return nowMs-observedAtMs < windowMs
}

// FloatCell holds a single-precision measurement and its observation
// time, atomically settable/readable as a pair (spec.md §3:
// "Field-level atomicity is required").
type FloatCell struct {
	mu           sync.RWMutex
	value        float32
	observedAtMs int64
}

// NewFloatCell returns a cell initialized to the "long ago" sentinel.
func NewFloatCell() *FloatCell {
	return &FloatCell{observedAtMs: sentinelObservedAtMs}
}

// Set stores a new value, stamped at nowMs.
func (c *FloatCell) Set(value float32, nowMs int64) {
	c.mu.Lock()
	c.value = value
	c.observedAtMs = nowMs
	c.mu.Unlock()
}

// Get returns the current value and its observation time as a pair.
func (c *FloatCell) Get() (float32, int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.observedAtMs
}

// Fresh reports whether the cell's last observation is fresh w.r.t.
// window (ms) at time now (ms).
func (c *FloatCell) Fresh(windowMs, nowMs int64) bool {
	_, observedAtMs := c.Get()
	return Fresh(observedAtMs, nowMs, windowMs)
}

// Int16Cell holds a signed 16-bit measurement (course over ground is
// the only field spec.md types this way) and its observation time.
type Int16Cell struct {
	mu           sync.RWMutex
	value        int16
	observedAtMs int64
}

// NewInt16Cell returns a cell initialized to the "long ago" sentinel.
func NewInt16Cell() *Int16Cell {
	return &Int16Cell{observedAtMs: sentinelObservedAtMs}
}

// Set stores a new value, stamped at nowMs.
func (c *Int16Cell) Set(value int16, nowMs int64) {
	c.mu.Lock()
	c.value = value
	c.observedAtMs = nowMs
	c.mu.Unlock()
}

// Get returns the current value and its observation time as a pair.
func (c *Int16Cell) Get() (int16, int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.observedAtMs
}

// Fresh reports whether the cell's last observation is fresh w.r.t.
// window (ms) at time now (ms).
func (c *Int16Cell) Fresh(windowMs, nowMs int64) bool {
	_, observedAtMs := c.Get()
	return Fresh(observedAtMs, nowMs, windowMs)
}

// TimeOfDay is a wall-clock time of day, to second resolution, used
// for the GMT field (spec.md §3).
type TimeOfDay struct {
	Hour, Minute, Second int
}

// TimeOfDayCell holds the GMT-of-day measurement.
type TimeOfDayCell struct {
	mu           sync.RWMutex
	value        TimeOfDay
	observedAtMs int64
}

// NewTimeOfDayCell returns a cell initialized to the "long ago" sentinel.
func NewTimeOfDayCell() *TimeOfDayCell {
	return &TimeOfDayCell{observedAtMs: sentinelObservedAtMs}
}

// Set stores a new value, stamped at nowMs.
func (c *TimeOfDayCell) Set(value TimeOfDay, nowMs int64) {
	c.mu.Lock()
	c.value = value
	c.observedAtMs = nowMs
	c.mu.Unlock()
}

// Get returns the current value and its observation time as a pair.
func (c *TimeOfDayCell) Get() (TimeOfDay, int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.observedAtMs
}

// Fresh reports whether the cell's last observation is fresh w.r.t.
// window (ms) at time now (ms).
func (c *TimeOfDayCell) Fresh(windowMs, nowMs int64) bool {
	_, observedAtMs := c.Get()
	return Fresh(observedAtMs, nowMs, windowMs)
}

// Date is a wall-clock calendar date (spec.md §3).
type Date struct {
	Year, Month, Day int
}

// DateCell holds the date field.
type DateCell struct {
	mu           sync.RWMutex
	value        Date
	observedAtMs int64
}

// NewDateCell returns a cell initialized to the "long ago" sentinel.
func NewDateCell() *DateCell {
	return &DateCell{observedAtMs: sentinelObservedAtMs}
}

// Set stores a new value, stamped at nowMs.
func (c *DateCell) Set(value Date, nowMs int64) {
	c.mu.Lock()
	c.value = value
	c.observedAtMs = nowMs
	c.mu.Unlock()
}

// Get returns the current value and its observation time as a pair.
func (c *DateCell) Get() (Date, int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.observedAtMs
}

// Fresh reports whether the cell's last observation is fresh w.r.t.
// window (ms) at time now (ms).
func (c *DateCell) Fresh(windowMs, nowMs int64) bool {
	_, observedAtMs := c.Get()
	return Fresh(observedAtMs, nowMs, windowMs)
}
