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

package publisher

import (
	"strconv"
	"strings"

	"github.com/miniwinwm/bluebridge/internal/boatdata"
)

// composeFrame builds the composite MQTT payload: one comma-separated
// ASCII record in a fixed column order. Signal strength and the
// publishing period aren't snapshot fields, so they're always present;
// every other column is the current value if fresh, else empty.
func composeFrame(snap *boatdata.Snapshot, signalStrength int, periodSeconds int, nowMs int64) string {
	cols := []string{
		strconv.Itoa(signalStrength),
		formatCOG(snap, nowMs),
		formatFloat1(snap.SeawaterTemp, boatdata.MaxAgeWindows[boatdata.FieldSeawaterTemp], nowMs),
		formatFloat1(snap.SOG, boatdata.MaxAgeWindows[boatdata.FieldSOG], nowMs),
		formatFloat1(snap.BoatSpeed, boatdata.MaxAgeWindows[boatdata.FieldBoatSpeed], nowMs),
		formatUint(snap.Log, boatdata.MaxAgeWindows[boatdata.FieldLog], nowMs),
		formatFloat1(snap.Trip, boatdata.MaxAgeWindows[boatdata.FieldTrip], nowMs),
		formatUint(snap.HeadingTrue, boatdata.MaxAgeWindows[boatdata.FieldHeadingTrue], nowMs),
		formatFloat1(snap.Depth, boatdata.MaxAgeWindows[boatdata.FieldDepth], nowMs),
		formatFloat1(snap.TWS, boatdata.MaxAgeWindows[boatdata.FieldTWS], nowMs),
		formatFloat1(snap.TWA, boatdata.MaxAgeWindows[boatdata.FieldTWA], nowMs),
		formatFloat1(snap.AWS, boatdata.MaxAgeWindows[boatdata.FieldAWS], nowMs),
		formatFloat1(snap.AWA, boatdata.MaxAgeWindows[boatdata.FieldAWA], nowMs),
		formatFloat4(snap.Latitude, boatdata.MaxAgeWindows[boatdata.FieldLatitude], nowMs),
		formatFloat4(snap.Longitude, boatdata.MaxAgeWindows[boatdata.FieldLongitude], nowMs),
		formatFloat1(snap.Pressure, boatdata.MaxAgeWindows[boatdata.FieldPressure], nowMs),
		strconv.Itoa(periodSeconds),
	}
	return strings.Join(cols, ",")
}

func formatCOG(snap *boatdata.Snapshot, nowMs int64) string {
	v, observedAtMs := snap.COG.Get()
	if !boatdata.Fresh(observedAtMs, nowMs, boatdata.MaxAgeWindows[boatdata.FieldCOG]) {
		return ""
	}
	return strconv.FormatUint(uint64(uint16(v)), 10)
}

func formatFloat1(c *boatdata.FloatCell, windowMs, nowMs int64) string {
	v, observedAtMs := c.Get()
	if !boatdata.Fresh(observedAtMs, nowMs, windowMs) {
		return ""
	}
	return strconv.FormatFloat(float64(v), 'f', 1, 32)
}

func formatFloat4(c *boatdata.FloatCell, windowMs, nowMs int64) string {
	v, observedAtMs := c.Get()
	if !boatdata.Fresh(observedAtMs, nowMs, windowMs) {
		return ""
	}
	return strconv.FormatFloat(float64(v), 'f', 4, 32)
}

// formatUint renders a float cell's value truncated to an unsigned
// integer, matching the original's (unsigned int) cast for log and
// true heading.
func formatUint(c *boatdata.FloatCell, windowMs, nowMs int64) string {
	v, observedAtMs := c.Get()
	if !boatdata.Fresh(observedAtMs, nowMs, windowMs) {
		return ""
	}
	return strconv.Itoa(int(v))
}
