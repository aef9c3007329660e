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

package boatdata

// Field identifies a single measurement in the snapshot. Used as a key
// into MaxAgeWindows and by the orchestrator's transmit-enable table.
type Field int

// The full set of measurement fields spec.md §3 and §4.6 name.
const (
	FieldSOG Field = iota
	FieldCOG
	FieldLatitude
	FieldLongitude
	FieldGMT
	FieldDate
	FieldBoatSpeed
	FieldSeawaterTemp
	FieldLog
	FieldTrip
	FieldHeadingTrue
	FieldDepth
	FieldTWS
	FieldTWA
	FieldAWS
	FieldAWA
	FieldWindDirMag
	FieldWindDirTrue
	FieldPressure
	FieldWMMValid
	fieldCount
)

// MaxAgeWindows is the static field-identifier -> age-window (ms) map
// from spec.md §3.
var MaxAgeWindows = map[Field]int64{
	FieldSOG:          4000,
	FieldCOG:          4000,
	FieldLatitude:     4000,
	FieldLongitude:    4000,
	FieldHeadingTrue:  4000,
	FieldTWS:          4000,
	FieldTWA:          4000,
	FieldAWS:          4000,
	FieldAWA:          4000,
	FieldWindDirMag:   4000,
	FieldWindDirTrue:  4000,
	FieldBoatSpeed:    4000,
	FieldSeawaterTemp: 4000,
	FieldDepth:        4000,
	FieldTrip:         8000,
	FieldLog:          8000,
	FieldGMT:          12000,
	FieldDate:         12000,
	FieldPressure:     30000,
	FieldWMMValid:     3_600_000,
}

// Snapshot is the process-wide boat-data store: a flat collection of
// measurement fields, each independently lockable, last-writer-wins.
// Writers: the bus ingestor (C7), the NMEA decoders (C5), and the
// orchestrator's 1s GMT decay (C10). Readers: the NMEA transmit
// callbacks, the publisher's composite-frame composer, and the
// command parser's query handlers (C9).
type Snapshot struct {
	SOG           *FloatCell
	COG           *Int16Cell
	Latitude      *FloatCell
	Longitude     *FloatCell
	GMT           *TimeOfDayCell
	Date          *DateCell
	BoatSpeed     *FloatCell
	SeawaterTemp  *FloatCell
	Log           *FloatCell
	Trip          *FloatCell
	HeadingTrue   *FloatCell
	Depth         *FloatCell
	TWS           *FloatCell
	TWA           *FloatCell
	AWS           *FloatCell
	AWA           *FloatCell
	WindDirMag    *FloatCell
	WindDirTrue   *FloatCell
	Pressure      *FloatCell
	MagVariation  *FloatCell // degrees, east positive; computed by WMM collaborator
	WMMCalculated *FloatCell // value unused; observedAtMs is the WMM calculation stamp
}

// New returns a Snapshot with every field sentinel-initialized, per
// spec.md §4.4, so every freshness check is false until a real
// observation lands.
func New() *Snapshot {
	return &Snapshot{
		SOG:           NewFloatCell(),
		COG:           NewInt16Cell(),
		Latitude:      NewFloatCell(),
		Longitude:     NewFloatCell(),
		GMT:           NewTimeOfDayCell(),
		Date:          NewDateCell(),
		BoatSpeed:     NewFloatCell(),
		SeawaterTemp:  NewFloatCell(),
		Log:           NewFloatCell(),
		Trip:          NewFloatCell(),
		HeadingTrue:   NewFloatCell(),
		Depth:         NewFloatCell(),
		TWS:           NewFloatCell(),
		TWA:           NewFloatCell(),
		AWS:           NewFloatCell(),
		AWA:           NewFloatCell(),
		WindDirMag:    NewFloatCell(),
		WindDirTrue:   NewFloatCell(),
		Pressure:      NewFloatCell(),
		MagVariation:  NewFloatCell(),
		WMMCalculated: NewFloatCell(),
	}
}

// WMMFresh reports whether the last WMM calculation is still within
// its validity window at time nowMs.
func (s *Snapshot) WMMFresh(nowMs int64) bool {
	return s.WMMCalculated.Fresh(MaxAgeWindows[FieldWMMValid], nowMs)
}
