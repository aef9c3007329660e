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

package nmea

import (
	"fmt"
	"strconv"

	"github.com/miniwinwm/bluebridge/internal/boatdata"
)

// decoder validates comma count and decodes a sentence's fields,
// returning a data_available bitmask of which fields it actually
// populated (spec.md §4.3). Receive callbacks registered per
// {port,type} are invoked separately, with the raw sentence, by the
// scheduler -- decoders only ever touch the snapshot.
type decoder func(fields []string, snap *boatdata.Snapshot, nowMs int64) (mask uint16, err error)

// Decoders is the static type-code -> decoder dispatch table spec.md
// §4.3 calls for.
var Decoders = map[string]decoder{
	"RMC": decodeRMC,
	"GGA": decodeGGA,
	"VTG": decodeVTG,
	"DPT": decodeDPT,
	"VHW": decodeVHW,
	"MTW": decodeMTW,
	"VLW": decodeVLW,
	"HDT": decodeHDT,
	"MWV": decodeMWV,
	"MWD": decodeMWD,
	"VDM": decodeVDM,
}

// data_available bits, grouped per sentence type. Values only need to
// be unique within one decoder's own mask, not globally, but giving
// them distinct bit positions costs nothing and makes a combined trace
// log readable.
const (
	maskTime uint16 = 1 << iota
	maskStatus
	maskLat
	maskLon
	maskSOG
	maskCOG
	maskDate
	maskMagVar
	maskFixQuality
	maskDepth
	maskOffset
	maskMaxRange
	maskHeadingTrue
	maskHeadingMag
	maskBoatSpeed
	maskWaterTemp
	maskLog
	maskTrip
	maskWindAngle
	maskWindSpeed
	maskWindDirTrue
	maskWindDirMag
)

func errShortSentence(typ string, got, want int) error {
	return fmt.Errorf("nmea: %s needs at least %d fields, got %d", typ, want, got)
}

func parseFloatField(f string) (float32, bool) {
	if f == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(f, 32)
	if err != nil {
		return 0, false
	}
	return float32(v), true
}

// ddmmToDecimalDegrees converts an NMEA "ddd mm.mmmm" coordinate
// (degrees as an integer prefix, minutes as the fractional remainder)
// into decimal degrees, applying hemisphere sign.
func ddmmToDecimalDegrees(raw float32, hemisphere string, negHemis string) float32 {
	deg := float32(int(raw / 100))
	minutes := raw - deg*100
	dec := deg + minutes/60
	if hemisphere == negHemis {
		dec = -dec
	}
	return dec
}

func decodeRMC(fields []string, snap *boatdata.Snapshot, nowMs int64) (uint16, error) {
	if len(fields) < 9 {
		return 0, errShortSentence("RMC", len(fields), 9)
	}
	var mask uint16
	if fields[1] != "A" {
		// Status void: no fix, nothing else in this sentence can be
		// trusted. COG is left untouched (spec.md §9 Open Question:
		// "COG field absent" means "use last known").
		return mask, nil
	}
	mask |= maskStatus
	if lat, ok := parseFloatField(fields[2]); ok && fields[3] != "" {
		snap.Latitude.Set(ddmmToDecimalDegrees(lat, fields[3], "S"), nowMs)
		mask |= maskLat
	}
	if lon, ok := parseFloatField(fields[4]); ok && fields[5] != "" {
		snap.Longitude.Set(ddmmToDecimalDegrees(lon, fields[5], "W"), nowMs)
		mask |= maskLon
	}
	sogZero := false
	if sog, ok := parseFloatField(fields[6]); ok {
		snap.SOG.Set(sog, nowMs)
		mask |= maskSOG
		sogZero = sog == 0
	}
	if cog, ok := parseFloatField(fields[7]); ok {
		if sogZero {
			// Spec.md §9 Open Question: SOG=0 zeroes COG whatever
			// the sentence's COG field says; an empty COG field
			// still leaves COG untouched.
			snap.COG.Set(0, nowMs)
		} else {
			snap.COG.Set(int16(cog), nowMs)
		}
		mask |= maskCOG
	}
	if tod, ok := parseTimeOfDay(fields[0]); ok {
		snap.GMT.Set(tod, nowMs)
		mask |= maskTime
	}
	if date, ok := parseDate(fields[8]); ok {
		snap.Date.Set(date, nowMs)
		mask |= maskDate
	}
	if len(fields) > 9 {
		if _, ok := parseFloatField(fields[9]); ok {
			mask |= maskMagVar
		}
	}
	return mask, nil
}

// parseTimeOfDay parses an NMEA "hhmmss" or "hhmmss.ss" field.
func parseTimeOfDay(f string) (boatdata.TimeOfDay, bool) {
	if len(f) < 6 {
		return boatdata.TimeOfDay{}, false
	}
	h, err1 := strconv.Atoi(f[0:2])
	m, err2 := strconv.Atoi(f[2:4])
	s, err3 := strconv.Atoi(f[4:6])
	if err1 != nil || err2 != nil || err3 != nil {
		return boatdata.TimeOfDay{}, false
	}
	return boatdata.TimeOfDay{Hour: h, Minute: m, Second: s}, true
}

// parseDate parses an NMEA "ddmmyy" field, expanding the two-digit year
// against a 2000 epoch as the original firmware does.
func parseDate(f string) (boatdata.Date, bool) {
	if len(f) != 6 {
		return boatdata.Date{}, false
	}
	d, err1 := strconv.Atoi(f[0:2])
	m, err2 := strconv.Atoi(f[2:4])
	y, err3 := strconv.Atoi(f[4:6])
	if err1 != nil || err2 != nil || err3 != nil {
		return boatdata.Date{}, false
	}
	return boatdata.Date{Year: 2000 + y, Month: m, Day: d}, true
}

func decodeGGA(fields []string, snap *boatdata.Snapshot, nowMs int64) (uint16, error) {
	if len(fields) < 6 {
		return 0, errShortSentence("GGA", len(fields), 6)
	}
	var mask uint16
	quality := fields[5]
	if quality == "" || quality == "0" {
		return mask, nil
	}
	mask |= maskFixQuality
	if lat, ok := parseFloatField(fields[1]); ok && fields[2] != "" {
		snap.Latitude.Set(ddmmToDecimalDegrees(lat, fields[2], "S"), nowMs)
		mask |= maskLat
	}
	if lon, ok := parseFloatField(fields[3]); ok && fields[4] != "" {
		snap.Longitude.Set(ddmmToDecimalDegrees(lon, fields[4], "W"), nowMs)
		mask |= maskLon
	}
	return mask, nil
}

func decodeVTG(fields []string, snap *boatdata.Snapshot, nowMs int64) (uint16, error) {
	if len(fields) < 8 {
		return 0, errShortSentence("VTG", len(fields), 8)
	}
	var mask uint16
	if track, ok := parseFloatField(fields[0]); ok {
		snap.COG.Set(int16(track), nowMs)
		mask |= maskCOG
	}
	if sog, ok := parseFloatField(fields[4]); ok {
		snap.SOG.Set(sog, nowMs)
		mask |= maskSOG
	}
	return mask, nil
}

func decodeDPT(fields []string, snap *boatdata.Snapshot, nowMs int64) (uint16, error) {
	if len(fields) < 2 {
		return 0, errShortSentence("DPT", len(fields), 2)
	}
	var mask uint16
	if depth, ok := parseFloatField(fields[0]); ok {
		snap.Depth.Set(depth, nowMs)
		mask |= maskDepth
	}
	if len(fields) > 1 {
		if _, ok := parseFloatField(fields[1]); ok {
			mask |= maskOffset
		}
	}
	if len(fields) > 2 {
		if _, ok := parseFloatField(fields[2]); ok {
			mask |= maskMaxRange
		}
	}
	return mask, nil
}

func decodeVHW(fields []string, snap *boatdata.Snapshot, nowMs int64) (uint16, error) {
	if len(fields) < 8 {
		return 0, errShortSentence("VHW", len(fields), 8)
	}
	var mask uint16
	if hdgT, ok := parseFloatField(fields[0]); ok {
		snap.HeadingTrue.Set(hdgT, nowMs)
		mask |= maskHeadingTrue
	}
	if _, ok := parseFloatField(fields[2]); ok {
		mask |= maskHeadingMag
	}
	if speed, ok := parseFloatField(fields[4]); ok {
		snap.BoatSpeed.Set(speed, nowMs)
		mask |= maskBoatSpeed
	}
	return mask, nil
}

func decodeMTW(fields []string, snap *boatdata.Snapshot, nowMs int64) (uint16, error) {
	if len(fields) < 1 {
		return 0, errShortSentence("MTW", len(fields), 1)
	}
	var mask uint16
	if temp, ok := parseFloatField(fields[0]); ok {
		snap.SeawaterTemp.Set(temp, nowMs)
		mask |= maskWaterTemp
	}
	return mask, nil
}

func decodeVLW(fields []string, snap *boatdata.Snapshot, nowMs int64) (uint16, error) {
	if len(fields) < 4 {
		return 0, errShortSentence("VLW", len(fields), 4)
	}
	var mask uint16
	if total, ok := parseFloatField(fields[0]); ok {
		snap.Log.Set(total, nowMs)
		mask |= maskLog
	}
	if trip, ok := parseFloatField(fields[2]); ok {
		snap.Trip.Set(trip, nowMs)
		mask |= maskTrip
	}
	return mask, nil
}

func decodeHDT(fields []string, snap *boatdata.Snapshot, nowMs int64) (uint16, error) {
	if len(fields) < 1 {
		return 0, errShortSentence("HDT", len(fields), 1)
	}
	var mask uint16
	if hdg, ok := parseFloatField(fields[0]); ok {
		snap.HeadingTrue.Set(hdg, nowMs)
		mask |= maskHeadingTrue
	}
	return mask, nil
}

func decodeMWV(fields []string, snap *boatdata.Snapshot, nowMs int64) (uint16, error) {
	if len(fields) < 5 {
		return 0, errShortSentence("MWV", len(fields), 5)
	}
	if fields[4] != "A" {
		return 0, nil
	}
	var mask uint16
	angle, angleOK := parseFloatField(fields[0])
	speed, speedOK := parseFloatField(fields[2])
	switch fields[1] {
	case "R":
		if angleOK {
			snap.AWA.Set(angle, nowMs)
			mask |= maskWindAngle
		}
		if speedOK {
			snap.AWS.Set(speed, nowMs)
			mask |= maskWindSpeed
		}
	case "T":
		if angleOK {
			snap.TWA.Set(angle, nowMs)
			mask |= maskWindAngle
		}
		if speedOK {
			snap.TWS.Set(speed, nowMs)
			mask |= maskWindSpeed
		}
	}
	return mask, nil
}

func decodeMWD(fields []string, snap *boatdata.Snapshot, nowMs int64) (uint16, error) {
	if len(fields) < 8 {
		return 0, errShortSentence("MWD", len(fields), 8)
	}
	var mask uint16
	if dirTrue, ok := parseFloatField(fields[0]); ok {
		snap.WindDirTrue.Set(dirTrue, nowMs)
		mask |= maskWindDirTrue
	}
	if dirMag, ok := parseFloatField(fields[2]); ok {
		snap.WindDirMag.Set(dirMag, nowMs)
		mask |= maskWindDirMag
	}
	if speedKnots, ok := parseFloatField(fields[4]); ok {
		snap.TWS.Set(speedKnots, nowMs)
		mask |= maskWindSpeed
	}
	return mask, nil
}

// decodeVDM is a pass-through: AIS-encapsulated payloads are forwarded
// to registered receive callbacks for application-level routing
// (spec.md §4.3) without touching the snapshot, so it never reports
// any data_available bits.
func decodeVDM(_ []string, _ *boatdata.Snapshot, _ int64) (uint16, error) {
	return 0, nil
}
