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

	"github.com/miniwinwm/bluebridge/internal/boatdata"
)

// encoder reads the current snapshot and composes a sentence body
// (everything between the talker/type header and the checksum,
// without leading '$' or trailing '*xx'). ok is false when the
// underlying fields are too stale to transmit, matching the
// orchestrator's per-slot transmit-enable table (spec.md §4.6): an
// encoder never fabricates a value for data it doesn't have.
type encoder func(talker string, snap *boatdata.Snapshot, nowMs int64, maxAgeMs int64) (body string, ok bool)

// Encoders is the static type-code -> encoder dispatch table. VDM has
// no encoder: it is a receive-only pass-through.
var Encoders = map[string]encoder{
	"RMC": encodeRMC,
	"GGA": encodeGGA,
	"VTG": encodeVTG,
	"DPT": encodeDPT,
	"VHW": encodeVHW,
	"MTW": encodeMTW,
	"VLW": encodeVLW,
	"HDT": encodeHDT,
	"HDM": encodeHDM,
	"MWV": encodeMWV,
	"MWD": encodeMWD,
	"XDR": encodeXDR,
	"MDA": encodeMDA,
}

func decimalDegreesToDDMM(dec float32) (raw float32, hemisphere string) {
	hemis := "N"
	v := dec
	if v < 0 {
		v = -v
	}
	deg := float32(int(v))
	minutes := (v - deg) * 60
	return deg*100 + minutes, hemis
}

func encodeRMC(talker string, snap *boatdata.Snapshot, nowMs int64, maxAgeMs int64) (string, bool) {
	if !snap.Latitude.Fresh(maxAgeMs, nowMs) || !snap.Longitude.Fresh(maxAgeMs, nowMs) {
		return "", false
	}
	tod, todTs := snap.GMT.Get()
	date, dateTs := snap.Date.Get()
	if !boatdata.Fresh(todTs, nowMs, maxAgeMs) || !boatdata.Fresh(dateTs, nowMs, maxAgeMs) {
		return "", false
	}
	lat, latTs := snap.Latitude.Get()
	lon, lonTs := snap.Longitude.Get()
	_ = latTs
	_ = lonTs
	sog, _ := snap.SOG.Get()
	cog, _ := snap.COG.Get()

	latRaw, latHemis := decimalDegreesToDDMM(lat)
	if lat < 0 {
		latHemis = "S"
	}
	lonRaw, lonHemis := decimalDegreesToDDMM(lon)
	lonHemis = "E"
	if lon < 0 {
		lonHemis = "W"
	}
	body := fmt.Sprintf("%sRMC,%02d%02d%02d.00,A,%08.3f,%s,%09.3f,%s,%.1f,%d,%02d%02d%02d,,",
		talker, tod.Hour, tod.Minute, tod.Second, latRaw, latHemis, lonRaw, lonHemis,
		sog, cog, date.Day, date.Month, date.Year%100)
	return body, true
}

func encodeGGA(talker string, snap *boatdata.Snapshot, nowMs int64, maxAgeMs int64) (string, bool) {
	if !snap.Latitude.Fresh(maxAgeMs, nowMs) || !snap.Longitude.Fresh(maxAgeMs, nowMs) {
		return "", false
	}
	tod, _ := snap.GMT.Get()
	lat, _ := snap.Latitude.Get()
	lon, _ := snap.Longitude.Get()
	latRaw, latHemis := decimalDegreesToDDMM(lat)
	if lat < 0 {
		latHemis = "S"
	}
	lonRaw, lonHemis := decimalDegreesToDDMM(lon)
	lonHemis = "E"
	if lon < 0 {
		lonHemis = "W"
	}
	body := fmt.Sprintf("%sGGA,%02d%02d%02d.00,%08.3f,%s,%09.3f,%s,1,00,1.0,0.0,M,0.0,M,,",
		talker, tod.Hour, tod.Minute, tod.Second, latRaw, latHemis, lonRaw, lonHemis)
	return body, true
}

func encodeVTG(talker string, snap *boatdata.Snapshot, nowMs int64, maxAgeMs int64) (string, bool) {
	if !snap.COG.Fresh(maxAgeMs, nowMs) || !snap.SOG.Fresh(maxAgeMs, nowMs) {
		return "", false
	}
	cog, _ := snap.COG.Get()
	sog, _ := snap.SOG.Get()
	body := fmt.Sprintf("%sVTG,%d,T,,M,%.1f,N,%.1f,K,A", talker, cog, sog, sog*1.852)
	return body, true
}

func encodeDPT(talker string, snap *boatdata.Snapshot, nowMs int64, maxAgeMs int64) (string, bool) {
	if !snap.Depth.Fresh(maxAgeMs, nowMs) {
		return "", false
	}
	depth, _ := snap.Depth.Get()
	return fmt.Sprintf("%sDPT,%.1f,0.0,", talker, depth), true
}

func encodeVHW(talker string, snap *boatdata.Snapshot, nowMs int64, maxAgeMs int64) (string, bool) {
	if !snap.HeadingTrue.Fresh(maxAgeMs, nowMs) || !snap.BoatSpeed.Fresh(maxAgeMs, nowMs) {
		return "", false
	}
	hdg, _ := snap.HeadingTrue.Get()
	speed, _ := snap.BoatSpeed.Get()
	body := fmt.Sprintf("%sVHW,%.1f,T,,M,%.1f,N,%.1f,K", talker, hdg, speed, speed*1.852)
	return body, true
}

func encodeMTW(talker string, snap *boatdata.Snapshot, nowMs int64, maxAgeMs int64) (string, bool) {
	if !snap.SeawaterTemp.Fresh(maxAgeMs, nowMs) {
		return "", false
	}
	temp, _ := snap.SeawaterTemp.Get()
	return fmt.Sprintf("%sMTW,%.1f,C", talker, temp), true
}

func encodeVLW(talker string, snap *boatdata.Snapshot, nowMs int64, maxAgeMs int64) (string, bool) {
	if !snap.Log.Fresh(maxAgeMs, nowMs) || !snap.Trip.Fresh(maxAgeMs, nowMs) {
		return "", false
	}
	total, _ := snap.Log.Get()
	trip, _ := snap.Trip.Get()
	return fmt.Sprintf("%sVLW,%.1f,N,%.1f,N", talker, total, trip), true
}

func encodeHDT(talker string, snap *boatdata.Snapshot, nowMs int64, maxAgeMs int64) (string, bool) {
	if !snap.HeadingTrue.Fresh(maxAgeMs, nowMs) {
		return "", false
	}
	hdg, _ := snap.HeadingTrue.Get()
	return fmt.Sprintf("%sHDT,%.1f,T", talker, hdg), true
}

func encodeMWV(talker string, snap *boatdata.Snapshot, nowMs int64, maxAgeMs int64) (string, bool) {
	if !snap.AWA.Fresh(maxAgeMs, nowMs) || !snap.AWS.Fresh(maxAgeMs, nowMs) {
		return "", false
	}
	angle, _ := snap.AWA.Get()
	speed, _ := snap.AWS.Get()
	return fmt.Sprintf("%sMWV,%.1f,R,%.1f,N,A", talker, angle, speed), true
}

func encodeMWD(talker string, snap *boatdata.Snapshot, nowMs int64, maxAgeMs int64) (string, bool) {
	if !snap.WindDirTrue.Fresh(maxAgeMs, nowMs) || !snap.TWS.Fresh(maxAgeMs, nowMs) {
		return "", false
	}
	dirTrue, _ := snap.WindDirTrue.Get()
	dirMag, _ := snap.WindDirMag.Get()
	speed, _ := snap.TWS.Get()
	body := fmt.Sprintf("%sMWD,%.1f,T,%.1f,M,%.1f,N,%.1f,M", talker, dirTrue, dirMag, speed, speed*0.514444)
	return body, true
}

// encodeHDM is magnetic heading: true heading corrected by the WMM
// variation (east positive). maxAgeMs gates heading freshness only;
// the variation's own validity is the orchestrator's job (it never
// enables this slot unless the WMM calculation is current).
func encodeHDM(talker string, snap *boatdata.Snapshot, nowMs int64, maxAgeMs int64) (string, bool) {
	if !snap.HeadingTrue.Fresh(maxAgeMs, nowMs) {
		return "", false
	}
	hdg, _ := snap.HeadingTrue.Get()
	variation, _ := snap.MagVariation.Get()
	magnetic := hdg - variation
	return fmt.Sprintf("%sHDM,%.1f,M", talker, magnetic), true
}

// encodeXDR is a transducer measurement sentence carrying barometric
// pressure only (type "P", units bar).
func encodeXDR(talker string, snap *boatdata.Snapshot, nowMs int64, maxAgeMs int64) (string, bool) {
	if !snap.Pressure.Fresh(maxAgeMs, nowMs) {
		return "", false
	}
	hpa, _ := snap.Pressure.Get()
	return fmt.Sprintf("%sXDR,P,%.4f,B,BARO", talker, hpa/1000), true
}

// encodeMDA is the meteorological composite sentence; only the
// barometric pressure fields are populated, every other field is left
// empty since nothing else in the snapshot feeds it.
func encodeMDA(talker string, snap *boatdata.Snapshot, nowMs int64, maxAgeMs int64) (string, bool) {
	if !snap.Pressure.Fresh(maxAgeMs, nowMs) {
		return "", false
	}
	hpa, _ := snap.Pressure.Get()
	inHg := hpa * 0.0295300
	body := fmt.Sprintf("%sMDA,%.2f,I,%.4f,B,,,,,,,,,,,,,,,", talker, inHg, hpa/1000)
	return body, true
}
