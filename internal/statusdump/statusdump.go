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

// Package statusdump renders a boat-data snapshot as JSON over HTTP,
// the local endpoint the status CLI subcommand polls instead of
// dialing the gateway's modem or MQTT session directly.
package statusdump

import (
	"encoding/json"
	"net/http"

	"github.com/miniwinwm/bluebridge/internal/boatdata"
)

// Field is one measurement's current value and freshness, as rendered
// for the status endpoint/subcommand.
type Field struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Fresh bool    `json:"fresh"`
	AgeMs int64   `json:"age_ms"`
}

// Dump is the full snapshot rendering served at the status endpoint.
type Dump struct {
	NowMs  int64   `json:"now_ms"`
	Fields []Field `json:"fields"`
}

type fieldSpec struct {
	name     string
	windowMs int64
	get      func(*boatdata.Snapshot) (float64, int64)
}

var fieldSpecs = []fieldSpec{
	{"sog", boatdata.MaxAgeWindows[boatdata.FieldSOG], func(s *boatdata.Snapshot) (float64, int64) { v, t := s.SOG.Get(); return float64(v), t }},
	{"cog", boatdata.MaxAgeWindows[boatdata.FieldCOG], func(s *boatdata.Snapshot) (float64, int64) { v, t := s.COG.Get(); return float64(v), t }},
	{"latitude", boatdata.MaxAgeWindows[boatdata.FieldLatitude], func(s *boatdata.Snapshot) (float64, int64) { v, t := s.Latitude.Get(); return float64(v), t }},
	{"longitude", boatdata.MaxAgeWindows[boatdata.FieldLongitude], func(s *boatdata.Snapshot) (float64, int64) { v, t := s.Longitude.Get(); return float64(v), t }},
	{"boat_speed", boatdata.MaxAgeWindows[boatdata.FieldBoatSpeed], func(s *boatdata.Snapshot) (float64, int64) { v, t := s.BoatSpeed.Get(); return float64(v), t }},
	{"seawater_temp", boatdata.MaxAgeWindows[boatdata.FieldSeawaterTemp], func(s *boatdata.Snapshot) (float64, int64) { v, t := s.SeawaterTemp.Get(); return float64(v), t }},
	{"log", boatdata.MaxAgeWindows[boatdata.FieldLog], func(s *boatdata.Snapshot) (float64, int64) { v, t := s.Log.Get(); return float64(v), t }},
	{"trip", boatdata.MaxAgeWindows[boatdata.FieldTrip], func(s *boatdata.Snapshot) (float64, int64) { v, t := s.Trip.Get(); return float64(v), t }},
	{"heading_true", boatdata.MaxAgeWindows[boatdata.FieldHeadingTrue], func(s *boatdata.Snapshot) (float64, int64) { v, t := s.HeadingTrue.Get(); return float64(v), t }},
	{"depth", boatdata.MaxAgeWindows[boatdata.FieldDepth], func(s *boatdata.Snapshot) (float64, int64) { v, t := s.Depth.Get(); return float64(v), t }},
	{"tws", boatdata.MaxAgeWindows[boatdata.FieldTWS], func(s *boatdata.Snapshot) (float64, int64) { v, t := s.TWS.Get(); return float64(v), t }},
	{"twa", boatdata.MaxAgeWindows[boatdata.FieldTWA], func(s *boatdata.Snapshot) (float64, int64) { v, t := s.TWA.Get(); return float64(v), t }},
	{"aws", boatdata.MaxAgeWindows[boatdata.FieldAWS], func(s *boatdata.Snapshot) (float64, int64) { v, t := s.AWS.Get(); return float64(v), t }},
	{"awa", boatdata.MaxAgeWindows[boatdata.FieldAWA], func(s *boatdata.Snapshot) (float64, int64) { v, t := s.AWA.Get(); return float64(v), t }},
	{"wind_dir_mag", boatdata.MaxAgeWindows[boatdata.FieldWindDirMag], func(s *boatdata.Snapshot) (float64, int64) { v, t := s.WindDirMag.Get(); return float64(v), t }},
	{"wind_dir_true", boatdata.MaxAgeWindows[boatdata.FieldWindDirTrue], func(s *boatdata.Snapshot) (float64, int64) { v, t := s.WindDirTrue.Get(); return float64(v), t }},
	{"pressure", boatdata.MaxAgeWindows[boatdata.FieldPressure], func(s *boatdata.Snapshot) (float64, int64) { v, t := s.Pressure.Get(); return float64(v), t }},
	{"mag_variation", boatdata.MaxAgeWindows[boatdata.FieldWMMValid], func(s *boatdata.Snapshot) (float64, int64) { v, t := s.MagVariation.Get(); return float64(v), t }},
}

// Build renders snap into a Dump at nowMs.
func Build(snap *boatdata.Snapshot, nowMs int64) Dump {
	fields := make([]Field, 0, len(fieldSpecs)+2)
	for _, spec := range fieldSpecs {
		v, observedAtMs := spec.get(snap)
		fields = append(fields, Field{
			Name:  spec.name,
			Value: v,
			Fresh: boatdata.Fresh(observedAtMs, nowMs, spec.windowMs),
			AgeMs: nowMs - observedAtMs,
		})
	}
	gmt, gmtAt := snap.GMT.Get()
	fields = append(fields, Field{
		Name:  "gmt_seconds_of_day",
		Value: float64(gmt.Hour*3600 + gmt.Minute*60 + gmt.Second),
		Fresh: snap.GMT.Fresh(boatdata.MaxAgeWindows[boatdata.FieldGMT], nowMs),
		AgeMs: nowMs - gmtAt,
	})
	date, dateAt := snap.Date.Get()
	fields = append(fields, Field{
		Name:  "date_ordinal",
		Value: float64(date.Year*10000 + date.Month*100 + date.Day),
		Fresh: snap.Date.Fresh(boatdata.MaxAgeWindows[boatdata.FieldDate], nowMs),
		AgeMs: nowMs - dateAt,
	})
	return Dump{NowMs: nowMs, Fields: fields}
}

// Handler serves the current snapshot as JSON, one GET per call --
// nowFn supplies the timebase so the handler can be driven by a real
// or fake clock without depending on the clock package directly.
func Handler(snap *boatdata.Snapshot, nowFn func() int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dump := Build(snap, nowFn())
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(dump)
	}
}
