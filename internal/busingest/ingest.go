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

package busingest

import (
	"encoding/binary"
	"errors"

	"github.com/miniwinwm/bluebridge/internal/boatdata"
)

var errShortFrame = errors.New("busingest: frame too short for its PGN")

// pgnDecoder decodes one CAN frame's data field into the snapshot.
// Mirrors internal/nmea's decoder dispatch table shape for consistency
// across the codebase's two ingestion paths.
type pgnDecoder func(data []byte, snap *boatdata.Snapshot, nowMs int64) error

// Register is the static PGN -> decoder dispatch table.
var Register = map[uint32]pgnDecoder{
	pgnPosition:      decodePosition,
	pgnCOGSOG:        decodeCOGSOG,
	pgnDepth:         decodeDepth,
	pgnWindData:      decodeWindData,
	pgnVesselHeading: decodeVesselHeading,
}

// Ingestor dispatches CAN frames from the bus collaborator onto the
// snapshot via Register. It holds no state of its own beyond the
// snapshot it was built with; callers pass the timestamp to Ingest.
type Ingestor struct {
	snap *boatdata.Snapshot
}

// New returns an Ingestor writing into snap.
func New(snap *boatdata.Snapshot) *Ingestor {
	return &Ingestor{snap: snap}
}

// Ingest decodes frame if its PGN is registered; unregistered PGNs are
// silently ignored (the bus carries far more PGNs than this gateway's
// small measurement set cares about). nowMs timestamps any resulting
// snapshot writes.
func (ig *Ingestor) Ingest(frame CANFrame, nowMs int64) error {
	decode, ok := Register[frame.PGN]
	if !ok {
		return nil
	}
	return decode(frame.Data, ig.snap, nowMs)
}

// decodePosition unpacks PGN 129025: two little-endian int32 fields,
// latitude then longitude, each in units of 1e-7 degrees.
func decodePosition(data []byte, snap *boatdata.Snapshot, nowMs int64) error {
	if len(data) < 8 {
		return errShortFrame
	}
	lat := int32(binary.LittleEndian.Uint32(data[0:4]))
	lon := int32(binary.LittleEndian.Uint32(data[4:8]))
	snap.Latitude.Set(float32(lat)/1e7, nowMs)
	snap.Longitude.Set(float32(lon)/1e7, nowMs)
	return nil
}

// decodeCOGSOG unpacks PGN 129026: reference byte, COG as uint16
// radians*1e-4 at offset 2, SOG as uint16 m/s*1e-2 at offset 4.
func decodeCOGSOG(data []byte, snap *boatdata.Snapshot, nowMs int64) error {
	if len(data) < 6 {
		return errShortFrame
	}
	cogRaw := binary.LittleEndian.Uint16(data[2:4])
	sogRaw := binary.LittleEndian.Uint16(data[4:6])
	cogDeg := radiansToDegrees(float64(cogRaw) * 0.0001)
	snap.COG.Set(int16(cogDeg), nowMs)
	snap.SOG.Set(float32(sogRaw)*0.01, nowMs)
	return nil
}

// decodeDepth unpacks PGN 128267: uint8 instance, uint32 depth below
// transducer in 0.01 m units at offset 1, int16 offset in 0.001 m at
// offset 5.
func decodeDepth(data []byte, snap *boatdata.Snapshot, nowMs int64) error {
	if len(data) < 5 {
		return errShortFrame
	}
	depthRaw := binary.LittleEndian.Uint32(data[1:5])
	snap.Depth.Set(float32(depthRaw)*0.01, nowMs)
	return nil
}

// decodeWindData unpacks PGN 130306: uint8 instance, uint16 wind speed
// in 0.01 m/s at offset 1, uint16 wind angle in 0.0001 rad at offset
// 3, uint8 reference at offset 5 (0 = true, 1 = apparent).
func decodeWindData(data []byte, snap *boatdata.Snapshot, nowMs int64) error {
	if len(data) < 6 {
		return errShortFrame
	}
	speedRaw := binary.LittleEndian.Uint16(data[1:3])
	angleRaw := binary.LittleEndian.Uint16(data[3:5])
	speed := float32(speedRaw) * 0.01
	angle := radiansToDegrees(float64(angleRaw) * 0.0001)
	reference := data[5]
	if reference == 1 {
		snap.AWS.Set(speed, nowMs)
		snap.AWA.Set(float32(angle), nowMs)
	} else {
		snap.TWS.Set(speed, nowMs)
		snap.TWA.Set(float32(angle), nowMs)
	}
	return nil
}

// decodeVesselHeading unpacks PGN 127250: uint16 heading in 0.0001 rad
// at offset 1, uint16 magnetic deviation at offset 3, uint16 magnetic
// variation at offset 5, uint8 reference at offset 7 (0 = true,
// 1 = magnetic).
func decodeVesselHeading(data []byte, snap *boatdata.Snapshot, nowMs int64) error {
	if len(data) < 8 {
		return errShortFrame
	}
	headingRaw := binary.LittleEndian.Uint16(data[1:3])
	heading := radiansToDegrees(float64(headingRaw) * 0.0001)
	reference := data[7]
	if reference == 1 {
		varRaw := int16(binary.LittleEndian.Uint16(data[5:7]))
		variation := radiansToDegrees(float64(varRaw) * 0.0001)
		snap.HeadingTrue.Set(float32(heading)+float32(variation), nowMs)
	} else {
		snap.HeadingTrue.Set(float32(heading), nowMs)
	}
	return nil
}

func radiansToDegrees(rad float64) float64 {
	const degPerRad = 180.0 / 3.14159265358979323846
	return rad * degPerRad
}

// EncodePressure packs a barometric pressure reading (hPa) into an
// outbound PGN 130314 frame: source byte 0 (0 = atmospheric), pressure
// in pascals as a little-endian uint32 at offset 1. The orchestrator
// calls this on its 8s pressure drain so the reading reaches the CAN
// bus, not just the snapshot and the composite frame.
func EncodePressure(hPa float32) CANFrame {
	data := make([]byte, 5)
	data[0] = 0
	binary.LittleEndian.PutUint32(data[1:5], uint32(hPa*100))
	return CANFrame{PGN: pgnPressure, Data: data}
}
