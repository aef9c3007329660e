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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/miniwinwm/bluebridge/internal/boatdata"
)

func TestIngestPosition(t *testing.T) {
	snap := boatdata.New()
	ig := New(snap)

	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data[0:4], uint32(int32(508_000_000))) // 50.8 deg
	binary.LittleEndian.PutUint32(data[4:8], uint32(int32(-1_200_000)))  // -0.12 deg

	require.NoError(t, ig.Ingest(CANFrame{PGN: pgnPosition, Data: data}, 1000))

	lat, at := snap.Latitude.Get()
	require.Equal(t, int64(1000), at)
	require.InDelta(t, 50.8, lat, 0.001)

	lon, _ := snap.Longitude.Get()
	require.InDelta(t, -0.12, lon, 0.001)
}

func TestIngestCOGSOG(t *testing.T) {
	snap := boatdata.New()
	ig := New(snap)

	data := make([]byte, 6)
	binary.LittleEndian.PutUint16(data[2:4], uint16(15708)) // ~pi/2 rad *1e4 -> 90 deg
	binary.LittleEndian.PutUint16(data[4:6], uint16(500))    // 5.0 m/s

	require.NoError(t, ig.Ingest(CANFrame{PGN: pgnCOGSOG, Data: data}, 2000))

	cog, _ := snap.COG.Get()
	require.InDelta(t, 90, cog, 1)
	sog, _ := snap.SOG.Get()
	require.InDelta(t, 5.0, sog, 0.01)
}

func TestIngestDepth(t *testing.T) {
	snap := boatdata.New()
	ig := New(snap)

	data := make([]byte, 5)
	binary.LittleEndian.PutUint32(data[1:5], 1234) // 12.34 m

	require.NoError(t, ig.Ingest(CANFrame{PGN: pgnDepth, Data: data}, 3000))

	depth, _ := snap.Depth.Get()
	require.InDelta(t, 12.34, depth, 0.001)
}

func TestIngestWindDataApparentVsTrue(t *testing.T) {
	snap := boatdata.New()
	ig := New(snap)

	data := make([]byte, 6)
	binary.LittleEndian.PutUint16(data[1:3], 1000) // 10 m/s
	binary.LittleEndian.PutUint16(data[3:5], 0)
	data[5] = 1 // apparent
	require.NoError(t, ig.Ingest(CANFrame{PGN: pgnWindData, Data: data}, 4000))

	aws, _ := snap.AWS.Get()
	require.InDelta(t, 10.0, aws, 0.01)
	_, twsAt := snap.TWS.Get()
	require.NotEqual(t, int64(4000), twsAt)

	data[5] = 0 // true
	require.NoError(t, ig.Ingest(CANFrame{PGN: pgnWindData, Data: data}, 5000))
	tws, at := snap.TWS.Get()
	require.Equal(t, int64(5000), at)
	require.InDelta(t, 10.0, tws, 0.01)
}

func TestIngestVesselHeadingTrue(t *testing.T) {
	snap := boatdata.New()
	ig := New(snap)

	data := make([]byte, 8)
	binary.LittleEndian.PutUint16(data[1:3], 0) // 0 rad -> 0 deg
	data[7] = 0                                 // true

	require.NoError(t, ig.Ingest(CANFrame{PGN: pgnVesselHeading, Data: data}, 6000))

	heading, at := snap.HeadingTrue.Get()
	require.Equal(t, int64(6000), at)
	require.InDelta(t, 0, heading, 0.01)
}

func TestIngestUnregisteredPGNIsNoOp(t *testing.T) {
	snap := boatdata.New()
	ig := New(snap)
	require.NoError(t, ig.Ingest(CANFrame{PGN: 999999, Data: []byte{1, 2, 3}}, 7000))
	_, at := snap.Latitude.Get()
	require.NotEqual(t, int64(7000), at)
}

func TestIngestShortFrameErrors(t *testing.T) {
	snap := boatdata.New()
	ig := New(snap)
	err := ig.Ingest(CANFrame{PGN: pgnPosition, Data: []byte{1, 2}}, 8000)
	require.Error(t, err)
}
