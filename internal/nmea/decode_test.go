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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/miniwinwm/bluebridge/internal/boatdata"
)

func TestDecodeRMCPopulatesPositionAndMotion(t *testing.T) {
	snap := boatdata.New()
	fields := []string{"123519.00", "A", "4807.038", "N", "01131.000", "E", "22.4", "084.4", "230394", "003.1", "W"}
	mask, err := decodeRMC(fields, snap, 1000)
	require.NoError(t, err)
	require.NotZero(t, mask&maskLat)
	require.NotZero(t, mask&maskLon)

	lat, ts := snap.Latitude.Get()
	require.InDelta(t, 48.1173, lat, 0.001)
	require.EqualValues(t, 1000, ts)

	lon, _ := snap.Longitude.Get()
	require.InDelta(t, 11.5166, lon, 0.001)

	sog, _ := snap.SOG.Get()
	require.InDelta(t, 22.4, sog, 0.001)

	cog, _ := snap.COG.Get()
	require.EqualValues(t, 84, cog)

	date, _ := snap.Date.Get()
	require.Equal(t, boatdata.Date{Year: 2094, Month: 3, Day: 23}, date)

	tod, _ := snap.GMT.Get()
	require.Equal(t, boatdata.TimeOfDay{Hour: 12, Minute: 35, Second: 19}, tod)
}

func TestDecodeRMCVoidStatusIsNoop(t *testing.T) {
	snap := boatdata.New()
	fields := []string{"123519.00", "V", "4807.038", "N", "01131.000", "E", "22.4", "084.4", "230394", "003.1", "W"}
	mask, err := decodeRMC(fields, snap, 1000)
	require.NoError(t, err)
	require.Zero(t, mask)
	require.False(t, snap.Latitude.Fresh(4000, 1000))
}

func TestDecodeRMCZeroSOGZeroesCOG(t *testing.T) {
	snap := boatdata.New()
	fields := []string{"123519.00", "A", "4807.038", "N", "01131.000", "E", "0.0", "084.4", "230394", "003.1", "W"}
	_, err := decodeRMC(fields, snap, 1000)
	require.NoError(t, err)
	cog, _ := snap.COG.Get()
	require.EqualValues(t, 0, cog)
}

func TestDecodeRMCRejectsShortSentence(t *testing.T) {
	snap := boatdata.New()
	_, err := decodeRMC([]string{"1", "2"}, snap, 0)
	require.Error(t, err)
}

func TestDecodeDPT(t *testing.T) {
	snap := boatdata.New()
	mask, err := decodeDPT([]string{"3.4", "0.5"}, snap, 500)
	require.NoError(t, err)
	require.NotZero(t, mask&maskDepth)
	v, ts := snap.Depth.Get()
	require.InDelta(t, 3.4, v, 0.001)
	require.EqualValues(t, 500, ts)
}

func TestDecodeMWVRelativeVsTrue(t *testing.T) {
	snap := boatdata.New()
	_, err := decodeMWV([]string{"45.0", "R", "12.0", "N", "A"}, snap, 10)
	require.NoError(t, err)
	awa, _ := snap.AWA.Get()
	require.InDelta(t, 45.0, awa, 0.001)

	_, err = decodeMWV([]string{"90.0", "T", "9.0", "N", "A"}, snap, 11)
	require.NoError(t, err)
	twa, _ := snap.TWA.Get()
	require.InDelta(t, 90.0, twa, 0.001)
}

func TestDecodeMWVInvalidStatusIsNoop(t *testing.T) {
	snap := boatdata.New()
	mask, err := decodeMWV([]string{"45.0", "R", "12.0", "N", "V"}, snap, 10)
	require.NoError(t, err)
	require.Zero(t, mask)
}

func TestDecodeVDMNeverTouchesSnapshot(t *testing.T) {
	snap := boatdata.New()
	mask, err := decodeVDM([]string{"1", "1", "", "A", "abc", "0"}, snap, 10)
	require.NoError(t, err)
	require.Zero(t, mask)
}

func TestDecoderDispatchTableCoversAllTypes(t *testing.T) {
	for _, typ := range []string{"RMC", "GGA", "VTG", "DPT", "VHW", "MTW", "VLW", "HDT", "MWV", "MWD", "VDM"} {
		_, ok := Decoders[typ]
		require.True(t, ok, "missing decoder for %s", typ)
	}
}
