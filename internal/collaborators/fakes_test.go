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

package collaborators

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/miniwinwm/bluebridge/internal/busingest"
)

func TestFakePressureSensorFIFOAndDrain(t *testing.T) {
	s := &FakePressureSensor{}
	_, ok := s.ReadSample()
	require.False(t, ok)

	s.Queue(PressureSample{HectoPascals: 1013.2})
	s.Queue(PressureSample{HectoPascals: 1013.5})

	got, ok := s.ReadSample()
	require.True(t, ok)
	require.Equal(t, float32(1013.2), got.HectoPascals)

	got, ok = s.ReadSample()
	require.True(t, ok)
	require.Equal(t, float32(1013.5), got.HectoPascals)

	_, ok = s.ReadSample()
	require.False(t, ok)
}

func TestFakePersistenceRoundTrip(t *testing.T) {
	p := &FakePersistence{}
	_, err := p.Load()
	require.ErrorIs(t, err, ErrNotStored)

	require.NoError(t, p.Store([]byte("hello")))
	got, err := p.Load()
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
}

func TestFakeSMSCodecRoundTrip(t *testing.T) {
	c := FakeSMSCodec{}
	pdu, err := c.Encode("+447700900000", "APN=X")
	require.NoError(t, err)

	phone, body, err := c.Decode(pdu)
	require.NoError(t, err)
	require.Equal(t, "+447700900000", phone)
	require.Equal(t, "APN=X", body)
}

func TestFakeLEDCountsCalls(t *testing.T) {
	l := &FakeLED{}
	l.TickBlink()
	l.TickBlink()
	l.PublishFlash()
	require.Equal(t, 2, l.TickBlinks)
	require.Equal(t, 1, l.PublishFlashes)
}

func TestFakeCANWriterRecordsFrames(t *testing.T) {
	w := &FakeCANWriter{}
	require.NoError(t, w.Write(busingest.CANFrame{PGN: 130314, Data: []byte{0, 1, 2, 3, 4}}))
	require.Len(t, w.Written, 1)
	require.Equal(t, uint32(130314), w.Written[0].PGN)
}
