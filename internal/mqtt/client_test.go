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

package mqtt

import (
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/miniwinwm/bluebridge/internal/atmodem"
	"github.com/miniwinwm/bluebridge/internal/clock"
	"github.com/miniwinwm/bluebridge/internal/serialport"
)

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestClient(t *testing.T) (*Client, serialport.Port) {
	t.Helper()
	a, b := serialport.Pair()
	engine := atmodem.NewEngine(a, clock.NewFake(0), discardLogger(), nil)
	go engine.Run()
	t.Cleanup(engine.Close)
	return NewClient(engine), b
}

// serveCIPSEND answers one AT+CIPSEND=<n> exchange carrying exactly
// chunk, mirroring the modem engine's write-TCP prompt dialog.
func serveCIPSEND(t *testing.T, peer io.ReadWriter, chunk []byte) {
	t.Helper()
	cmdText := fmt.Sprintf("AT+CIPSEND=%d", len(chunk))
	buf := make([]byte, len(cmdText)+1)
	_, err := io.ReadFull(peer, buf)
	require.NoError(t, err)
	require.Equal(t, cmdText+"\r", string(buf))
	_, err = peer.Write([]byte(cmdText + "\r\r\n> "))
	require.NoError(t, err)

	echoed := make([]byte, len(chunk))
	_, err = io.ReadFull(peer, echoed)
	require.NoError(t, err)
	require.Equal(t, chunk, echoed)
	_, err = peer.Write([]byte(chunk))
	require.NoError(t, err)
	_, err = peer.Write([]byte("SEND OK\r\n"))
	require.NoError(t, err)
}

// serveCIPRXGET4 answers one AT+CIPRXGET=4 query with waiting bytes.
func serveCIPRXGET4(t *testing.T, peer io.ReadWriter, waiting int) {
	t.Helper()
	cmdText := "AT+CIPRXGET=4"
	buf := make([]byte, len(cmdText)+1)
	_, err := io.ReadFull(peer, buf)
	require.NoError(t, err)
	require.Equal(t, cmdText+"\r", string(buf))
	_, err = peer.Write([]byte(fmt.Sprintf("%s\r\r\n%d\r\n\r\nOK\r\n", cmdText, waiting)))
	require.NoError(t, err)
}

// serveCIPRXGET2 answers one AT+CIPRXGET=2,<n> read with data.
func serveCIPRXGET2(t *testing.T, peer io.ReadWriter, n int, data []byte) {
	t.Helper()
	cmdText := fmt.Sprintf("AT+CIPRXGET=2,%d", n)
	buf := make([]byte, len(cmdText)+1)
	_, err := io.ReadFull(peer, buf)
	require.NoError(t, err)
	require.Equal(t, cmdText+"\r", string(buf))
	header := fmt.Sprintf("%s\r\r\n+CIPRXGET: 2,%d\r\n", cmdText, len(data))
	_, err = peer.Write([]byte(header))
	require.NoError(t, err)
	_, err = peer.Write(data)
	require.NoError(t, err)
	_, err = peer.Write([]byte("\r\n\r\nOK\r\n"))
	require.NoError(t, err)
}

func TestPublishWireBytesMatchSeedScenario(t *testing.T) {
	c, peer := newTestClient(t)
	done := make(chan Result, 1)
	go func() { done <- c.Publish("deadbeef/all", []byte("14,220,"), false, 2000) }()

	want := append([]byte{0x30, 0x15, 0x00, 0x0C}, []byte("deadbeef/all14,220,")...)
	require.Len(t, want, 23)
	serveCIPSEND(t, peer, want)

	require.Equal(t, ResultOK, <-done)
}

func TestConnectSendsFlagsAndWaitsForConnAck(t *testing.T) {
	c, peer := newTestClient(t)
	done := make(chan Result, 1)
	go func() { done <- c.Connect("1234", "", "", 600, true, 2000) }()

	var body []byte
	body = append(body, encodeString("MQTT")...)
	body = append(body, 0x04, 0x02, 0x02, 0x58)
	body = append(body, encodeString("1234")...)
	packet, err := buildPacket(typeConnect, body)
	require.NoError(t, err)
	serveCIPSEND(t, peer, packet)

	serveCIPRXGET4(t, peer, 4)
	serveCIPRXGET2(t, peer, 1, []byte{byte(typeConnAck)})
	serveCIPRXGET2(t, peer, 1, []byte{0x02})
	serveCIPRXGET2(t, peer, 2, []byte{0x00, 0x00})

	select {
	case result := <-done:
		require.Equal(t, ResultOK, result)
	case <-time.After(2 * time.Second):
		t.Fatal("connect never completed")
	}
}

func TestConnectReportsConnectionRefused(t *testing.T) {
	c, peer := newTestClient(t)
	done := make(chan Result, 1)
	go func() { done <- c.Connect("1234", "user", "pass", 600, true, 2000) }()

	var body []byte
	body = append(body, encodeString("MQTT")...)
	flags := byte(0x02 | 0x80 | 0x40)
	body = append(body, 0x04, flags, 0x02, 0x58)
	body = append(body, encodeString("1234")...)
	body = append(body, encodeString("user")...)
	body = append(body, encodeString("pass")...)
	packet, err := buildPacket(typeConnect, body)
	require.NoError(t, err)
	serveCIPSEND(t, peer, packet)

	serveCIPRXGET4(t, peer, 4)
	serveCIPRXGET2(t, peer, 1, []byte{byte(typeConnAck)})
	serveCIPRXGET2(t, peer, 1, []byte{0x02})
	serveCIPRXGET2(t, peer, 2, []byte{0x05, 0x00})

	select {
	case result := <-done:
		require.Equal(t, ResultConnectionRefused, result)
	case <-time.After(2 * time.Second):
		t.Fatal("connect never completed")
	}
}

func TestHandleResponseNoResponseWhenNothingWaiting(t *testing.T) {
	c, peer := newTestClient(t)
	done := make(chan Result, 1)
	go func() { done <- c.HandleResponse(1000) }()
	serveCIPRXGET4(t, peer, 0)
	require.Equal(t, ResultNoResponse, <-done)
}

func TestHandleResponseDispatchesPublish(t *testing.T) {
	c, peer := newTestClient(t)
	var gotTopic string
	var gotBody []byte
	c.OnPublish = func(topic string, payload []byte) {
		gotTopic = topic
		gotBody = payload
	}

	topic := "deadbeef/all"
	body := []byte("14,220,")
	var payload []byte
	payload = append(payload, encodeString(topic)...)
	payload = append(payload, body...)

	done := make(chan Result, 1)
	go func() { done <- c.HandleResponse(1000) }()

	serveCIPRXGET4(t, peer, 1+len(payload)+1)
	serveCIPRXGET2(t, peer, 1, []byte{byte(typePublish)})
	rl, err := encodeRemainingLength(len(payload))
	require.NoError(t, err)
	serveCIPRXGET2(t, peer, len(rl), rl)
	serveCIPRXGET2(t, peer, len(payload), payload)

	require.Equal(t, ResultOK, <-done)
	require.Equal(t, topic, gotTopic)
	require.Equal(t, body, gotBody)
}

func TestHandleResponseRejectsFifthContinuationByte(t *testing.T) {
	c, peer := newTestClient(t)
	done := make(chan Result, 1)
	go func() { done <- c.HandleResponse(1000) }()

	serveCIPRXGET4(t, peer, 6)
	serveCIPRXGET2(t, peer, 1, []byte{byte(typePublish)})
	for i := 0; i < 4; i++ {
		serveCIPRXGET2(t, peer, 1, []byte{0xFF})
	}

	require.Equal(t, ResultUnexpectedResponse, <-done)
}

func TestSubscribeWiresPacketIDAndQoS0(t *testing.T) {
	c, peer := newTestClient(t)
	done := make(chan Result, 1)
	go func() { done <- c.Subscribe(42, "deadbeef/cmd", 1000) }()

	var body []byte
	body = append(body, 0x00, 0x2A)
	body = append(body, encodeString("deadbeef/cmd")...)
	body = append(body, 0x00)
	packet, err := buildPacket(typeSubscribe, body)
	require.NoError(t, err)
	serveCIPSEND(t, peer, packet)

	require.Equal(t, ResultOK, <-done)
}
