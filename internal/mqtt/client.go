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
	"time"

	"github.com/miniwinwm/bluebridge/internal/atmodem"
)

// Result is the closed outcome set HandleResponse and Connect report.
type Result int

const (
	ResultOK Result = iota
	ResultConnectionRefused
	ResultNoResponse
	ResultUnexpectedResponse
	ResultTCPError
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultConnectionRefused:
		return "connection-refused"
	case ResultNoResponse:
		return "no-response"
	case ResultUnexpectedResponse:
		return "unexpected-response"
	case ResultTCPError:
		return "tcp-error"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// pollInterval is how long Connect sleeps between HandleResponse polls
// while waiting for the broker's CONNACK; the engine itself has no
// notion of "wake me when bytes arrive" so the client backs off gently
// rather than hammering AT+CIPRXGET=4.
const pollInterval = 20 * time.Millisecond

// Client drives one MQTT session over an atmodem.Engine's TCP bearer.
// It owns no state the engine doesn't already track (TCPConnected), so
// a Client is a thin, stateless-besides-callbacks adapter: all of the
// session's transport state lives in the engine it wraps.
type Client struct {
	engine *atmodem.Engine

	OnPublish     func(topic string, payload []byte)
	OnPing        func()
	OnSubscribe   func(packetID uint16, success bool)
	OnUnsubscribe func(packetID uint16)
}

// NewClient wraps engine; callbacks may be set on the returned Client
// before first use.
func NewClient(engine *atmodem.Engine) *Client {
	return &Client{engine: engine}
}

// Connect sends CONNECT and polls HandleResponse until a non-no-response
// result, per spec.md's "Connect" step.
func (c *Client) Connect(clientID, username, password string, keepAliveSec uint16, cleanSession bool, timeoutMs int64) Result {
	var flags byte
	if cleanSession {
		flags |= 0x02
	}
	if username != "" {
		flags |= 0x80
	}
	if password != "" {
		flags |= 0x40
	}

	var body []byte
	body = append(body, encodeString("MQTT")...)
	body = append(body, 0x04) // protocol level 4 (v3.1.1)
	body = append(body, flags)
	body = append(body, byte(keepAliveSec>>8), byte(keepAliveSec))
	body = append(body, encodeString(clientID)...)
	if username != "" {
		body = append(body, encodeString(username)...)
	}
	if password != "" {
		body = append(body, encodeString(password)...)
	}

	packet, err := buildPacket(typeConnect, body)
	if err != nil {
		return ResultUnexpectedResponse
	}
	resp := c.engine.WriteTCP(packet, timeoutMs)
	if !sendSucceeded(resp.Status) {
		return ResultTCPError
	}

	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	for {
		result := c.HandleResponse(timeoutMs)
		if result != ResultNoResponse {
			return result
		}
		if time.Now().After(deadline) {
			return ResultNoResponse
		}
		time.Sleep(pollInterval)
	}
}

// Publish sends topic/payload at QoS 0; retain is carried verbatim in
// the fixed header's low bit. No acknowledgment is awaited.
func (c *Client) Publish(topic string, payload []byte, retain bool, timeoutMs int64) Result {
	var body []byte
	body = append(body, encodeString(topic)...)
	body = append(body, payload...)

	var flags byte
	if retain {
		flags = 0x01
	}
	packet, err := buildPacketWithFlags(typePublish, flags, body)
	if err != nil {
		return ResultUnexpectedResponse
	}
	resp := c.engine.WriteTCP(packet, timeoutMs)
	if !sendSucceeded(resp.Status) {
		return ResultTCPError
	}
	return ResultOK
}

// Subscribe requests QoS 0 delivery of topic under the caller-supplied
// packet id.
func (c *Client) Subscribe(packetID uint16, topic string, timeoutMs int64) Result {
	var body []byte
	body = append(body, byte(packetID>>8), byte(packetID))
	body = append(body, encodeString(topic)...)
	body = append(body, 0x00) // requested QoS 0

	packet, err := buildPacket(typeSubscribe, body)
	if err != nil {
		return ResultUnexpectedResponse
	}
	resp := c.engine.WriteTCP(packet, timeoutMs)
	if !sendSucceeded(resp.Status) {
		return ResultTCPError
	}
	return ResultOK
}

// Unsubscribe cancels delivery of topic under the caller-supplied
// packet id.
func (c *Client) Unsubscribe(packetID uint16, topic string, timeoutMs int64) Result {
	var body []byte
	body = append(body, byte(packetID>>8), byte(packetID))
	body = append(body, encodeString(topic)...)

	packet, err := buildPacket(typeUnsubscribe, body)
	if err != nil {
		return ResultUnexpectedResponse
	}
	resp := c.engine.WriteTCP(packet, timeoutMs)
	if !sendSucceeded(resp.Status) {
		return ResultTCPError
	}
	return ResultOK
}

// Disconnect sends the MQTT DISCONNECT packet; it does not close the
// underlying TCP bearer, which is the caller's responsibility via the
// wrapped engine's CloseTCP.
func (c *Client) Disconnect(timeoutMs int64) Result {
	packet, err := buildPacket(typeDisconnect, nil)
	if err != nil {
		return ResultUnexpectedResponse
	}
	resp := c.engine.WriteTCP(packet, timeoutMs)
	if !sendSucceeded(resp.Status) {
		return ResultTCPError
	}
	return ResultOK
}

// Ping sends PINGREQ; the broker's PINGRESP surfaces through
// HandleResponse and OnPing, not as a direct return value here.
func (c *Client) Ping(timeoutMs int64) Result {
	packet, err := buildPacket(typePingReq, nil)
	if err != nil {
		return ResultUnexpectedResponse
	}
	resp := c.engine.WriteTCP(packet, timeoutMs)
	if !sendSucceeded(resp.Status) {
		return ResultTCPError
	}
	return ResultOK
}

// HandleResponse queries the modem for read-waiting length; if zero,
// returns no-response. Otherwise reads one control byte and the
// remaining-length varint (at most 4 bytes), reads that many payload
// bytes, and dispatches by control byte.
func (c *Client) HandleResponse(timeoutMs int64) Result {
	waiting := c.engine.QueryReadWaiting(timeoutMs)
	if waiting.Status != atmodem.StatusOK {
		return ResultTCPError
	}
	if waiting.ReadWaitingLen == 0 {
		return ResultNoResponse
	}

	header := c.engine.ReadTCP(1, timeoutMs)
	if header.Status != atmodem.StatusOK || len(header.Payload) != 1 {
		return ResultTCPError
	}
	control := header.Payload[0] & 0xF0

	remaining, err := c.readRemainingLength(timeoutMs)
	if err != nil {
		return ResultUnexpectedResponse
	}

	var payload []byte
	if remaining > 0 {
		resp := c.engine.ReadTCP(remaining, timeoutMs)
		if resp.Status != atmodem.StatusOK || len(resp.Payload) != remaining {
			return ResultTCPError
		}
		payload = resp.Payload
	}

	return c.dispatch(controlType(control), payload)
}

// readRemainingLength reads the variable-length integer one byte at a
// time directly from the TCP stream, since its length isn't known
// until the continuation bit of the last byte read is clear.
func (c *Client) readRemainingLength(timeoutMs int64) (int, error) {
	var buf []byte
	for i := 0; i < maxRemainingLengthBytes; i++ {
		resp := c.engine.ReadTCP(1, timeoutMs)
		if resp.Status != atmodem.StatusOK || len(resp.Payload) != 1 {
			return 0, errRemainingLengthTooLong
		}
		buf = append(buf, resp.Payload[0])
		if resp.Payload[0]&0x80 == 0 {
			value, _, err := decodeRemainingLength(buf)
			return value, err
		}
	}
	return 0, errRemainingLengthTooLong
}

func (c *Client) dispatch(control controlType, payload []byte) Result {
	switch control {
	case typePublish:
		if len(payload) < 6 {
			return ResultUnexpectedResponse
		}
		topicLen := int(payload[0])<<8 | int(payload[1])
		if 2+topicLen > len(payload) {
			return ResultUnexpectedResponse
		}
		topic := string(payload[2 : 2+topicLen])
		body := payload[2+topicLen:]
		if c.OnPublish != nil {
			c.OnPublish(topic, body)
		}
		return ResultOK
	case typePingResp:
		if c.OnPing != nil {
			c.OnPing()
		}
		return ResultOK
	case typeSubAck:
		if len(payload) != 3 {
			return ResultUnexpectedResponse
		}
		if payload[2] != 0x00 && payload[2] != 0x80 {
			return ResultUnexpectedResponse
		}
		packetID := uint16(payload[0])<<8 | uint16(payload[1])
		if c.OnSubscribe != nil {
			c.OnSubscribe(packetID, payload[2] == 0x00)
		}
		return ResultOK
	case typeUnsubAck:
		if len(payload) != 2 {
			return ResultUnexpectedResponse
		}
		packetID := uint16(payload[0])<<8 | uint16(payload[1])
		if c.OnUnsubscribe != nil {
			c.OnUnsubscribe(packetID)
		}
		return ResultOK
	case typeConnAck:
		if len(payload) != 2 {
			return ResultUnexpectedResponse
		}
		if payload[0] == 0 {
			return ResultOK
		}
		return ResultConnectionRefused
	default:
		return ResultUnexpectedResponse
	}
}

func buildPacket(t controlType, body []byte) ([]byte, error) {
	return buildPacketWithFlags(t, 0, body)
}

func buildPacketWithFlags(t controlType, flags byte, body []byte) ([]byte, error) {
	rl, err := encodeRemainingLength(len(body))
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 1+len(rl)+len(body))
	out = append(out, byte(t)|flags)
	out = append(out, rl...)
	out = append(out, body...)
	return out, nil
}

func sendSucceeded(s atmodem.Status) bool {
	return s == atmodem.StatusOK || s == atmodem.StatusSendOK
}
