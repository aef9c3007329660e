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

// Package collaborators declares the interfaces the core talks to for
// everything outside its own scope: pressure sensing, persistent
// settings storage, magnetic variation calculation, LED indication,
// SMS PDU coding, and the Bluetooth serial acceptor. Only trivial
// in-memory fakes live here; real implementations (I2C driver, flash
// driver, WMM tables, GPIO, PDU codec, BT stack) are out of scope.
package collaborators

import (
	"time"

	"github.com/miniwinwm/bluebridge/internal/busingest"
)

// PressureSample is one reading drained from the pressure sensor.
type PressureSample struct {
	HectoPascals float32
	ObservedAt   time.Time
}

// PressureSensor yields at most one buffered sample per call; ok is
// false when nothing is pending, mirroring the original's "drain one
// sample if available" 8s tick behavior.
type PressureSensor interface {
	ReadSample() (sample PressureSample, ok bool)
}

// Persistence loads and stores the non-volatile settings blob. The
// core treats it as an opaque byte blob; internal/settings owns the
// encoding.
type Persistence interface {
	Load() ([]byte, error)
	Store(data []byte) error
}

// WMMResult is one magnetic-variation calculation.
type WMMResult struct {
	VariationDegrees float32 // east positive
}

// WMMCalculator computes magnetic variation from position and a
// fractional-year date.
type WMMCalculator interface {
	Calculate(latitude, longitude float64, fractionalYear float64) (WMMResult, error)
}

// LED drives the status indicator. TickBlink is the 1s "publishing
// enabled" heartbeat; PublishFlash is the longer flash on a
// successful publish -- the original keeps these as two call sites
// rather than one parameterized blink, so this interface does too.
type LED interface {
	TickBlink()
	PublishFlash()
}

// SMSCodec decodes/encodes the PDU wire format SMS messages use.
// Decoding is out of this core's scope (an external collaborator);
// Encode is needed to build outbound replies.
type SMSCodec interface {
	Decode(pdu []byte) (phoneNumber string, body string, err error)
	Encode(phoneNumber string, body string) ([]byte, error)
}

// CANWriter puts a frame onto the instrument bus; the bus PHY and
// arbitration are out of scope, the core only needs a frame sink for
// the environmental PGN the orchestrator emits on its 8s tick.
type CANWriter interface {
	Write(frame busingest.CANFrame) error
}

// BluetoothAcceptor republishes NMEA sentences over a Bluetooth SPP
// link to a chart plotter; the core only needs a byte sink, the
// pairing/acceptor lifecycle is out of scope.
type BluetoothAcceptor interface {
	Write(data []byte) (int, error)
}
