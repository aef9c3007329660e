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

// Package serialport is the abstract duplex byte channel spec.md §4 (C2)
// calls for: serial to modem, serial to chart plotter over Bluetooth
// SPP, and serial to the instrument bus. Concrete devices are opened
// over go.bug.st/serial, the library facebook-time's sa53fw/mac package
// uses for the same kind of line-oriented serial device.
package serialport

import (
	"io"
	"time"

	"go.bug.st/serial"
)

// Port is the minimal duplex byte channel every consumer in this
// gateway needs. Reads and writes are not required to be synchronized
// with each other; callers that need exclusive access to a Port
// arrange their own serialization (C3's modem engine is the one place
// that matters, and it does so with a single owning goroutine).
type Port interface {
	io.Reader
	io.Writer
	io.Closer
	// SetReadTimeout bounds how long the next Read may block. A
	// non-positive duration means block forever.
	SetReadTimeout(d time.Duration) error
}

type ttyPort struct {
	p serial.Port
}

// OpenTTY opens a real serial device at the given path with the given
// baud rate, 8 data bits, no parity, 1 stop bit (8N1), the mode the
// modem link and both NMEA links in this gateway use (spec.md §6).
func OpenTTY(path string, baud int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return &ttyPort{p: p}, nil
}

func (t *ttyPort) Read(b []byte) (int, error)  { return t.p.Read(b) }
func (t *ttyPort) Write(b []byte) (int, error) { return t.p.Write(b) }
func (t *ttyPort) Close() error                { return t.p.Close() }

func (t *ttyPort) SetReadTimeout(d time.Duration) error {
	if d <= 0 {
		d = serial.NoTimeout
	}
	return t.p.SetReadTimeout(d)
}
