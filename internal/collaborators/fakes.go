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
	"errors"
	"sync"

	"github.com/miniwinwm/bluebridge/internal/busingest"
)

// FakePressureSensor yields queued samples in FIFO order, for tests.
type FakePressureSensor struct {
	mu      sync.Mutex
	samples []PressureSample
}

func (f *FakePressureSensor) Queue(s PressureSample) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, s)
}

func (f *FakePressureSensor) ReadSample() (PressureSample, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.samples) == 0 {
		return PressureSample{}, false
	}
	s := f.samples[0]
	f.samples = f.samples[1:]
	return s, true
}

// FakePersistence is an in-memory Persistence; Load returns the last
// Stored blob, or ErrNotStored before the first Store.
type FakePersistence struct {
	mu   sync.Mutex
	data []byte
	set  bool
}

var ErrNotStored = errors.New("collaborators: nothing stored yet")

func (f *FakePersistence) Load() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.set {
		return nil, ErrNotStored
	}
	out := make([]byte, len(f.data))
	copy(out, f.data)
	return out, nil
}

func (f *FakePersistence) Store(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = make([]byte, len(data))
	copy(f.data, data)
	f.set = true
	return nil
}

// FakeWMMCalculator returns a fixed result every call, for tests.
type FakeWMMCalculator struct {
	Result WMMResult
	Err    error
}

func (f *FakeWMMCalculator) Calculate(float64, float64, float64) (WMMResult, error) {
	return f.Result, f.Err
}

// FakeLED counts calls instead of driving GPIO.
type FakeLED struct {
	mu             sync.Mutex
	TickBlinks     int
	PublishFlashes int
}

func (f *FakeLED) TickBlink() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.TickBlinks++
}

func (f *FakeLED) PublishFlash() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PublishFlashes++
}

// FakeSMSCodec implements a trivial "phone|body" wire format for
// tests -- it doesn't need to match the real PDU format since the
// real codec is explicitly out of scope.
type FakeSMSCodec struct{}

func (FakeSMSCodec) Decode(pdu []byte) (string, string, error) {
	s := string(pdu)
	for i := 0; i < len(s); i++ {
		if s[i] == '|' {
			return s[:i], s[i+1:], nil
		}
	}
	return "", "", errors.New("collaborators: malformed fake PDU")
}

func (FakeSMSCodec) Encode(phoneNumber string, body string) ([]byte, error) {
	return []byte(phoneNumber + "|" + body), nil
}

// FakeCANWriter records every frame written instead of driving a bus
// controller.
type FakeCANWriter struct {
	mu      sync.Mutex
	Written []busingest.CANFrame
}

func (f *FakeCANWriter) Write(frame busingest.CANFrame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Written = append(f.Written, frame)
	return nil
}

// FakeBluetoothAcceptor records every Write for tests.
type FakeBluetoothAcceptor struct {
	mu      sync.Mutex
	Written [][]byte
}

func (f *FakeBluetoothAcceptor) Write(data []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.Written = append(f.Written, cp)
	return len(data), nil
}
